package syncbus

import (
	"context"
	"strings"
)

const scopeSeparator = "/"

type scoped struct {
	parent Channel
	prefix string
}

// Scoped narrows ch to the keys of one scope, typically a user id, so that several users can
// share one backend. Keys are namespaced on publish and stripped again before delivery.
// Closing the scoped view leaves ch open.
func Scoped(ch Channel, scope string) Channel {
	return &scoped{parent: ch, prefix: scope + scopeSeparator}
}

func (s *scoped) Publish(ctx context.Context, msg Message) error {
	msg.Key = s.prefix + msg.Key
	return s.parent.Publish(ctx, msg)
}

func (s *scoped) Subscribe(ctx context.Context, origin string, handler Handler) (func(), error) {
	if handler == nil {
		return s.parent.Subscribe(ctx, origin, nil)
	}
	return s.parent.Subscribe(ctx, origin, func(msg Message) {
		key, ok := strings.CutPrefix(msg.Key, s.prefix)
		if !ok {
			return
		}
		msg.Key = key
		handler(msg)
	})
}

func (s *scoped) Last(ctx context.Context, key string) (Message, bool, error) {
	msg, ok, err := s.parent.Last(ctx, s.prefix+key)
	if err != nil || !ok {
		return Message{}, false, err
	}
	msg.Key = key
	return msg, true, nil
}

func (s *scoped) Close() error {
	return nil
}
