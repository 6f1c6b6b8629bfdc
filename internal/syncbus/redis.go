package syncbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisChannel   = "storefront:sync"
	defaultRedisRetention = 30 * 24 * time.Hour
)

// Redis publishes messages on a Redis channel so that several storefront processes share
// session state updates.
type Redis struct {
	client    *redis.Client
	channel   string
	retention time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*redis.PubSub]struct{}
}

// RedisOption customises the Redis channel.
type RedisOption func(*Redis)

// WithRedisLogger sets the logger used for undecodable payloads.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRedisRetention sets how long the latest value of a key is kept for new subscribers.
func WithRedisRetention(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retention = d
		}
	}
}

// NewRedis constructs a Redis-backed channel. An empty channel name uses "storefront:sync".
func NewRedis(client *redis.Client, channel string, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, errors.New("syncbus: redis client is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultRedisChannel
	}
	r := &Redis{
		client:    client,
		channel:   channel,
		retention: defaultRedisRetention,
		logger:    zap.NewNop(),
		subs:      make(map[*redis.PubSub]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Publish serialises msg as JSON, stores it as the latest value of its key and publishes it.
func (r *Redis) Publish(ctx context.Context, msg Message) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("syncbus: marshal message: %w", err)
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.lastKey(msg.Key), payload, r.retention)
		p.Publish(ctx, r.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("syncbus: redis publish failed: %w", err)
	}
	return nil
}

// Last reads the latest message stored for key.
func (r *Redis) Last(ctx context.Context, key string) (Message, bool, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return Message{}, false, ErrClosed
	}
	raw, err := r.client.Get(ctx, r.lastKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("syncbus: redis read failed: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false, fmt.Errorf("syncbus: decode stored message: %w", err)
	}
	return msg, true, nil
}

func (r *Redis) lastKey(key string) string {
	return r.channel + ":last:" + key
}

// Subscribe starts a goroutine delivering messages from other origins to handler. The
// subscription is confirmed before Subscribe returns.
func (r *Redis) Subscribe(ctx context.Context, origin string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, errors.New("syncbus: handler is required")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("syncbus: redis subscribe failed: %w", err)
	}

	r.mu.Lock()
	r.subs[pubsub] = struct{}{}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for raw := range pubsub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.Warn("syncbus: dropping undecodable message", zap.Error(err))
				continue
			}
			if origin != "" && msg.Origin == origin {
				continue
			}
			handler(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, pubsub)
			r.mu.Unlock()
			_ = pubsub.Close()
			<-done
		})
	}, nil
}

// Close unsubscribes every active subscription. The Redis client itself is owned by the caller.
func (r *Redis) Close() error {
	r.mu.Lock()
	r.closed = true
	subs := r.subs
	r.subs = make(map[*redis.PubSub]struct{})
	r.mu.Unlock()

	var errs []error
	for pubsub := range subs {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
