// Package favorites keeps the shopper's favourite products and recent searches, mirrored to
// the other tabs of the session through the sync channel.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/syncbus"
)

// Sync keys.
const (
	FavoritesKey     = "favorites"
	SearchHistoryKey = "searchHistory"
)

// DefaultHistoryLimit caps the number of remembered searches.
const DefaultHistoryLimit = 10

// ErrInvalidProduct indicates a zero product id.
var ErrInvalidProduct = errors.New("favorites: invalid product id")

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	products []int64
	history  []string
	limit    int
	bus      syncbus.Channel
	origin   string
	logger   *zap.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithHistoryLimit overrides DefaultHistoryLimit.
func WithHistoryLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithLogger sets the logger used when remote updates cannot be applied.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs an empty store. bus may be nil.
func New(bus syncbus.Channel, origin string, opts ...Option) *Store {
	s := &Store{limit: DefaultHistoryLimit, bus: bus, origin: origin, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Toggle adds or removes productID and reports whether it is now a favourite.
func (s *Store) Toggle(ctx context.Context, productID int64) (bool, error) {
	if productID == 0 {
		return false, ErrInvalidProduct
	}
	s.mu.Lock()
	favorite := true
	if idx := indexOf(s.products, productID); idx >= 0 {
		s.products = append(s.products[:idx], s.products[idx+1:]...)
		favorite = false
	} else {
		s.products = append(s.products, productID)
	}
	snapshot := append([]int64{}, s.products...)
	s.mu.Unlock()
	return favorite, s.publish(ctx, FavoritesKey, snapshot)
}

// IsFavorite reports whether productID is a favourite.
func (s *Store) IsFavorite(productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.products, productID) >= 0
}

// List returns the favourites in the order they were added.
func (s *Store) List() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64{}, s.products...)
}

// RecordSearch moves query to the front of the history. Blank queries are ignored and a
// query already present (compared case-insensitively) is not duplicated.
func (s *Store) RecordSearch(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	s.mu.Lock()
	next := make([]string, 0, s.limit)
	next = append(next, query)
	for _, prev := range s.history {
		if strings.EqualFold(prev, query) {
			continue
		}
		if len(next) == s.limit {
			break
		}
		next = append(next, prev)
	}
	s.history = next
	snapshot := append([]string{}, next...)
	s.mu.Unlock()
	return s.publish(ctx, SearchHistoryKey, snapshot)
}

// SearchHistory returns recent searches, most recent first.
func (s *Store) SearchHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.history...)
}

// ClearSearchHistory forgets every search.
func (s *Store) ClearSearchHistory(ctx context.Context) error {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	return s.publish(ctx, SearchHistoryKey, []string{})
}

// Attach loads the favourites and search history last published for this user and then
// applies updates published by other origins until the returned cancel is called.
func (s *Store) Attach(ctx context.Context) (func(), error) {
	if s.bus == nil {
		return func() {}, nil
	}
	cancel, err := s.bus.Subscribe(ctx, s.origin, s.apply)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{FavoritesKey, SearchHistoryKey} {
		msg, ok, err := s.bus.Last(ctx, key)
		if err != nil {
			cancel()
			return nil, err
		}
		if ok {
			s.apply(msg)
		}
	}
	return cancel, nil
}

func (s *Store) apply(msg syncbus.Message) {
	switch msg.Key {
	case FavoritesKey:
		var products []int64
		if !s.decode(msg, &products) {
			return
		}
		s.mu.Lock()
		s.products = products
		s.mu.Unlock()
	case SearchHistoryKey:
		var history []string
		if !s.decode(msg, &history) {
			return
		}
		if len(history) > s.limit {
			history = history[:s.limit]
		}
		s.mu.Lock()
		s.history = history
		s.mu.Unlock()
	}
}

func (s *Store) decode(msg syncbus.Message, dst any) bool {
	if msg.NewValue == "" {
		return true
	}
	if err := json.Unmarshal([]byte(msg.NewValue), dst); err != nil {
		s.logger.Warn("favorites: ignoring malformed sync payload", zap.String("key", msg.Key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) publish(ctx context.Context, key string, value any) error {
	if s.bus == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, syncbus.Message{Key: key, NewValue: string(payload), Origin: s.origin})
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
