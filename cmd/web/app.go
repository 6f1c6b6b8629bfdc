package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/cart"
	"finitefield.org/hanko-storefront/internal/checkout"
	"finitefield.org/hanko-storefront/internal/favorites"
	"finitefield.org/hanko-storefront/internal/i18n"
	"finitefield.org/hanko-storefront/internal/platform/config"
	"finitefield.org/hanko-storefront/internal/session"
	"finitefield.org/hanko-storefront/internal/syncbus"
)

// storefront owns the process-wide collaborators and the per-session shopper state.
type storefront struct {
	cfg      config.Config
	logger   *zap.Logger
	sessions *session.Store
	cookies  *session.CookieCodec
	bus      syncbus.Channel
	api      *checkout.Client
	messages *i18n.Bundle
	now      func() time.Time

	mu       sync.Mutex
	shoppers map[string]*shopper
}

// shopper is the state bound to one login session. Cart and favourites are shared with the
// user's other sessions through the sync channel.
type shopper struct {
	cart      *cart.Cart
	favorites *favorites.Store

	mu       sync.Mutex
	checkout *checkout.Checkout
}

func (s *shopper) current() *checkout.Checkout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkout
}

func (s *shopper) replace(co *checkout.Checkout) {
	s.mu.Lock()
	s.checkout = co
	s.mu.Unlock()
}

func newStorefront(cfg config.Config, logger *zap.Logger, bus syncbus.Channel, api *checkout.Client, messages *i18n.Bundle, cookies *session.CookieCodec) *storefront {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &storefront{
		cfg:      cfg,
		logger:   logger,
		sessions: session.NewStore(),
		cookies:  cookies,
		bus:      bus,
		api:      api,
		messages: messages,
		now:      time.Now,
		shoppers: make(map[string]*shopper),
	}
}

// open registers sess and attaches its shopper state to the user's sync scope. Everything
// attached here is released when the session closes.
func (sf *storefront) open(ctx context.Context, sess *session.Session) error {
	scope := syncbus.Scoped(sf.bus, sess.UserID)
	logger := sf.logger.With(zap.String("user_id", sess.UserID))
	sh := &shopper{
		cart: cart.New(scope, sess.ID, cart.WithLogger(logger)),
		favorites: favorites.New(scope, sess.ID,
			favorites.WithHistoryLimit(sf.cfg.Favorites.SearchHistoryLimit),
			favorites.WithLogger(logger),
		),
	}

	// Subscriptions outlive the login request.
	attachCtx := context.WithoutCancel(ctx)
	cancelCart, err := sh.cart.Attach(attachCtx)
	if err != nil {
		return err
	}
	cancelFavorites, err := sh.favorites.Attach(attachCtx)
	if err != nil {
		cancelCart()
		return err
	}

	sf.mu.Lock()
	sf.shoppers[sess.ID] = sh
	sf.mu.Unlock()

	sess.OnClose(cancelCart)
	sess.OnClose(cancelFavorites)
	sess.OnClose(func() {
		sf.mu.Lock()
		delete(sf.shoppers, sess.ID)
		sf.mu.Unlock()
		logger.Info("session closed", zap.String("session_id", sess.ID))
	})
	sf.sessions.Put(sess)
	return nil
}

func (sf *storefront) shopper(sess *session.Session) (*shopper, bool) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sh, ok := sf.shoppers[sess.ID]
	return sh, ok
}

// sweep closes expired sessions until ctx is done.
func (sf *storefront) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := sf.sessions.Sweep(); removed > 0 {
				sf.logger.Info("expired sessions closed", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
