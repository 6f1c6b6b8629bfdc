package main

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/platform/httpx"
	"finitefield.org/hanko-storefront/internal/platform/requestctx"
	"finitefield.org/hanko-storefront/internal/session"
)

type sessionResponse struct {
	UserID    string    `json:"userId"`
	Locale    string    `json:"locale"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (sf *storefront) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var creds session.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}

	sess, err := session.New(creds, sf.cfg.Session.TTL, sf.now())
	if err != nil {
		httpx.WriteError(ctx, w, credentialsError(err))
		return
	}
	if sess.Locale != "" {
		sess.Locale = sf.messages.Resolve(sess.Locale)
	} else {
		sess.Locale = sf.messages.Resolve(r.Header.Get("Accept-Language"))
	}

	// A repeated login replaces the previous session.
	if prev, ok := session.FromContext(ctx); ok {
		sf.sessions.Delete(prev.ID)
	}
	if err := sf.open(ctx, sess); err != nil {
		requestctx.Logger(ctx).Error("session: attach sync channel failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("sync_unavailable", "session state could not be initialised", http.StatusServiceUnavailable))
		return
	}
	sf.cookies.Write(w, sess)

	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{
		UserID:    sess.UserID,
		Locale:    sess.Locale,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (sf *storefront) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		sf.sessions.Delete(sess.ID)
	}
	sf.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func credentialsError(err error) httpx.Error {
	switch {
	case errors.Is(err, session.ErrTokenExpired):
		return httpx.NewError("token_expired", err.Error(), http.StatusUnauthorized)
	case errors.Is(err, session.ErrUserMismatch):
		return httpx.NewError("invalid_credentials", err.Error(), http.StatusUnauthorized)
	default:
		return httpx.NewError("invalid_credentials", err.Error(), http.StatusBadRequest)
	}
}
