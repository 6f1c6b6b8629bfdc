package session

import (
	"context"
	"net/http"

	"finitefield.org/hanko-storefront/internal/platform/requestctx"
)

type contextKey struct{}

// Middleware resolves the session cookie against store and attaches the live session to the
// request context. Unknown or expired sessions leave the request anonymous.
func Middleware(store *Store, codec *CookieCodec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := codec.Read(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			sess, ok := store.Get(id)
			if !ok {
				codec.Clear(w)
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithSession(r.Context(), sess)
			ctx = requestctx.WithUserID(ctx, sess.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSession stores sess on ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok && sess != nil
}
