package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finitefield.org/hanko-storefront/internal/platform/httpx"
	"finitefield.org/hanko-storefront/internal/platform/observability"
	"finitefield.org/hanko-storefront/internal/session"
)

const (
	requestTimeout = 30 * time.Second
	maxBodySize    = 16 * 1024
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

var startTime = time.Now()

func newRouter(sf *storefront) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.InjectLoggerMiddleware(sf.logger))
	r.Use(observability.TraceMiddleware())
	r.Use(session.Middleware(sf.sessions, sf.cookies))
	r.Use(observability.RequestLoggerMiddleware())
	r.Use(observability.RecoveryMiddleware())
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", healthz)

	r.Post("/session", sf.login)
	r.Delete("/session", sf.logout)

	r.Group(func(r chi.Router) {
		r.Use(sf.requireSession)

		r.Route("/cart/items", func(r chi.Router) {
			r.Get("/", sf.listCart)
			r.Post("/", sf.addCartItem)
			r.Delete("/", sf.clearCart)
			r.Put("/{productID}", sf.updateCartItem)
			r.Delete("/{productID}", sf.removeCartItem)
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", sf.listFavorites)
			r.Put("/{productID}", sf.toggleFavorite)
			r.Get("/search-history", sf.searchHistory)
			r.Post("/search-history", sf.recordSearch)
			r.Delete("/search-history", sf.clearSearchHistory)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", sf.startCheckout)
			r.Get("/", sf.viewCheckout)
			r.Post("/address/select", sf.selectAddress)
			r.Post("/address", sf.addAddress)
			r.Put("/card/{field}", sf.updateCard)
			r.Post("/next", sf.nextStep)
			r.Post("/back", sf.previousStep)
			r.Post("/submit", sf.submitOrder)
		})
	})

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// requireSession rejects anonymous requests with the sign-in prompt.
func (sf *storefront) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		if !ok {
			sf.writeSignInRequired(w, r)
			return
		}
		if _, ok := sf.shopper(sess); !ok {
			sf.writeSignInRequired(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (sf *storefront) writeSignInRequired(w http.ResponseWriter, r *http.Request) {
	lang := sf.lang(r)
	httpx.WriteError(r.Context(), w, httpx.NewError("sign_in_required", sf.messages.T(lang, "checkout.banner.sign_in_required"), http.StatusUnauthorized))
}

// current returns the session and shopper of an authenticated request. ok is false when the
// session was closed after the request passed requireSession.
func (sf *storefront) current(r *http.Request) (*session.Session, *shopper, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok || sess == nil {
		return nil, nil, false
	}
	sh, ok := sf.shopper(sess)
	if !ok {
		return nil, nil, false
	}
	return sess, sh, true
}

// lang prefers the locale chosen at login over Accept-Language.
func (sf *storefront) lang(r *http.Request) string {
	if sess, ok := session.FromContext(r.Context()); ok && sess.Locale != "" {
		return sf.messages.Resolve(sess.Locale)
	}
	return sf.messages.Resolve(r.Header.Get("Accept-Language"))
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a JSON request body into dst and writes the error response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}
