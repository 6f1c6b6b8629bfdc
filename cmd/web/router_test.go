package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/card"
	"finitefield.org/hanko-storefront/internal/checkout"
	"finitefield.org/hanko-storefront/internal/i18n"
	"finitefield.org/hanko-storefront/internal/platform/config"
	"finitefield.org/hanko-storefront/internal/session"
	"finitefield.org/hanko-storefront/internal/syncbus"
)

var storefrontNow = time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)

func newTestStorefront(t *testing.T) (*storefront, http.Handler) {
	t.Helper()
	cfg := config.Config{
		Environment: "local",
		Locale:      config.LocaleConfig{Default: "en", Supported: []string{"en", "ja"}},
		Session:     config.SessionConfig{TTL: time.Hour},
		Favorites:   config.FavoritesConfig{SearchHistoryLimit: 10},
		Checkout:    config.CheckoutConfig{PaymentMethod: checkout.DefaultPaymentMethod, Currency: "JPY"},
	}
	messages, err := i18n.Load(cfg.Locale.Default, cfg.Locale.Supported)
	require.NoError(t, err)
	cookies, _ := session.NewCookieCodec("router-test-key", false)
	bus := syncbus.NewMemory()
	t.Cleanup(func() { _ = bus.Close() })

	sf := newStorefront(cfg, zap.NewNop(), bus, checkout.NewClient(""), messages, cookies)
	sf.now = func() time.Time { return storefrontNow }
	t.Cleanup(sf.sessions.CloseAll)
	return sf, newRouter(sf)
}

func call(t *testing.T, h http.Handler, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, userID string) *http.Cookie {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/session", map[string]string{"userId": userID, "token": "opaque-" + userID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("login did not set %s", session.CookieName)
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	_, h := newTestStorefront(t)
	rec := call(t, h, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestLoginRejectsMissingToken(t *testing.T) {
	_, h := newTestStorefront(t)
	rec := call(t, h, http.MethodPost, "/session", map[string]string{"userId": "user-1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_credentials", decode(t, rec)["error"])
}

func TestCheckoutRequiresSession(t *testing.T) {
	_, h := newTestStorefront(t)
	rec := call(t, h, http.MethodPost, "/checkout", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "sign_in_required", body["error"])
	assert.Equal(t, "Sign in to check out.", body["message"])
}

func TestSignInMessageFollowsAcceptLanguage(t *testing.T) {
	_, h := newTestStorefront(t)
	req := httptest.NewRequest(http.MethodGet, "/cart/items", nil)
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEqual(t, "Sign in to check out.", decode(t, rec)["message"])
}

func TestLogoutEndsSession(t *testing.T) {
	sf, h := newTestStorefront(t)
	cookie := login(t, h, "user-1")
	require.Equal(t, 1, sf.sessions.Len())

	rec := call(t, h, http.MethodDelete, "/session", nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, sf.sessions.Len())

	rec = call(t, h, http.MethodGet, "/cart/items", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartEndpoints(t *testing.T) {
	_, h := newTestStorefront(t)
	cookie := login(t, h, "user-1")

	rec := call(t, h, http.MethodPost, "/cart/items", map[string]any{
		"productId": 7, "name": "Round seal", "price": "1500", "quantity": 2, "selectedSize": "15mm",
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, "¥3,000", body["subtotalDisplay"])

	rec = call(t, h, http.MethodPut, "/cart/items/7", map[string]any{"quantity": 3, "size": "15mm"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "¥4,500", decode(t, rec)["subtotalDisplay"])

	rec = call(t, h, http.MethodPut, "/cart/items/8", map[string]any{"quantity": 1}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodPost, "/cart/items", map[string]any{"productId": 9, "quantity": 0}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodDelete, "/cart/items/7?size=15mm", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])
}

func TestCartSyncsAcrossSessionsOfSameUser(t *testing.T) {
	_, h := newTestStorefront(t)
	phone := login(t, h, "user-1")
	laptop := login(t, h, "user-1")
	other := login(t, h, "user-2")

	rec := call(t, h, http.MethodPost, "/cart/items", map[string]any{"productId": 1, "name": "Seal", "price": "1000", "quantity": 1}, phone)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, h, http.MethodGet, "/cart/items", nil, laptop)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = call(t, h, http.MethodGet, "/cart/items", nil, other)
	assert.EqualValues(t, 0, decode(t, rec)["count"])
}

func TestLateSessionKeepsEarlierCartLines(t *testing.T) {
	_, h := newTestStorefront(t)
	phone := login(t, h, "user-1")
	for _, id := range []int{1, 2} {
		rec := call(t, h, http.MethodPost, "/cart/items", map[string]any{"productId": id, "name": "Seal", "price": "1000", "quantity": 1}, phone)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	laptop := login(t, h, "user-1")
	rec := call(t, h, http.MethodPost, "/cart/items", map[string]any{"productId": 3, "name": "Ink", "price": "500", "quantity": 1}, laptop)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, cookie := range []*http.Cookie{phone, laptop} {
		rec = call(t, h, http.MethodGet, "/cart/items", nil, cookie)
		body := decode(t, rec)
		assert.EqualValues(t, 3, body["count"])
		assert.Len(t, body["items"], 3)
	}
}

func TestHandlersAnswerSignInWhenShopperIsGone(t *testing.T) {
	sf, _ := newTestStorefront(t)
	ctx := session.WithSession(context.Background(), &session.Session{ID: "closed", UserID: "user-1"})

	handlers := map[string]http.HandlerFunc{
		"list cart":      sf.listCart,
		"clear cart":     sf.clearCart,
		"list favorites": sf.listFavorites,
		"start checkout": sf.startCheckout,
		"checkout view":  sf.viewCheckout,
	}
	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			require.NotPanics(t, func() { handler(rec, req) })
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "sign_in_required", decode(t, rec)["error"])
		})
	}
}

func TestFavoritesEndpoints(t *testing.T) {
	_, h := newTestStorefront(t)
	cookie := login(t, h, "user-1")

	rec := call(t, h, http.MethodPut, "/favorites/42", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["favorite"])

	rec = call(t, h, http.MethodGet, "/favorites", nil, cookie)
	assert.Equal(t, []any{float64(42)}, decode(t, rec)["products"])

	rec = call(t, h, http.MethodPut, "/favorites/abc", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	call(t, h, http.MethodPost, "/favorites/search-history", map[string]string{"query": "maple"}, cookie)
	rec = call(t, h, http.MethodPost, "/favorites/search-history", map[string]string{"query": "ebony"}, cookie)
	assert.Equal(t, []any{"ebony", "maple"}, decode(t, rec)["queries"])

	rec = call(t, h, http.MethodDelete, "/favorites/search-history", nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = call(t, h, http.MethodGet, "/favorites/search-history", nil, cookie)
	assert.Empty(t, decode(t, rec)["queries"])
}

func TestCheckoutNotStarted(t *testing.T) {
	_, h := newTestStorefront(t)
	cookie := login(t, h, "user-1")
	rec := call(t, h, http.MethodGet, "/checkout", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "checkout_not_started", decode(t, rec)["error"])
}

func TestCheckoutFlow(t *testing.T) {
	_, h := newTestStorefront(t)
	cookie := login(t, h, "user-1")
	rec := call(t, h, http.MethodPost, "/cart/items", map[string]any{"productId": 7, "name": "Round seal", "price": "1500", "quantity": 2}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, h, http.MethodPost, "/checkout", nil, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode(t, rec)
	assert.Equal(t, "address", view["step"])
	assert.Equal(t, "Shipping address", view["stepLabel"])
	require.NotNil(t, view["selectedAddress"])

	rec = call(t, h, http.MethodPost, "/checkout/next", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "payment", decode(t, rec)["step"])

	rec = call(t, h, http.MethodPost, "/checkout/next", nil, cookie)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failed := decode(t, rec)
	assert.Equal(t, checkout.BannerCardInvalid, failed["error"])
	assert.Contains(t, failed["fields"], card.FieldNumber)

	values := map[string]string{
		card.FieldNumber: "4532015112830366",
		card.FieldName:   "Jane Doe",
		card.FieldExpiry: "01/30",
		card.FieldCVV:    "123",
	}
	for _, name := range card.FieldNames {
		rec = call(t, h, http.MethodPut, "/checkout/card/"+name, card.Event{Value: values[name], Caret: len(values[name])}, cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = call(t, h, http.MethodPut, "/checkout/card/cardNumber", card.Event{Value: "4532015112830366", Caret: 16}, cookie)
	assert.Equal(t, "4532 0151 1283 0366", decode(t, rec)["value"])

	rec = call(t, h, http.MethodPost, "/checkout/next", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode(t, rec)
	assert.Equal(t, "review", view["step"])
	display := view["totalsDisplay"].(map[string]any)
	assert.Equal(t, "¥3,000", display["total"])

	rec = call(t, h, http.MethodPost, "/checkout/submit", nil, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view = decode(t, rec)
	assert.Equal(t, "confirmed", view["step"])
	require.NotNil(t, view["order"])
	assert.EqualValues(t, 1000, view["order"].(map[string]any)["id"])

	rec = call(t, h, http.MethodGet, "/cart/items", nil, cookie)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = call(t, h, http.MethodPost, "/checkout/back", nil, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode(t, rec)["error"])
}

func TestCheckoutAddressDialog(t *testing.T) {
	_, h := newTestStorefront(t)
	cookie := login(t, h, "user-1")
	rec := call(t, h, http.MethodPost, "/checkout", nil, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, h, http.MethodPost, "/checkout/address", map[string]any{"recipientName": "Jane"}, cookie)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, checkout.BannerAddressInvalid, body["error"])
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "City is required.", fields["city"])

	rec = call(t, h, http.MethodPost, "/checkout/address", map[string]any{
		"recipientName": "Jane Doe", "recipientPhone": "090-0000-0000", "streetAddress": "4-5-6 Ginza",
		"city": "Chuo-ku", "country": "JP", "save": true,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode(t, rec)
	assert.Len(t, view["addresses"], 2)
	assert.Equal(t, true, view["selectedPersisted"])

	rec = call(t, h, http.MethodPost, "/checkout/address/select", map[string]any{"id": 999}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodPut, "/checkout/card/pin", card.Event{Value: "1"}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_field", decode(t, rec)["error"])
}
