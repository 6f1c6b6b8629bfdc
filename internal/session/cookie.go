package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// CookieName is the session cookie.
const CookieName = "HANKO_STOREFRONT_SESSION"

// CookieCodec signs the session id stored in the cookie so that ids cannot be forged.
type CookieCodec struct {
	key    []byte
	secure bool
}

// NewCookieCodec returns a codec signing with key. An empty key generates a
// process-ephemeral one, which invalidates every cookie on restart.
func NewCookieCodec(key string, secure bool) (*CookieCodec, bool) {
	raw := []byte(key)
	ephemeral := false
	if len(raw) == 0 {
		raw = make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			raw = []byte("insecure-dev-key-please-set-STOREFRONT_SESSION_SIGNING_KEY")
		}
		ephemeral = true
	}
	return &CookieCodec{key: raw, secure: secure}, ephemeral
}

// Encode returns the signed cookie value for id.
func (c *CookieCodec) Encode(id string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(id))
	return payload + "." + base64.RawURLEncoding.EncodeToString(c.sign([]byte(id)))
}

// Decode verifies value and returns the session id.
func (c *CookieCodec) Decode(value string) (string, bool) {
	payload, sig, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}
	idB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(sigB, c.sign(idB)) {
		return "", false
	}
	return string(idB), true
}

// Write sets the cookie for sess.
func (c *CookieCodec) Write(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    c.Encode(sess.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

// Clear expires the cookie.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// Read returns the verified session id carried by r.
func (c *CookieCodec) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return c.Decode(cookie.Value)
}

func (c *CookieCodec) sign(b []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(b)
	return mac.Sum(nil)
}
