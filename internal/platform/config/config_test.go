package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.API.BaseURL != "" || cfg.API.Timeout != 0 {
		t.Errorf("expected fake api with default timeout, got %+v", cfg.API)
	}
	if !reflect.DeepEqual(cfg.Locale.Supported, []string{"en", "ja"}) {
		t.Errorf("unexpected supported locales: %v", cfg.Locale.Supported)
	}
	if cfg.Sync.Channel != defaultSyncChannel {
		t.Errorf("unexpected sync channel: %s", cfg.Sync.Channel)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("unexpected session ttl: %s", cfg.Session.TTL)
	}
	if cfg.Favorites.SearchHistoryLimit != 10 {
		t.Errorf("unexpected search history limit: %d", cfg.Favorites.SearchHistoryLimit)
	}
	if cfg.Checkout.PaymentMethod != "credit_card" {
		t.Errorf("unexpected payment method: %s", cfg.Checkout.PaymentMethod)
	}
	if cfg.Checkout.Currency != "JPY" {
		t.Errorf("unexpected currency: %s", cfg.Checkout.Currency)
	}
	if cfg.Production() {
		t.Errorf("expected local environment")
	}
}

func TestLoadWithOverridesAndSecret(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_ENV":                  "PROD",
		"STOREFRONT_PORT":                 "9090",
		"STOREFRONT_READ_TIMEOUT":         "20s",
		"STOREFRONT_API_BASE_URL":         "https://api.example.com/v1/",
		"STOREFRONT_API_TIMEOUT":          "5s",
		"STOREFRONT_DEFAULT_LOCALE":       "ja",
		"STOREFRONT_SUPPORTED_LOCALES":    "ja, en ,",
		"STOREFRONT_SYNC_REDIS_ADDR":      "localhost:6379",
		"STOREFRONT_SESSION_TTL":          "2h",
		"STOREFRONT_SESSION_SIGNING_KEY":  "secret://session/key",
		"STOREFRONT_SEARCH_HISTORY_LIMIT": "5",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://session/key" {
			return "resolved-key", nil
		}
		return "", errors.New("unknown")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.Production() {
		t.Errorf("expected production environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.API.BaseURL != "https://api.example.com/v1" || cfg.API.Timeout != 5*time.Second {
		t.Errorf("unexpected api config: %+v", cfg.API)
	}
	if cfg.Locale.Default != "ja" || !reflect.DeepEqual(cfg.Locale.Supported, []string{"ja", "en"}) {
		t.Errorf("unexpected locale config: %+v", cfg.Locale)
	}
	if cfg.Session.SigningKey != "resolved-key" || cfg.Session.TTL != 2*time.Hour {
		t.Errorf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Favorites.SearchHistoryLimit != 5 {
		t.Errorf("unexpected search history limit: %d", cfg.Favorites.SearchHistoryLimit)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_ENV":                  "prod",
		"STOREFRONT_API_BASE_URL":         "not a url",
		"STOREFRONT_SESSION_TTL":          "soon",
		"STOREFRONT_DEFAULT_LOCALE":       "fr",
		"STOREFRONT_SEARCH_HISTORY_LIMIT": "0",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := map[string]bool{
		"STOREFRONT_SESSION_TTL":       true,
		"API.BaseURL":                  true,
		"Locale.Default":               true,
		"Session.SigningKey":           true,
		"Favorites.SearchHistoryLimit": true,
	}
	for _, field := range verr.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Errorf("missing expected fields %v in %v", want, verr.Fields())
	}
}

func TestLoadUnresolvedSecret(t *testing.T) {
	env := map[string]string{"STOREFRONT_SESSION_SIGNING_KEY": "secret://missing"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var serr *SecretError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver not configured, got %v", serr.Err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# storefront\nexport STOREFRONT_PORT=7070\nSTOREFRONT_PAYMENT_METHOD=\"invoice\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv(),
		WithEnvMap(map[string]string{"STOREFRONT_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to override .env, got %s", cfg.Server.Port)
	}
	if cfg.Checkout.PaymentMethod != "invoice" {
		t.Errorf("expected payment method from .env, got %s", cfg.Checkout.PaymentMethod)
	}
}
