package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultEnvironment        = "local"
	defaultLocale             = "en"
	defaultSupportedLocales   = "en,ja"
	defaultSyncChannel        = "storefront:sync"
	defaultSessionTTL         = 24 * time.Hour
	defaultSearchHistoryLimit = 10
	defaultPaymentMethod      = "credit_card"
	defaultCurrency           = "JPY"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	API         APIConfig
	Locale      LocaleConfig
	Sync        SyncConfig
	Session     SessionConfig
	Favorites   FavoritesConfig
	Checkout    CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// APIConfig points at the storefront REST API. An empty BaseURL runs against in-memory data.
// A zero Timeout keeps the HTTP client default.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LocaleConfig lists the message catalogs offered to shoppers.
type LocaleConfig struct {
	Default   string
	Supported []string
}

// SyncConfig selects the sync channel backend. An empty RedisAddr keeps it in process.
type SyncConfig struct {
	RedisAddr string
	Channel   string
}

// SessionConfig controls the login session.
type SessionConfig struct {
	TTL        time.Duration
	SigningKey string
}

// FavoritesConfig controls the favourites store.
type FavoritesConfig struct {
	SearchHistoryLimit int
}

// CheckoutConfig controls order submission and how totals are displayed.
type CheckoutConfig struct {
	PaymentMethod string
	Currency      string
}

// Production reports whether the storefront runs in production.
func (c Config) Production() bool {
	return c.Environment == "prod"
}

// SecretResolver resolves references to external secrets (secret://...).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the storefront configuration by combining defaults, .env overrides,
// environment variables and explicit maps.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	duration := func(key string, fallback time.Duration) time.Duration {
		d, ok := durationWithDefault(lookup, key, fallback)
		if !ok {
			invalid = append(invalid, key)
		}
		return d
	}
	integer := func(key string, fallback int) int {
		n, ok := intWithDefault(lookup, key, fallback)
		if !ok {
			invalid = append(invalid, key)
		}
		return n
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENV", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREFRONT_PORT", defaultPort),
			ReadTimeout:  duration("STOREFRONT_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: duration("STOREFRONT_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  duration("STOREFRONT_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_API_BASE_URL", ""), "/"),
			Timeout: duration("STOREFRONT_API_TIMEOUT", 0),
		},
		Locale: LocaleConfig{
			Default:   stringWithDefault(lookup, "STOREFRONT_DEFAULT_LOCALE", defaultLocale),
			Supported: csvWithDefault(lookup, "STOREFRONT_SUPPORTED_LOCALES", defaultSupportedLocales),
		},
		Sync: SyncConfig{
			RedisAddr: stringWithDefault(lookup, "STOREFRONT_SYNC_REDIS_ADDR", ""),
			Channel:   stringWithDefault(lookup, "STOREFRONT_SYNC_CHANNEL", defaultSyncChannel),
		},
		Session: SessionConfig{
			TTL:        duration("STOREFRONT_SESSION_TTL", defaultSessionTTL),
			SigningKey: stringWithDefault(lookup, "STOREFRONT_SESSION_SIGNING_KEY", ""),
		},
		Favorites: FavoritesConfig{
			SearchHistoryLimit: integer("STOREFRONT_SEARCH_HISTORY_LIMIT", defaultSearchHistoryLimit),
		},
		Checkout: CheckoutConfig{
			PaymentMethod: stringWithDefault(lookup, "STOREFRONT_PAYMENT_METHOD", defaultPaymentMethod),
			Currency:      strings.ToUpper(stringWithDefault(lookup, "STOREFRONT_CURRENCY", defaultCurrency)),
		},
	}

	key, err := resolveSecret(ctx, cfg.Session.SigningKey, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Session.SigningKey = key

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	ref := strings.TrimSpace(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.API.BaseURL != "" {
		u, err := url.Parse(cfg.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			missing = append(missing, "API.BaseURL")
		}
	}
	if cfg.API.Timeout < 0 {
		missing = append(missing, "API.Timeout")
	}
	if len(cfg.Locale.Supported) == 0 || !contains(cfg.Locale.Supported, cfg.Locale.Default) {
		missing = append(missing, "Locale.Default")
	}
	if strings.TrimSpace(cfg.Sync.Channel) == "" {
		missing = append(missing, "Sync.Channel")
	}
	if cfg.Session.TTL <= 0 {
		missing = append(missing, "Session.TTL")
	}
	if cfg.Production() && strings.TrimSpace(cfg.Session.SigningKey) == "" {
		missing = append(missing, "Session.SigningKey")
	}
	if cfg.Favorites.SearchHistoryLimit <= 0 {
		missing = append(missing, "Favorites.SearchHistoryLimit")
	}
	if strings.TrimSpace(cfg.Checkout.PaymentMethod) == "" {
		missing = append(missing, "Checkout.PaymentMethod")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "secret://")
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, bool) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, true
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback, false
	}
	return d, true
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) (int, bool) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback, false
	}
	return parsed, true
}

func csvWithDefault(lookup func(string) (string, bool), key, fallback string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
