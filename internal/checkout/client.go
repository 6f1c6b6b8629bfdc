package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"finitefield.org/hanko-storefront/internal/platform/observability"
)

const (
	defaultTimeout    = 8 * time.Second
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 4 << 10
)

var tracer = otel.Tracer("finitefield.org/hanko-storefront/internal/checkout")

// ErrMissingUserID is returned when an address call has no user to act for.
var ErrMissingUserID = errors.New("checkout: missing user id")

// Client talks to the storefront address and order endpoints. When baseURL is empty the
// client serves in-memory data instead.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	logger  *zap.Logger
	loads   *singleflight.Group
	fake    *fakeAPI
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs an API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
		loads:   &singleflight.Group{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.baseURL == "" {
		c.fake = newFakeAPI()
	}
	return c
}

// WithToken returns a shallow copy of the client that authenticates as the bearer of token.
// The copy shares the HTTP client and the in-memory fallback.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

// ListAddresses returns the user's saved addresses. Concurrent loads for the same user share
// one request.
func (c *Client) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if c.fake != nil {
		return c.fake.listAddresses(userID), nil
	}

	v, err, _ := c.loads.Do(c.token+"|"+userID, func() (any, error) {
		var out []Address
		err := c.do(ctx, "checkout.list_addresses", http.MethodGet, []string{"addresses", "user", url.PathEscape(userID)}, nil, "", &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return append([]Address(nil), v.([]Address)...), nil
}

// CreateAddress saves an address for addr.UserID.
func (c *Client) CreateAddress(ctx context.Context, addr Address) (Address, error) {
	if strings.TrimSpace(addr.UserID) == "" {
		return Address{}, ErrMissingUserID
	}
	addr.ID = 0
	if c.fake != nil {
		return c.fake.createAddress(addr), nil
	}

	var out Address
	if err := c.do(ctx, "checkout.create_address", http.MethodPost, []string{"addresses"}, addr, "", &out); err != nil {
		return Address{}, err
	}
	return out, nil
}

// CreateOrder submits the order draft. The idempotency key is sent so that a shopper's
// explicit resubmission of the same draft cannot create a duplicate order.
func (c *Client) CreateOrder(ctx context.Context, draft OrderDraft, idempotencyKey string) (Order, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = ulid.Make().String()
	}
	if c.fake != nil {
		return c.fake.createOrder(draft, key), nil
	}

	var out Order
	if err := c.do(ctx, "checkout.create_order", http.MethodPost, []string{"orders"}, draft, key, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, spanName, method string, path []string, body any, idempotencyKey string, out any) (err error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}
	observability.InjectTraceHeaders(req)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", req.URL.Path),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("checkout api request failed", zap.String("method", method), zap.String("path", req.URL.Path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
		c.logger.Warn("checkout api rejected request",
			zap.String("method", method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("checkout: decode %s response: %w", spanName, err)
	}
	return nil
}

// decodeErrorMessage reads the {"message": "..."} failure body. The message may also be
// nested under "error".
func decodeErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error.Message)
}
