// Package cart holds the shopper's line items for the lifetime of a session.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/syncbus"
)

// SyncKey is the sync channel key carrying the serialised cart.
const SyncKey = "cart"

var (
	// ErrInvalidItem indicates a line item without a product, with a non-positive quantity or a negative price.
	ErrInvalidItem = errors.New("cart: invalid item")
	// ErrItemNotFound indicates no line matches the product and size.
	ErrItemNotFound = errors.New("cart: item not found")
)

// Item is a single cart line.
type Item struct {
	ProductID    int64           `json:"productId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	SelectedSize string          `json:"selectedSize,omitempty"`
	Image        string          `json:"image,omitempty"`
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is safe for concurrent use. Mutations are announced on the sync channel.
type Cart struct {
	mu     sync.Mutex
	items  []Item
	bus    syncbus.Channel
	origin string
	logger *zap.Logger
}

// Option customises a Cart.
type Option func(*Cart)

// WithLogger sets the logger used when remote updates cannot be applied.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cart) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs an empty cart. bus may be nil when no synchronisation is wanted.
func New(bus syncbus.Channel, origin string, opts ...Option) *Cart {
	c := &Cart{bus: bus, origin: origin, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add appends item or increases the quantity of the matching product/size line.
func (c *Cart) Add(ctx context.Context, item Item) error {
	item.SelectedSize = strings.TrimSpace(item.SelectedSize)
	if item.ProductID == 0 || item.Quantity <= 0 || item.Price.IsNegative() {
		return ErrInvalidItem
	}
	c.mu.Lock()
	if idx := c.indexLocked(item.ProductID, item.SelectedSize); idx >= 0 {
		c.items[idx].Quantity += item.Quantity
	} else {
		c.items = append(c.items, item)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	return c.publish(ctx, snapshot)
}

// SetQuantity changes the quantity of a line; zero or less removes it.
func (c *Cart) SetQuantity(ctx context.Context, productID int64, size string, quantity int) error {
	c.mu.Lock()
	idx := c.indexLocked(productID, strings.TrimSpace(size))
	if idx < 0 {
		c.mu.Unlock()
		return ErrItemNotFound
	}
	if quantity <= 0 {
		c.items = append(c.items[:idx], c.items[idx+1:]...)
	} else {
		c.items[idx].Quantity = quantity
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	return c.publish(ctx, snapshot)
}

// Remove deletes the product/size line.
func (c *Cart) Remove(ctx context.Context, productID int64, size string) error {
	return c.SetQuantity(ctx, productID, size, 0)
}

// Items returns a copy of the current lines.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Count returns the total number of units.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// Subtotal sums every line total.
func (c *Cart) Subtotal() decimal.Decimal {
	return Subtotal(c.Items())
}

// Clear empties the cart. It is called once an order has been created.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
	return c.publish(ctx, []Item{})
}

// Attach loads the cart last published for this user and then applies updates published by
// other origins until the returned cancel is called.
func (c *Cart) Attach(ctx context.Context) (func(), error) {
	if c.bus == nil {
		return func() {}, nil
	}
	cancel, err := c.bus.Subscribe(ctx, c.origin, c.apply)
	if err != nil {
		return nil, err
	}
	msg, ok, err := c.bus.Last(ctx, SyncKey)
	if err != nil {
		cancel()
		return nil, err
	}
	if ok {
		c.apply(msg)
	}
	return cancel, nil
}

func (c *Cart) apply(msg syncbus.Message) {
	if msg.Key != SyncKey {
		return
	}
	var items []Item
	if msg.NewValue != "" {
		if err := json.Unmarshal([]byte(msg.NewValue), &items); err != nil {
			c.logger.Warn("cart: ignoring malformed sync payload", zap.Error(err))
			return
		}
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
}

func (c *Cart) publish(ctx context.Context, items []Item) error {
	if c.bus == nil {
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.bus.Publish(ctx, syncbus.Message{Key: SyncKey, NewValue: string(payload), Origin: c.origin})
}

func (c *Cart) indexLocked(productID int64, size string) int {
	for i, item := range c.items {
		if item.ProductID == productID && item.SelectedSize == size {
			return i
		}
	}
	return -1
}

func (c *Cart) snapshotLocked() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Subtotal sums the line totals of items.
func Subtotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
