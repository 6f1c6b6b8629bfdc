package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/card"
	"finitefield.org/hanko-storefront/internal/cart"
)

// Step is a checkout wizard step.
type Step string

const (
	StepAddress   Step = "address"
	StepPayment   Step = "payment"
	StepReview    Step = "review"
	StepConfirmed Step = "confirmed"
)

// transitions lists the steps reachable from each step. Confirmed is terminal.
var transitions = map[Step][]Step{
	StepAddress:   {StepPayment},
	StepPayment:   {StepReview, StepAddress},
	StepReview:    {StepConfirmed, StepPayment},
	StepConfirmed: {},
}

var previousStep = map[Step]Step{
	StepPayment: StepAddress,
	StepReview:  StepPayment,
}

func canTransition(from, to Step) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AddressAPI loads and saves the shopper's addresses.
type AddressAPI interface {
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	CreateAddress(ctx context.Context, addr Address) (Address, error)
}

// OrderAPI creates orders.
type OrderAPI interface {
	CreateOrder(ctx context.Context, draft OrderDraft, idempotencyKey string) (Order, error)
}

// Cart exposes the line items being purchased and is cleared once the order exists.
type Cart interface {
	Items() []cart.Item
	Clear(ctx context.Context) error
}

// Deps wires the collaborators of a checkout.
type Deps struct {
	Addresses     AddressAPI
	Orders        OrderAPI
	Cart          Cart
	Clock         func() time.Time
	Logger        *zap.Logger
	IDGen         func() string
	PaymentMethod string
}

// Checkout is the state of one shopper's checkout: the current step, the address book, the
// card form and the outcome of the last request. It is safe for concurrent use; network
// calls run without holding the lock and while one is in flight every other mutating
// operation returns ErrBusy.
type Checkout struct {
	mu sync.Mutex

	userID        string
	addresses     AddressAPI
	orders        OrderAPI
	cart          Cart
	now           func() time.Time
	logger        *zap.Logger
	idGen         func() string
	paymentMethod string

	step     Step
	book     *AddressBook
	form     card.Form
	banner   *Banner
	inflight bool
	order    *Order

	// submitKey is reused while the submitted draft is unchanged so that resubmitting after
	// an ambiguous failure cannot create a second order.
	submitKey   string
	submitDraft string
}

// Start loads the user's saved addresses and opens a checkout on the address step with the
// default address preselected.
func Start(ctx context.Context, deps Deps, userID string) (*Checkout, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout: address api is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout: order api is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("checkout: cart is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	method := strings.TrimSpace(deps.PaymentMethod)
	if method == "" {
		method = DefaultPaymentMethod
	}

	loaded, err := deps.Addresses.ListAddresses(ctx, userID)
	if err != nil {
		logger.Warn("checkout: load addresses failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return &Checkout{
		userID:        userID,
		addresses:     deps.Addresses,
		orders:        deps.Orders,
		cart:          deps.Cart,
		now:           clock,
		logger:        logger,
		idGen:         idGen,
		paymentMethod: method,
		step:          StepAddress,
		book:          NewAddressBook(loaded),
		form:          card.NewForm(),
	}, nil
}

// Step returns the current step.
func (c *Checkout) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// SelectAddress selects one of the loaded addresses.
func (c *Checkout) SelectAddress(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	if err := c.book.SelectByID(id); err != nil {
		return err
	}
	c.forgetSubmitKeyLocked()
	return nil
}

// AddAddress validates an address-entry dialog submission. With save set the address is
// created through the address API, remembered as persisted and selected; otherwise the
// ephemeral address is selected for this checkout only.
func (c *Checkout) AddAddress(ctx context.Context, entry AddressEntry, save bool) (Address, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return Address{}, err
	}
	entry = entry.Normalize()
	if fields := entry.Validate(); len(fields) > 0 {
		err := &ValidationError{Reason: ReasonAddressInvalid, Fields: fields}
		c.setBannerLocked(err)
		c.mu.Unlock()
		return Address{}, err
	}
	addr := entry.Address()
	if !save {
		c.book.Select(addr)
		c.banner = nil
		c.forgetSubmitKeyLocked()
		c.mu.Unlock()
		return addr, nil
	}
	addr.UserID = c.userID
	c.inflight = true
	c.mu.Unlock()

	created, err := c.addresses.CreateAddress(ctx, addr)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
	if err != nil {
		c.logger.Warn("checkout: create address failed", zap.String("user_id", c.userID), zap.Error(err))
		c.setBannerLocked(err)
		return Address{}, err
	}
	c.book.Remember(created)
	c.book.Select(created)
	c.banner = nil
	c.forgetSubmitKeyLocked()
	return created, nil
}

// UpdateCard feeds a keystroke event into the card form and returns the updated field.
func (c *Checkout) UpdateCard(field string, ev card.Event) (card.Field, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return card.Field{}, err
	}
	form, err := c.form.Apply(field, ev, c.now())
	if err != nil {
		return card.Field{}, err
	}
	previous, _ := c.form.Field(field)
	c.form = form
	updated, _ := form.Field(field)
	if updated.Raw != previous.Raw {
		c.forgetSubmitKeyLocked()
	}
	return updated, nil
}

// Next advances to the following step when the current step's guard passes. On failure the
// step is unchanged and the error is also recorded as the banner.
func (c *Checkout) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight {
		return ErrBusy
	}
	switch c.step {
	case StepAddress:
		if _, ok := c.book.Selected(); !ok {
			return c.failLocked(&ValidationError{Reason: ReasonAddressRequired})
		}
		return c.moveLocked(StepPayment)
	case StepPayment:
		now := c.now()
		c.form = c.form.Attempt(now)
		if !c.form.Valid(now) {
			return c.failLocked(&ValidationError{Reason: ReasonCardInvalid, Fields: copyFieldErrors(c.form.Errors)})
		}
		return c.moveLocked(StepReview)
	default:
		return ErrInvalidTransition
	}
}

// Back returns to the previous step keeping everything entered so far.
func (c *Checkout) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight {
		return ErrBusy
	}
	prev, ok := previousStep[c.step]
	if !ok {
		return ErrInvalidTransition
	}
	return c.moveLocked(prev)
}

// Submit re-validates the address and card, sends the order and, once the API accepts it,
// clears the cart and confirms the checkout. A rejected order leaves the checkout on the
// review step with all input intact; it is never retried automatically.
func (c *Checkout) Submit(ctx context.Context) (Order, error) {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return Order{}, ErrBusy
	}
	if c.step != StepReview {
		c.mu.Unlock()
		return Order{}, ErrInvalidTransition
	}
	addr, ok := c.book.Selected()
	if !ok {
		err := c.failLocked(&ValidationError{Reason: ReasonAddressRequired})
		c.mu.Unlock()
		return Order{}, err
	}
	now := c.now()
	if !c.form.Valid(now) {
		c.form = c.form.Attempt(now)
		err := c.failLocked(&ValidationError{Reason: ReasonCardInvalid, Fields: copyFieldErrors(c.form.Errors)})
		c.mu.Unlock()
		return Order{}, err
	}
	items := c.cart.Items()
	if len(items) == 0 {
		err := c.failLocked(&ValidationError{Reason: ReasonCartEmpty})
		c.mu.Unlock()
		return Order{}, err
	}
	draft := BuildDraft(addr, c.book.IsPersisted(addr), items, c.form, c.paymentMethod)
	key := c.idempotencyKeyLocked(draft)
	c.inflight = true
	c.mu.Unlock()

	order, err := c.orders.CreateOrder(ctx, draft, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
	if err != nil {
		c.logger.Warn("checkout: create order failed",
			zap.String("user_id", c.userID),
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
		c.setBannerLocked(err)
		return Order{}, err
	}
	if err := c.cart.Clear(ctx); err != nil {
		c.logger.Warn("checkout: clear cart failed", zap.String("user_id", c.userID), zap.Error(err))
	}
	c.order = &order
	c.banner = nil
	c.step = StepConfirmed
	c.forgetSubmitKeyLocked()
	c.logger.Info("checkout: order created", zap.String("user_id", c.userID), zap.Int64("order_id", order.ID))
	return order, nil
}

// View is a snapshot of the checkout for rendering.
type View struct {
	Step              Step      `json:"step"`
	Addresses         []Address `json:"addresses"`
	SelectedAddress   *Address  `json:"selectedAddress,omitempty"`
	SelectedPersisted bool      `json:"selectedPersisted"`
	Card              CardView  `json:"card"`
	Totals            Totals    `json:"totals"`
	Banner            *Banner   `json:"banner,omitempty"`
	Busy              bool      `json:"busy"`
	Order             *Order    `json:"order,omitempty"`
}

// CardView carries the masked card inputs. The raw card number is not exposed.
type CardView struct {
	Fields map[string]CardFieldView `json:"fields"`
	Errors map[string]FieldError    `json:"errors"`
	Brand  string                   `json:"brand,omitempty"`
}

// CardFieldView is a single masked input with its caret position.
type CardFieldView struct {
	Value string `json:"value"`
	Caret int    `json:"caret"`
}

// View returns the current snapshot.
func (c *Checkout) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields := make(map[string]CardFieldView, len(card.FieldNames))
	for _, name := range card.FieldNames {
		f, _ := c.form.Field(name)
		fields[name] = CardFieldView{Value: f.Display(), Caret: f.Caret()}
	}
	view := View{
		Step:      c.step,
		Addresses: c.book.Addresses(),
		Card: CardView{
			Fields: fields,
			Errors: copyFieldErrors(c.form.RecheckExpiry(c.now()).Errors),
		},
		Totals: ComputeTotals(c.cart.Items()),
		Busy:   c.inflight,
	}
	if c.form.Number.Raw != "" {
		view.Card.Brand = card.Brand(c.form.Number.Raw)
	}
	if addr, ok := c.book.Selected(); ok {
		view.SelectedAddress = &addr
		view.SelectedPersisted = c.book.IsPersisted(addr)
	}
	if c.banner != nil {
		b := *c.banner
		view.Banner = &b
	}
	if c.order != nil {
		o := *c.order
		view.Order = &o
	}
	return view
}

func (c *Checkout) editableLocked() error {
	if c.inflight {
		return ErrBusy
	}
	if c.step == StepConfirmed {
		return ErrInvalidTransition
	}
	return nil
}

// idempotencyKeyLocked returns the key of the previous attempt when draft is identical to
// it. Address and card edits forget the key; a changed cart shows up in the draft itself.
func (c *Checkout) idempotencyKeyLocked(draft OrderDraft) string {
	fingerprint, err := json.Marshal(draft)
	if err != nil {
		return c.idGen()
	}
	if c.submitKey != "" && c.submitDraft == string(fingerprint) {
		return c.submitKey
	}
	c.submitKey = c.idGen()
	c.submitDraft = string(fingerprint)
	return c.submitKey
}

func (c *Checkout) forgetSubmitKeyLocked() {
	c.submitKey, c.submitDraft = "", ""
}

func (c *Checkout) moveLocked(to Step) error {
	if !canTransition(c.step, to) {
		return ErrInvalidTransition
	}
	c.step = to
	c.banner = nil
	return nil
}

func (c *Checkout) failLocked(err error) error {
	c.setBannerLocked(err)
	return err
}

func (c *Checkout) setBannerLocked(err error) {
	b := BannerFor(err)
	c.banner = &b
}

func copyFieldErrors(in map[string]FieldError) map[string]FieldError {
	out := make(map[string]FieldError, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
