package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"finitefield.org/hanko-storefront/internal/card"
	"finitefield.org/hanko-storefront/internal/cart"
)

// DefaultPaymentMethod is recorded on orders paid by card.
const DefaultPaymentMethod = "credit_card"

// OrderItem is one order line.
type OrderItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Price     decimal.Decimal `json:"price"`
}

// OrderDraft is the create-order request body. Exactly one of AddressID and OrderAddress is
// set. The full card number and CVV are never part of it.
type OrderDraft struct {
	AddressID     *int64          `json:"addressId,omitempty"`
	OrderAddress  *Address        `json:"orderAddress,omitempty"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod"`
	CardLastFour  string          `json:"cardLastFour"`
	CardExpiry    string          `json:"cardExpiry"`
}

// Order is the record returned by the order API.
type Order struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status,omitempty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Totals are derived from the cart for the review step.
type Totals struct {
	Units    int             `json:"units"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals sums the cart lines.
func ComputeTotals(items []cart.Item) Totals {
	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	subtotal := cart.Subtotal(items)
	return Totals{Units: units, Subtotal: subtotal, Total: subtotal}
}

// BuildDraft assembles the order request. A persisted address is referenced by id; any other
// address is embedded in full.
func BuildDraft(addr Address, persisted bool, items []cart.Item, form card.Form, paymentMethod string) OrderDraft {
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	draft := OrderDraft{
		Items:         make([]OrderItem, 0, len(items)),
		TotalAmount:   ComputeTotals(items).Total,
		PaymentMethod: paymentMethod,
		CardLastFour:  form.LastFour(),
		CardExpiry:    form.ExpiryDisplay(),
	}
	if persisted && addr.ID != 0 {
		id := addr.ID
		draft.AddressID = &id
	} else {
		embedded := addr
		embedded.ID = 0
		embedded.IsDefault = false
		draft.OrderAddress = &embedded
	}
	for _, item := range items {
		draft.Items = append(draft.Items, OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.SelectedSize,
			Price:     item.Price,
		})
	}
	return draft
}
