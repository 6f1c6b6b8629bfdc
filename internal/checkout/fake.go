package checkout

import (
	"sync"
	"time"
)

// fakeAPI backs a Client without a base URL so the storefront runs without the API.
type fakeAPI struct {
	mu          sync.Mutex
	nextAddress int64
	nextOrder   int64
	addresses   map[string][]Address
	orders      map[string]Order
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextAddress: 1,
		nextOrder:   1000,
		addresses:   map[string][]Address{},
		orders:      map[string]Order{},
	}
}

func (f *fakeAPI) listAddresses(userID string) []Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.addresses[userID]; !ok {
		f.addresses[userID] = []Address{{
			ID:             f.nextAddress,
			UserID:         userID,
			RecipientName:  "Hanko Taro",
			RecipientPhone: "03-1234-5678",
			StreetAddress:  "1-2-3 Jingumae",
			City:           "Shibuya-ku",
			State:          "Tokyo",
			PostalCode:     "150-0001",
			Country:        "JP",
			IsDefault:      true,
		}}
		f.nextAddress++
	}
	return append([]Address(nil), f.addresses[userID]...)
}

func (f *fakeAPI) createAddress(addr Address) Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr.ID = f.nextAddress
	f.nextAddress++
	f.addresses[addr.UserID] = append(f.addresses[addr.UserID], addr)
	return addr
}

// createOrder replays the order recorded for a repeated idempotency key.
func (f *fakeAPI) createOrder(draft OrderDraft, key string) Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[key]; ok {
		return order
	}
	order := Order{
		ID:          f.nextOrder,
		Status:      "pending",
		TotalAmount: draft.TotalAmount,
		CreatedAt:   time.Now().UTC(),
	}
	f.nextOrder++
	f.orders[key] = order
	return order
}
