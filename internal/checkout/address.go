package checkout

// Address is either a saved address returned by the address API (ID set) or an ephemeral
// one entered for a single checkout (ID zero).
type Address struct {
	ID             int64  `json:"id,omitempty"`
	UserID         string `json:"userId,omitempty"`
	RecipientName  string `json:"recipientName"`
	RecipientPhone string `json:"recipientPhone"`
	StreetAddress  string `json:"streetAddress"`
	City           string `json:"city"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postalCode,omitempty"`
	Country        string `json:"country"`
	IsDefault      bool   `json:"isDefault"`
}

// AddressBook tracks the addresses loaded for a checkout and the single selected address.
// Whether an address is persisted is decided by looking its id up in the loaded list.
type AddressBook struct {
	addresses []Address
	selected  *Address
}

// NewAddressBook copies loaded and preselects the first address flagged as default.
func NewAddressBook(loaded []Address) *AddressBook {
	b := &AddressBook{addresses: append([]Address(nil), loaded...)}
	for _, addr := range b.addresses {
		if addr.IsDefault {
			b.Select(addr)
			break
		}
	}
	return b
}

// Addresses returns a copy of the loaded addresses.
func (b *AddressBook) Addresses() []Address {
	return append([]Address(nil), b.addresses...)
}

// Find looks up a loaded address by id.
func (b *AddressBook) Find(id int64) (Address, bool) {
	if id == 0 {
		return Address{}, false
	}
	for _, addr := range b.addresses {
		if addr.ID == id {
			return addr, true
		}
	}
	return Address{}, false
}

// Select replaces the current selection.
func (b *AddressBook) Select(addr Address) {
	b.selected = &addr
}

// SelectByID selects a loaded address.
func (b *AddressBook) SelectByID(id int64) error {
	addr, ok := b.Find(id)
	if !ok {
		return ErrAddressNotFound
	}
	b.Select(addr)
	return nil
}

// Selected returns the current selection.
func (b *AddressBook) Selected() (Address, bool) {
	if b.selected == nil {
		return Address{}, false
	}
	return *b.selected, true
}

// Remember adds a newly saved address to the loaded list so it is recognised as persisted
// for the rest of the session. An address with a known id replaces the stored copy.
func (b *AddressBook) Remember(addr Address) {
	for i := range b.addresses {
		if addr.ID != 0 && b.addresses[i].ID == addr.ID {
			b.addresses[i] = addr
			return
		}
	}
	b.addresses = append(b.addresses, addr)
}

// IsPersisted reports whether addr refers to an address in the loaded list.
func (b *AddressBook) IsPersisted(addr Address) bool {
	_, ok := b.Find(addr.ID)
	return ok
}
