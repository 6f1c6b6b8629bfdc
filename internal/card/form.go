package card

import (
	"errors"
	"time"
)

// Error reasons carried by FieldError.
const (
	ReasonRequired = "required"
	ReasonInvalid  = "invalid"
)

// ErrUnknownField is returned when an event names a field the form does not have.
var ErrUnknownField = errors.New("card: unknown field")

// FieldNames lists the payment fields in form order.
var FieldNames = []string{FieldNumber, FieldName, FieldExpiry, FieldCVV}

var invalidMessages = map[string]string{
	FieldNumber: "Enter a valid card number.",
	FieldName:   "Enter the name shown on the card.",
	FieldExpiry: "Enter a valid expiry date (MM/YY).",
	FieldCVV:    "Enter the 3 or 4 digit security code.",
}

const requiredMessage = "This field is required."

// FieldError describes why a field is rejected.
type FieldError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Form is the payment step state: the four card inputs and their derived errors.
// Form values are immutable; Apply and Attempt return updated copies.
type Form struct {
	Number Field
	Name   Field
	Expiry Field
	CVV    Field
	Errors map[string]FieldError
}

// NewForm returns an empty payment form.
func NewForm() Form {
	return Form{
		Number: Field{Kind: KindNumber},
		Name:   Field{Kind: KindName},
		Expiry: Field{Kind: KindExpiry},
		CVV:    Field{Kind: KindCVV},
		Errors: map[string]FieldError{},
	}
}

// Field returns the named field.
func (f Form) Field(name string) (Field, bool) {
	switch name {
	case FieldNumber:
		return f.Number, true
	case FieldName:
		return f.Name, true
	case FieldExpiry:
		return f.Expiry, true
	case FieldCVV:
		return f.CVV, true
	default:
		return Field{}, false
	}
}

func (f Form) withField(name string, field Field) Form {
	switch name {
	case FieldNumber:
		f.Number = field
	case FieldName:
		f.Name = field
	case FieldExpiry:
		f.Expiry = field
	case FieldCVV:
		f.CVV = field
	}
	return f
}

// Apply formats a keystroke event into the named field and re-validates that field.
// Empty fields never carry an error here; a required error is only raised by Attempt.
func (f Form) Apply(name string, ev Event, now time.Time) (Form, error) {
	prev, ok := f.Field(name)
	if !ok {
		return f, ErrUnknownField
	}
	next := FormatterFor(prev.Kind)(prev, ev)
	f = f.withField(name, next)
	f.Errors = f.copyErrors()
	if fe, bad := f.check(name, now); bad {
		f.Errors[name] = fe
	} else {
		delete(f.Errors, name)
	}
	if name != FieldExpiry {
		f = f.RecheckExpiry(now)
	}
	return f, nil
}

// RecheckExpiry flags an entered expiry date that has lapsed since it was typed.
func (f Form) RecheckExpiry(now time.Time) Form {
	fe, bad := f.check(FieldExpiry, now)
	if !bad {
		return f
	}
	if current, ok := f.Errors[FieldExpiry]; ok && current == fe {
		return f
	}
	f.Errors = f.copyErrors()
	f.Errors[FieldExpiry] = fe
	return f
}

// Attempt re-validates every field as a submit attempt does, flagging empty fields as required.
func (f Form) Attempt(now time.Time) Form {
	errs := make(map[string]FieldError, len(FieldNames))
	for _, name := range FieldNames {
		field, _ := f.Field(name)
		if field.Empty() {
			errs[name] = FieldError{Reason: ReasonRequired, Message: requiredMessage}
			continue
		}
		if fe, bad := f.check(name, now); bad {
			errs[name] = fe
		}
	}
	f.Errors = errs
	return f
}

// Valid reports whether every field is filled in and passes its validator.
func (f Form) Valid(now time.Time) bool {
	for _, name := range FieldNames {
		field, _ := f.Field(name)
		if field.Empty() {
			return false
		}
		if _, bad := f.check(name, now); bad {
			return false
		}
	}
	return true
}

// LastFour returns the last four digits of the card number.
func (f Form) LastFour() string {
	raw := f.Number.Raw
	if len(raw) <= 4 {
		return raw
	}
	return raw[len(raw)-4:]
}

// ExpiryDisplay returns the expiry as MM/YY.
func (f Form) ExpiryDisplay() string {
	return f.Expiry.Display()
}

func (f Form) check(name string, now time.Time) (FieldError, bool) {
	field, _ := f.Field(name)
	if field.Empty() {
		return FieldError{}, false
	}
	var ok bool
	switch name {
	case FieldNumber:
		ok = ValidateCardNumber(field.Raw)
	case FieldName:
		ok = ValidateCardholderName(field.Raw)
	case FieldExpiry:
		ok = ValidateExpiry(field.Display(), now)
	case FieldCVV:
		ok = ValidateCVV(field.Raw)
	}
	if ok {
		return FieldError{}, false
	}
	return FieldError{Reason: ReasonInvalid, Message: invalidMessages[name]}, true
}

func (f Form) copyErrors() map[string]FieldError {
	out := make(map[string]FieldError, len(f.Errors))
	for k, v := range f.Errors {
		out[k] = v
	}
	return out
}
