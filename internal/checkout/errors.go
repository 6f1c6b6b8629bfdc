package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"finitefield.org/hanko-storefront/internal/card"
)

var (
	// ErrUnauthenticated indicates checkout was started without a signed-in user.
	ErrUnauthenticated = errors.New("checkout: sign in required")
	// ErrInvalidTransition indicates the requested step change is not allowed from the current step.
	ErrInvalidTransition = errors.New("checkout: invalid transition")
	// ErrBusy indicates an address or order request is still in flight.
	ErrBusy = errors.New("checkout: request in flight")
	// ErrAddressNotFound indicates the address id is not in the loaded address list.
	ErrAddressNotFound = errors.New("checkout: address not found")
)

// Validation reasons carried by ValidationError.
const (
	ReasonAddressRequired = "address required"
	ReasonCardInvalid     = "card details invalid"
	ReasonAddressInvalid  = "address invalid"
	ReasonCartEmpty       = "cart empty"
)

// FieldError is a per-field validation failure.
type FieldError = card.FieldError

// ValidationError is returned when a step guard rejects the current input.
type ValidationError struct {
	Reason string
	Fields map[string]FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "checkout: " + e.Reason
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("checkout: %s [%s]", e.Reason, strings.Join(names, ", "))
}

// APIError reports a request the storefront API rejected. Message is the server-provided text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("checkout: api status %d", e.Status)
	}
	return fmt.Sprintf("checkout: api status %d: %s", e.Status, e.Message)
}

// Banner codes shown above the checkout steps.
const (
	BannerAddressRequired = "address_required"
	BannerCardInvalid     = "card_invalid"
	BannerAddressInvalid  = "address_invalid"
	BannerCartEmpty       = "cart_empty"
	BannerAPIFailure      = "api_failure"
)

// GenericFailureMessage is shown when a failure carries no server message.
const GenericFailureMessage = "Something went wrong. Please try again."

// Banner is the non-blocking message surfaced after a failed transition or request.
type Banner struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BannerFor maps an error to the message shown to the shopper. API rejections surface the
// server message verbatim; anything else without a validation reason gets a generic fallback.
func BannerFor(err error) Banner {
	var verr *ValidationError
	if errors.As(err, &verr) {
		switch verr.Reason {
		case ReasonAddressRequired:
			return Banner{Code: BannerAddressRequired, Message: "Select a shipping address to continue."}
		case ReasonCardInvalid:
			return Banner{Code: BannerCardInvalid, Message: "Check your card details and try again."}
		case ReasonAddressInvalid:
			return Banner{Code: BannerAddressInvalid, Message: "Fill in the highlighted address fields."}
		case ReasonCartEmpty:
			return Banner{Code: BannerCartEmpty, Message: "Your cart is empty."}
		}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return Banner{Code: BannerAPIFailure, Message: strings.TrimSpace(apiErr.Message)}
	}
	return Banner{Code: BannerAPIFailure, Message: GenericFailureMessage}
}
