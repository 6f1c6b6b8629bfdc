package checkout

import (
	"errors"
	"html"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	entryValidate = newEntryValidator()
	entryPolicy   = bluemonday.StrictPolicy()
)

var entryMessages = map[string]string{
	"recipientName":  "Recipient name is required.",
	"recipientPhone": "Phone number is required.",
	"streetAddress":  "Street address is required.",
	"city":           "City is required.",
	"country":        "Country is required.",
}

// AddressEntry is the input collected by the address-entry dialog.
type AddressEntry struct {
	RecipientName  string `json:"recipientName" validate:"required"`
	RecipientPhone string `json:"recipientPhone" validate:"required"`
	StreetAddress  string `json:"streetAddress" validate:"required"`
	City           string `json:"city" validate:"required"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country" validate:"required"`
}

// Normalize strips markup and surrounding whitespace from every field.
func (e AddressEntry) Normalize() AddressEntry {
	return AddressEntry{
		RecipientName:  cleanText(e.RecipientName),
		RecipientPhone: cleanText(e.RecipientPhone),
		StreetAddress:  cleanText(e.StreetAddress),
		City:           cleanText(e.City),
		State:          cleanText(e.State),
		PostalCode:     cleanText(e.PostalCode),
		Country:        cleanText(e.Country),
	}
}

// Validate returns an error per missing required field, keyed by JSON field name.
func (e AddressEntry) Validate() map[string]FieldError {
	errs := map[string]FieldError{}
	err := entryValidate.Struct(e)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["_"] = FieldError{Reason: "invalid", Message: err.Error()}
		return errs
	}
	for _, fe := range verrs {
		msg := entryMessages[fe.Field()]
		if msg == "" {
			msg = "This field is required."
		}
		errs[fe.Field()] = FieldError{Reason: fe.Tag(), Message: msg}
	}
	return errs
}

// Address converts the entry into an ephemeral (unsaved) address.
func (e AddressEntry) Address() Address {
	return Address{
		RecipientName:  e.RecipientName,
		RecipientPhone: e.RecipientPhone,
		StreetAddress:  e.StreetAddress,
		City:           e.City,
		State:          e.State,
		PostalCode:     e.PostalCode,
		Country:        e.Country,
	}
}

func newEntryValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(entryPolicy.Sanitize(value)))
}
