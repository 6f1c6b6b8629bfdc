package card

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateCardNumber(t *testing.T) {
	cases := map[string]bool{
		"4532015112830366":    true,
		"4532015112830367":    false,
		"4111111111111111":    true,
		"4222222222222":       true,
		"411111111111":        false,
		"4532 0151 1283 0366": false,
		"":                    false,
		"00000000000000000000": false,
	}
	for in, want := range cases {
		assert.Equal(t, want, ValidateCardNumber(in), "input %q", in)
	}
}

func TestValidateExpiryCurrentMonthBoundary(t *testing.T) {
	january := time.Date(2024, time.January, 31, 23, 59, 0, 0, time.UTC)
	february := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

	assert.True(t, ValidateExpiry("01/24", january))
	assert.False(t, ValidateExpiry("01/24", february))
	assert.False(t, ValidateExpiry("01/24", later))
	assert.True(t, ValidateExpiry("02/24", february))
	assert.True(t, ValidateExpiry("12/99", later))
}

func TestValidateExpiryRejectsMalformed(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"", "1/25", "00/25", "13/25", "12/5", "1225", "12-25", "12/255"} {
		assert.False(t, ValidateExpiry(in, now), "input %q", in)
	}
}

func TestValidateCVV(t *testing.T) {
	assert.False(t, ValidateCVV("12"))
	assert.True(t, ValidateCVV("123"))
	assert.True(t, ValidateCVV("1234"))
	assert.False(t, ValidateCVV("12345"))
	assert.False(t, ValidateCVV("12a"))
}

func TestValidateCardholderName(t *testing.T) {
	assert.False(t, ValidateCardholderName(""))
	assert.False(t, ValidateCardholderName(" J "))
	assert.True(t, ValidateCardholderName("Jo"))
	assert.True(t, ValidateCardholderName("  Jane Doe "))
	assert.True(t, ValidateCardholderName("山田"))
}

func TestBrand(t *testing.T) {
	assert.Equal(t, "visa", Brand("4532015112830366"))
	assert.Equal(t, "mastercard", Brand("5425233430109903"))
	assert.Equal(t, "mastercard", Brand("2223000048410010"))
	assert.Equal(t, "amex", Brand("374245455400126"))
	assert.Equal(t, "discover", Brand("6011000990139424"))
	assert.Equal(t, "jcb", Brand("3530111333300000"))
	assert.Equal(t, "unknown", Brand("9"))
}
