package card

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/(\d{2})$`)

// ValidateCardNumber reports whether digits is 13-19 digits long and passes the Luhn checksum.
func ValidateCardNumber(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		if !isDigit(digits[i]) {
			return false
		}
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidateExpiry reports whether an MM/YY value is in the current month or later.
// A card expiring this month is still accepted regardless of the day.
func ValidateExpiry(display string, now time.Time) bool {
	m := expiryPattern.FindStringSubmatch(display)
	if m == nil {
		return false
	}
	month, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}
	loc := now.Location()
	expiry := time.Date(2000+year, time.Month(month), 1, 0, 0, 0, 0, loc)
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	return !expiry.Before(current)
}

// ValidateCVV reports whether digits is a 3 or 4 digit security code.
func ValidateCVV(digits string) bool {
	if len(digits) != 3 && len(digits) != 4 {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if !isDigit(digits[i]) {
			return false
		}
	}
	return true
}

// ValidateCardholderName reports whether the trimmed name has at least two characters.
func ValidateCardholderName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= 2
}

// Brand guesses the card network from the leading digits. It is informational only.
func Brand(digits string) string {
	prefix := func(n int) int {
		if len(digits) < n {
			return -1
		}
		v, err := strconv.Atoi(digits[:n])
		if err != nil {
			return -1
		}
		return v
	}
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case prefix(2) >= 51 && prefix(2) <= 55, prefix(4) >= 2221 && prefix(4) <= 2720:
		return "mastercard"
	case prefix(2) == 34, prefix(2) == 37:
		return "amex"
	case prefix(4) == 6011, prefix(2) == 65, prefix(3) >= 644 && prefix(3) <= 649:
		return "discover"
	case prefix(4) >= 3528 && prefix(4) <= 3589:
		return "jcb"
	default:
		return "unknown"
	}
}
