package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency formats a decimal amount. JPY has no minor unit; USD and EUR use two places.
// Example: Currency(decimal.NewFromInt(12345), "JPY") => "¥12,345"
func Currency(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	switch currency {
	case "JPY":
		return signed(amount, "¥", 0)
	case "USD":
		return signed(amount, "$", 2)
	case "EUR":
		return signed(amount, "€", 2)
	default:
		if currency == "" {
			return thousandSep(amount.StringFixed(2))
		}
		return currency + " " + thousandSep(amount.StringFixed(2))
	}
}

func signed(amount decimal.Decimal, symbol string, places int32) string {
	rounded := amount.Round(places)
	if rounded.IsNegative() {
		return "-" + symbol + thousandSep(rounded.Neg().StringFixed(places))
	}
	return symbol + thousandSep(rounded.StringFixed(places))
}

// thousandSep groups the integer part of a plain decimal string.
func thousandSep(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i != 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		return "-" + out
	}
	return out
}

// Date formats t in a locale-friendly short form.
func Date(t time.Time, lang string) string {
	switch strings.ToLower(lang) {
	case "ja":
		return t.Format("2006年1月2日")
	default:
		return t.Format("Jan 2, 2006")
	}
}
