package card

import (
	"strings"
	"unicode/utf8"
)

// Field names reported by the payment form.
const (
	FieldNumber = "cardNumber"
	FieldName   = "cardholderName"
	FieldExpiry = "expiryDate"
	FieldCVV    = "cvv"
)

const (
	maxNumberDigits = 16
	maxExpiryDigits = 4
	maxCVVDigits    = 4
	numberGroupSize = 4
	expirySlashPos  = 2
)

// Kind selects the masking rules applied to a field.
type Kind int

const (
	KindNumber Kind = iota
	KindName
	KindExpiry
	KindCVV
)

// Field is the state of a single payment input. Raw is the source of truth; the masked
// display value is always derived from it.
type Field struct {
	Kind   Kind
	Raw    string
	Cursor int
}

// Display renders the masked value for presentation.
func (f Field) Display() string {
	switch f.Kind {
	case KindNumber:
		return groupDigits(f.Raw)
	case KindExpiry:
		return slashExpiry(f.Raw)
	default:
		return f.Raw
	}
}

// Caret returns Cursor clamped to the display value so it can be applied to the input element.
func (f Field) Caret() int {
	display := f.Display()
	switch {
	case f.Cursor < 0:
		return 0
	case f.Cursor > len(display):
		return len(display)
	default:
		return f.Cursor
	}
}

// Empty reports whether nothing has been entered.
func (f Field) Empty() bool {
	return f.Raw == ""
}

// Event is what the browser reports after a keystroke: the field text, the caret offset
// within it and whether the edit was a backspace.
type Event struct {
	Value     string `json:"value"`
	Caret     int    `json:"caret"`
	Backspace bool   `json:"backspace"`
}

// ApplyBackspace returns the event produced by pressing backspace with the caret at offset caret.
func ApplyBackspace(display string, caret int) Event {
	if caret > len(display) {
		caret = len(display)
	}
	if caret <= 0 {
		return Event{Value: display, Caret: 0, Backspace: true}
	}
	_, size := utf8.DecodeLastRuneInString(display[:caret])
	return Event{
		Value:     display[:caret-size] + display[caret:],
		Caret:     caret - size,
		Backspace: true,
	}
}

// Formatter turns the previous field state and a keystroke event into the next field state.
type Formatter func(prev Field, ev Event) Field

// FormatterFor returns the formatter for a field kind.
func FormatterFor(kind Kind) Formatter {
	switch kind {
	case KindNumber:
		return FormatCardNumber
	case KindExpiry:
		return FormatExpiry
	case KindCVV:
		return FormatCVV
	default:
		return FormatName
	}
}

// FormatCardNumber keeps up to 16 digits and displays them in groups of four.
func FormatCardNumber(prev Field, ev Event) Field {
	raw := digitsOnly(ev.Value, maxNumberDigits)
	n := digitsBefore(ev.Value, ev.Caret, len(raw))
	return Field{Kind: KindNumber, Raw: raw, Cursor: numberCursor(n, len(raw), ev.Backspace)}
}

// FormatExpiry keeps up to four MMYY digits and displays them as MM/YY.
//
// Deleting the inserted slash also deletes the month digit before it (MM/ collapses to M)
// and parks the caret at offset 2. Typing the second month digit advances the caret to
// offset 4 so the year can be typed straight away.
func FormatExpiry(prev Field, ev Event) Field {
	prevDisplay := slashExpiry(prev.Raw)
	if ev.Backspace && deletedSlash(prevDisplay, ev) {
		return Field{Kind: KindExpiry, Raw: prev.Raw[:1], Cursor: expirySlashPos}
	}

	raw := digitsOnly(ev.Value, maxExpiryDigits)
	n := digitsBefore(ev.Value, ev.Caret, len(raw))
	cursor := n
	if n >= expirySlashPos {
		cursor = n + 1
	}
	if !ev.Backspace && n == expirySlashPos && len(prev.Raw) < expirySlashPos && len(raw) >= expirySlashPos {
		cursor = expirySlashPos + 2
	}
	return Field{Kind: KindExpiry, Raw: raw, Cursor: cursor}
}

// FormatCVV keeps up to four digits with no further masking.
func FormatCVV(prev Field, ev Event) Field {
	raw := digitsOnly(ev.Value, maxCVVDigits)
	return Field{Kind: KindCVV, Raw: raw, Cursor: digitsBefore(ev.Value, ev.Caret, len(raw))}
}

// FormatName passes the cardholder name through unmodified.
func FormatName(prev Field, ev Event) Field {
	caret := ev.Caret
	if caret < 0 {
		caret = 0
	}
	if caret > len(ev.Value) {
		caret = len(ev.Value)
	}
	return Field{Kind: KindName, Raw: ev.Value, Cursor: caret}
}

func deletedSlash(prevDisplay string, ev Event) bool {
	if len(prevDisplay) <= expirySlashPos || prevDisplay[expirySlashPos] != '/' {
		return false
	}
	if ev.Caret != expirySlashPos {
		return false
	}
	return ev.Value == prevDisplay[:expirySlashPos]+prevDisplay[expirySlashPos+1:]
}

func numberCursor(n, total int, backspace bool) int {
	if n <= 0 {
		return 0
	}
	pos := n + (n-1)/numberGroupSize
	if !backspace && n%numberGroupSize == 0 && n < total {
		pos++
	}
	return pos
}

func groupDigits(raw string) string {
	if len(raw) <= numberGroupSize {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/numberGroupSize)
	for i := 0; i < len(raw); i++ {
		if i > 0 && i%numberGroupSize == 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}

func slashExpiry(raw string) string {
	if len(raw) < expirySlashPos {
		return raw
	}
	return raw[:expirySlashPos] + "/" + raw[expirySlashPos:]
}

func digitsOnly(s string, limit int) string {
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < limit; i++ {
		if isDigit(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// digitsBefore counts the digits left of caret, capped at limit.
func digitsBefore(s string, caret, limit int) int {
	if caret > len(s) {
		caret = len(s)
	}
	n := 0
	for i := 0; i < caret; i++ {
		if isDigit(s[i]) {
			n++
		}
	}
	if n > limit {
		return limit
	}
	return n
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
