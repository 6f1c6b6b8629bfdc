package card

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typed(value string) Event {
	return Event{Value: value, Caret: len(value)}
}

func TestFormatCardNumberGroupsAndTruncates(t *testing.T) {
	got := FormatCardNumber(Field{Kind: KindNumber}, typed("4532-0151 1283abc03669999"))

	require.Equal(t, "4532015112830366", got.Raw)
	assert.Equal(t, "4532 0151 1283 0366", got.Display())
	assert.Equal(t, len(got.Display()), got.Cursor)
}

func TestFormatCardNumberIsIdempotent(t *testing.T) {
	inputs := []string{"", "4", "4532", "45320", "4532 0151 1283 0366", "  12ab34 56 78 90 12 34 56 78 "}
	for _, in := range inputs {
		first := FormatCardNumber(Field{Kind: KindNumber}, typed(in))
		second := FormatCardNumber(first, typed(first.Display()))
		assert.Equal(t, first.Raw, second.Raw, "input %q", in)
		assert.Equal(t, first.Display(), second.Display(), "input %q", in)
		assert.Equal(t, strings.ReplaceAll(first.Display(), " ", ""), first.Raw, "input %q", in)
	}
}

func TestFormatCardNumberCursor(t *testing.T) {
	cases := []struct {
		name string
		prev string
		ev   Event
		want int
	}{
		{name: "end of first group with nothing after", prev: "453", ev: Event{Value: "4532", Caret: 4}, want: 4},
		{name: "fifth digit", prev: "4532", ev: Event{Value: "4532 0", Caret: 6}, want: 6},
		{name: "group boundary skips the space", prev: "4532567", ev: Event{Value: "45325678", Caret: 4}, want: 5},
		{name: "insert mid number", prev: "45320151", ev: Event{Value: "45329 0151", Caret: 5}, want: 6},
		{name: "backspace at boundary stays before space", prev: "453256789", ev: Event{Value: "4532 5678", Caret: 4, Backspace: true}, want: 4},
		{name: "caret at start", prev: "", ev: Event{Value: "1234", Caret: 0}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatCardNumber(Field{Kind: KindNumber, Raw: tc.prev}, tc.ev)
			assert.Equal(t, tc.want, got.Cursor)
		})
	}
}

func TestFormatExpiryInsertsSlash(t *testing.T) {
	first := FormatExpiry(Field{Kind: KindExpiry}, Event{Value: "1", Caret: 1})
	require.Equal(t, "1", first.Raw)
	assert.Equal(t, "1", first.Display())
	assert.Equal(t, 1, first.Cursor)

	second := FormatExpiry(first, Event{Value: "12", Caret: 2})
	require.Equal(t, "12", second.Raw)
	assert.Equal(t, "12/", second.Display())
	assert.Equal(t, 4, second.Cursor, "caret jumps past the slash")
	assert.Equal(t, 3, second.Caret())

	third := FormatExpiry(second, Event{Value: "12/3", Caret: 4})
	assert.Equal(t, "12/3", third.Display())
	assert.Equal(t, 4, third.Cursor)
}

func TestFormatExpiryIsIdempotent(t *testing.T) {
	got := FormatExpiry(Field{Kind: KindExpiry, Raw: "1225"}, typed("12/25"))
	assert.Equal(t, "1225", got.Raw)
	assert.Equal(t, "12/25", got.Display())

	again := FormatExpiry(got, typed(got.Display()))
	assert.Equal(t, "12/25", again.Display())
}

func TestFormatExpiryTruncatesToFourDigits(t *testing.T) {
	got := FormatExpiry(Field{Kind: KindExpiry}, typed("12/3456"))
	assert.Equal(t, "1234", got.Raw)
	assert.Equal(t, "12/34", got.Display())
}

func TestFormatExpiryBackspaceOverSlashCollapsesMonth(t *testing.T) {
	prev := Field{Kind: KindExpiry, Raw: "123"}
	require.Equal(t, "12/3", prev.Display())

	got := FormatExpiry(prev, ApplyBackspace(prev.Display(), 3))
	assert.Equal(t, "1", got.Raw)
	assert.Equal(t, "1", got.Display())
	assert.Equal(t, 2, got.Cursor)

	bare := Field{Kind: KindExpiry, Raw: "12"}
	got = FormatExpiry(bare, ApplyBackspace(bare.Display(), 3))
	assert.Equal(t, "1", got.Raw)
	assert.Equal(t, 2, got.Cursor)
}

func TestFormatExpiryBackspaceOnYearDigit(t *testing.T) {
	prev := Field{Kind: KindExpiry, Raw: "1234"}
	got := FormatExpiry(prev, ApplyBackspace(prev.Display(), 5))
	assert.Equal(t, "123", got.Raw)
	assert.Equal(t, "12/3", got.Display())
	assert.Equal(t, 4, got.Cursor)
}

func TestFormatCVVAndName(t *testing.T) {
	cvv := FormatCVV(Field{Kind: KindCVV}, typed("12a34 5"))
	assert.Equal(t, "1234", cvv.Raw)
	assert.Equal(t, "1234", cvv.Display())

	name := FormatName(Field{Kind: KindName}, Event{Value: "  Jane <Doe> ", Caret: 99})
	assert.Equal(t, "  Jane <Doe> ", name.Raw)
	assert.Equal(t, len(name.Raw), name.Cursor)
}

func TestApplyBackspace(t *testing.T) {
	assert.Equal(t, Event{Value: "123", Caret: 2, Backspace: true}, ApplyBackspace("12/3", 3))
	assert.Equal(t, Event{Value: "12/3", Caret: 0, Backspace: true}, ApplyBackspace("12/3", 0))
	assert.Equal(t, Event{Value: "Jos", Caret: 3, Backspace: true}, ApplyBackspace("José", 5))
}
