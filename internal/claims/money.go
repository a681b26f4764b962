package claims

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Money is a fixed-point monetary amount stored as integer cents. Decoding is
// deliberately lenient: malformed or over-precise values are retained with
// their raw text and flagged invalid so the validator can accumulate a
// complete error report instead of the decoder failing the whole submission.
type Money struct {
	cents int64
	set   bool
	ok    bool
	raw   string
}

// MoneyFromCents builds a valid Money from integer cents.
func MoneyFromCents(cents int64) Money {
	return Money{cents: cents, set: true, ok: true}
}

// Cents returns the amount in hundredths. Zero for unset or invalid amounts.
func (m Money) Cents() int64 {
	if !m.ok {
		return 0
	}
	return m.cents
}

// Valid reports whether the amount was present and parseable with at most
// two fractional digits.
func (m Money) Valid() bool { return m.ok }

// IsSet reports whether any value was supplied at all.
func (m Money) IsSet() bool { return m.set }

// Negative reports whether a valid amount is below zero.
func (m Money) Negative() bool { return m.ok && m.cents < 0 }

// Raw returns the original text of an amount that failed to parse.
func (m Money) Raw() string { return m.raw }

// String renders the amount as a decimal with two fractional digits.
func (m Money) String() string {
	c := m.cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// MarshalJSON emits the amount as a JSON number with two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	if !m.ok {
		if m.raw == "" {
			return []byte("null"), nil
		}
		return json.Marshal(m.raw)
	}
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a number or numeric string. Values with more than two
// fractional digits are kept but marked invalid.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*m = Money{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}
	cents, err := parseCents(s)
	if err != nil {
		*m = Money{set: true, raw: s}
		return nil
	}
	*m = Money{cents: cents, set: true, ok: true, raw: s}
	return nil
}

// parseCents converts a decimal string into cents, rejecting more than two
// fractional digits. Rounding here would silently alter billed amounts.
func parseCents(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	var f int64
	switch len(frac) {
	case 0:
	case 1:
		f, err = strconv.ParseInt(frac, 10, 64)
		f *= 10
	case 2:
		f, err = strconv.ParseInt(frac, 10, 64)
	default:
		return 0, fmt.Errorf("amount %q has more than two fractional digits", s)
	}
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}
