package claims

import (
	"encoding/json"
	"strings"
	"time"
)

// dateFormats are the accepted input layouts, tried in order.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Date is a calendar timestamp with the same lenient decoding discipline as
// Money: unparseable values keep their raw text and are flagged invalid for
// the validator rather than aborting the decode.
type Date struct {
	t   time.Time
	set bool
	ok  bool
	raw string
}

// DateOf wraps a time.Time as a valid Date.
func DateOf(t time.Time) Date {
	return Date{t: t, set: true, ok: !t.IsZero()}
}

// Time returns the parsed timestamp, zero when unset or invalid.
func (d Date) Time() time.Time {
	if !d.ok {
		return time.Time{}
	}
	return d.t
}

// Valid reports whether the value was present and parsed to a real date.
func (d Date) Valid() bool { return d.ok }

// IsSet reports whether any value was supplied at all.
func (d Date) IsSet() bool { return d.set }

// Raw returns the original text of a date that failed to parse.
func (d Date) Raw() string { return d.raw }

// Before reports whether d falls strictly before other. Invalid dates never
// order before anything.
func (d Date) Before(other Date) bool {
	return d.ok && other.ok && d.t.Before(other.t)
}

// After reports whether d falls strictly after other.
func (d Date) After(other Date) bool {
	return d.ok && other.ok && d.t.After(other.t)
}

// MarshalJSON emits RFC 3339 for valid dates, the raw text otherwise.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.ok {
		if d.raw == "" {
			return []byte("null"), nil
		}
		return json.Marshal(d.raw)
	}
	return json.Marshal(d.t.UTC().Format(time.RFC3339))
}

// UnmarshalJSON accepts RFC 3339 timestamps or bare calendar dates.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	var unquoted string
	if err := json.Unmarshal(data, &unquoted); err != nil {
		// Non-string JSON value; keep it for the error report.
		*d = Date{set: true, raw: s}
		return nil
	}
	unquoted = strings.TrimSpace(unquoted)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, unquoted); err == nil {
			*d = Date{t: t, set: true, ok: true, raw: unquoted}
			return nil
		}
	}
	*d = Date{set: true, raw: unquoted}
	return nil
}
