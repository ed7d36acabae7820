package attendance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DAY - Calendar day with time-of-day discarded
// =============================================================================

// DayLayout is the wire format of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date. The underlying time is always UTC midnight, so two
// Days are equal exactly when their dates are equal, whatever the input's
// time-of-day or offset was.
type Day struct {
	t time.Time
}

// NewDay builds a Day from its date components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar date of t as seen in t's own location.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// Today returns the current UTC calendar day.
func Today() Day {
	return DayOf(time.Now().UTC())
}

// ParseDay accepts "2006-01-02" or an RFC 3339 timestamp. For timestamps the
// literal date part is kept and the time-of-day is dropped.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Day{}, ErrInvalidDay
	}
	if t, err := time.Parse(DayLayout, s); err == nil {
		return DayOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DayOf(t), nil
	}
	return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
}

// Comparison
func (d Day) Equal(other Day) bool  { return d.t.Equal(other.t) }
func (d Day) Before(other Day) bool { return d.t.Before(other.t) }
func (d Day) After(other Day) bool  { return d.t.After(other.t) }
func (d Day) IsZero() bool          { return d.t.IsZero() }

// Properties
func (d Day) Year() int          { return d.t.Year() }
func (d Day) Month() time.Month  { return d.t.Month() }
func (d Day) Date() int          { return d.t.Day() }
func (d Day) Time() time.Time    { return d.t }
func (d Day) AddDays(n int) Day  { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) String() string     { return d.t.Format(DayLayout) }

// Window returns the inclusive instant range covered by the day. Both
// boundaries are constructed from the date components separately.
func (d Day) Window() Window {
	y, m, dd := d.t.Date()
	return Window{
		Start: time.Date(y, m, dd, 0, 0, 0, 0, time.UTC),
		End:   time.Date(y, m, dd, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC),
	}
}

func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDay, string(b))
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// WINDOW - Instant range [Start, End]
// =============================================================================

// Window is an inclusive range of instants.
type Window struct {
	Start time.Time
	End   time.Time
}

// Span returns the window from the start of from to the end of to.
func Span(from, to Day) Window {
	return Window{Start: from.Window().Start, End: to.Window().End}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// =============================================================================
// MONTH HELPERS
// =============================================================================

// ParseMonth accepts "YYYY-MM".
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q (use YYYY-MM)", ErrInvalidDay, s)
	}
	return t.Year(), t.Month(), nil
}

func StartOfMonth(year int, month time.Month) Day { return NewDay(year, month, 1) }

func EndOfMonth(year int, month time.Month) Day {
	return StartOfMonth(year, month).addMonths(1).AddDays(-1)
}

func (d Day) addMonths(n int) Day { return Day{t: d.t.AddDate(0, n, 0)} }
