package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay_DropsTimeOfDay(t *testing.T) {
	morning, err := ParseDay("2024-03-01T08:15:00+05:30")
	require.NoError(t, err)
	night, err := ParseDay("2024-03-01T23:59:59Z")
	require.NoError(t, err)
	plain, err := ParseDay("2024-03-01")
	require.NoError(t, err)

	assert.True(t, morning.Equal(night))
	assert.True(t, morning.Equal(plain))
	assert.Equal(t, "2024-03-01", morning.String())
}

func TestParseDay_KeepsLiteralDateOfOffsetTimestamps(t *testing.T) {
	// 00:30 at +05:30 is still the previous day in UTC; the literal date wins.
	d, err := ParseDay("2024-03-02T00:30:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, NewDay(2024, time.March, 2), d)
}

func TestParseDay_Invalid(t *testing.T) {
	for _, in := range []string{"", "  ", "2024-13-01", "01/03/2024", "yesterday"} {
		_, err := ParseDay(in)
		assert.ErrorIs(t, err, ErrInvalidDay, in)
	}
}

func TestDayWindow_BoundariesAreIndependent(t *testing.T) {
	d := NewDay(2024, time.March, 1)
	w := d.Window()

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), w.End)
	assert.True(t, w.Start.Before(w.End))

	assert.True(t, w.Contains(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
}

func TestEndOfMonth(t *testing.T) {
	assert.Equal(t, NewDay(2024, time.February, 29), EndOfMonth(2024, time.February))
	assert.Equal(t, NewDay(2023, time.February, 28), EndOfMonth(2023, time.February))
	assert.Equal(t, NewDay(2024, time.December, 31), EndOfMonth(2024, time.December))
}

func TestParseMonth(t *testing.T) {
	y, m, err := ParseMonth("2024-03")
	require.NoError(t, err)
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.March, m)

	_, _, err = ParseMonth("2024-3-1")
	assert.ErrorIs(t, err, ErrInvalidDay)
}

func TestDayJSON(t *testing.T) {
	entry := LedgerEntry{Day: NewDay(2024, time.March, 1), Status: StatusLate, MarkedBy: "t-1"}
	b, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2024-03-01","status":"late","marked_by":"t-1"}`, string(b))

	var back LedgerEntry
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Day.Equal(entry.Day))
}
