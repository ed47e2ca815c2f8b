package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp_SourceVariants(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)

	cases := []struct {
		name string
		in   string
	}{
		{"rfc3339", "2024-05-01T12:30:45Z"},
		{"rfc3339 fractional", "2024-05-01T12:30:45.123456Z"},
		{"rfc3339 offset", "2024-05-01T14:30:45+02:00"},
		{"compact offset", "2024-05-01T14:30:45+0200"},
		{"space separator", "2024-05-01 12:30:45"},
		{"space with offset", "2024-05-01 14:30:45+02:00"},
		{"two-digit offset", "2024-05-01T12:30:45+00"},
		{"fractional compact offset", "2024-05-01T14:30:45.123+0200"},
		{"fractional two-digit offset", "2024-05-01T12:30:45.123+00"},
		{"space fractional compact offset", "2024-05-01 14:30:45.123+0200"},
		{"bare", "2024-05-01T12:30:45"},
		{"surrounding whitespace", "  2024-05-01T12:30:45Z  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseTimestamp_Malformed(t *testing.T) {
	for _, in := range []string{"", "   ", "not a date", "2024-13-45T99:00:00Z", "1714566645"} {
		_, err := ParseTimestamp(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseTimestamp_TruncatesToSecond(t *testing.T) {
	got, err := ParseTimestamp("2024-05-01T12:30:45.999999Z")
	require.NoError(t, err)
	assert.Zero(t, got.Nanosecond())
}

func TestFormatTimestamp_CanonicalShape(t *testing.T) {
	in := time.Date(2024, 5, 1, 14, 30, 45, 500, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2024-05-01T12:30:45Z", FormatTimestamp(in))
}

func TestFormatOptional(t *testing.T) {
	assert.Equal(t, "", FormatOptional(nil))

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-05-01T12:00:00Z", FormatOptional(&ts))
}

func TestRatio(t *testing.T) {
	got, ok := Ratio(3, 4)
	require.True(t, ok)
	assert.InDelta(t, 0.75, got, 1e-9)

	_, ok = Ratio(3, 0)
	assert.False(t, ok, "zero denominator must not yield a value")

	got, ok = Ratio(0, 4)
	require.True(t, ok)
	assert.Zero(t, got)
}

func TestSortByDueAt_NilLastStable(t *testing.T) {
	at := func(day int) *time.Time {
		ts := time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)
		return &ts
	}

	tasks := []Canonical{
		{Title: "undated-a"},
		{Title: "late", DueAt: at(20)},
		{Title: "undated-b"},
		{Title: "early", DueAt: at(2)},
		{Title: "early-tie", DueAt: at(2)},
	}
	SortByDueAt(tasks)

	titles := make([]string, len(tasks))
	for i, task := range tasks {
		titles[i] = task.Title
	}
	assert.Equal(t, []string{"early", "early-tie", "late", "undated-a", "undated-b"}, titles)
}

func TestEarliestDueAt(t *testing.T) {
	early := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, EarliestDueAt(nil))
	assert.Nil(t, EarliestDueAt([]*time.Time{nil, nil}))

	got := EarliestDueAt([]*time.Time{nil, &late, &early, nil})
	require.NotNil(t, got)
	assert.Equal(t, early, *got)
}

func TestFixedClock(t *testing.T) {
	instant := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	clock := NewFixedClock(instant)
	assert.Equal(t, instant.UTC(), clock.Now())
	assert.Equal(t, clock.Now(), clock.Now())
}
