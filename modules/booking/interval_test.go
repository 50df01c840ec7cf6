package booking

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(t *testing.T, s string) *Clock {
	c, err := ParseClock(s)
	require.NoError(t, err)
	return &c
}

func TestNewInterval(t *testing.T) {
	day := Date{2024, time.May, 1}
	tests := []struct {
		name      string
		start     string
		duration  int
		end       string
		minutes   int
		overnight bool
		wantErr   bool
	}{
		{name: "duration", start: "14:00", duration: 130, minutes: 130},
		{name: "explicit end", start: "10:00", end: "11:00", minutes: 60},
		{name: "overnight end", start: "23:00", end: "01:00", minutes: 120, overnight: true},
		{name: "end equals start is a full day", start: "09:00", end: "09:00", minutes: 1440, overnight: true},
		{name: "duration crossing midnight", start: "22:30", duration: 90, minutes: 90, overnight: true},
		{name: "ends exactly at midnight", start: "22:00", duration: 120, minutes: 120, overnight: true},
		{name: "full day duration", start: "00:00", duration: 1440, minutes: 1440, overnight: true},
		{name: "matching duration and end", start: "10:00", duration: 60, end: "11:00", minutes: 60},
		{name: "mismatched duration and end", start: "10:00", duration: 30, end: "11:00", wantErr: true},
		{name: "zero duration", start: "10:00", wantErr: true},
		{name: "negative duration", start: "10:00", duration: -5, wantErr: true},
		{name: "too long", start: "10:00", duration: 1441, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var end *Clock
			if tt.end != "" {
				end = clock(t, tt.end)
			}
			iv, err := NewInterval(day, *clock(t, tt.start), tt.duration, end, time.UTC)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.minutes, iv.Minutes())
			assert.Equal(t, tt.overnight, iv.Overnight)
			assert.True(t, iv.End.After(iv.Start))
		})
	}
}

func TestNewIntervalAcrossDST(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	tests := []struct {
		name     string
		date     Date
		start    string
		duration int
		end      string
		wantEnd  time.Time
		minutes  int
	}{
		{name: "spring forward keeps the wall-clock end", date: Date{2024, time.March, 9}, start: "23:00", end: "03:00",
			wantEnd: time.Date(2024, time.March, 10, 3, 0, 0, 0, chicago), minutes: 180},
		{name: "fall back keeps the wall-clock end", date: Date{2024, time.November, 2}, start: "23:00", end: "03:00",
			wantEnd: time.Date(2024, time.November, 3, 3, 0, 0, 0, chicago), minutes: 300},
		{name: "duration is elapsed time", date: Date{2024, time.March, 9}, start: "23:00", duration: 240,
			wantEnd: time.Date(2024, time.March, 10, 4, 0, 0, 0, chicago), minutes: 240},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var end *Clock
			if tt.end != "" {
				end = clock(t, tt.end)
			}
			iv, err := NewInterval(tt.date, *clock(t, tt.start), tt.duration, end, chicago)
			require.NoError(t, err)
			assert.True(t, iv.End.Equal(tt.wantEnd), "end %s", iv.End)
			assert.Equal(t, tt.minutes, iv.Minutes())
			assert.True(t, iv.Overnight)
		})
	}

	// A 03:00 booking the next morning only touches the overnight one.
	night, err := NewInterval(Date{2024, time.March, 9}, *clock(t, "23:00"), 0, clock(t, "03:00"), chicago)
	require.NoError(t, err)
	morning, err := NewInterval(Date{2024, time.March, 10}, *clock(t, "03:00"), 60, nil, chicago)
	require.NoError(t, err)
	assert.False(t, night.Overlaps(morning))
}

func TestOvernightNormalization(t *testing.T) {
	iv, err := IntervalSpec{Date: "2024-05-01", Start: "23:00", End: "01:00"}.Resolve(time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, 120, iv.Minutes())
	assert.Equal(t, time.Date(2024, time.May, 2, 1, 0, 0, 0, time.UTC), iv.End)
}

func TestIntervalSpecResolve(t *testing.T) {
	loc := time.FixedZone("CDT", -5*60*60)

	iv, err := IntervalSpec{Date: "2024-05-01", Start: "14:00"}.Resolve(loc, 130)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.May, 1, 19, 0, 0, 0, time.UTC).Unix(), iv.Start.Unix())
	assert.Equal(t, 130, iv.Minutes())

	_, err = IntervalSpec{Date: "2024-05-01", Start: "14:00"}.Resolve(loc, 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = IntervalSpec{Date: "May 1", Start: "14:00", DurationMinutes: 10}.Resolve(loc, 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = IntervalSpec{Date: "2024-05-01", Start: "2pm", DurationMinutes: 10}.Resolve(loc, 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = IntervalSpec{Date: "2024-05-01", Start: "14:00", End: "25:00"}.Resolve(loc, 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestOverlapPredicate(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, time.May, 1, h, m, 0, 0, time.UTC) }
	iv := func(sh, sm, eh, em int) Interval { return Interval{Start: at(sh, sm), End: at(eh, em)} }

	tests := []struct {
		name     string
		a, b     Interval
		overlaps bool
	}{
		{"touching", iv(10, 0, 11, 0), iv(11, 0, 12, 0), false},
		{"strict overlap", iv(10, 0, 11, 0), iv(10, 30, 11, 30), true},
		{"contained", iv(10, 0, 12, 0), iv(10, 30, 11, 0), true},
		{"identical", iv(10, 0, 11, 0), iv(10, 0, 11, 0), true},
		{"disjoint", iv(8, 0, 9, 0), iv(10, 0, 11, 0), false},
		{"one minute", iv(10, 0, 11, 1), iv(11, 0, 12, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.a.Overlaps(tt.b), tt.b.Overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.True(t, d.Before(d.AddDays(1)))

	js, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-28"`, string(js))

	var back Date
	require.NoError(t, back.UnmarshalJSON(js))
	assert.Equal(t, d, back)

	_, err = ParseDate("2024-13-01")
	assert.Error(t, err)
}
