package booking

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	minutesPerDay = 24 * 60

	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Date is a calendar day without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) t() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

func (d Date) String() string { return d.t().Format(dateLayout) }
func (d Date) Weekday() time.Weekday { return d.t().Weekday() }
func (d Date) AddDays(n int) Date { return DateOf(d.t().AddDate(0, 0, n)) }
func (d Date) Before(o Date) bool { return d.t().Before(o.t()) }
func (d Date) IsZero() bool { return d == Date{} }
func (d Date) In(loc *time.Location) time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day in minutes after midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// Interval is a half-open [Start, End) occupation of a room.
type Interval struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Overnight bool      `json:"overnight"`
}

func (iv Interval) Minutes() int { return int(iv.End.Sub(iv.Start) / time.Minute) }

// Overlaps reports whether the intervals share any instant. Touching endpoints do not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return !(!o.End.After(iv.Start) || !o.Start.Before(iv.End))
}

// NewInterval builds the interval starting at date+start in loc.
// Exactly one of durationMinutes (> 0) and end must be given, or both when
// they agree. An end at or before the start is that wall-clock time on the
// next day, so across a DST change the elapsed time differs from the clock face.
// The result always lasts between one minute and one full day.
func NewInterval(date Date, start Clock, durationMinutes int, end *Clock, loc *time.Location) (Interval, error) {
	if start < 0 || start >= minutesPerDay {
		return Interval{}, fmt.Errorf("%w: start %s is not a time of day", ErrInvalidInterval, start)
	}
	startTs := time.Date(date.Year, date.Month, date.Day, int(start)/60, int(start)%60, 0, 0, loc)

	if end != nil {
		if *end < 0 || *end >= minutesPerDay {
			return Interval{}, fmt.Errorf("%w: end %s is not a time of day", ErrInvalidInterval, *end)
		}
		endDate := date
		if *end <= start {
			endDate = date.AddDays(1)
		}
		endTs := time.Date(endDate.Year, endDate.Month, endDate.Day, int(*end)/60, int(*end)%60, 0, 0, loc)
		minutes := int(endTs.Sub(startTs) / time.Minute)
		if durationMinutes != 0 && durationMinutes != minutes {
			return Interval{}, fmt.Errorf("%w: duration of %d minutes does not match end time %s", ErrInvalidInterval, durationMinutes, *end)
		}
		if minutes <= 0 || minutes > minutesPerDay {
			return Interval{}, fmt.Errorf("%w: duration must be between 1 and %d minutes, got %d", ErrInvalidInterval, minutesPerDay, minutes)
		}
		return Interval{Start: startTs, End: endTs, Overnight: endDate != date}, nil
	}

	minutes := durationMinutes
	if minutes <= 0 || minutes > minutesPerDay {
		return Interval{}, fmt.Errorf("%w: duration must be between 1 and %d minutes, got %d", ErrInvalidInterval, minutesPerDay, minutes)
	}
	return Interval{
		Start:     startTs,
		End:       startTs.Add(time.Duration(minutes) * time.Minute),
		Overnight: int(start)+minutes >= minutesPerDay,
	}, nil
}

// IntervalSpec is the wire shape of an interval: a date, a start time, and a duration or end time.
type IntervalSpec struct {
	Date            string `json:"date" validate:"required"`
	Start           string `json:"start" validate:"required"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	End             string `json:"end,omitempty"`
}

// Resolve parses the spec. defaultMinutes is used when neither a duration nor an end is given.
func (s IntervalSpec) Resolve(loc *time.Location, defaultMinutes int) (Interval, error) {
	date, err := ParseDate(s.Date)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %s", ErrInvalidInterval, err)
	}
	return s.resolveOn(date, loc, defaultMinutes)
}

func (s IntervalSpec) resolveOn(date Date, loc *time.Location, defaultMinutes int) (Interval, error) {
	start, err := ParseClock(s.Start)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %s", ErrInvalidInterval, err)
	}

	var end *Clock
	if s.End != "" {
		c, err := ParseClock(s.End)
		if err != nil {
			return Interval{}, fmt.Errorf("%w: %s", ErrInvalidInterval, err)
		}
		end = &c
	}

	minutes := s.DurationMinutes
	if minutes == 0 && end == nil {
		minutes = defaultMinutes
	}
	return NewInterval(date, start, minutes, end, loc)
}
