package booking

import (
	"fmt"
	"strings"
	"time"
)

// MaxBulkDates caps how many dates a single recurrence may expand to.
const MaxBulkDates = 200

var dayNameToWeekday = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full or three-letter day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if wd, ok := dayNameToWeekday[name]; ok {
		return wd, nil
	}
	for full, wd := range dayNameToWeekday {
		if len(name) == 3 && strings.HasPrefix(full, name) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// RecurrenceSpec selects dates between From and To inclusive.
// An empty Weekdays mask means every day. Exclude always wins.
type RecurrenceSpec struct {
	From     Date
	To       Date
	Weekdays []time.Weekday
	Exclude  []Date
}

// ExpandDates is pure. It fails with ErrTooManyDates as soon as the
// expansion passes MaxBulkDates, without materializing the rest.
func ExpandDates(spec RecurrenceSpec) ([]Date, error) {
	if spec.From.IsZero() || spec.To.IsZero() {
		return nil, validationErrorf("from and to dates are required")
	}
	if spec.To.Before(spec.From) {
		return nil, validationErrorf("to %s is before from %s", spec.To, spec.From)
	}

	var mask [7]bool
	for _, wd := range spec.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return nil, validationErrorf("invalid weekday %d", wd)
		}
		mask[wd] = true
	}
	excluded := make(map[Date]bool, len(spec.Exclude))
	for _, d := range spec.Exclude {
		excluded[d] = true
	}

	dates := []Date{}
	for d := spec.From; !spec.To.Before(d); d = d.AddDays(1) {
		if len(spec.Weekdays) > 0 && !mask[d.Weekday()] {
			continue
		}
		if excluded[d] {
			continue
		}
		if len(dates) == MaxBulkDates {
			return nil, ErrTooManyDates
		}
		dates = append(dates, d)
	}
	return dates, nil
}
