package engine

import (
	"fmt"
	"time"
)

var loc = time.UTC

// SetLocation configures the venue timezone used to render stored timestamps.
func SetLocation(l *time.Location) { loc = l }

func Location() *time.Location { return loc }

// LocalTime scans a unix-seconds column into the venue timezone.
type LocalTime struct {
	Time time.Time
}

func (l *LocalTime) Scan(src any) error {
	epochUTC, ok := src.(int64)
	if !ok {
		return fmt.Errorf("expected int64, got %T", src)
	}

	l.Time = time.Unix(epochUTC, 0).In(loc)
	return nil
}

func (l LocalTime) MarshalJSON() ([]byte, error) { return l.Time.MarshalJSON() }
