package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrSchedulingConflict = errors.New("room is occupied in this window")
	ErrTooManyDates       = fmt.Errorf("recurrence expands to more than %d dates", MaxBulkDates)
	ErrHasPayment         = errors.New("a payment has already been recorded for this event")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrNotEditable        = errors.New("event can no longer be changed")
)

// ConflictError is a scheduling conflict that knows what it collided with.
type ConflictError struct {
	Conflicts []Occupation
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return ErrSchedulingConflict.Error()
	}
	labels := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		labels[i] = c.String()
	}
	return fmt.Sprintf("%s: %s", ErrSchedulingConflict, strings.Join(labels, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }

// triggerConflictMessage is raised by the overlap triggers in the schema.
const triggerConflictMessage = "booking conflict"

// classifyStoreError maps the overlap trigger's abort into ErrSchedulingConflict.
// Everything else is returned unchanged.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), triggerConflictMessage) {
		return fmt.Errorf("%w (rejected by store)", ErrSchedulingConflict)
	}
	return err
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
