package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
)

// Check-in codes stay valid for a while after the event ends.
const checkinGrace = 2 * time.Hour

// CheckinCode returns a signed code identifying the event, for printing on a QR code.
func (m *Module) CheckinCode(ctx context.Context, id int64) (string, error) {
	event, err := m.GetReservedEvent(ctx, id)
	if err != nil {
		return "", err
	}
	if event.Status != StatusReserved {
		return "", fmt.Errorf("reserved event %d is %s: %w", id, event.Status, ErrNotEditable)
	}
	ttl := event.End.Sub(m.now()) + checkinGrace
	return m.checkins.Sign(id, ttl), nil
}

// CheckinQR renders CheckinCode as a PNG.
func (m *Module) CheckinQR(ctx context.Context, id int64) ([]byte, error) {
	code, err := m.CheckinCode(ctx, id)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(code, qrcode.Medium, 512)
}

// Checkin resolves a code back to its event. Expired or forged codes are validation errors.
func (m *Module) Checkin(ctx context.Context, code string) (*ReservedEvent, error) {
	id, ok := m.checkins.Verify(code)
	if !ok {
		return nil, validationErrorf("check-in code is invalid or expired")
	}
	event, err := m.GetReservedEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Status == StatusCancelled {
		return nil, fmt.Errorf("reserved event %d was cancelled: %w", id, ErrNotEditable)
	}
	return event, nil
}
