package booking

import (
	"testing"
	"time"

	"github.com/marquee-cinema/marquee/modules/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationMail(t *testing.T) {
	start := time.Date(2024, time.May, 1, 18, 0, 0, 0, time.UTC)
	e := &ReservedEvent{
		EventDetails: EventDetails{Title: "Laura's <b>party</b>", ContactName: "Laura & Sam"},
		Interval:     Interval{Start: start, End: start.Add(2 * time.Hour)},
		PaymentDue:   start.Add(-paymentLeadTime),
	}

	subj, body, err := confirmationMail(e, &core.Room{Name: "Room 3"}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Reservation confirmed: Laura's <b>party</b>", subj)
	assert.Contains(t, body, "Hi Laura &amp; Sam,")
	assert.Contains(t, body, "&lt;b&gt;party&lt;/b&gt;")
	assert.Contains(t, body, "in Room 3 is confirmed for Wed, May 1 2024 at 6:00 PM until 8:00 PM.")
	assert.Contains(t, body, "Payment is due by Tue, Apr 30 at 6:00 PM.")

	subj, body, err = cancellationMail(e, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Reservation cancelled: Laura's <b>party</b>", subj)
	assert.Contains(t, body, "on Wed, May 1 2024 at 6:00 PM has been cancelled.")
	assert.NotContains(t, body, "<b>party</b>")
}
