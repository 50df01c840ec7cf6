package calendar

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/modules/booking"
	"github.com/marquee-cinema/marquee/modules/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICalFeed(t *testing.T) {
	d := core.NewTestDB(t)
	core.SeedRoom(t, d, 3, "Room 3; Balcony")
	core.SeedMovie(t, d, 1, "Heat", 170)
	b := booking.New(d, time.UTC, nil, nil, nil)
	ctx := t.Context()

	s, err := b.CreateShowtime(ctx, booking.ShowtimeRequest{RoomID: 3, MovieID: 1, IntervalSpec: booking.IntervalSpec{Date: "2024-05-01", Start: "20:00"}})
	require.NoError(t, err)
	_, err = b.CreateReservedEvent(ctx, booking.EventRequest{
		RoomID:       3,
		EventDetails: booking.EventDetails{Title: "Secret party", ContactName: "Laura"},
		IntervalSpec: booking.IntervalSpec{Date: "2024-05-02", Start: "23:00", End: "01:00"},
	})
	require.NoError(t, err)
	cancelled, err := b.CreateReservedEvent(ctx, booking.EventRequest{
		RoomID:       3,
		EventDetails: booking.EventDetails{Title: "Called off", ContactName: "Laura"},
		IntervalSpec: booking.IntervalSpec{Date: "2024-05-03", Start: "10:00", End: "11:00"},
	})
	require.NoError(t, err)
	require.NoError(t, b.CancelReservedEvent(ctx, cancelled.ID))

	self, _ := url.Parse("https://marquee.example")
	m := New(d, self, b, time.UTC)
	m.now = func() time.Time { return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC) }

	router := engine.NewRouter(nil)
	m.AttachRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	resp := e.GET("/rooms/3/calendar.ics").Expect().Status(http.StatusOK)
	resp.Header("Content-Type").IsEqual("text/calendar; charset=utf-8")

	body := resp.Body().Raw()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, body, "X-WR-CALNAME:Room 3\\; Balcony\r\n")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "UID:showtime-1@marquee.example")
	assert.Contains(t, body, "DTSTART:20240501T200000Z")
	assert.Contains(t, body, "DTEND:20240501T225000Z")
	assert.Contains(t, body, "SUMMARY:Heat")
	assert.Contains(t, body, "SUMMARY:Private event")
	assert.Contains(t, body, "DTEND:20240503T010000Z")
	assert.NotContains(t, body, "Secret party")
	assert.NotContains(t, body, "Called off")
	assert.Equal(t, int64(1), s.ID)

	e.GET("/rooms/9/calendar.ics").Expect().Status(http.StatusNotFound)
	e.GET("/rooms/x/calendar.ics").Expect().Status(http.StatusBadRequest)
}
