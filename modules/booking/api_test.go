package booking

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Module, *httpexpect.Expect) {
	m, _ := newTestModule(t, nil)
	m.now = func() time.Time { return time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC) }

	router := engine.NewRouter(nil)
	m.AttachRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return m, httpexpect.Default(t, server.URL)
}

func TestShowtimeAPI(t *testing.T) {
	_, e := newTestServer(t)

	created := e.POST("/api/showtimes").
		WithJSON(map[string]any{"room_id": room3, "movie_id": heat, "date": "2024-05-01", "start": "14:00"}).
		Expect().
		Status(http.StatusCreated).JSON().Object()
	created.Value("id").IsEqual(1)
	created.Value("status").IsEqual(StatusActive)
	created.Value("end").IsEqual("2024-05-01T16:10:00Z")

	body := e.POST("/api/showtimes").
		WithJSON(map[string]any{"room_id": room3, "movie_id": heat, "date": "2024-05-01", "start": "15:00", "duration_minutes": 90}).
		Expect().
		Status(http.StatusConflict).JSON().Object()
	body.Value("error").IsEqual(ErrSchedulingConflict.Error())
	details := body.Value("details").Array()
	details.Length().IsEqual(1)
	details.Value(0).Object().Value("label").IsEqual("Heat")
	details.Value(0).Object().Value("kind").IsEqual(KindShowtime)

	e.POST("/api/showtimes").
		WithJSON(map[string]any{"room_id": room3, "movie_id": heat, "date": "2024-05-01", "start": "16:10", "duration_minutes": 90}).
		Expect().
		Status(http.StatusCreated)

	e.POST("/api/showtimes").
		WithJSON(map[string]any{"room_id": room3, "movie_id": heat, "date": "2024-05-01", "start": "25:00"}).
		Expect().
		Status(http.StatusBadRequest)

	e.POST("/api/showtimes").
		WithJSON(map[string]any{"room_id": room3, "movie_id": heat, "date": "2024-05-01", "start": "10:00", "surprise": true}).
		Expect().
		Status(http.StatusBadRequest)

	e.GET("/api/showtimes/1").Expect().Status(http.StatusOK).JSON().Object().Value("movie_id").IsEqual(heat)
	e.GET("/api/showtimes/99").Expect().Status(http.StatusNotFound)
	e.GET("/api/showtimes/nope").Expect().Status(http.StatusBadRequest)

	e.DELETE("/api/showtimes/1").Expect().Status(http.StatusNoContent)
	e.GET("/api/showtimes/1").Expect().Status(http.StatusNotFound)
}

func TestAvailabilityAPI(t *testing.T) {
	m, e := newTestServer(t)
	mustShowtime(t, m, room3, "2024-05-01", "14:00", 130)

	busy := e.GET("/api/rooms/3/availability").
		WithQuery("date", "2024-05-01").WithQuery("start", "15:00").WithQuery("duration", 90).
		Expect().
		Status(http.StatusOK).JSON().Object()
	busy.Value("available").IsEqual(false)
	busy.Value("conflicts").Array().Length().IsEqual(1)

	free := e.GET("/api/rooms/3/availability").
		WithQuery("date", "2024-05-01").WithQuery("start", "16:10").WithQuery("end", "17:40").
		Expect().
		Status(http.StatusOK).JSON().Object()
	free.Value("available").IsEqual(true)
	free.Value("conflicts").Array().IsEmpty()

	e.GET("/api/rooms/42/availability").
		WithQuery("date", "2024-05-01").WithQuery("start", "16:10").WithQuery("duration", 60).
		Expect().
		Status(http.StatusNotFound)

	e.GET("/api/rooms/3/availability").
		WithQuery("date", "2024-05-01").WithQuery("start", "16:10").WithQuery("duration", "long").
		Expect().
		Status(http.StatusBadRequest)

	e.GET("/api/rooms/3/availability").
		WithQuery("date", "2024-05-01").WithQuery("start", "16:10").
		Expect().
		Status(http.StatusBadRequest)
}

func TestBulkAPI(t *testing.T) {
	m, e := newTestServer(t)
	mustShowtime(t, m, room3, "2024-05-03", "20:00", 60)

	req := map[string]any{
		"room_id": room3, "movie_id": heat,
		"from": "2024-05-01", "to": "2024-05-05",
		"start": "19:00", "end": "21:10",
		"all_or_nothing": true,
	}
	aborted := e.POST("/api/showtimes/bulk").WithJSON(req).
		Expect().
		Status(http.StatusConflict).JSON().Object()
	aborted.Value("aborted").IsEqual(true)
	aborted.Value("created").Array().IsEmpty()
	aborted.Value("conflicts").Array().Length().IsEqual(1)

	req["all_or_nothing"] = false
	partial := e.POST("/api/showtimes/bulk").WithJSON(req).
		Expect().
		Status(http.StatusOK).JSON().Object()
	partial.Value("aborted").IsEqual(false)
	partial.Value("created").Array().Length().IsEqual(4)
	partial.Value("conflicts").Array().Value(0).Object().Value("date").IsEqual("2024-05-03")

	req["to"] = "2025-01-01"
	e.POST("/api/showtimes/bulk").WithJSON(req).
		Expect().
		Status(http.StatusBadRequest).JSON().Object().Value("error").String().Contains("200")
}

func TestReservedEventAPI(t *testing.T) {
	m, e := newTestServer(t)

	event := e.POST("/api/events").
		WithJSON(map[string]any{
			"room_id": room3, "title": "Birthday", "contact_name": "Laura",
			"date": "2024-05-01", "start": "10:00", "end": "12:00",
		}).
		Expect().
		Status(http.StatusCreated).JSON().Object()
	event.Value("status").IsEqual(StatusReserved)
	event.Value("payment_due").IsEqual("2024-04-30T10:00:00Z")

	e.POST("/api/events").
		WithJSON(map[string]any{"room_id": room3, "date": "2024-05-01", "start": "10:00", "end": "12:00"}).
		Expect().
		Status(http.StatusBadRequest)

	e.PATCH("/api/events/1").
		WithJSON(map[string]any{"title": "Wedding", "interval": map[string]any{"date": "2024-05-01", "start": "11:00", "end": "13:00"}}).
		Expect().
		Status(http.StatusOK).JSON().Object().Value("title").IsEqual("Wedding")

	e.GET("/api/events/1").Expect().Status(http.StatusOK).JSON().Object().Value("start").IsEqual("2024-05-01T11:00:00Z")

	mustShowtime(t, m, room3, "2024-05-01", "14:00", 60)
	e.PATCH("/api/events/1").
		WithJSON(map[string]any{"interval": map[string]any{"date": "2024-05-01", "start": "13:00", "end": "15:00"}}).
		Expect().
		Status(http.StatusConflict).JSON().Object().Value("details").Array().Length().IsEqual(1)

	qr := e.GET("/api/events/1/qr").Expect().Status(http.StatusOK)
	qr.Header("Content-Type").IsEqual("image/png")

	code, err := m.CheckinCode(t.Context(), 1)
	if err != nil {
		t.Fatal(err)
	}
	e.GET("/api/checkin").WithQuery("code", code).Expect().Status(http.StatusOK).JSON().Object().Value("id").IsEqual(1)
	e.GET("/api/checkin").WithQuery("code", "forged").Expect().Status(http.StatusBadRequest)

	e.POST("/api/events/1/cancel").Expect().Status(http.StatusNoContent)
	e.POST("/api/events/1/cancel").Expect().Status(http.StatusConflict)
	e.PATCH("/api/events/1").WithJSON(map[string]any{"title": "Again"}).Expect().Status(http.StatusConflict)
	e.GET("/api/events/99").Expect().Status(http.StatusNotFound)
}

func TestOccupationsAPI(t *testing.T) {
	m, e := newTestServer(t)
	mustShowtime(t, m, room3, "2024-05-02", "10:00", 60)
	mustEvent(t, m, room3, "2024-05-20", "10:00", "11:00")

	// Defaults to the next seven days.
	e.GET("/api/rooms/3/occupations").Expect().Status(http.StatusOK).JSON().Array().Length().IsEqual(1)

	e.GET("/api/rooms/3/occupations").
		WithQuery("from", "2024-05-01").WithQuery("to", "2024-05-31").
		Expect().
		Status(http.StatusOK).JSON().Array().Length().IsEqual(2)

	e.GET("/api/rooms/3/occupations").WithQuery("from", "May 1").Expect().Status(http.StatusBadRequest)
}

func TestSweepAPI(t *testing.T) {
	m, e := newTestServer(t)

	e.GET("/api/occupations/next-expiry").Expect().Status(http.StatusOK).JSON().Object().Value("next_expiry").IsNull()

	mustShowtime(t, m, room3, "2024-04-30", "10:00", 60)
	mustShowtime(t, m, room3, "2024-05-03", "10:00", 60)

	e.GET("/api/occupations/next-expiry").Expect().Status(http.StatusOK).
		JSON().Object().Value("next_expiry").IsEqual("2024-04-30T11:00:00Z")

	// No body sweeps as of now.
	e.POST("/api/sweep").Expect().Status(http.StatusOK).JSON().Object().Value("updated_count").IsEqual(1)
	e.POST("/api/sweep").Expect().Status(http.StatusOK).JSON().Object().Value("updated_count").IsEqual(0)

	e.POST("/api/sweep").WithJSON(map[string]any{"as_of": "2024-05-04T00:00:00Z"}).
		Expect().
		Status(http.StatusBadRequest).JSON().Object().Value("error").String().Contains("future")

	future := mustShowtime(t, m, room4, "2024-05-01", "10:00", 60)
	e.POST("/api/sweep").WithJSON(map[string]any{"as_of": "2024-05-01T07:00:00Z"}).
		Expect().
		Status(http.StatusOK).JSON().Object().Value("updated_count").IsEqual(0)
	got, err := m.GetShowtime(t.Context(), future.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	_, err = m.CreateShowtime(t.Context(), ShowtimeRequest{
		RoomID:       room4,
		MovieID:      heat,
		IntervalSpec: IntervalSpec{Date: "2024-05-01", Start: "10:30", DurationMinutes: 60},
	})
	assert.ErrorIs(t, err, ErrSchedulingConflict)

	n, err := m.SweepExpired(t.Context(), time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	e.GET("/api/occupations/next-expiry").Expect().Status(http.StatusOK).JSON().Object().Value("next_expiry").IsNull()
}
