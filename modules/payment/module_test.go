package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/modules/booking"
	"github.com/marquee-cinema/marquee/modules/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookKey = "whsec_test"

func newTestModules(t *testing.T) (*Module, *booking.Module, *booking.ReservedEvent) {
	d := core.NewTestDB(t)
	core.SeedRoom(t, d, 1, "Room 1")
	events := engine.NewEventLogger(d)

	self, _ := url.Parse("http://localhost:8080")
	m := New(d, self, "", webhookKey, events)
	b := booking.New(d, time.UTC, m, events, nil)

	e, err := b.CreateReservedEvent(t.Context(), booking.EventRequest{
		RoomID:       1,
		EventDetails: booking.EventDetails{Title: "Private screening", ContactName: "Sam"},
		IntervalSpec: booking.IntervalSpec{Date: "2030-01-10", Start: "18:00", End: "21:00"},
	})
	require.NoError(t, err)
	return m, b, e
}

func TestPaymentLocksReservedEvent(t *testing.T) {
	m, b, e := newTestModules(t)
	ctx := t.Context()

	title := "Renamed"
	_, err := b.UpdateReservedEvent(ctx, e.ID, booking.EventPatch{Title: &title})
	require.NoError(t, err)

	p, err := m.RecordPayment(ctx, e.ID, 5000, "cash", "")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), p.AmountCents)

	_, err = b.UpdateReservedEvent(ctx, e.ID, booking.EventPatch{Title: &title})
	assert.ErrorIs(t, err, booking.ErrHasPayment)
	assert.ErrorIs(t, b.CancelReservedEvent(ctx, e.ID), booking.ErrHasPayment)
}

func TestRecordPayment(t *testing.T) {
	m, b, e := newTestModules(t)
	ctx := t.Context()

	_, err := m.RecordPayment(ctx, 999, 100, "cash", "")
	assert.ErrorIs(t, err, booking.ErrNotFound)

	p, err := m.RecordPayment(ctx, e.ID, 100, "card", "terminal-1")
	require.NoError(t, err)
	require.NotNil(t, p)

	p, err = m.RecordPayment(ctx, e.ID, 100, "card", "terminal-1")
	require.NoError(t, err)
	assert.Nil(t, p, "duplicate references are ignored")

	payments, err := m.ListPayments(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	other, err := b.CreateReservedEvent(ctx, booking.EventRequest{
		RoomID:       1,
		EventDetails: booking.EventDetails{Title: "Cancelled", ContactName: "Sam"},
		IntervalSpec: booking.IntervalSpec{Date: "2030-01-11", Start: "18:00", End: "21:00"},
	})
	require.NoError(t, err)
	require.NoError(t, b.CancelReservedEvent(ctx, other.ID))

	_, err = m.RecordPayment(ctx, other.ID, 100, "cash", "")
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestPaymentAPI(t *testing.T) {
	m, _, _ := newTestModules(t)

	router := engine.NewRouter(nil)
	m.AttachRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	e := httpexpect.Default(t, server.URL)

	e.POST("/api/events/1/payments").
		WithJSON(map[string]any{"amount_cents": 2500, "method": "cash"}).
		Expect().
		Status(http.StatusCreated).JSON().Object().Value("method").IsEqual("cash")

	e.POST("/api/events/1/payments").
		WithJSON(map[string]any{"amount_cents": 2500, "method": "stripe"}).
		Expect().
		Status(http.StatusBadRequest)

	e.POST("/api/events/1/payments").
		WithJSON(map[string]any{"amount_cents": 0, "method": "cash"}).
		Expect().
		Status(http.StatusBadRequest)

	e.POST("/api/events/42/payments").
		WithJSON(map[string]any{"amount_cents": 2500, "method": "cash"}).
		Expect().
		Status(http.StatusNotFound)

	e.GET("/api/events/1/payments").Expect().Status(http.StatusOK).JSON().Array().Length().IsEqual(1)

	e.POST("/api/events/1/checkout").
		WithJSON(map[string]any{"amount_cents": 2500}).
		Expect().
		Status(http.StatusBadRequest).JSON().Object().Value("error").IsEqual("stripe is not configured")
}

func signStripePayload(payload string, ts time.Time) string {
	h := hmac.New(sha256.New, []byte(webhookKey))
	fmt.Fprintf(h, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(h.Sum(nil)))
}

func checkoutEvent(eventType, sessionID, paymentStatus string, reservedEventID int64) string {
	return fmt.Sprintf(`{
  "id": "evt_test",
  "object": "event",
  "api_version": "2020-08-27",
  "type": %q,
  "data": {
    "object": {
      "id": %q,
      "object": "checkout.session",
      "amount_total": 4200,
      "payment_status": %q,
      "metadata": {"reserved_event_id": "%d"}
    }
  }
}`, eventType, sessionID, paymentStatus, reservedEventID)
}

func TestStripeWebhook(t *testing.T) {
	m, _, ev := newTestModules(t)

	router := engine.NewRouter(nil)
	m.AttachRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	post := func(payload, sig string) *httpexpect.Response {
		return e.POST("/webhooks/stripe").
			WithHeader("Stripe-Signature", sig).
			WithBytes([]byte(payload)).
			Expect()
	}

	payload := checkoutEvent("checkout.session.completed", "cs_1", "paid", ev.ID)
	post(payload, "t=1,v1=deadbeef").Status(http.StatusBadRequest)

	ignored := checkoutEvent("checkout.session.expired", "cs_0", "unpaid", ev.ID)
	post(ignored, signStripePayload(ignored, time.Now())).Status(http.StatusNoContent)

	unpaid := checkoutEvent("checkout.session.completed", "cs_2", "unpaid", ev.ID)
	post(unpaid, signStripePayload(unpaid, time.Now())).Status(http.StatusNoContent)

	payments, err := m.ListPayments(t.Context(), ev.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	post(payload, signStripePayload(payload, time.Now())).Status(http.StatusNoContent)
	post(payload, signStripePayload(payload, time.Now())).Status(http.StatusNoContent) // redelivery

	payments, err = m.ListPayments(t.Context(), ev.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "stripe", payments[0].Method)
	assert.Equal(t, "cs_1", payments[0].Reference)
	assert.Equal(t, int64(4200), payments[0].AmountCents)

	orphan := checkoutEvent("checkout.session.completed", "cs_3", "paid", 404)
	post(orphan, signStripePayload(orphan, time.Now())).Status(http.StatusNoContent)
}
