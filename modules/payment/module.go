// Package payment records payments against reserved events.
// A reserved event with any recorded payment can no longer be edited or cancelled.
package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
	"github.com/marquee-cinema/marquee/modules/booking"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/webhook"
)

const migration = `
CREATE TABLE IF NOT EXISTS reserved_event_payments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (unixepoch()),
    reserved_event_id INTEGER NOT NULL REFERENCES reserved_events(id),
    amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
    method TEXT NOT NULL CHECK (method IN ('cash', 'card', 'stripe')),
    reference TEXT UNIQUE
) STRICT;

CREATE INDEX IF NOT EXISTS reserved_event_payments_event_idx ON reserved_event_payments (reserved_event_id);
`

const maxWebhookBytes = 64 << 10

var ErrNotPayable = errors.New("reserved event is not open for payment")

type Payment struct {
	ID              int64     `json:"id"`
	ReservedEventID int64     `json:"reserved_event_id"`
	AmountCents     int64     `json:"amount_cents"`
	Method          string    `json:"method"`
	Reference       string    `json:"reference,omitempty"`
	Created         time.Time `json:"created"`
}

type PaymentRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gte=1"`
	Method      string `json:"method" validate:"required,oneof=cash card"`
	Reference   string `json:"reference" validate:"max=100"`
}

type Module struct {
	db          *sql.DB
	self        *url.URL
	apiKey      string
	webhookKey  string
	eventLogger *engine.EventLogger
}

// New applies the payment schema. Stripe checkout and webhooks are disabled
// while their keys are empty.
func New(d *sql.DB, self *url.URL, apiKey, webhookKey string, eventLogger *engine.EventLogger) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d, self: self, apiKey: apiKey, webhookKey: webhookKey, eventLogger: eventLogger}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("POST", "/webhooks/stripe", m.handleStripeWebhook)
	router.Handle("GET", "/api/events/:id/payments", router.WithAuthn(m.handleListPayments))
	router.Handle("POST", "/api/events/:id/payments", router.WithAuthn(m.handleRecordPayment))
	router.Handle("POST", "/api/events/:id/checkout", router.WithAuthn(m.handleCheckout))
}

// HasPayment runs inside the booking transaction.
func (m *Module) HasPayment(ctx context.Context, tx *sql.Tx, eventID int64) (bool, error) {
	var paid bool
	err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM reserved_event_payments WHERE reserved_event_id = $1)", eventID).Scan(&paid)
	return paid, err
}

// RecordPayment stores a payment for a reserved event. Payments carrying a
// reference that was already recorded are ignored and return nil.
func (m *Module) RecordPayment(ctx context.Context, eventID int64, amountCents int64, method, reference string) (*Payment, error) {
	var p *Payment
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM reserved_events WHERE id = $1", eventID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reserved event %d: %w", eventID, booking.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if status != booking.StatusReserved {
			return fmt.Errorf("reserved event %d is %s: %w", eventID, status, ErrNotPayable)
		}

		var ref any
		if reference != "" {
			ref = reference
		}
		row := tx.QueryRowContext(ctx, `
INSERT INTO reserved_event_payments (reserved_event_id, amount_cents, method, reference) VALUES ($1, $2, $3, $4)
ON CONFLICT (reference) DO NOTHING
RETURNING id, reserved_event_id, amount_cents, method, COALESCE(reference, ''), created`, eventID, amountCents, method, ref)
		p, err = scanPayment(row)
		if errors.Is(err, sql.ErrNoRows) {
			p = nil
			return nil // duplicate reference
		}
		return err
	})

	subject := engine.Subject{Kind: "reserved_event", ID: eventID}
	if err != nil {
		m.eventLogger.LogEvent(ctx, "payment", subject, "PaymentRejected", false, err.Error())
		return nil, err
	}
	if p != nil {
		m.eventLogger.LogEvent(ctx, "payment", subject, "PaymentRecorded", true, fmt.Sprintf("method=%s amount_cents=%d", method, amountCents))
	}
	return p, nil
}

type rowScanner interface {
	Scan(...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	p := &Payment{}
	var created engine.LocalTime
	if err := row.Scan(&p.ID, &p.ReservedEventID, &p.AmountCents, &p.Method, &p.Reference, &created); err != nil {
		return nil, err
	}
	p.Created = created.Time
	return p, nil
}

func (m *Module) ListPayments(ctx context.Context, eventID int64) ([]*Payment, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id, reserved_event_id, amount_cents, method, COALESCE(reference, ''), created FROM reserved_event_payments WHERE reserved_event_id = $1 ORDER BY id", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func errorResponse(err error) engine.Response {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return engine.NotFoundf("%s", err)
	case errors.Is(err, ErrNotPayable):
		return engine.Conflictf("%s", err)
	default:
		return engine.Error(err)
	}
}

func parseEventID(ps httprouter.Params) (int64, bool) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	return id, err == nil && id > 0
}

func (m *Module) handleListPayments(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseEventID(ps)
	if !ok {
		return engine.ClientErrorf("invalid event id")
	}
	payments, err := m.ListPayments(r.Context(), id)
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSON(payments)
}

func (m *Module) handleRecordPayment(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseEventID(ps)
	if !ok {
		return engine.ClientErrorf("invalid event id")
	}
	req := PaymentRequest{}
	if err := engine.ReadJSON(r, &req); err != nil {
		return engine.ClientErrorf("%s", err)
	}

	p, err := m.RecordPayment(r.Context(), id, req.AmountCents, req.Method, req.Reference)
	if err != nil {
		return errorResponse(err)
	}
	if p == nil {
		return engine.Conflictf("payment reference %q was already recorded", req.Reference)
	}
	return engine.JSONStatus(http.StatusCreated, p)
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// handleCheckout starts a Stripe Checkout session for a reserved event's deposit.
// The webhook records the payment once Stripe reports the session as completed.
func (m *Module) handleCheckout(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseEventID(ps)
	if !ok {
		return engine.ClientErrorf("invalid event id")
	}
	if m.apiKey == "" {
		return engine.ClientErrorf("stripe is not configured")
	}
	req := struct {
		AmountCents int64 `json:"amount_cents" validate:"required,gte=50"`
	}{}
	if err := engine.ReadJSON(r, &req); err != nil {
		return engine.ClientErrorf("%s", err)
	}

	var title, status string
	err := m.db.QueryRowContext(r.Context(), "SELECT title, status FROM reserved_events WHERE id = $1", id).Scan(&title, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NotFoundf("reserved event %d not found", id)
	}
	if err != nil {
		return engine.Error(err)
	}
	if status != booking.StatusReserved {
		return engine.Conflictf("reserved event %d is %s", id, status)
	}

	stripe.Key = m.apiKey
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(m.self.String()),
		CancelURL:  stripe.String(m.self.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount:  stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(title)},
			},
		}},
	}
	params.Context = r.Context()
	params.AddMetadata("reserved_event_id", strconv.FormatInt(id, 10))

	s, err := session.New(params)
	if err != nil {
		m.eventLogger.LogEvent(r.Context(), "stripe", engine.Subject{Kind: "reserved_event", ID: id}, "APIError", false, "checkout.session.New: "+err.Error())
		return engine.Error(err)
	}
	m.eventLogger.LogEvent(r.Context(), "stripe", engine.Subject{Kind: "reserved_event", ID: id}, "CheckoutCreated", true, fmt.Sprintf("amount_cents=%d", req.AmountCents))
	return engine.JSON(&CheckoutResponse{URL: s.URL})
}

func (m *Module) handleStripeWebhook(r *http.Request, ps httprouter.Params) engine.Response {
	if m.webhookKey == "" {
		return engine.NotFoundf("stripe webhooks are not configured")
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		return engine.Error(err)
	}

	// Verify the signature of the request and parse it
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), m.webhookKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		m.eventLogger.LogEvent(r.Context(), "stripe", engine.Subject{}, "WebhookError", false, "signature verification: "+err.Error())
		return engine.ClientErrorf("invalid signature")
	}

	// Filter out events we don't care about
	if string(event.Type) != "checkout.session.completed" {
		slog.Debug("unhandled stripe webhook event", "type", event.Type)
		return engine.Empty()
	}

	s := stripe.CheckoutSession{}
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return engine.ClientErrorf("invalid checkout session: %s", err)
	}
	if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		slog.Info("ignoring unpaid checkout session", "session", s.ID, "status", s.PaymentStatus)
		return engine.Empty()
	}
	eventID, err := strconv.ParseInt(s.Metadata["reserved_event_id"], 10, 64)
	if err != nil {
		slog.Warn("checkout session is not linked to a reserved event", "session", s.ID)
		return engine.Empty()
	}

	_, err = m.RecordPayment(r.Context(), eventID, s.AmountTotal, "stripe", s.ID)
	if errors.Is(err, booking.ErrNotFound) || errors.Is(err, ErrNotPayable) {
		// Retrying will not help, so acknowledge the delivery.
		slog.Warn("dropping stripe payment", "session", s.ID, "error", err)
		return engine.Empty()
	}
	if err != nil {
		return engine.Error(err)
	}
	slog.Info("recorded stripe payment", "session", s.ID, "reservedEventID", eventID)
	return engine.Empty()
}
