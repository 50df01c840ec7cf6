package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/marquee-cinema/marquee/engine"
)

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/rooms/:id/availability", router.WithAuthn(m.handleAvailability))
	router.Handle("GET", "/api/rooms/:id/occupations", router.WithAuthn(m.handleListOccupations))

	router.Handle("POST", "/api/showtimes", router.WithAuthn(m.handleCreateShowtime))
	router.Handle("POST", "/api/showtimes/bulk", router.WithAuthn(m.handleBulkCreate))
	router.Handle("GET", "/api/showtimes/:id", router.WithAuthn(m.handleGetShowtime))
	router.Handle("DELETE", "/api/showtimes/:id", router.WithAuthn(m.handleDeleteShowtime))

	router.Handle("POST", "/api/events", router.WithAuthn(m.handleCreateEvent))
	router.Handle("GET", "/api/events/:id", router.WithAuthn(m.handleGetEvent))
	router.Handle("PATCH", "/api/events/:id", router.WithAuthn(m.handleUpdateEvent))
	router.Handle("POST", "/api/events/:id/cancel", router.WithAuthn(m.handleCancelEvent))
	router.Handle("GET", "/api/events/:id/qr", router.WithAuthn(m.handleEventQR))
	router.Handle("GET", "/api/checkin", router.WithAuthn(m.handleCheckin))

	router.Handle("POST", "/api/sweep", router.WithAuthn(m.handleSweep))
	router.Handle("GET", "/api/occupations/next-expiry", router.WithAuthn(m.handleNextExpiry))
}

// errorResponse maps the booking error taxonomy onto HTTP.
func errorResponse(err error) engine.Response {
	var cerr *ConflictError
	switch {
	case errors.As(err, &cerr):
		return engine.Conflict(cerr.Conflicts, ErrSchedulingConflict.Error())
	case errors.Is(err, ErrSchedulingConflict), errors.Is(err, ErrHasPayment), errors.Is(err, ErrNotEditable):
		return engine.Conflictf("%s", err)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrTooManyDates):
		return engine.ClientErrorf("%s", err)
	case errors.Is(err, ErrNotFound):
		return engine.NotFoundf("%s", err)
	default:
		return engine.Error(err)
	}
}

func parseID(ps httprouter.Params) (int64, bool) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	return id, err == nil && id > 0
}

func (m *Module) handleAvailability(r *http.Request, ps httprouter.Params) engine.Response {
	roomID, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid room id")
	}

	q := r.URL.Query()
	spec := IntervalSpec{Date: q.Get("date"), Start: q.Get("start"), End: q.Get("end")}
	if d := q.Get("duration"); d != "" {
		minutes, err := strconv.Atoi(d)
		if err != nil {
			return engine.ClientErrorf("invalid duration")
		}
		spec.DurationMinutes = minutes
	}
	iv, err := spec.Resolve(m.loc, 0)
	if err != nil {
		return errorResponse(err)
	}

	avail, err := m.CheckAvailability(r.Context(), roomID, iv)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(avail)
}

func (m *Module) handleListOccupations(r *http.Request, ps httprouter.Params) engine.Response {
	roomID, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid room id")
	}

	today := DateOf(m.now().In(m.loc))
	from, to := today, today.AddDays(7)
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = ParseDate(s); err != nil {
			return engine.ClientErrorf("%s", err)
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = ParseDate(s); err != nil {
			return engine.ClientErrorf("%s", err)
		}
	}

	occs, err := m.ListOccupations(r.Context(), roomID, from, to)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(occs)
}

func (m *Module) handleCreateShowtime(r *http.Request, ps httprouter.Params) engine.Response {
	req := ShowtimeRequest{}
	if err := engine.ReadJSON(r, &req); err != nil {
		return engine.ClientErrorf("%s", err)
	}
	s, err := m.CreateShowtime(r.Context(), req)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSONStatus(http.StatusCreated, s)
}

func (m *Module) handleBulkCreate(r *http.Request, ps httprouter.Params) engine.Response {
	req := BulkRequest{}
	if err := engine.ReadJSON(r, &req); err != nil {
		return engine.ClientErrorf("%s", err)
	}
	result, err := m.BulkCreateShowtimes(r.Context(), req)
	if err != nil {
		return errorResponse(err)
	}
	if result.Aborted {
		return engine.JSONStatus(http.StatusConflict, result)
	}
	return engine.JSON(result)
}

func (m *Module) handleGetShowtime(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid showtime id")
	}
	s, err := m.GetShowtime(r.Context(), id)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(s)
}

func (m *Module) handleDeleteShowtime(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid showtime id")
	}
	if err := m.DeleteShowtime(r.Context(), id); err != nil {
		return errorResponse(err)
	}
	return engine.Empty()
}

func (m *Module) handleCreateEvent(r *http.Request, ps httprouter.Params) engine.Response {
	req := EventRequest{}
	if err := engine.ReadJSON(r, &req); err != nil {
		return engine.ClientErrorf("%s", err)
	}
	e, err := m.CreateReservedEvent(r.Context(), req)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSONStatus(http.StatusCreated, e)
}

func (m *Module) handleGetEvent(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid event id")
	}
	e, err := m.GetReservedEvent(r.Context(), id)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(e)
}

func (m *Module) handleUpdateEvent(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid event id")
	}
	patch := EventPatch{}
	if err := engine.ReadJSON(r, &patch); err != nil {
		return engine.ClientErrorf("%s", err)
	}
	e, err := m.UpdateReservedEvent(r.Context(), id, patch)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(e)
}

func (m *Module) handleCancelEvent(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid event id")
	}
	if err := m.CancelReservedEvent(r.Context(), id); err != nil {
		return errorResponse(err)
	}
	return engine.Empty()
}

func (m *Module) handleEventQR(r *http.Request, ps httprouter.Params) engine.Response {
	id, ok := parseID(ps)
	if !ok {
		return engine.ClientErrorf("invalid event id")
	}
	png, err := m.CheckinQR(r.Context(), id)
	if err != nil {
		return errorResponse(err)
	}
	return engine.Bytes("image/png", png)
}

func (m *Module) handleCheckin(r *http.Request, ps httprouter.Params) engine.Response {
	e, err := m.Checkin(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(e)
}

type SweepRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

type SweepResponse struct {
	UpdatedCount int64 `json:"updated_count"`
}

func (m *Module) handleSweep(r *http.Request, ps httprouter.Params) engine.Response {
	req := SweepRequest{}
	if r.ContentLength != 0 {
		if err := engine.ReadJSON(r, &req); err != nil {
			return engine.ClientErrorf("%s", err)
		}
	}
	// Sweeping ahead of the clock would free rooms that are still booked.
	asOf := m.now()
	if req.AsOf != nil {
		if req.AsOf.After(asOf) {
			return engine.ClientErrorf("as_of must not be in the future")
		}
		asOf = *req.AsOf
	}

	n, err := m.SweepExpired(r.Context(), asOf)
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(&SweepResponse{UpdatedCount: n})
}

type NextExpiryResponse struct {
	NextExpiry *time.Time `json:"next_expiry"`
}

func (m *Module) handleNextExpiry(r *http.Request, ps httprouter.Params) engine.Response {
	next, err := m.NextExpiry(r.Context())
	if err != nil {
		return errorResponse(err)
	}
	return engine.JSON(&NextExpiryResponse{NextExpiry: next})
}
