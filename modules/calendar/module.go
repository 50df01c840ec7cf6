// Package calendar publishes each room's schedule as an iCal feed.
package calendar

import (
	"bytes"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/modules/booking"
	"github.com/marquee-cinema/marquee/modules/core"
)

// The feed covers a fixed window around today.
const (
	feedPastDays   = 14
	feedFutureDays = 90
)

type Module struct {
	db      *sql.DB
	self    *url.URL
	booking *booking.Module
	loc     *time.Location
	now     func() time.Time
}

func New(db *sql.DB, self *url.URL, b *booking.Module, loc *time.Location) *Module {
	return &Module{db: db, self: self, booking: b, loc: loc, now: time.Now}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/rooms/:id/calendar.ics", m.handleICalFeed)
}

// handleICalFeed returns an iCal feed of the room's showtimes and reserved slots.
func (m *Module) handleICalFeed(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf("invalid room id")
	}

	room, err := core.GetRoom(r.Context(), m.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NotFoundf("room not found")
	}
	if err != nil {
		return engine.Error(err)
	}

	now := m.now()
	today := booking.DateOf(now.In(m.loc))
	occs, err := m.booking.ListOccupations(r.Context(), id, today.AddDays(-feedPastDays), today.AddDays(feedFutureDays))
	if err != nil {
		return engine.Error(err)
	}

	buf := &bytes.Buffer{}
	if err := WriteICalFeed(buf, room, occs, m.self.Host, now); err != nil {
		return engine.Error(err)
	}
	return engine.Bytes("text/calendar; charset=utf-8", buf.Bytes())
}
