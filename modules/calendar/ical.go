package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marquee-cinema/marquee/modules/booking"
	"github.com/marquee-cinema/marquee/modules/core"
)

// WriteICalFeed writes an iCal feed of a room's occupations to the writer.
// Reserved events are private, so only their time slot is published.
func WriteICalFeed(w io.Writer, room *core.Room, occs []booking.Occupation, hostname string, now time.Time) error {
	cw := &crlfWriter{w: w}
	cw.line("BEGIN:VCALENDAR")
	cw.line("VERSION:2.0")
	cw.line("PRODID:-//Marquee//Rooms//EN")
	cw.line("CALSCALE:GREGORIAN")
	cw.line("METHOD:PUBLISH")
	cw.line("X-WR-CALNAME:%s", escapeICalText(room.Name))

	for _, o := range occs {
		if o.Status == booking.StatusCancelled {
			continue
		}
		writeVEvent(cw, room, o, hostname, now)
	}

	cw.line("END:VCALENDAR")
	return cw.err
}

// writeVEvent writes a single VEVENT to the writer.
func writeVEvent(w *crlfWriter, room *core.Room, o booking.Occupation, hostname string, now time.Time) {
	w.line("BEGIN:VEVENT")

	// UID must be unique and stable
	w.line("UID:%s-%d@%s", o.Kind, o.ID, hostname)
	w.line("DTSTAMP:%s", formatICalDateTime(now))
	w.line("DTSTART:%s", formatICalDateTime(o.Start))
	w.line("DTEND:%s", formatICalDateTime(o.End))

	summary := o.Label
	if o.Kind == booking.KindReservedEvent {
		summary = "Private event"
	}
	w.line("SUMMARY:%s", escapeICalText(summary))
	w.line("LOCATION:%s", escapeICalText(room.Name))
	w.line("TRANSP:OPAQUE")

	w.line("END:VEVENT")
}

type crlfWriter struct {
	w   io.Writer
	err error
}

func (c *crlfWriter) line(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format+"\r\n", args...)
}

// formatICalDateTime formats a time in iCal format (YYYYMMDDTHHMMSSZ).
func formatICalDateTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICalText escapes special characters in iCal text fields.
func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
