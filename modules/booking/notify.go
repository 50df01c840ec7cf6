package booking

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/marquee-cinema/marquee/modules/core"
)

//go:embed templates/*
var templateFS embed.FS

var (
	confirmationTemplate *template.Template
	cancellationTemplate *template.Template
)

func init() {
	var err error
	confirmationTemplate, err = template.ParseFS(templateFS, "templates/confirmation_email.html")
	if err != nil {
		panic(err)
	}
	cancellationTemplate, err = template.ParseFS(templateFS, "templates/cancellation_email.html")
	if err != nil {
		panic(err)
	}
}

type mailData struct {
	ContactName string
	Title       string
	RoomName    string
	Start       string
	End         string
	PaymentDue  string
}

func confirmationMail(e *ReservedEvent, room *core.Room, loc *time.Location) (subject, body string, err error) {
	body, err = render(confirmationTemplate, &mailData{
		ContactName: e.ContactName,
		Title:       e.Title,
		RoomName:    room.Name,
		Start:       e.Start.In(loc).Format("Mon, Jan 2 2006 at 3:04 PM"),
		End:         e.End.In(loc).Format("3:04 PM"),
		PaymentDue:  e.PaymentDue.In(loc).Format("Mon, Jan 2 at 3:04 PM"),
	})
	return fmt.Sprintf("Reservation confirmed: %s", e.Title), body, err
}

func cancellationMail(e *ReservedEvent, loc *time.Location) (subject, body string, err error) {
	body, err = render(cancellationTemplate, &mailData{
		ContactName: e.ContactName,
		Title:       e.Title,
		Start:       e.Start.In(loc).Format("Mon, Jan 2 2006 at 3:04 PM"),
	})
	return fmt.Sprintf("Reservation cancelled: %s", e.Title), body, err
}

func render(tmpl *template.Template, data *mailData) (string, error) {
	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return buf.String(), nil
}
