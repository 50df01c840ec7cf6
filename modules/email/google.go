package email

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

const gmailSMTP = "smtp.gmail.com:587"

// NewGoogleSmtpSender sends through Gmail with the ambient Google credentials,
// impersonating from. It panics when no credentials can be found.
func NewGoogleSmtpSender(from, displayName string) Sender {
	creds, err := google.FindDefaultCredentialsWithParams(context.Background(), google.CredentialsParams{
		Scopes:  []string{"https://mail.google.com/"},
		Subject: from,
	})
	if err != nil {
		panic(fmt.Errorf("building google oauth token source: %w", err))
	}

	limiter := rate.NewLimiter(rate.Every(time.Second*5), 1)
	return func(ctx context.Context, to, subj string, msg []byte) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		tok, err := creds.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("getting oauth token: %w", err)
		}
		auth := &xoauth2{From: from, AccessToken: tok.AccessToken}
		return smtp.SendMail(gmailSMTP, auth, from, []string{to}, buildMessage(from, displayName, to, subj, msg))
	}
}

func buildMessage(from, displayName, to, subj string, msg []byte) []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", displayName), from)
	fmt.Fprintf(buf, "To: %s\r\n", to)
	fmt.Fprintf(buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subj))
	fmt.Fprintf(buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(buf, "Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	buf.Write(msg)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// xoauth2 implements smtp.Auth for Gmail's XOAUTH2 mechanism.
type xoauth2 struct {
	From, AccessToken string
}

func (a *xoauth2) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "XOAUTH2", []byte("user=" + a.From + "\x01" + "auth=Bearer " + a.AccessToken + "\x01\x01"), nil
}

func (a *xoauth2) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return []byte(""), nil
	}
	return nil, nil
}
