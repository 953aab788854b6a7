package mailer

import (
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"eventhub/internal/notify"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  Config
	log  *zerolog.Logger
	send sendFunc
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// Send delivers one plain-text message. With no SMTP host configured the
// message is only logged.
func (m *Mailer) Send(recipient, subject, body string) error {
	if m.cfg.Host == "" {
		m.log.Info().Str("to", recipient).Str("subject", subject).Msg("smtp disabled, e-mail logged only")
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		headerValue(m.cfg.From), headerValue(recipient), headerValue(subject), body,
	)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Str("to", recipient).Msg("failed to send e-mail")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Str("to", recipient).Str("subject", subject).Msg("e-mail sent")
	return nil
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds line breaks so a value cannot start a new header.
func headerValue(v string) string {
	return headerBreaks.Replace(v)
}

// Compose renders the organizer e-mail for a lifecycle event.
func Compose(ev notify.Event) (recipient, subject, body string) {
	req := ev.Request
	recipient = req.Organizer.Email
	name := req.Event.Name

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", req.Organizer.Name)

	switch ev.Kind {
	case notify.RequestSubmitted:
		subject = fmt.Sprintf("We received your event request: %s", name)
		fmt.Fprintf(&b, "Your request to list %q has been received and is waiting for review.\n", name)
	case notify.RequestApproved:
		subject = fmt.Sprintf("Your event is live: %s", name)
		fmt.Fprintf(&b, "Your request to list %q was approved.\n", name)
		if ev.Listing != nil {
			fmt.Fprintf(&b, "Listing: %s (capacity %d)\n", ev.Listing.Slug, ev.Listing.Capacity)
		}
	case notify.RequestRejected:
		subject = fmt.Sprintf("Your event request was not approved: %s", name)
		fmt.Fprintf(&b, "Your request to list %q was not approved.\nReason: %s\n", name, ev.RejectionReason)
	}
	if ev.ReviewNotes != "" {
		fmt.Fprintf(&b, "\nReviewer notes: %s\n", ev.ReviewNotes)
	}
	return recipient, subject, b.String()
}
