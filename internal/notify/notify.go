package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/smtp"
	"strings"

	"github.com/agisilaos/farewatch/internal/deal"
	"github.com/agisilaos/farewatch/internal/model"
)

// ErrNotification marks a channel that failed after its retry.
var ErrNotification = errors.New("notification failed")

// Channel delivers an alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert model.Alert) error
}

type TerminalChannel struct {
	W io.Writer
}

func (TerminalChannel) Name() string { return "terminal" }

func (c TerminalChannel) Send(_ context.Context, alert model.Alert) error {
	subject, body := Format(alert)
	_, err := fmt.Fprintf(c.W, "ALERT %s\n%s\n", subject, body)
	return err
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != "" && c.Sender != ""
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailChannel struct {
	SMTP SMTPConfig
	To   string

	sendMail sendMailFunc
}

func NewEmailChannel(cfg SMTPConfig, to string) *EmailChannel {
	return &EmailChannel{SMTP: cfg, To: to, sendMail: smtp.SendMail}
}

func (*EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, alert model.Alert) error {
	if !c.SMTP.Configured() {
		return fmt.Errorf("email not configured: set smtp.host/smtp.username/smtp.password/smtp.sender")
	}
	if c.To == "" {
		return fmt.Errorf("missing email recipient")
	}
	port := c.SMTP.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", c.SMTP.Host, port)
	auth := smtp.PlainAuth("", c.SMTP.Username, c.SMTP.Password, c.SMTP.Host)
	subject, body := Format(alert)
	msg := strings.Join([]string{
		"From: " + c.SMTP.Sender,
		"To: " + c.To,
		"Subject: farewatch: " + subject,
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	send := c.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	return send(addr, auth, c.SMTP.Sender, []string{c.To}, []byte(msg))
}

// Format renders the subject line and the plain-text body shared by the
// terminal and email channels.
func Format(alert model.Alert) (string, string) {
	obs := alert.Observation
	price := "n/a"
	if obs.MinPrice != nil {
		price = obs.MinPrice.StringFixed(2) + " " + obs.Currency
	}
	route := strings.ReplaceAll(alert.Route, "-", " ")
	if p := obs.Params; p.Origin != "" {
		route = p.Origin + " -> " + p.Destination
	}
	subject := fmt.Sprintf("%s at %s", route, price)

	var b strings.Builder
	fmt.Fprintf(&b, "Route: %s\n", route)
	fmt.Fprintf(&b, "Reason: %s\n", alert.Reason)
	fmt.Fprintf(&b, "Price: %s\n", price)
	if o := obs.Offer; o != nil {
		fmt.Fprintf(&b, "Dates: %s\n", o.Dates.Key())
		if len(o.Carriers) > 0 {
			fmt.Fprintf(&b, "Airlines: %s\n", strings.Join(o.Carriers, ", "))
		}
		if o.Direct() {
			b.WriteString("Type: direct\n")
		} else {
			fmt.Fprintf(&b, "Type: connecting (%d stops, %d segments)\n", o.Stops, o.Segments)
		}
		if !o.DepartAt.IsZero() {
			fmt.Fprintf(&b, "Departure: %s\n", o.DepartAt.Format("2006-01-02 15:04"))
		}
		if !o.ArriveAt.IsZero() {
			fmt.Fprintf(&b, "Arrival: %s\n", o.ArriveAt.Format("2006-01-02 15:04"))
		}
	}
	if prev := alert.Decision.PreviousBest; prev != nil && obs.MinPrice != nil {
		fmt.Fprintf(&b, "Previous best: %s %s (down %s, %s%%)\n",
			prev.StringFixed(2), obs.Currency,
			alert.Decision.Improvement.StringFixed(2),
			deal.DropPercent(prev, *obs.MinPrice).String())
	}
	if th := alert.Decision.Threshold; th != nil {
		fmt.Fprintf(&b, "Threshold: %s %s\n", th.StringFixed(2), obs.Currency)
	}
	if alert.URL != "" {
		fmt.Fprintf(&b, "Google Flights: %s\n", alert.URL)
	}
	fmt.Fprintf(&b, "Triggered at: %s\n", alert.TriggeredAt.Format("2006-01-02 15:04:05 MST"))
	return subject, b.String()
}
