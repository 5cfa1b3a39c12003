// Package mailer renders and delivers the verification and password reset
// emails.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"
)

// Message is one rendered email.
type Message struct {
	Kind    string // "verification" or "password_reset"
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

type templateData struct {
	Title   string
	Intro   string
	Action  string
	Link    string
	Ignore  string
	Expires string
}

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>{{.Title}}</h2>
  <p>{{.Intro}}</p>
  <a href="{{.Link}}" style="display: inline-block; background-color: #4a90e2; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 16px 0;">{{.Action}}</a>
  <p>{{.Ignore}}</p>
  <p>{{.Expires}}</p>
  <p>If the button doesn't work, you can also copy and paste this link into your browser:</p>
  <p>{{.Link}}</p>
</div>
`))

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`{{.Title}}

{{.Intro}}

{{.Link}}

{{.Ignore}}
{{.Expires}}
`))

// Composer renders messages that link back to the web client.
type Composer struct {
	ClientURL       string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Verification renders the email-verification message.
func (c Composer) Verification(to, token string) (Message, error) {
	return c.render(KindVerification, to, "Verify Your Email Address", templateData{
		Title:   "Verify Your Email Address",
		Intro:   "Thank you for registering! Please click the button below to verify your email address:",
		Action:  "Verify Email",
		Link:    c.link("/verify-email", token),
		Ignore:  "If you did not request this, please ignore this email.",
		Expires: "This verification link will expire in " + humanDuration(c.VerificationTTL) + ".",
	})
}

// PasswordReset renders the password reset message.
func (c Composer) PasswordReset(to, token string) (Message, error) {
	return c.render(KindPasswordReset, to, "Reset Your Password", templateData{
		Title:   "Reset Your Password",
		Intro:   "You requested a password reset. Please click the button below to create a new password:",
		Action:  "Reset Password",
		Link:    c.link("/reset-password", token),
		Ignore:  "If you did not request this, please ignore this email and your password will remain unchanged.",
		Expires: "This password reset link will expire in " + humanDuration(c.ResetTTL) + ".",
	})
}

func (c Composer) link(path, token string) string {
	return strings.TrimSuffix(c.ClientURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (c Composer) render(kind, to, subject string, data templateData) (Message, error) {
	var h, t bytes.Buffer
	if err := htmlBody.Execute(&h, data); err != nil {
		return Message{}, fmt.Errorf("mailer: render html: %w", err)
	}
	if err := textBody.Execute(&t, data); err != nil {
		return Message{}, fmt.Errorf("mailer: render text: %w", err)
	}
	return Message{Kind: kind, To: to, Subject: subject, HTML: h.String(), Text: t.String()}, nil
}

// humanDuration renders whole hours or minutes the way the emails phrase them.
func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Mailer adapts a Sender to the two transactional emails.
type Mailer struct {
	Composer Composer
	Sender   Sender
}

func (m *Mailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	msg, err := m.Composer.Verification(to, token)
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, msg)
}

func (m *Mailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	msg, err := m.Composer.PasswordReset(to, token)
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, msg)
}
