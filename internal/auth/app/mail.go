package app

import (
	"github.com/aussiebroadwan/sessionauth/internal/auth/mailer"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
)

// newMailer delivers through SMTP when a relay is configured and writes
// emails to disk otherwise.
func (app *Application) newMailer() *mailer.Mailer {
	composer := mailer.Composer{
		ClientURL:       app.cfg.ClientURL,
		VerificationTTL: service.DefaultVerificationTTL,
		ResetTTL:        service.DefaultResetTTL,
	}

	if app.cfg.EmailHost == "" {
		app.logger.Warn("EMAIL_HOST not set, writing emails to disk", "dir", app.cfg.EmailDir)
		return &mailer.Mailer{Composer: composer, Sender: &mailer.FileSender{Dir: app.cfg.EmailDir}}
	}

	smtp := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     app.cfg.EmailHost,
		Port:     app.cfg.EmailPort,
		Secure:   app.cfg.EmailSecure,
		Username: app.cfg.EmailUser,
		Password: app.cfg.EmailPassword,
		FromName: app.cfg.EmailFromName,
		FromAddr: app.cfg.EmailFromAddress,
	})
	return &mailer.Mailer{Composer: composer, Sender: mailer.NewRetrying(smtp)}
}
