// Package mailer is the SMTP implementation of the engine's Mailer seam.
// Configuration comes from the environment; see Config for the variables.
package mailer

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings plus the public base URL used to build
// password-reset links.
type Config struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`

	// ResetLinkBase is the frontend route the reset transaction id is
	// appended to, e.g. "https://platepal.app/reset".
	ResetLinkBase string `env:"RESET_LINK_BASE"`

	AppName string `env:"APP_NAME" envDefault:"PlatePal"`
}

// ConfigFromEnv parses Config from environment variables.
func ConfigFromEnv() (Config, error) {
	return env.ParseAs[Config]()
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("missing SMTP_HOST environment variable")
	}
	if c.Port == 0 {
		return fmt.Errorf("missing SMTP_PORT environment variable")
	}
	if c.From == "" {
		return fmt.Errorf("missing SMTP_FROM environment variable")
	}
	if c.ResetLinkBase == "" {
		return fmt.Errorf("missing RESET_LINK_BASE environment variable")
	}
	return nil
}

// Mailer sends verification codes and reset links over SMTP.
type Mailer struct {
	config Config
	logger zerolog.Logger

	// send is the transport; replaced in tests.
	send func(*gomail.Message) error
}

// New builds a Mailer from cfg.
func New(cfg Config, logger zerolog.Logger) (*Mailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)

	return &Mailer{
		config: cfg,
		logger: logger,
		send: func(msg *gomail.Message) error {
			return dialer.DialAndSend(msg)
		},
	}, nil
}

// SendOTP mails the signup verification code.
func (m *Mailer) SendOTP(ctx context.Context, to, name, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("%s verification code", m.config.AppName))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Hi %s,\n\nYour %s verification code is %s.\n\nIf you did not sign up, ignore this mail.\n",
		name, m.config.AppName, code,
	))

	if err := m.send(msg); err != nil {
		m.logger.Error().Err(err).Str("to", to).Msg("otp mail failed")
		return err
	}
	m.logger.Debug().Str("to", to).Msg("otp mail sent")
	return nil
}

// SendResetLink mails the password-reset link carrying the transaction id.
func (m *Mailer) SendResetLink(ctx context.Context, to, name, txnID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/%s", m.config.ResetLinkBase, txnID)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Reset your %s password", m.config.AppName))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Hi %s,\n\nFollow this link to choose a new password:\n\n%s\n\nThe link expires shortly and works once.\n",
		name, link,
	))

	if err := m.send(msg); err != nil {
		m.logger.Error().Err(err).Str("to", to).Msg("reset mail failed")
		return err
	}
	m.logger.Debug().Str("to", to).Msg("reset mail sent")
	return nil
}
