package mailer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

func testMailer(t *testing.T) (*Mailer, *[]string) {
	t.Helper()

	m := &Mailer{
		config: Config{
			From:          "noreply@platepal.app",
			ResetLinkBase: "https://platepal.app/reset",
			AppName:       "PlatePal",
		},
		logger: zerolog.Nop(),
	}

	var sent []string
	m.send = func(msg *gomail.Message) error {
		var buf bytes.Buffer
		if _, err := msg.WriteTo(&buf); err != nil {
			return err
		}
		sent = append(sent, buf.String())
		return nil
	}
	return m, &sent
}

func TestSendOTPCarriesCode(t *testing.T) {
	m, sent := testMailer(t)

	if err := m.SendOTP(context.Background(), "alice@example.com", "alice", "483920"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(*sent))
	}

	raw := (*sent)[0]
	for _, want := range []string{"alice@example.com", "483920", "verification code"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("mail missing %q:\n%s", want, raw)
		}
	}
}

func TestSendResetLinkBuildsURL(t *testing.T) {
	m, sent := testMailer(t)

	if err := m.SendResetLink(context.Background(), "alice@example.com", "alice", "txn-123"); err != nil {
		t.Fatalf("SendResetLink: %v", err)
	}

	raw := (*sent)[0]
	if !strings.Contains(raw, "https://platepal.app/reset/txn-123") {
		t.Fatalf("mail missing reset link:\n%s", raw)
	}
}

func TestSendHonorsCancelledContext(t *testing.T) {
	m, sent := testMailer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.SendOTP(ctx, "alice@example.com", "alice", "483920"); err == nil {
		t.Fatalf("SendOTP ignored cancelled context")
	}
	if len(*sent) != 0 {
		t.Fatalf("mail sent despite cancelled context")
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{
		Host:          "smtp.example.com",
		Port:          587,
		From:          "noreply@platepal.app",
		ResetLinkBase: "https://platepal.app/reset",
	}
	if _, err := New(cfg, zerolog.Nop()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg.Host = ""
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("missing host accepted")
	}
}
