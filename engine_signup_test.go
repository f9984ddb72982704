package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func beginSignup(t *testing.T, env *testEnv, email string) (*SignupResult, string) {
	t.Helper()
	result, err := env.engine.BeginSignup(context.Background(), "alice", email, "correct horse battery")
	if err != nil {
		t.Fatalf("BeginSignup: %v", err)
	}
	return result, env.mailer.lastOTP(t).Code
}

func TestSignupHappyPath(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, code := beginSignup(t, env, "alice@example.com")
	if result.TxnID == "" || result.UserID == "" {
		t.Fatalf("result = %+v", result)
	}
	if len(code) != env.engine.config.Signup.OTPDigits {
		t.Fatalf("code %q, want %d digits", code, env.engine.config.Signup.OTPDigits)
	}

	// The account exists but cannot sign in yet.
	if _, err := env.engine.Signin(ctx, "alice@example.com", "correct horse battery"); !errors.Is(err, ErrAccountUnverified) {
		t.Fatalf("pre-verification signin err = %v, want ErrAccountUnverified", err)
	}

	signin, err := env.engine.ConfirmSignup(ctx, result.TxnID, code)
	if err != nil {
		t.Fatalf("ConfirmSignup: %v", err)
	}
	if signin.User.Status != StatusActive {
		t.Fatalf("status = %s, want active", signin.User.Status)
	}
	if signin.Tokens.AccessToken == "" || signin.Tokens.RefreshToken == "" {
		t.Fatalf("empty tokens after confirmation")
	}

	// Verified account signs in normally now.
	if _, err := env.engine.Signin(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("post-verification signin: %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "alice", "alice@example.com", "correct horse battery", StatusActive)

	_, err := env.engine.BeginSignup(context.Background(), "imposter", "alice@example.com", "another password!")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestSignupReopensPendingAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.engine.BeginSignup(ctx, "carol", "carol@example.com", "first password try")
	if err != nil {
		t.Fatalf("BeginSignup: %v", err)
	}
	firstCode := env.mailer.lastOTP(t).Code

	// Let the transaction die without verification.
	env.clock.Advance(env.engine.config.Signup.OTPTTL + time.Minute)
	if _, err := env.engine.ConfirmSignup(ctx, first.TxnID, firstCode); !errors.Is(err, ErrTxnExpired) {
		t.Fatalf("expired confirm err = %v, want ErrTxnExpired", err)
	}

	// The address is not burned: signing up again reopens the pending
	// account under the new password.
	second, err := env.engine.BeginSignup(ctx, "carol", "carol@example.com", "second password try")
	if err != nil {
		t.Fatalf("reopen BeginSignup: %v", err)
	}
	if second.TxnID == first.TxnID {
		t.Fatalf("reopen reused txn %s", first.TxnID)
	}
	if second.UserID != first.UserID {
		t.Fatalf("reopen created a second account: %s vs %s", second.UserID, first.UserID)
	}

	if _, err := env.engine.ConfirmSignup(ctx, second.TxnID, env.mailer.lastOTP(t).Code); err != nil {
		t.Fatalf("ConfirmSignup after reopen: %v", err)
	}

	// Only the password from the reopening signup is live.
	if _, err := env.engine.Signin(ctx, "carol@example.com", "first password try"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("stale password signin err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.engine.Signin(ctx, "carol@example.com", "second password try"); err != nil {
		t.Fatalf("signin after reopen: %v", err)
	}
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.BeginSignup(context.Background(), "alice", "alice@example.com", "short")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("err = %v, want ErrPasswordPolicy", err)
	}
}

func TestSignupRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	cases := []struct{ name, email string }{
		{"", "alice@example.com"},
		{"alice", ""},
		{"alice", "not-an-email"},
	}
	for _, tc := range cases {
		if _, err := env.engine.BeginSignup(ctx, tc.name, tc.email, "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("name=%q email=%q err = %v, want ErrInvalidCredentials", tc.name, tc.email, err)
		}
	}
}

func TestConfirmSignupWrongCodeBurnsAttempts(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Signup.MaxAttempts = 3
	})
	ctx := context.Background()

	result, code := beginSignup(t, env, "alice@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		if _, err := env.engine.ConfirmSignup(ctx, result.TxnID, wrong); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("attempt %d err = %v, want ErrOTPMismatch", i, err)
		}
	}

	// Burning the final attempt destroys the transaction.
	if _, err := env.engine.ConfirmSignup(ctx, result.TxnID, wrong); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err = %v, want ErrAttemptsExhausted", err)
	}

	// Even the right code is dead now.
	if _, err := env.engine.ConfirmSignup(ctx, result.TxnID, code); !errors.Is(err, ErrTxnNotFound) {
		t.Fatalf("err = %v, want ErrTxnNotFound", err)
	}
}

func TestConfirmSignupUnknownTxn(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.ConfirmSignup(context.Background(), "no-such-txn", "123456"); !errors.Is(err, ErrTxnNotFound) {
		t.Fatalf("err = %v, want ErrTxnNotFound", err)
	}
}

func TestConfirmSignupExpiredTxn(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, code := beginSignup(t, env, "alice@example.com")

	env.clock.Advance(env.engine.config.Signup.OTPTTL + time.Minute)

	if _, err := env.engine.ConfirmSignup(ctx, result.TxnID, code); !errors.Is(err, ErrTxnExpired) {
		t.Fatalf("err = %v, want ErrTxnExpired", err)
	}
}

func TestResendSignupCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, firstCode := beginSignup(t, env, "alice@example.com")

	// Cooldown still running.
	if err := env.engine.ResendSignupCode(ctx, result.TxnID); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("err = %v, want ErrResendCooldown", err)
	}

	env.clock.Advance(env.engine.config.Signup.ResendCooldown + time.Second)

	if err := env.engine.ResendSignupCode(ctx, result.TxnID); err != nil {
		t.Fatalf("ResendSignupCode: %v", err)
	}
	secondCode := env.mailer.lastOTP(t).Code

	// The old code was replaced, not kept alongside.
	if firstCode != secondCode {
		if _, err := env.engine.ConfirmSignup(ctx, result.TxnID, firstCode); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("old code err = %v, want ErrOTPMismatch", err)
		}
	}
	if _, err := env.engine.ConfirmSignup(ctx, result.TxnID, secondCode); err != nil {
		t.Fatalf("ConfirmSignup with fresh code: %v", err)
	}
}

func TestResendDoesNotExtendDeadline(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, _ := beginSignup(t, env, "alice@example.com")
	deadline, err := env.engine.SignupTransactionExpiry(ctx, result.TxnID)
	if err != nil {
		t.Fatalf("SignupTransactionExpiry: %v", err)
	}

	env.clock.Advance(env.engine.config.Signup.ResendCooldown + time.Second)
	if err := env.engine.ResendSignupCode(ctx, result.TxnID); err != nil {
		t.Fatalf("ResendSignupCode: %v", err)
	}

	after, err := env.engine.SignupTransactionExpiry(ctx, result.TxnID)
	if err != nil {
		t.Fatalf("SignupTransactionExpiry after resend: %v", err)
	}
	if !after.Equal(deadline) {
		t.Fatalf("deadline moved from %v to %v", deadline, after)
	}
}

func TestResendUnknownTxn(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.engine.ResendSignupCode(context.Background(), "no-such-txn"); !errors.Is(err, ErrTxnNotFound) {
		t.Fatalf("err = %v, want ErrTxnNotFound", err)
	}
}

func TestSignupMailerFailureSurfaces(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mailer.fail = errors.New("smtp down")

	_, err := env.engine.BeginSignup(context.Background(), "alice", "alice@example.com", "correct horse battery")
	if !errors.Is(err, ErrMailerUnavailable) {
		t.Fatalf("err = %v, want ErrMailerUnavailable", err)
	}
}
