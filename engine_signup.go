package authcore

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platepal/authcore/internal"
)

// BeginSignup creates a pending account and opens a verification transaction.
// A one-time code is mailed to the address; the returned transaction id is
// what the client presents to ConfirmSignup and ResendSignupCode.
//
// Signing up an address that already has a pending, never-verified account
// reopens that account with the new password and a fresh transaction. Only an
// active or disabled account reports ErrAccountExists.
func (e *Engine) BeginSignup(ctx context.Context, name, email, plainPassword string) (*SignupResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidCredentials
	}
	if len(plainPassword) < e.config.Password.MinLength {
		return nil, ErrPasswordPolicy
	}

	hash, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		return nil, ErrPasswordPolicy
	}
	plainPassword = ""

	var user UserRecord
	existing, err := e.userProvider.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.Status == StatusPending:
		// An earlier signup never finished verification. Reopen it under
		// the freshly submitted password instead of holding the address
		// hostage to a dead transaction.
		if err := e.userProvider.SetPasswordHash(ctx, existing.ID, hash); err != nil {
			return nil, ErrStoreUnavailable
		}
		user = existing
		user.PasswordHash = hash
	case err == nil:
		e.emitAudit(ctx, auditEventSignupBegin, false, "", "", ErrAccountExists, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, ErrAccountExists
	case errors.Is(err, ErrUserNotFound):
		created, err := e.userProvider.Create(ctx, CreateUserInput{
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			Status:       StatusPending,
		})
		if err != nil {
			if errors.Is(err, ErrAccountExists) {
				return nil, ErrAccountExists
			}
			return nil, ErrStoreUnavailable
		}
		user = created
	default:
		return nil, ErrStoreUnavailable
	}

	code, err := internal.NewOTP(e.config.Signup.OTPDigits)
	if err != nil {
		return nil, err
	}

	now := e.now()
	expiresAt := now.Add(e.config.Signup.OTPTTL)
	txnID := uuid.NewString()

	record := &otpRecord{
		UserID:            user.ID,
		SecretHash:        internal.HashBytes([]byte(code)),
		ExpiresAt:         expiresAt.Unix(),
		ResendAvailableAt: now.Add(e.config.Signup.ResendCooldown).Unix(),
		AttemptsRemaining: uint16(e.config.Signup.MaxAttempts),
	}
	if err := e.otpStore.Save(ctx, txnID, record, e.config.Signup.OTPTTL); err != nil {
		return nil, ErrStoreUnavailable
	}

	if err := e.mailer.SendOTP(ctx, email, user.Name, code); err != nil {
		e.emitAudit(ctx, auditEventSignupBegin, false, user.ID, txnID, ErrMailerUnavailable, nil)
		return nil, ErrMailerUnavailable
	}

	e.metricInc(MetricSignupBegin)
	e.emitAudit(ctx, auditEventSignupBegin, true, user.ID, txnID, nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	return &SignupResult{TxnID: txnID, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

// ConfirmSignup checks the submitted code against the pending transaction.
// A match activates the account, destroys the transaction and signs the user
// in. A mismatch burns one attempt; burning the last attempt destroys the
// transaction and reports ErrAttemptsExhausted.
func (e *Engine) ConfirmSignup(ctx context.Context, txnID, code string) (*SigninResult, error) {
	record, err := e.otpStore.Consume(ctx, txnID, internal.HashBytes([]byte(code)), e.now())
	if err != nil {
		mapped := mapOTPError(err)
		if errors.Is(mapped, ErrAttemptsExhausted) {
			e.metricInc(MetricSignupAttemptsExceeded)
			e.emitAudit(ctx, auditEventSignupAttemptsOut, false, "", txnID, mapped, nil)
		} else {
			e.metricInc(MetricSignupConfirmFailure)
			e.emitAudit(ctx, auditEventSignupConfirm, false, "", txnID, mapped, nil)
		}
		return nil, mapped
	}

	if err := e.userProvider.SetStatus(ctx, record.UserID, StatusActive); err != nil {
		e.metricInc(MetricSignupConfirmFailure)
		e.emitAudit(ctx, auditEventSignupConfirm, false, record.UserID, txnID, ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}

	user, err := e.userProvider.FindByID(ctx, record.UserID)
	if err != nil {
		e.metricInc(MetricSignupConfirmFailure)
		e.emitAudit(ctx, auditEventSignupConfirm, false, record.UserID, txnID, ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}
	user.Status = StatusActive

	pair, err := e.issueTokenPair(ctx, user)
	if err != nil {
		e.metricInc(MetricSignupConfirmFailure)
		e.emitAudit(ctx, auditEventSignupConfirm, false, user.ID, txnID, err, nil)
		return nil, err
	}

	e.metricInc(MetricSignupConfirmSuccess)
	e.emitAudit(ctx, auditEventSignupConfirm, true, user.ID, txnID, nil, nil)

	return &SigninResult{Tokens: *pair, User: user}, nil
}

// ResendSignupCode replaces the transaction's code with a fresh one and mails
// it. The transaction deadline and remaining attempt budget are unchanged;
// only the resend cooldown restarts.
func (e *Engine) ResendSignupCode(ctx context.Context, txnID string) error {
	code, err := internal.NewOTP(e.config.Signup.OTPDigits)
	if err != nil {
		return err
	}

	record, err := e.otpStore.Resend(ctx, txnID, internal.HashBytes([]byte(code)), e.config.Signup.ResendCooldown, e.now())
	if err != nil {
		mapped := mapOTPError(err)
		e.emitAudit(ctx, auditEventSignupResend, false, "", txnID, mapped, nil)
		return mapped
	}

	user, err := e.userProvider.FindByID(ctx, record.UserID)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupResend, false, record.UserID, txnID, ErrStoreUnavailable, nil)
		return ErrStoreUnavailable
	}

	if err := e.mailer.SendOTP(ctx, user.Email, user.Name, code); err != nil {
		e.emitAudit(ctx, auditEventSignupResend, false, user.ID, txnID, ErrMailerUnavailable, nil)
		return ErrMailerUnavailable
	}

	e.metricInc(MetricSignupResend)
	e.emitAudit(ctx, auditEventSignupResend, true, user.ID, txnID, nil, nil)
	return nil
}

// SignupTransactionExpiry reports the deadline of a pending transaction.
func (e *Engine) SignupTransactionExpiry(ctx context.Context, txnID string) (time.Time, error) {
	record, err := e.otpStore.Get(ctx, txnID, e.now())
	if err != nil {
		return time.Time{}, mapOTPError(err)
	}
	return time.Unix(record.ExpiresAt, 0), nil
}

func mapOTPError(err error) error {
	switch {
	case errors.Is(err, errOTPNotFound):
		return ErrTxnNotFound
	case errors.Is(err, errOTPExpired):
		return ErrTxnExpired
	case errors.Is(err, errOTPMismatch):
		return ErrOTPMismatch
	case errors.Is(err, errOTPAttemptsExceeded):
		return ErrAttemptsExhausted
	case errors.Is(err, errOTPResendCooldown):
		return ErrResendCooldown
	default:
		log.Print("authcore: signup verification store failure")
		return ErrStoreUnavailable
	}
}
