package authcore

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// BeginPasswordReset opens a reset transaction for the account behind email
// and mails the transaction id as a link. Unknown addresses are answered
// identically — a decoy transaction id after a fixed delay — so the call
// never reveals whether an account exists.
func (e *Engine) BeginPasswordReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", ErrInvalidCredentials
	}

	txnID := uuid.NewString()

	user, err := e.userProvider.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return "", ErrStoreUnavailable
		}
		e.sleepEnumerationDelay(ctx)
		e.emitAudit(ctx, auditEventPasswordResetBegin, true, "", "", nil, func() map[string]string {
			return map[string]string{"known_account": "false"}
		})
		return txnID, nil
	}

	now := e.now()
	record := &resetRecord{
		UserID:    user.ID,
		ExpiresAt: now.Add(e.config.PasswordReset.ResetTTL).Unix(),
	}
	if err := e.resetStore.Save(ctx, txnID, record, e.config.PasswordReset.ResetTTL); err != nil {
		return "", ErrStoreUnavailable
	}

	if err := e.mailer.SendResetLink(ctx, user.Email, user.Name, txnID); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetBegin, false, user.ID, txnID, ErrMailerUnavailable, nil)
		return "", ErrMailerUnavailable
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetBegin, true, user.ID, txnID, nil, nil)
	return txnID, nil
}

// ConfirmPasswordReset consumes the transaction and installs the new
// password. Exactly one of any number of concurrent confirmations for the
// same transaction succeeds; replays report ErrResetConsumed. A successful
// reset revokes every live refresh token of the user.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, txnID, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	record, err := e.resetStore.Consume(ctx, txnID, e.now())
	if err != nil {
		mapped := mapResetError(err)
		if errors.Is(mapped, ErrResetConsumed) {
			e.metricInc(MetricPasswordResetReplay)
			e.emitAudit(ctx, auditEventPasswordResetReplay, false, "", txnID, mapped, nil)
		} else {
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetDone, false, "", txnID, mapped, nil)
		}
		return mapped
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetDone, false, record.UserID, txnID, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}
	newPassword = ""
	confirmPassword = ""

	if err := e.userProvider.SetPasswordHash(ctx, record.UserID, hash); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetDone, false, record.UserID, txnID, ErrStoreUnavailable, nil)
		return ErrStoreUnavailable
	}

	// A reset means the old credential may be compromised; retire every
	// outstanding refresh token of the user.
	if err := e.tokenStore.RevokeAllForUser(ctx, record.UserID); err != nil {
		log.Print("authcore: token revocation failed after password reset")
	} else {
		e.metricInc(MetricTokenRevoked)
	}

	if e.rateLimiter != nil {
		if user, err := e.userProvider.FindByID(ctx, record.UserID); err == nil {
			// Limiter reset is best-effort; a stale counter expires on its own.
			if err := e.rateLimiter.ResetLogin(ctx, user.Email, ClientIPFromContext(ctx)); err != nil {
				log.Print("authcore: login limiter reset failed after password reset")
			}
		}
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetDone, true, record.UserID, txnID, nil, nil)
	return nil
}

// ResetTransactionExpiry reports the deadline of a pending reset transaction.
func (e *Engine) ResetTransactionExpiry(ctx context.Context, txnID string) (time.Time, error) {
	record, err := e.resetStore.Get(ctx, txnID, e.now())
	if err != nil {
		return time.Time{}, mapResetError(err)
	}
	return time.Unix(record.ExpiresAt, 0), nil
}

func (e *Engine) sleepEnumerationDelay(ctx context.Context) {
	delay := e.config.PasswordReset.EnumerationDelay
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func mapResetError(err error) error {
	switch {
	case errors.Is(err, errResetNotFound):
		return ErrTxnNotFound
	case errors.Is(err, errResetExpired):
		return ErrTxnExpired
	case errors.Is(err, errResetConsumed):
		return ErrResetConsumed
	default:
		log.Print("authcore: password reset store failure")
		return ErrStoreUnavailable
	}
}
