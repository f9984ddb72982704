package authcore

import (
	"context"
	"errors"

	"github.com/platepal/authcore/internal"
	"github.com/platepal/authcore/token"
)

// Refresh rotates the presented refresh token: the old token id is retired
// atomically and a fresh pair is issued in its place. Presenting a retired id
// again is treated as theft evidence; the whole token family of the owning
// user is revoked before ErrRefreshReuse is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokenID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "decode_failed"}
		})
		return nil, ErrRefreshInvalid
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, tokenID); err != nil {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", "", ErrRefreshRateLimited, nil)
			e.emitRateLimit(ctx, "refresh")
			return nil, ErrRefreshRateLimited
		}
	}

	nextID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := e.now()
	refreshExp := now.Add(e.config.Token.RefreshTTL)

	// The replacement record must carry its owner, so the owner is read
	// before the swap. A rotation that slips in between is caught by the
	// tombstone check inside the store's script. When no live record exists
	// the swap can only report not-found or reuse, so the placeholder owner
	// is never installed.
	ownerID := "-"
	switch rec, err := e.tokenStore.Get(ctx, tokenID); {
	case err == nil:
		ownerID = rec.UserID
	case errors.Is(err, token.ErrRecordNotFound), errors.Is(err, token.ErrRecordCorrupt):
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}

	next := &token.Record{
		TokenID:    nextID.String(),
		UserID:     ownerID,
		SecretHash: internal.HashRefreshSecret(nextSecret),
		IssuedAt:   now.Unix(),
		ExpiresAt:  refreshExp.Unix(),
	}

	uid, err := e.tokenStore.Rotate(
		ctx,
		tokenID,
		internal.HashRefreshSecret(providedSecret),
		next,
		e.config.Token.RefreshTTL,
		e.config.Token.RefreshTTL,
		now,
	)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrReuseDetected):
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuse, false, uid, "", ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, token.ErrRecordNotFound),
			errors.Is(err, token.ErrRecordExpired),
			errors.Is(err, token.ErrHashMismatch),
			errors.Is(err, token.ErrRecordCorrupt):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, func() map[string]string {
				return map[string]string{"reason": rotateFailureReason(err)}
			})
			return nil, ErrRefreshInvalid
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrStoreUnavailable, nil)
			return nil, ErrStoreUnavailable
		}
	}

	user, err := e.userProvider.FindByID(ctx, uid)
	if err != nil {
		// The token family points at a user who no longer exists; retire it.
		_ = e.tokenStore.RevokeAllForUser(ctx, uid)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, uid, "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "user_not_found"}
		})
		return nil, ErrRefreshInvalid
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		_ = e.tokenStore.RevokeAllForUser(ctx, uid)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, uid, "", statusErr, func() map[string]string {
			return map[string]string{"reason": "account_status"}
		})
		return nil, statusErr
	}

	access, accessExp, err := e.jwtManager.CreateAccess(user.ID, user.Name)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, uid, "", err, func() map[string]string {
			return map[string]string{"reason": "issue_access_failed"}
		})
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(nextID.String(), nextSecret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, uid, "", nil, nil)

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func rotateFailureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrRecordNotFound):
		return "record_not_found"
	case errors.Is(err, token.ErrRecordExpired):
		return "record_expired"
	case errors.Is(err, token.ErrHashMismatch):
		return "hash_mismatch"
	case errors.Is(err, token.ErrRecordCorrupt):
		return "record_corrupt"
	default:
		return "rotate_failed"
	}
}
