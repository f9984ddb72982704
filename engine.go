package authcore

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/platepal/authcore/internal"
	"github.com/platepal/authcore/internal/rate"
	"github.com/platepal/authcore/jwt"
	"github.com/platepal/authcore/password"
	"github.com/platepal/authcore/realtime"
	"github.com/platepal/authcore/token"
)

// Engine is the identity core: signin, token rotation, signup verification,
// password reset and realtime notification fan-out. Instances are configured
// through [Builder] and treated as immutable afterwards.
type Engine struct {
	config       Config
	userProvider UserProvider
	mailer       Mailer
	jwtManager   *jwt.Manager
	passwordHash *password.Argon2
	tokenStore   *token.Store
	otpStore     *otpStore
	resetStore   *resetStore
	rateLimiter  *rate.Limiter
	sockets      *realtime.Registry
	notifier     *realtime.Dispatcher
	audit        *auditDispatcher
	metrics      *Metrics
	now          func() time.Time
}

// Close releases the engine's background resources. It drains and stops the
// audit dispatcher; in-flight calls on other components are unaffected.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of every counter and histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Signin verifies the email+password pair and issues a fresh token pair.
func (e *Engine) Signin(ctx context.Context, email, password string) (*SigninResult, error) {
	ip := ClientIPFromContext(ctx)
	email = normalizeEmail(email)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
			e.emitRateLimit(ctx, "login")
			return nil, ErrLoginRateLimited
		}
	}

	if email == "" || password == "" {
		return nil, e.failSignin(ctx, email, ip, "", "empty_credentials")
	}

	user, err := e.userProvider.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrStoreUnavailable, nil)
			return nil, ErrStoreUnavailable
		}
		return nil, e.failSignin(ctx, email, ip, "", "user_not_found")
	}

	ok, err := e.passwordHash.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failSignin(ctx, email, ip, user.ID, "password_mismatch")
	}

	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", statusErr, func() map[string]string {
			return map[string]string{"email": email, "reason": "account_status"}
		})
		return nil, statusErr
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgraded, err := e.passwordHash.Hash(password); err == nil {
				// Rehash update is best-effort and must not block signin.
				if err := e.userProvider.SetPasswordHash(ctx, user.ID, upgraded); err != nil {
					log.Print("authcore: password hash upgrade update failed")
				}
			} else {
				log.Print("authcore: password hash upgrade generation failed")
			}
		}
	}
	password = ""

	pair, err := e.issueTokenPair(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "token_issue_failed"}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		// Limiter reset is best-effort; a stale counter expires on its own.
		if err := e.rateLimiter.ResetLogin(ctx, email, ip); err != nil {
			log.Print("authcore: login limiter reset failed")
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	return &SigninResult{Tokens: *pair, User: user}, nil
}

func (e *Engine) failSignin(ctx context.Context, email, ip, userID, reason string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, email, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, userID, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
			e.emitRateLimit(ctx, "login")
			return ErrLoginRateLimited
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"email": email, "reason": reason}
	})
	return ErrInvalidCredentials
}

// VerifyAccess checks the access token's signature and expiry and returns the
// embedded identity. No Redis round-trip is made.
func (e *Engine) VerifyAccess(ctx context.Context, tokenStr string) (*Identity, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := e.now()
		defer func() { e.metrics.Observe(MetricValidateLatency, e.now().Sub(start)) }()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &Identity{UserID: claims.UID, Name: claims.Name}, nil
}

// Logout retires the presented refresh token. Unknown and already-retired
// tokens succeed silently; logout is idempotent and never leaks token state.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	tokenID, _, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "decode_failed"}
		})
		return nil
	}

	if err := e.tokenStore.Revoke(ctx, tokenID); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", "", ErrStoreUnavailable, nil)
		return ErrStoreUnavailable
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventLogout, true, "", "", nil, nil)
	return nil
}

// LogoutAll revokes every live refresh token of a user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserNotFound
	}

	if err := e.tokenStore.RevokeAllForUser(ctx, userID); err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", ErrStoreUnavailable, nil)
		return ErrStoreUnavailable
	}

	e.metricInc(MetricLogoutAll)
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, nil)
	return nil
}

// ActiveTokenIDs lists the live refresh-token ids of a user, newest last.
func (e *Engine) ActiveTokenIDs(ctx context.Context, userID string) ([]string, error) {
	return e.tokenStore.ActiveTokenIDs(ctx, userID)
}

// Sockets exposes the connection registry so the transport layer can bind and
// unbind realtime connections as they open and close.
func (e *Engine) Sockets() *realtime.Registry {
	return e.sockets
}

// Notify fans a message out to every live connection of the user. Delivery is
// best-effort: an offline user or a failed write is counted and skipped, never
// an error.
func (e *Engine) Notify(ctx context.Context, userID, message string) int {
	if e == nil || e.notifier == nil {
		return 0
	}

	delivered, dropped := e.notifier.Dispatch(ctx, userID, realtime.Notification{Message: message})
	for i := 0; i < delivered; i++ {
		e.metricInc(MetricNotifyDelivered)
	}
	for i := 0; i < dropped; i++ {
		e.metricInc(MetricNotifyDropped)
	}
	return delivered
}

// Ping reports Redis availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.tokenStore.Ping(ctx)
}

func (e *Engine) issueTokenPair(ctx context.Context, user UserRecord) (*TokenPair, error) {
	tokenID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := e.now()
	refreshExp := now.Add(e.config.Token.RefreshTTL)

	rec := &token.Record{
		TokenID:    tokenID.String(),
		UserID:     user.ID,
		SecretHash: internal.HashRefreshSecret(secret),
		IssuedAt:   now.Unix(),
		ExpiresAt:  refreshExp.Unix(),
	}
	if err := e.tokenStore.Issue(ctx, rec, e.config.Token.RefreshTTL); err != nil {
		return nil, ErrStoreUnavailable
	}

	access, accessExp, err := e.jwtManager.CreateAccess(user.ID, user.Name)
	if err != nil {
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(tokenID.String(), secret)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func accountStatusToError(status AccountStatus) error {
	switch status {
	case StatusActive:
		return nil
	case StatusPending:
		return ErrAccountUnverified
	case StatusDisabled:
		return ErrAccountDisabled
	default:
		return ErrUnauthorized
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
