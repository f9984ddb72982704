package authcore

import "errors"

var (
	// ErrUnauthorized is returned when an access token fails signature or
	// expiry validation, or when the caller presents no usable credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned on a signin with a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when the user provider has no matching record.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned when a signup collides with an existing email.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountUnverified is returned when a pending-verification account
	// attempts an operation that requires an active account.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountDisabled is returned when a disabled account attempts to
	// sign in or refresh.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrLoginRateLimited is returned when the signin attempt budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when the refresh attempt budget is exhausted.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrRefreshInvalid is returned for malformed, expired, or unknown refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a retired refresh token is presented
	// again. The engine revokes the whole token family before returning it.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrTxnNotFound is returned when a transaction id does not resolve to a
	// pending transaction. Terminal transactions report the same error.
	ErrTxnNotFound = errors.New("transaction not found")
	// ErrTxnExpired is returned when a transaction exists but its deadline passed.
	ErrTxnExpired = errors.New("transaction expired")
	// ErrOTPMismatch is returned when a submitted code does not match the
	// transaction's current code.
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrAttemptsExhausted is returned when the wrong-code budget reaches zero.
	// The transaction is destroyed; later attempts report ErrTxnNotFound.
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	// ErrResendCooldown is returned when a resend is requested before
	// the transaction's resendAvailableAt.
	ErrResendCooldown = errors.New("resend cooldown active")
	// ErrResetConsumed is returned when a password-reset transaction was
	// already consumed by an earlier request.
	ErrResetConsumed = errors.New("reset link already used")
	// ErrPasswordPolicy is returned when a new password fails policy checks.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordMismatch is returned when password and confirmation differ.
	ErrPasswordMismatch = errors.New("password confirmation mismatch")
	// ErrTokenInvalid is returned for malformed or unverifiable access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrStoreUnavailable masks unexpected backend faults. The original
	// failure is always logged and audited before this is returned.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMailerUnavailable is returned when an outbound message could not be
	// handed to the mailer.
	ErrMailerUnavailable = errors.New("mailer unavailable")
	// ErrEngineNotReady is returned when an engine dependency was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
)
