package authcore

import (
	"context"
	"time"
)

// AccountStatus describes the lifecycle state of a user record.
type AccountStatus string

const (
	// StatusPending marks an account created by signup but not yet verified.
	StatusPending AccountStatus = "pending"
	// StatusActive marks a verified account allowed to sign in.
	StatusActive AccountStatus = "active"
	// StatusDisabled marks an account locked out by an operator.
	StatusDisabled AccountStatus = "disabled"
)

// UserRecord is the engine's view of one stored user. The engine never
// persists users itself; records flow through the UserProvider seam.
type UserRecord struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       AccountStatus
}

// CreateUserInput carries the fields of a new pending account.
type CreateUserInput struct {
	Name         string
	Email        string
	PasswordHash string
	Status       AccountStatus
}

// UserProvider is the persistence seam the host application implements.
// All methods must be safe for concurrent use. Lookups that find nothing
// return ErrUserNotFound.
type UserProvider interface {
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, id string) (UserRecord, error)
	Create(ctx context.Context, in CreateUserInput) (UserRecord, error)
	SetStatus(ctx context.Context, id string, status AccountStatus) error
	SetPasswordHash(ctx context.Context, id string, hash string) error
}

// Mailer delivers the engine's outbound messages. Implementations decide
// templating and transport; the engine only hands over the raw values.
type Mailer interface {
	SendOTP(ctx context.Context, to, name, code string) error
	SendResetLink(ctx context.Context, to, name, txnID string) error
}

// TokenPair is one issued credential set: a short-lived signed access token
// and an opaque single-use refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Identity is the verified principal extracted from an access token.
type Identity struct {
	UserID string
	Name   string
}

// SigninResult is returned by a successful signin.
type SigninResult struct {
	Tokens TokenPair
	User   UserRecord
}

// SignupResult is returned by BeginSignup; the transaction id is handed to
// the client for the verify and resend calls.
type SignupResult struct {
	TxnID     string
	UserID    string
	ExpiresAt time.Time
}
