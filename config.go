package authcore

import (
	"errors"
	"math"
	"time"
)

// Config carries every tunable of the engine. Instances are configured once
// during initialization and treated as immutable afterwards.
type Config struct {
	JWT           JWTConfig
	Token         TokenConfig
	Password      PasswordConfig
	Signup        SignupConfig
	PasswordReset PasswordResetConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token minting and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the refresh-token family store.
type TokenConfig struct {
	RefreshTTL  time.Duration
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	// UpgradeOnLogin rehashes a verified password when the stored hash was
	// produced with weaker parameters than the current config.
	UpgradeOnLogin bool
}

/*
====================================
SIGNUP CONFIG
====================================
*/

// SignupConfig controls the OTP verification transaction created on signup.
type SignupConfig struct {
	OTPDigits      int
	OTPTTL         time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

// PasswordResetConfig controls reset-link transactions.
type PasswordResetConfig struct {
	ResetTTL time.Duration
	// EnumerationDelay is slept before answering a reset request for an
	// unknown email so timing does not reveal account existence.
	EnumerationDelay time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds rate-limit budgets for signin and refresh.
type SecurityConfig struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "authcore",
			Leeway:        30 * time.Second,
		},
		Token: TokenConfig{
			RefreshTTL:  7 * 24 * time.Hour,
			RedisPrefix: "rt",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			UpgradeOnLogin: true,
		},
		Signup: SignupConfig{
			OTPDigits:      6,
			OTPTTL:         5 * time.Minute,
			MaxAttempts:    5,
			ResendCooldown: 60 * time.Second,
		},
		PasswordReset: PasswordResetConfig{
			ResetTTL:         15 * time.Minute,
			EnumerationDelay: 80 * time.Millisecond,
		},
		Security: SecurityConfig{
			EnableIPThrottle:        true,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// DefaultConfig returns the engine defaults. Callers adjust fields and pass
// the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field consistency before the engine is built.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Token
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Token RefreshTTL must exceed JWT AccessTTL")
	}
	if c.Token.RedisPrefix == "" {
		return errors.New("Token RedisPrefix must not be empty")
	}

	// Signup
	if c.Signup.OTPDigits < 4 || c.Signup.OTPDigits > 10 {
		return errors.New("Signup OTPDigits must be between 4 and 10")
	}
	if c.Signup.OTPTTL <= 0 {
		return errors.New("Signup OTPTTL must be > 0")
	}
	if c.Signup.MaxAttempts <= 0 {
		return errors.New("Signup MaxAttempts must be > 0")
	}
	if c.Signup.MaxAttempts > math.MaxUint16 {
		return errors.New("Signup MaxAttempts must fit in 16 bits")
	}
	if c.Signup.ResendCooldown <= 0 {
		return errors.New("Signup ResendCooldown must be > 0")
	}
	if c.Signup.ResendCooldown >= c.Signup.OTPTTL {
		return errors.New("Signup ResendCooldown must be shorter than OTPTTL")
	}

	// Password reset
	if c.PasswordReset.ResetTTL <= 0 {
		return errors.New("PasswordReset ResetTTL must be > 0")
	}
	if c.PasswordReset.EnumerationDelay < 0 {
		return errors.New("PasswordReset EnumerationDelay must be >= 0")
	}

	// Password
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0")
		}
	}

	return nil
}
