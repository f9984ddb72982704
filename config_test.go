package authcore

import (
	"crypto/ed25519"
	"crypto/rand"
	"math"
	"testing"
	"time"
)

func validTestConfig(t *testing.T) Config {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with keys",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway too large",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "unknown signing method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs512"
			},
			wantValid: false,
		},
		{
			name: "ed25519 without keys",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = nil
				c.JWT.PublicKey = nil
			},
			wantValid: false,
		},
		{
			name: "hs256 with secret only",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = []byte("shared-secret-of-decent-length")
				c.JWT.PublicKey = nil
			},
			wantValid: true,
		},
		{
			name: "refresh ttl must exceed access ttl",
			mutate: func(c *Config) {
				c.Token.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "empty token prefix",
			mutate: func(c *Config) {
				c.Token.RedisPrefix = ""
			},
			wantValid: false,
		},
		{
			name: "otp digits out of range",
			mutate: func(c *Config) {
				c.Signup.OTPDigits = 3
			},
			wantValid: false,
		},
		{
			name: "resend cooldown exceeds otp ttl",
			mutate: func(c *Config) {
				c.Signup.ResendCooldown = c.Signup.OTPTTL
			},
			wantValid: false,
		},
		{
			name: "zero signup attempts",
			mutate: func(c *Config) {
				c.Signup.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "signup attempts beyond 16 bits",
			mutate: func(c *Config) {
				c.Signup.MaxAttempts = math.MaxUint16 + 1
			},
			wantValid: false,
		},
		{
			name: "signup attempts at the 16-bit ceiling",
			mutate: func(c *Config) {
				c.Signup.MaxAttempts = math.MaxUint16
			},
			wantValid: true,
		},
		{
			name: "zero reset ttl",
			mutate: func(c *Config) {
				c.PasswordReset.ResetTTL = 0
			},
			wantValid: false,
		},
		{
			name: "negative enumeration delay",
			mutate: func(c *Config) {
				c.PasswordReset.EnumerationDelay = -time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "weak minimum password length",
			mutate: func(c *Config) {
				c.Password.MinLength = 6
			},
			wantValid: false,
		},
		{
			name: "zero login attempts",
			mutate: func(c *Config) {
				c.Security.MaxLoginAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "refresh throttle enabled without budget",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = true
				c.Security.MaxRefreshAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "refresh throttle disabled ignores budget",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = false
				c.Security.MaxRefreshAttempts = 0
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigCloneIsolatesKeys(t *testing.T) {
	cfg := validTestConfig(t)

	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] ^= 0xFF

	if cfg.JWT.PrivateKey[0] == clone.JWT.PrivateKey[0] {
		t.Fatal("clone shares private key storage with original")
	}
}

func TestDefaultConfigRequiresKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without signing keys passed validation")
	}
}
