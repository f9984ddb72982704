package token

// Record is one live refresh-token issuance.
type Record struct {
	TokenID    string
	UserID     string
	SecretHash [32]byte

	IssuedAt  int64
	ExpiresAt int64
}
