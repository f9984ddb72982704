// Package token is the Redis-backed refresh-token family store.
//
// Every refresh token is a single-use credential: one issuance is one record
// keyed by a random token id, holding the SHA-256 hash of the token secret.
// A successful refresh retires the presented id and writes a fresh record
// under a new id, atomically, via a Lua compare-and-swap. Retired ids are
// kept in a tombstone ledger for the refresh lifetime; presenting a retired
// id is treated as theft evidence and revokes every live token of the owner.
//
// Key layout under the configured prefix:
//
//	<prefix>:t:<tokenID>  live record (binary, see encoder.go)
//	<prefix>:d:<tokenID>  tombstone, value is the owning user id
//	<prefix>:u:<userID>   set of the user's live token ids
package token
