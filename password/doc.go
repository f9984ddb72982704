// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// If a stored hash was produced with weaker parameters, [Argon2.NeedsUpgrade]
// returns true so the caller can re-hash on the next successful login.
//
// This package owns hashing and verification only. Password policy (minimum
// length, confirmation matching) is enforced by the engine. Plaintext
// passwords are never stored or logged here.
package password
