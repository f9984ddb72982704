// Package authcore is the identity core of the PlatePal backend: JWT access
// tokens, rotating opaque refresh tokens with family revocation, OTP-verified
// signup, single-use password-reset links, and realtime notification fan-out
// over registered connections.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserProvider] and [Mailer] seams, and value types (TokenPair,
// Identity, MetricsSnapshot). Identifier generation, token codecs and rate
// limiting live under internal/ and are never exported. The HTTP and
// WebSocket edge lives in the httpapi subpackage; the engine itself performs
// no transport I/O.
//
// # What this package must NOT do
//
//   - Persist user records. Lookups and writes go through the caller's
//     UserProvider; the engine stores only token families and verification
//     transactions in Redis.
//   - Deliver mail. Outbound codes and links go through the Mailer seam.
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//
// # Performance contract
//
// VerifyAccess is the hot path: stateless JWT verification with no Redis
// round-trip and no provider call. Signin, Refresh and the transaction
// operations are allowed one Redis round-trip (the rotation script counts as
// one); notification dispatch performs no I/O beyond the socket writes.
package authcore
