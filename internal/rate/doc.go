// Package rate implements the Redis-backed fixed-window counters behind the
// engine's signin and refresh throttles.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al:  — signin per-email
//   - ali: — signin per-IP
//   - ar:  — refresh per-token-id
package rate
