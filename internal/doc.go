// Package internal holds identifier generation and token codec primitives
// shared by the authcore root package and its stores.
//
// Everything here is allocation-light and safe for concurrent use; all
// randomness comes from crypto/rand.
package internal
