// Package jwt issues and verifies the short-lived access tokens that carry a
// signed-in user's identity between requests. Verification is strict: only the
// configured algorithm is accepted and issued-at sanity bounds are enforced.
package jwt
