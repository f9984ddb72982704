// Package httpapi is the service edge: the REST and WebSocket surface over
// the engine.
//
// Authenticated routes expect the access token in the "accesstoken" header
// and the caller's user id in the "id" header. Every authentication failure
// answers 401 with {"unauthorized":true}; the client contract on 401 is
// refresh once, retry once, never loop.
package httpapi
