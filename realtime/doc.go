// Package realtime tracks the live client connections of signed-in users and
// fans notifications out to them.
//
// The [Registry] maps a user id to its open connections; one user may hold
// several (multiple tabs, multiple devices). The [Dispatcher] performs
// best-effort delivery: an offline user is a no-op and a failed write drops
// the dead connection without failing the dispatch.
package realtime
