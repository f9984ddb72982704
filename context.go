package authcore

import "context"

type ctxKey int

const (
	ctxKeyClientIP ctxKey = iota
)

// WithClientIP attaches the caller's network address to the context. The
// engine uses it for rate limiting and audit events; absence is tolerated.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ClientIPFromContext returns the IP set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyClientIP).(string)
	return ip
}
