package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/platepal/authcore"
)

type ctxKey int

const ctxKeyIdentity ctxKey = iota

func identityFromContext(ctx context.Context) *authcore.Identity {
	identity, _ := ctx.Value(ctxKeyIdentity).(*authcore.Identity)
	return identity
}

// requireAuth verifies the "accesstoken" header and cross-checks the "id"
// header against the token's subject. Any failure is a plain 401; the
// response never says which check tripped.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("accesstoken")
		if token == "" {
			writeUnauthorized(w)
			return
		}

		identity, err := s.engine.VerifyAccess(r.Context(), token)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		if claimed := r.Header.Get("id"); claimed != "" && claimed != identity.UserID {
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyIdentity, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withClientIP threads the remote address into the context so the engine's
// limiters and audit trail can key on it.
func (s *Server) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(authcore.WithClientIP(r.Context(), host)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// Hijacked connections cannot go through the recorder.
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// decodeBody reads a JSON body into dst. A malformed body answers 400 and
// returns false; callers return immediately.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}
