package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/platepal/authcore/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The socket carries no state-changing requests, so cross-origin
	// dashboards may subscribe.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSocket upgrades the request and binds the connection to the caller's
// notification feed. Browsers cannot set headers on the WebSocket handshake,
// so the access token is also accepted as a "token" query parameter.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("accesstoken")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeUnauthorized(w)
		return
	}

	identity, err := s.engine.VerifyAccess(r.Context(), token)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := realtime.NewWSConn(ws, s.config.WriteTimeout)
	s.engine.Sockets().Bind(identity.UserID, conn)
	s.logger.Info().Str("user_id", identity.UserID).Msg("socket bound")

	defer func() {
		s.engine.Sockets().Unbind(identity.UserID, conn)
		_ = conn.Close()
		s.logger.Info().Str("user_id", identity.UserID).Msg("socket unbound")
	}()

	// The feed is push-only; the read loop exists to notice the close.
	ws.SetReadLimit(512)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
