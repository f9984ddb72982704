package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/platepal/authcore"
	"github.com/platepal/authcore/metrics/export/prometheus"
)

// Config holds the service-edge tunables.
type Config struct {
	// WriteTimeout bounds a single websocket notification write.
	WriteTimeout time.Duration
	// ExposeMetrics mounts GET /metrics with the Prometheus exposition.
	ExposeMetrics bool
}

// Server carries the REST and WebSocket handlers over one engine.
type Server struct {
	engine *authcore.Engine
	config Config
	logger zerolog.Logger
}

// NewServer wires the handlers. The engine must be built and ready.
func NewServer(engine *authcore.Engine, cfg Config, logger zerolog.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		engine: engine,
		config: cfg,
		logger: logger,
	}
}

// Handler returns the full route table wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/signin", s.handleSignin)
	mux.HandleFunc("POST /auth/refreshtoken", s.handleRefresh)
	mux.Handle("POST /auth/logout", s.requireAuth(http.HandlerFunc(s.handleLogout)))
	mux.HandleFunc("POST /user", s.handleSignup)
	mux.HandleFunc("POST /verify", s.handleVerify)
	mux.HandleFunc("POST /resend", s.handleResend)
	mux.HandleFunc("POST /password/sendEmail", s.handlePasswordResetRequest)
	mux.HandleFunc("POST /password/verify", s.handlePasswordResetConfirm)
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.Handle("POST /recipe/share", s.requireAuth(http.HandlerFunc(s.handleRecipeShare)))

	if s.config.ExposeMetrics {
		mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(s.engine).Handler())
	}

	return s.logRequests(s.withClientIP(mux))
}

/* ==== AUTH ==== */

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Status       bool           `json:"status"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	Data         *identityBrief `json:"data,omitempty"`
}

type identityBrief struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Status:       true,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		Data: &identityBrief{
			UserID: result.User.ID,
			Name:   result.User.Name,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := r.Header.Get("refreshtoken")
	if refresh == "" {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		refresh = req.RefreshToken
	}

	pair, err := s.engine.Refresh(r.Context(), refresh)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Status:       true,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// handleLogout ends the whole session family: every live refresh token of the
// authenticated user is retired, not just the one this device presents.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w)
		return
	}

	if err := s.engine.LogoutAll(r.Context(), identity.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out")
}

/* ==== SIGNUP ==== */

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type txnResponse struct {
	Status    bool   `json:"status"`
	TxnID     string `json:"txnId"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.BeginSignup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, authcore.ErrInvalidCredentials) {
			writeMessage(w, http.StatusBadRequest, "All fields are required!")
			return
		}
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, txnResponse{
		Status:    true,
		TxnID:     result.TxnID,
		ExpiresAt: result.ExpiresAt.Unix(),
	})
}

type verifyRequest struct {
	TxnID string `json:"txnId"`
	OTP   string `json:"otp"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.ConfirmSignup(r.Context(), req.TxnID, req.OTP)
	if err != nil {
		if errors.Is(err, authcore.ErrTxnNotFound) || errors.Is(err, authcore.ErrTxnExpired) {
			writeMessage(w, http.StatusBadRequest, "Otp expired, signup again!")
			return
		}
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Status:       true,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		Data: &identityBrief{
			UserID: result.User.ID,
			Name:   result.User.Name,
		},
	})
}

type resendRequest struct {
	TxnID string `json:"txnId"`
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.engine.ResendSignupCode(r.Context(), req.TxnID); err != nil {
		if errors.Is(err, authcore.ErrTxnNotFound) || errors.Is(err, authcore.ErrTxnExpired) {
			writeMessage(w, http.StatusBadRequest, "Otp expired, signup again!")
			return
		}
		writeEngineError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Otp sent!")
}

/* ==== PASSWORD RESET ==== */

type resetRequestBody struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if !decodeBody(w, r, &req) {
		return
	}

	txnID, err := s.engine.BeginPasswordReset(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, authcore.ErrInvalidCredentials) {
			writeMessage(w, http.StatusBadRequest, "Email is required!")
			return
		}
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txnResponse{Status: true, TxnID: txnID})
}

type resetConfirmBody struct {
	TxnID           string `json:"txnId"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmBody
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.TxnID, req.Password, req.ConfirmPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password updated successfully!")
}

/* ==== REALTIME ==== */

type shareRequest struct {
	UserID string `json:"userId"` // target user
	Title  string `json:"title"`
}

func (s *Server) handleRecipeShare(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w)
		return
	}

	var req shareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Title == "" {
		writeMessage(w, http.StatusBadRequest, "All fields are required!")
		return
	}

	message := fmt.Sprintf("%s shared a '%s'", identity.Name, req.Title)
	delivered := s.engine.Notify(r.Context(), req.UserID, message)
	s.logger.Debug().
		Str("target", req.UserID).
		Int("delivered", delivered).
		Msg("recipe share notification")

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  true,
		"message": "Shared successfully!",
	})
}
