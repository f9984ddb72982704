package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platepal/authcore"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"unauthorized": true})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  status < http.StatusBadRequest,
		"message": message,
	})
}

// writeEngineError maps engine sentinels onto the wire contract.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrUnauthorized),
		errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrRefreshInvalid),
		errors.Is(err, authcore.ErrRefreshReuse),
		errors.Is(err, authcore.ErrAccountDisabled):
		writeUnauthorized(w)
	case errors.Is(err, authcore.ErrAccountUnverified):
		writeMessage(w, http.StatusForbidden, "Account is not verified yet!")
	case errors.Is(err, authcore.ErrLoginRateLimited),
		errors.Is(err, authcore.ErrRefreshRateLimited):
		writeMessage(w, http.StatusTooManyRequests, "Too many attempts, try again later")
	case errors.Is(err, authcore.ErrAccountExists):
		writeMessage(w, http.StatusConflict, "User already exists!")
	case errors.Is(err, authcore.ErrOTPMismatch):
		writeMessage(w, http.StatusBadRequest, "Invalid otp!")
	case errors.Is(err, authcore.ErrAttemptsExhausted):
		writeMessage(w, http.StatusBadRequest, "Too many wrong attempts, signup again!")
	case errors.Is(err, authcore.ErrResendCooldown):
		writeMessage(w, http.StatusBadRequest, "Please wait before requesting a new code")
	case errors.Is(err, authcore.ErrTxnNotFound),
		errors.Is(err, authcore.ErrTxnExpired),
		errors.Is(err, authcore.ErrResetConsumed):
		writeMessage(w, http.StatusBadRequest, "Link has expired")
	case errors.Is(err, authcore.ErrPasswordMismatch):
		writeMessage(w, http.StatusBadRequest, "Passwords do not match!")
	case errors.Is(err, authcore.ErrPasswordPolicy):
		writeMessage(w, http.StatusBadRequest, "Password does not meet the policy")
	case errors.Is(err, authcore.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
	default:
		writeMessage(w, http.StatusInternalServerError, "Something went wrong")
	}
}
