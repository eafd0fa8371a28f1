package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-verification-nosql/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// CodeEnvelope describes a verification code without its secret.
type CodeEnvelope struct {
	Key         string `json:"key"`
	Email       string `json:"email"`
	ResendCount int    `json:"resend_count"`
	ReturnURL   string `json:"return_url,omitempty"`
}

// ResendEnvelope wraps resend responses. Issued is false once the resend limit is reached.
type ResendEnvelope struct {
	Issued      bool `json:"issued"`
	ResendCount int  `json:"resend_count"`
}

// VerifyEnvelope wraps verify responses. Ticket is set only when the code
// matched and the email is free to register.
type VerifyEnvelope struct {
	Matched                bool   `json:"matched"`
	EmailAlreadyRegistered bool   `json:"email_already_registered"`
	Ticket                 string `json:"ticket,omitempty"`
	ReturnURL              string `json:"return_url,omitempty"`
}

// AccountEnvelope wraps a completed registration.
type AccountEnvelope struct {
	Account *domain.Account `json:"account"`
}

func toCodeEnvelope(c *domain.VerificationCode) CodeEnvelope {
	return CodeEnvelope{Key: c.Key, Email: c.Email, ResendCount: c.ResendCount, ReturnURL: c.ReturnURL}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// writeServiceError maps domain sentinels to HTTP status codes. Server-side
// failures are logged and reported without their cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "verification code not found")
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrConflictRetryExhausted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		slog.Error("storage unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
