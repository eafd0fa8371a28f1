package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-verification-nosql/internal/application/notification"
	"github.com/go-verification-nosql/internal/application/verification"
	"github.com/go-verification-nosql/internal/domain"
	jwtinfra "github.com/go-verification-nosql/internal/infrastructure/jwt"
	"github.com/go-verification-nosql/internal/pkg/logging"
	"github.com/go-verification-nosql/internal/pkg/validate"
)

type ticketSigner interface {
	Sign(c jwtinfra.Claims) (string, error)
}

type VerifyRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// VerificationCodeHandler exposes the verification-code workflow. It sends the
// verification email after every issued code; the service itself never does.
type VerificationCodeHandler struct {
	svc           verification.Service
	notifier      notification.Service
	tickets       ticketSigner
	publicBaseURL string
}

func NewVerificationCodeHandler(svc verification.Service, notifier notification.Service, tickets ticketSigner, publicBaseURL string) *VerificationCodeHandler {
	return &VerificationCodeHandler{svc: svc, notifier: notifier, tickets: tickets, publicBaseURL: publicBaseURL}
}

func (h *VerificationCodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.AddCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Referer == "" {
		req.Referer = r.Referer()
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	rec, err := h.svc.AddCode(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !h.notify(r.Context(), w, rec) {
		return
	}
	writeJSON(w, http.StatusCreated, toCodeEnvelope(rec))
}

func (h *VerificationCodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetCode(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "verification code not found")
		return
	}
	writeJSON(w, http.StatusOK, toCodeEnvelope(rec))
}

func (h *VerificationCodeHandler) Resend(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ResendCode(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Issued && !h.notify(r.Context(), w, res.Code) {
		return
	}
	writeJSON(w, http.StatusOK, ResendEnvelope{Issued: res.Issued, ResendCount: res.Code.ResendCount})
}

func (h *VerificationCodeHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), chi.URLParam(r, "key"), req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !res.Found {
		writeError(w, http.StatusNotFound, "verification code not found")
		return
	}

	out := VerifyEnvelope{Matched: res.Matched, EmailAlreadyRegistered: res.EmailAlreadyRegistered}
	if res.Matched {
		out.ReturnURL = res.Code.ReturnURL
	}
	if res.Matched && !res.EmailAlreadyRegistered {
		out.Ticket, err = h.tickets.Sign(jwtinfra.Claims{
			Email:         res.Code.Email,
			Key:           res.Code.Key,
			ClientID:      res.Code.ClientID,
			Referer:       res.Code.Referer,
			ReturnURL:     res.Code.ReturnURL,
			TrafficSource: res.Code.TrafficSource,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *VerificationCodeHandler) DeleteByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter required")
		return
	}
	if err := h.svc.DeleteCodes(r.Context(), email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notify sends the verification email for rec and reports whether the
// request may continue. The code stays stored when delivery fails, so the
// client can ask for a resend.
func (h *VerificationCodeHandler) notify(ctx context.Context, w http.ResponseWriter, rec *domain.VerificationCode) bool {
	link := h.publicBaseURL + "/register/verify?key=" + url.QueryEscape(rec.Key)
	if err := h.notifier.SendVerificationEmail(ctx, rec.Email, rec.Code, link); err != nil {
		slog.Error("send verification email", "email", logging.RedactEmail(rec.Email), "error", err)
		writeError(w, http.StatusBadGateway, "verification email could not be sent")
		return false
	}
	return true
}
