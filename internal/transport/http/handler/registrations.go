package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-verification-nosql/internal/application/registration"
	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/pkg/validate"
	"github.com/go-verification-nosql/internal/transport/http/middleware"
)

// RegistrationHandler completes a signup for the email named by the ticket.
type RegistrationHandler struct {
	svc registration.Service
}

func NewRegistrationHandler(svc registration.Service) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

func (h *RegistrationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CompleteRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	acc, err := h.svc.Complete(r.Context(), registration.Ticket{
		Email:         claims.Email,
		Key:           claims.Key,
		ClientID:      claims.ClientID,
		Referer:       claims.Referer,
		TrafficSource: claims.TrafficSource,
	}, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AccountEnvelope{Account: acc})
}
