package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-verification-nosql/internal/application/registration"
	"github.com/go-verification-nosql/internal/domain"
	jwtinfra "github.com/go-verification-nosql/internal/infrastructure/jwt"
	"github.com/go-verification-nosql/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRegistrationSvc struct{ mock.Mock }

func (m *mockRegistrationSvc) Complete(ctx context.Context, t registration.Ticket, req domain.CompleteRegistrationRequest) (*domain.Account, error) {
	args := m.Called(ctx, t, req)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func withTicket(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &jwtinfra.Claims{Email: "a@b.com", Key: "k1", ClientID: "web"}))
}

func completeReq(t *testing.T, body domain.CompleteRegistrationRequest) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/v1/registrations", jsonBody(t, body))
}

func TestComplete_MissingClaims(t *testing.T) {
	h := NewRegistrationHandler(&mockRegistrationSvc{})
	rr := httptest.NewRecorder()
	h.Complete(rr, completeReq(t, domain.CompleteRegistrationRequest{Username: "alice", Password: "password123"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestComplete_InvalidBody(t *testing.T) {
	h := NewRegistrationHandler(&mockRegistrationSvc{})
	rr := httptest.NewRecorder()
	h.Complete(rr, withTicket(httptest.NewRequest(http.MethodPost, "/v1/registrations", bytes.NewBufferString("{"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestComplete_ValidationFailure(t *testing.T) {
	svc := &mockRegistrationSvc{}
	h := NewRegistrationHandler(svc)
	rr := httptest.NewRecorder()
	h.Complete(rr, withTicket(completeReq(t, domain.CompleteRegistrationRequest{Username: "al", Password: "short"})))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	svc.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestComplete_Created(t *testing.T) {
	svc := &mockRegistrationSvc{}
	svc.On("Complete", mock.Anything, registration.Ticket{Email: "a@b.com", Key: "k1", ClientID: "web"}, mock.Anything).
		Return(&domain.Account{AccountID: "01J", Email: "a@b.com", Username: "alice", PasswordHash: "$2a$secret"}, nil)
	h := NewRegistrationHandler(svc)

	rr := httptest.NewRecorder()
	h.Complete(rr, withTicket(completeReq(t, domain.CompleteRegistrationRequest{Username: "alice", Password: "password123"})))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "$2a$secret")
	var resp AccountEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "01J", resp.Account.AccountID)
	svc.AssertExpectations(t)
}

func TestComplete_EmailTaken(t *testing.T) {
	svc := &mockRegistrationSvc{}
	svc.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrConflict)
	h := NewRegistrationHandler(svc)

	rr := httptest.NewRecorder()
	h.Complete(rr, withTicket(completeReq(t, domain.CompleteRegistrationRequest{Username: "alice", Password: "password123"})))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestComplete_TicketAlreadyUsed(t *testing.T) {
	svc := &mockRegistrationSvc{}
	svc.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrUnauthorized)
	h := NewRegistrationHandler(svc)

	rr := httptest.NewRecorder()
	h.Complete(rr, withTicket(completeReq(t, domain.CompleteRegistrationRequest{Username: "alice", Password: "password123"})))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
