package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/go-verification-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) IsEmailRegistered(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}
func (m *mockAccounts) Register(ctx context.Context, a *domain.Account) error {
	return m.Called(ctx, a).Error(0)
}

type mockCodes struct{ mock.Mock }

func (m *mockCodes) GetCode(ctx context.Context, key string) (*domain.VerificationCode, error) {
	args := m.Called(ctx, key)
	if c, _ := args.Get(0).(*domain.VerificationCode); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCodes) DeleteCodes(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// --- helpers ---

func ticket() Ticket {
	return Ticket{Email: "a@b.com", Key: "k1", ClientID: "web", TrafficSource: "newsletter"}
}

func req() domain.CompleteRegistrationRequest {
	return domain.CompleteRegistrationRequest{Username: "alice", Password: "password123"}
}

func liveCode() *domain.VerificationCode {
	return &domain.VerificationCode{Partition: domain.VerificationCodePartition, Key: "k1", Email: "a@b.com"}
}

func newService(a *mockAccounts, c *mockCodes) Service {
	return NewService(ServiceDeps{Accounts: a, Codes: c, BcryptCost: bcrypt.MinCost})
}

// --- tests ---

func TestComplete_Success(t *testing.T) {
	a := &mockAccounts{}
	c := &mockCodes{}
	c.On("GetCode", mock.Anything, "k1").Return(liveCode(), nil)
	a.On("IsEmailRegistered", mock.Anything, "a@b.com").Return(false, nil)
	a.On("Register", mock.Anything, mock.AnythingOfType("*domain.Account")).Return(nil)
	c.On("DeleteCodes", mock.Anything, "a@b.com").Return(nil)

	acc, err := newService(a, c).Complete(context.Background(), ticket(), req())
	require.NoError(t, err)
	assert.NotEmpty(t, acc.AccountID)
	assert.Equal(t, "a@b.com", acc.Email)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, "web", acc.ClientID)
	assert.Equal(t, "newsletter", acc.Traffic)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("password123")))
	a.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestComplete_UsedTicket(t *testing.T) {
	a := &mockAccounts{}
	c := &mockCodes{}
	c.On("GetCode", mock.Anything, "k1").Return(nil, nil)

	_, err := newService(a, c).Complete(context.Background(), ticket(), req())
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	a.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestComplete_TicketForOtherEmail(t *testing.T) {
	a := &mockAccounts{}
	c := &mockCodes{}
	other := liveCode()
	other.Email = "x@y.com"
	c.On("GetCode", mock.Anything, "k1").Return(other, nil)

	_, err := newService(a, c).Complete(context.Background(), ticket(), req())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestComplete_EmailTakenDeletesCodes(t *testing.T) {
	a := &mockAccounts{}
	c := &mockCodes{}
	c.On("GetCode", mock.Anything, "k1").Return(liveCode(), nil)
	a.On("IsEmailRegistered", mock.Anything, "a@b.com").Return(true, nil)
	c.On("DeleteCodes", mock.Anything, "a@b.com").Return(nil).Once()

	_, err := newService(a, c).Complete(context.Background(), ticket(), req())
	assert.ErrorIs(t, err, domain.ErrConflict)
	c.AssertExpectations(t)
	a.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestComplete_RegisterFailsKeepsCodes(t *testing.T) {
	a := &mockAccounts{}
	c := &mockCodes{}
	c.On("GetCode", mock.Anything, "k1").Return(liveCode(), nil)
	a.On("IsEmailRegistered", mock.Anything, "a@b.com").Return(false, nil)
	a.On("Register", mock.Anything, mock.Anything).Return(domain.ErrStorageUnavailable)

	_, err := newService(a, c).Complete(context.Background(), ticket(), req())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	c.AssertNotCalled(t, "DeleteCodes", mock.Anything, mock.Anything)
}

func TestComplete_CleanupFailureStillSucceeds(t *testing.T) {
	a := &mockAccounts{}
	c := &mockCodes{}
	c.On("GetCode", mock.Anything, "k1").Return(liveCode(), nil)
	a.On("IsEmailRegistered", mock.Anything, "a@b.com").Return(false, nil)
	a.On("Register", mock.Anything, mock.Anything).Return(nil)
	c.On("DeleteCodes", mock.Anything, "a@b.com").Return(domain.ErrStorageUnavailable)

	acc, err := newService(a, c).Complete(context.Background(), ticket(), req())
	require.NoError(t, err)
	assert.NotNil(t, acc)
}
