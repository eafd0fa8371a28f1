package registration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/pkg/id"
	"github.com/go-verification-nosql/internal/pkg/logging"
	"golang.org/x/crypto/bcrypt"
)

// Ticket is what a verified code entitles the holder to: one registration
// for Email, tied to the code record Key.
type Ticket struct {
	Email         string
	Key           string
	ClientID      string
	Referer       string
	TrafficSource string
}

type Service interface {
	Complete(ctx context.Context, t Ticket, req domain.CompleteRegistrationRequest) (*domain.Account, error)
}

type accountStore interface {
	IsEmailRegistered(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, a *domain.Account) error
}

type codeStore interface {
	GetCode(ctx context.Context, key string) (*domain.VerificationCode, error)
	DeleteCodes(ctx context.Context, email string) error
}

type service struct {
	accounts accountStore
	codes    codeStore
	cost     int
}

type ServiceDeps struct {
	Accounts accountStore
	Codes    codeStore
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

func NewService(deps ServiceDeps) Service {
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &service{accounts: deps.Accounts, codes: deps.Codes, cost: cost}
}

func (s *service) Complete(ctx context.Context, t Ticket, req domain.CompleteRegistrationRequest) (*domain.Account, error) {
	// The ticket is only good while its code record is live; completing a
	// registration deletes it, so a ticket cannot be replayed.
	rec, err := s.codes.GetCode(ctx, t.Key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Email != t.Email {
		return nil, fmt.Errorf("registration ticket already used: %w", domain.ErrUnauthorized)
	}

	registered, err := s.accounts.IsEmailRegistered(ctx, t.Email)
	if err != nil {
		return nil, err
	}
	if registered {
		if err := s.codes.DeleteCodes(ctx, t.Email); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}
	a := &domain.Account{
		AccountID:    id.New(),
		Email:        t.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		ClientID:     t.ClientID,
		Referer:      t.Referer,
		Traffic:      t.TrafficSource,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.Register(ctx, a); err != nil {
		return nil, err
	}

	if err := s.codes.DeleteCodes(ctx, t.Email); err != nil {
		// The account exists; leftover codes are cleared by the next AddCode.
		slog.Warn("delete codes after registration", "email", logging.RedactEmail(t.Email), "error", err)
	}
	slog.Info("registration completed", "account_id", a.AccountID, "email", logging.RedactEmail(t.Email))
	return a, nil
}
