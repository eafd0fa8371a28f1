package http

import (
	"context"

	"github.com/go-verification-nosql/internal/domain"
)

// CodeStore is the storage the verification workflow runs on.
type CodeStore = domain.KeyValueStore[domain.VerificationCode]

// AccountRepository is the minimal interface the router requires from the
// account backend: existence checks for VerifyCode and the registration sink.
type AccountRepository interface {
	IsEmailRegistered(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, a *domain.Account) error
}
