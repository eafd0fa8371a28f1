package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-verification-nosql/internal/domain"
)

// AccountRepo is an in-memory account registry keyed by id with an email index.
type AccountRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.Account
	byEmail map[string]string
}

func NewAccountRepo() *AccountRepo {
	return &AccountRepo{byID: make(map[string]domain.Account), byEmail: make(map[string]string)}
}

func (r *AccountRepo) IsEmailRegistered(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

// Register rejects a reused account id or email with domain.ErrConflict.
func (r *AccountRepo) Register(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.AccountID]; ok {
		return fmt.Errorf("account %s exists: %w", a.AccountID, domain.ErrConflict)
	}
	if _, ok := r.byEmail[a.Email]; ok {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	r.byID[a.AccountID] = *a
	r.byEmail[a.Email] = a.AccountID
	return nil
}
