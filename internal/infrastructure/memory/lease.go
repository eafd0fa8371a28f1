package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/pkg/id"
)

type leaseEntry struct {
	holder string
	until  time.Time
}

// LeaseStore is an in-memory domain.Leaser.
type LeaseStore struct {
	mu     sync.Mutex
	leases map[string]leaseEntry
	wait   time.Duration
	poll   time.Duration
	nowF   func() time.Time
}

func NewLeaseStore(wait time.Duration) *LeaseStore {
	return &LeaseStore{
		leases: make(map[string]leaseEntry),
		wait:   wait,
		poll:   5 * time.Millisecond,
		nowF:   time.Now,
	}
}

func (s *LeaseStore) Acquire(ctx context.Context, name string, ttl time.Duration) (domain.Lease, error) {
	holder := id.New()
	deadline := s.nowF().Add(s.wait)
	for {
		if s.tryAcquire(name, holder, ttl) {
			return &lease{store: s, name: name, holder: holder}, nil
		}
		if !s.nowF().Before(deadline) {
			return nil, fmt.Errorf("lease %q is held: %w", name, domain.ErrConflict)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

func (s *LeaseStore) tryAcquire(name, holder string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	if cur, ok := s.leases[name]; ok && now.Before(cur.until) {
		return false
	}
	s.leases[name] = leaseEntry{holder: holder, until: now.Add(ttl)}
	return true
}

type lease struct {
	store  *LeaseStore
	name   string
	holder string
}

func (l *lease) Release(_ context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if cur, ok := l.store.leases[l.name]; ok && cur.holder == l.holder {
		delete(l.store.leases, l.name)
	}
	return nil
}
