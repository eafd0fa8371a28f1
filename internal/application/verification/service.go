package verification

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/pkg/logging"
	pkgtoken "github.com/go-verification-nosql/internal/pkg/token"
)

const (
	// DefaultResendLimit stops issuing new codes once resend_count reaches it.
	DefaultResendLimit = 2
	// DefaultLeaseTTL bounds how long an AddCode lease survives a crashed holder.
	DefaultLeaseTTL = 10 * time.Second

	keyAttempts = 3
)

// errLimitReached aborts a resend merge without writing.
var errLimitReached = errors.New("resend limit reached")

type Service interface {
	// AddCode replaces every code of req.Email with one fresh code.
	AddCode(ctx context.Context, req domain.AddCodeRequest) (*domain.VerificationCode, error)
	// GetCode returns nil, nil when key does not exist.
	GetCode(ctx context.Context, key string) (*domain.VerificationCode, error)
	// UpdateCode regenerates the code and increments resend_count unconditionally.
	UpdateCode(ctx context.Context, key string) (*domain.VerificationCode, error)
	// ResendCode is UpdateCode gated by the resend limit.
	ResendCode(ctx context.Context, key string) (domain.ResendResult, error)
	VerifyCode(ctx context.Context, key, code string) (domain.VerifyResult, error)
	DeleteCodes(ctx context.Context, email string) error
}

type accountChecker interface {
	IsEmailRegistered(ctx context.Context, email string) (bool, error)
}

type service struct {
	codes       domain.KeyValueStore[domain.VerificationCode]
	accounts    accountChecker
	leaser      domain.Leaser
	resendLimit int
	leaseTTL    time.Duration
	newKey      func() (string, error)
	newCode     func() (string, error)
}

// ServiceDeps wires the service. Leaser is optional: when nil, AddCode runs
// its delete-then-insert without a lock and two concurrent calls for one email
// may leave zero or two live codes behind.
type ServiceDeps struct {
	Codes       domain.KeyValueStore[domain.VerificationCode]
	Accounts    accountChecker
	Leaser      domain.Leaser
	ResendLimit int
	LeaseTTL    time.Duration
	NewKey      func() (string, error)
	NewCode     func() (string, error)
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		codes:       deps.Codes,
		accounts:    deps.Accounts,
		leaser:      deps.Leaser,
		resendLimit: deps.ResendLimit,
		leaseTTL:    deps.LeaseTTL,
		newKey:      deps.NewKey,
		newCode:     deps.NewCode,
	}
	if s.resendLimit < 0 {
		s.resendLimit = DefaultResendLimit
	}
	if s.leaseTTL <= 0 {
		s.leaseTTL = DefaultLeaseTTL
	}
	if s.newKey == nil {
		s.newKey = pkgtoken.NewKey
	}
	if s.newCode == nil {
		s.newCode = pkgtoken.NewCode
	}
	return s
}

func (s *service) AddCode(ctx context.Context, req domain.AddCodeRequest) (*domain.VerificationCode, error) {
	if s.leaser != nil {
		l, err := s.leaser.Acquire(ctx, leaseName(req.Email), s.leaseTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire add-code lease: %w", err)
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("release add-code lease", "email", logging.RedactEmail(req.Email), "error", err)
			}
		}()
	}

	if err := s.DeleteCodes(ctx, req.Email); err != nil {
		return nil, err
	}

	key, err := s.freshKey(ctx)
	if err != nil {
		return nil, err
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	rec := domain.VerificationCode{
		Partition:     domain.VerificationCodePartition,
		Key:           key,
		Email:         req.Email,
		Code:          code,
		Referer:       req.Referer,
		ReturnURL:     req.ReturnURL,
		ClientID:      req.ClientID,
		TrafficSource: req.TrafficSource,
	}
	if err := s.codes.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("verification code issued", "email", logging.RedactEmail(req.Email))
	return &rec, nil
}

// freshKey draws keys until one is unused.
func (s *service) freshKey(ctx context.Context) (string, error) {
	for range keyAttempts {
		key, err := s.newKey()
		if err != nil {
			return "", err
		}
		existing, err := s.codes.Get(ctx, domain.VerificationCodePartition, key)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return key, nil
		}
		slog.Warn("verification key collision, regenerating")
	}
	return "", fmt.Errorf("no unused key after %d attempts: %w", keyAttempts, domain.ErrConflict)
}

func (s *service) GetCode(ctx context.Context, key string) (*domain.VerificationCode, error) {
	return s.codes.Get(ctx, domain.VerificationCodePartition, key)
}

func (s *service) UpdateCode(ctx context.Context, key string) (*domain.VerificationCode, error) {
	rec, err := s.codes.Merge(ctx, domain.VerificationCodePartition, key, s.reissue)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *service) ResendCode(ctx context.Context, key string) (domain.ResendResult, error) {
	var current domain.VerificationCode
	rec, err := s.codes.Merge(ctx, domain.VerificationCodePartition, key, func(r domain.VerificationCode) (domain.VerificationCode, error) {
		if r.ResendCount >= s.resendLimit {
			current = r
			return r, errLimitReached
		}
		return s.reissue(r)
	})
	switch {
	case errors.Is(err, errLimitReached):
		slog.Info("resend limit reached", "email", logging.RedactEmail(current.Email), "resend_count", current.ResendCount)
		return domain.ResendResult{Issued: false, Code: &current}, nil
	case err != nil:
		return domain.ResendResult{}, err
	}
	return domain.ResendResult{Issued: true, Code: &rec}, nil
}

func (s *service) reissue(r domain.VerificationCode) (domain.VerificationCode, error) {
	code, err := s.newCode()
	if err != nil {
		return r, err
	}
	r.Code = code
	r.ResendCount++
	return r, nil
}

func (s *service) VerifyCode(ctx context.Context, key, code string) (domain.VerifyResult, error) {
	rec, err := s.codes.Get(ctx, domain.VerificationCodePartition, key)
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if rec == nil {
		return domain.VerifyResult{}, nil
	}
	res := domain.VerifyResult{Found: true, Code: rec}
	if subtle.ConstantTimeCompare([]byte(code), []byte(rec.Code)) != 1 {
		return res, nil
	}
	res.Matched = true

	registered, err := s.accounts.IsEmailRegistered(ctx, rec.Email)
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("check account: %w", err)
	}
	if registered {
		res.EmailAlreadyRegistered = true
		if err := s.DeleteCodes(ctx, rec.Email); err != nil {
			return domain.VerifyResult{}, err
		}
	}
	return res, nil
}

func (s *service) DeleteCodes(ctx context.Context, email string) error {
	var keys []string
	for rec, err := range s.codes.Scan(ctx, domain.VerificationCodePartition, domain.Eq(domain.AttrEmail, email)) {
		if err != nil {
			return err
		}
		keys = append(keys, rec.Key)
	}
	for _, k := range keys {
		if err := s.codes.DeleteIfExists(ctx, domain.VerificationCodePartition, k); err != nil {
			return err
		}
	}
	return nil
}

// leaseName keys the AddCode lease by a digest so lease items and logs do not
// carry the address itself.
func leaseName(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "addcode:" + hex.EncodeToString(sum[:])
}
