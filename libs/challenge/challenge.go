// Package challenge issues and checks short-lived numeric codes sent over SMS
// and verifies a user's active second factor.
package challenge

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/osiastedian/syshub/libs/rate"
	"github.com/osiastedian/syshub/libs/totp"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 5
)

var (
	ErrNoChallenge     = errors.New("no pending challenge")
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrRateLimited matches a *LimitedError.
	ErrRateLimited     = errors.New("too many verification attempts")
)

// LimitedError is returned by Verifier.Check while a user's code checks are
// paused.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string { return ErrRateLimited.Error() }

func (e *LimitedError) Is(target error) bool { return target == ErrRateLimited }

// Store keeps one pending code per user. Verify does not consume a matching
// code, so the same code can be checked again until it expires.
type Store interface {
	Issue(ctx context.Context, userID string) (code string, err error)
	Verify(ctx context.Context, userID, code string) (bool, error)
}

type CodeGenerator interface {
	Code() (string, error)
}

type RandomCodes struct{}

func (RandomCodes) Code() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Factors is the second-factor state of an account.
type Factors struct {
	SMS    bool
	GAuth  bool
	Secret string
}

func (f Factors) Enabled() bool { return f.SMS || f.GAuth }

type Verifier struct {
	SMS      Store
	// Attempts caps checks per user across factors; nil means unlimited.
	Attempts rate.Limiter
	Now      func() time.Time
}

// Check validates code against whichever factor is active. An account
// without a second factor never matches. Every well-formed code counts
// against the user's attempt budget, matching or not.
func (v *Verifier) Check(ctx context.Context, userID string, f Factors, code string) (bool, error) {
	if !totp.IsCodeFormat(code) || !f.Enabled() {
		return false, nil
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	if v.Attempts != nil {
		allowed, retryAfter, err := v.Attempts.Allow(ctx, rate.CodeKey(userID), now)
		if err != nil {
			return false, fmt.Errorf("code attempt limit: %w", err)
		}
		if !allowed {
			return false, &LimitedError{RetryAfter: retryAfter}
		}
	}

	if f.GAuth {
		return totp.ValidateAt(f.Secret, code, now), nil
	}
	if v.SMS == nil {
		return false, nil
	}
	ok, err := v.SMS.Verify(ctx, userID, code)
	if errors.Is(err, ErrNoChallenge) || errors.Is(err, ErrTooManyAttempts) {
		return false, nil
	}
	return ok, err
}
