// Package rate caps how often a key may act within a fixed window. It guards
// login attempts per client IP and verification-code checks per user.
package rate

import (
	"context"
	"time"
)

const (
	// DefaultCodeChecks is how many code checks a user gets per window.
	DefaultCodeChecks = 10
	DefaultCodeWindow = 5 * time.Minute
)

// Limiter counts attempts per key within a fixed window. retryAfter is set
// when the attempt is refused.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// LoginKey scopes sign-in attempts to the client address.
func LoginKey(ip string) string { return "login:" + ip }

// CodeKey scopes verification-code checks to the account, whichever service
// performs them.
func CodeKey(userID string) string { return "code:" + userID }
