package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	user     *User
	updates  []UpdateUserRequest
	updateFn func(req UpdateUserRequest) error

	reauthErr  error
	status     TwoFactorStatus
	validCode  string
	verified   []string
	deletes    []string
	deleteErr  error
	reauthSeen []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{user: &User{ID: uuid.New(), Email: "alice@example.com"}}
}

func (s *fakeSession) Current() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *fakeSession) Update(_ context.Context, req UpdateUserRequest) (*User, error) {
	s.mu.Lock()
	s.updates = append(s.updates, req)
	fn := s.updateFn
	s.mu.Unlock()
	if fn != nil {
		if err := fn(req); err != nil {
			return nil, err
		}
	}
	u, _ := s.Current()
	return &u, nil
}

func (s *fakeSession) Reauthenticate(_ context.Context, email, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reauthSeen = append(s.reauthSeen, email)
	if s.reauthErr != nil {
		return "", s.reauthErr
	}
	return "reauth-token", nil
}

func (s *fakeSession) TwoFactorStatus(context.Context) (*TwoFactorStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	return &st, nil
}

func (s *fakeSession) VerifyCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = append(s.verified, code)
	if code != s.validCode {
		return &APIError{Status: 406, Code: "INVALID_CODE", Message: "invalid verification code"}
	}
	return nil
}

func (s *fakeSession) Delete(_ context.Context, reauthToken, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, reauthToken+"|"+code)
	s.user = nil
	return nil
}

func (s *fakeSession) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type logoutCounter struct {
	mu sync.Mutex
	n  int
}

func (l *logoutCounter) logout() {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
}

func (l *logoutCounter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// runCountdown drives three one-second ticks on the fake clock and checks
// that logout fires only after the last one.
func runCountdown(t *testing.T, clock clockwork.FakeClock, done <-chan struct{}, logouts *logoutCounter) {
	t.Helper()
	require.NotNil(t, done)
	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		require.Equal(t, 0, logouts.count(), "logout before tick %d", i+1)
		clock.Advance(time.Second)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logout never fired")
	}
	require.Equal(t, 1, logouts.count())
}
