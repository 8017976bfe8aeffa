package portal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const refreshLeeway = 30 * time.Second

// Provider is the single source of truth for who is logged in. It is built
// once per process and shared by every flow.
type Provider struct {
	client *Client
	clock  clockwork.Clock
	logger *slog.Logger

	mu     sync.RWMutex
	user   *User
	tokens *Tokens
}

type ProviderOption func(*Provider)

func WithProviderClock(clock clockwork.Clock) ProviderOption {
	return func(p *Provider) { p.clock = clock }
}

func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

func NewProvider(client *Client, opts ...ProviderOption) *Provider {
	p := &Provider{client: client, clock: clockwork.NewRealClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Current() (User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return User{}, false
	}
	return *p.user, true
}

func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.tokens == nil {
		return ""
	}
	return p.tokens.AccessToken
}

// Login signs in and loads the profile. A second factor, when enabled on the
// account, must be passed as code.
func (p *Provider) Login(ctx context.Context, email, password, code string) (*User, error) {
	tokens, err := p.client.SignIn(ctx, email, password, code)
	if err != nil {
		return nil, err
	}
	tokens.ExpiresAt = p.clock.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)

	user, err := p.client.WithToken(tokens.AccessToken).GetUser(ctx, tokens.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	p.mu.Lock()
	p.tokens = tokens
	p.user = user
	p.mu.Unlock()

	cp := *user
	return &cp, nil
}

// Logout clears local state first and then revokes the refresh token.
// Calling it without a session is a no-op.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	tokens := p.tokens
	p.tokens = nil
	p.user = nil
	p.mu.Unlock()

	if tokens == nil {
		return nil
	}
	if err := p.client.SignOut(ctx, tokens.RefreshToken); err != nil {
		p.logger.Warn("sign out failed", "error", err)
		return err
	}
	return nil
}

func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.RLock()
	tokens := p.tokens
	p.mu.RUnlock()
	if tokens == nil {
		return ErrNotLoggedIn
	}

	fresh, err := p.client.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return err
	}
	fresh.ExpiresAt = p.clock.Now().Add(time.Duration(fresh.ExpiresIn) * time.Second)
	if fresh.UserID == uuid.Nil {
		fresh.UserID = tokens.UserID
	}

	p.mu.Lock()
	if p.tokens != nil {
		p.tokens = fresh
	}
	p.mu.Unlock()
	return nil
}

// API returns a client carrying the current bearer token, refreshing it first
// when it is about to expire.
func (p *Provider) API(ctx context.Context) (*Client, error) {
	p.mu.RLock()
	tokens := p.tokens
	p.mu.RUnlock()
	if tokens == nil {
		return nil, ErrNotLoggedIn
	}
	if !tokens.ExpiresAt.IsZero() && p.clock.Now().Add(refreshLeeway).After(tokens.ExpiresAt) {
		if err := p.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
	}
	return p.client.WithToken(p.Token()), nil
}

func (p *Provider) Update(ctx context.Context, req UpdateUserRequest) (*User, error) {
	api, user, err := p.authed(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := api.UpdateUser(ctx, user.ID, req)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.user != nil && p.user.ID == updated.ID {
		p.user = updated
	}
	p.mu.Unlock()

	cp := *updated
	return &cp, nil
}

func (p *Provider) Reauthenticate(ctx context.Context, email, password string) (string, error) {
	api, _, err := p.authed(ctx)
	if err != nil {
		return "", err
	}
	token, err := api.Reauthenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	return token.Token, nil
}

func (p *Provider) TwoFactorStatus(ctx context.Context) (*TwoFactorStatus, error) {
	api, user, err := p.authed(ctx)
	if err != nil {
		return nil, err
	}
	return api.TwoFactorStatus(ctx, user.ID)
}

func (p *Provider) VerifyCode(ctx context.Context, code string) error {
	api, user, err := p.authed(ctx)
	if err != nil {
		return err
	}
	return api.VerifyCode(ctx, user.ID, code)
}

func (p *Provider) RequestSMSCode(ctx context.Context) error {
	api, user, err := p.authed(ctx)
	if err != nil {
		return err
	}
	return api.RequestSMSCode(ctx, user.ID)
}

func (p *Provider) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	api, _, err := p.authed(ctx)
	if err != nil {
		return err
	}
	return api.ChangePassword(ctx, oldPassword, newPassword)
}

// Delete removes the account and drops the local session. The server has
// already revoked every token, so nothing is signed out remotely.
func (p *Provider) Delete(ctx context.Context, reauthToken, code string) error {
	api, user, err := p.authed(ctx)
	if err != nil {
		return err
	}
	if err := api.DeleteUser(ctx, user.ID, reauthToken, code); err != nil {
		return err
	}

	p.mu.Lock()
	p.tokens = nil
	p.user = nil
	p.mu.Unlock()
	return nil
}

func (p *Provider) authed(ctx context.Context) (*Client, User, error) {
	user, ok := p.Current()
	if !ok {
		return nil, User{}, ErrNotLoggedIn
	}
	api, err := p.API(ctx)
	if err != nil {
		return nil, User{}, err
	}
	return api, user, nil
}
