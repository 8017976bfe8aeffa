package portal

import (
	"context"
	"sync"

	"github.com/osiastedian/syshub/libs/totp"
)

// EnableFlow enrolls an authenticator app. The secret is generated and checked
// locally; the backend only sees it once the user proved they scanned it.
type EnableFlow struct {
	session ProfileSession
	logout  func()
	opts    flowOptions

	mu      sync.Mutex
	state   State
	setup   *totp.SetupData
	lastErr error
	gen     uint64
	timer   *logoutTimer
}

func NewEnableFlow(session ProfileSession, logout func(), opts ...FlowOption) *EnableFlow {
	return &EnableFlow{session: session, logout: logout, opts: buildOptions(opts)}
}

func (f *EnableFlow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *EnableFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Open enters Setup. The secret is generated on the first call only; later
// calls return the same data until the flow is closed.
func (f *EnableFlow) Open() (*totp.SetupData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateSuccess, StateLoggedOut:
		return nil, ErrInvalidState
	case StateIdle:
		user, ok := f.session.Current()
		if !ok {
			return nil, ErrNotLoggedIn
		}
		if user.TwoFA.Enabled() {
			return nil, ErrAlreadyEnabled
		}
		setup, err := totp.Generate(f.opts.issuer, user.Email)
		if err != nil {
			return nil, err
		}
		f.setup = setup
		f.state = StateSetup
	}

	cp := *f.setup
	return &cp, nil
}

// Submit checks password and code locally and only then asks the backend to
// enable the authenticator. A backend rejection returns the flow to Setup
// with the same secret.
func (f *EnableFlow) Submit(ctx context.Context, password, code string) error {
	f.mu.Lock()
	if f.state != StateSetup && f.state != StateError {
		f.mu.Unlock()
		return ErrInvalidState
	}

	if err := f.check(password, code); err != nil {
		f.state = StateError
		f.lastErr = err
		f.mu.Unlock()
		return err
	}

	f.state = StateSubmitting
	f.lastErr = nil
	gen := f.gen
	secret := f.setup.Secret
	f.mu.Unlock()

	enabled := true
	_, err := f.session.Update(ctx, UpdateUserRequest{
		Password: password,
		TwoFA:    &TwoFactorUpdate{GAuth: &enabled, Secret: secret},
		Code:     code,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return ErrFlowClosed
	}
	if err != nil {
		f.state = StateSetup
		f.lastErr = err
		return err
	}

	f.state = StateSuccess
	f.setup = nil
	f.timer = startLogout(f.opts, f.finish)
	return nil
}

func (f *EnableFlow) check(password, code string) error {
	if err := requirePassword(password); err != nil {
		return err
	}
	if err := requireCode(code); err != nil {
		return err
	}
	if !totp.ValidateAt(f.setup.Secret, code, f.opts.clock.Now()) {
		return &ValidationError{Field: "code", Message: "invalid verification code"}
	}
	return nil
}

func (f *EnableFlow) finish() {
	f.mu.Lock()
	f.state = StateLoggedOut
	f.mu.Unlock()
	if f.logout != nil {
		f.logout()
	}
}

// Close discards the secret and resets the flow. Once Success is reached the
// countdown cannot be interrupted and Close returns false.
func (f *EnableFlow) Close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSuccess || f.state == StateLoggedOut {
		return false
	}
	f.gen++
	f.state = StateIdle
	f.setup = nil
	f.lastErr = nil
	return true
}

// LoggedOut is closed after the logout callback ran; nil before Success.
func (f *EnableFlow) LoggedOut() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer == nil {
		return nil
	}
	return f.timer.done
}
