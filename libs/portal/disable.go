package portal

import (
	"context"
	"sync"
)

// DisableFlow turns every second factor off. Unlike enrolment the code is
// checked by the backend only.
type DisableFlow struct {
	session ProfileSession
	logout  func()
	opts    flowOptions

	mu      sync.Mutex
	state   State
	lastErr error
	gen     uint64
	timer   *logoutTimer
}

func NewDisableFlow(session ProfileSession, logout func(), opts ...FlowOption) *DisableFlow {
	return &DisableFlow{session: session, logout: logout, opts: buildOptions(opts)}
}

func (f *DisableFlow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *DisableFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *DisableFlow) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateIdle:
		if _, ok := f.session.Current(); !ok {
			return ErrNotLoggedIn
		}
		f.state = StateForm
	case StateSuccess, StateLoggedOut:
		return ErrInvalidState
	}
	return nil
}

// CanSubmit reports whether the form is complete enough to send.
func (f *DisableFlow) CanSubmit(password, code string) bool {
	return requirePassword(password) == nil && requireCode(code) == nil
}

func (f *DisableFlow) Submit(ctx context.Context, password, code string) error {
	f.mu.Lock()
	if f.state != StateForm {
		f.mu.Unlock()
		return ErrInvalidState
	}
	if err := requirePassword(password); err != nil {
		f.lastErr = err
		f.mu.Unlock()
		return err
	}
	if err := requireCode(code); err != nil {
		f.lastErr = err
		f.mu.Unlock()
		return err
	}
	f.state = StateSubmitting
	f.lastErr = nil
	gen := f.gen
	f.mu.Unlock()

	off := false
	_, err := f.session.Update(ctx, UpdateUserRequest{
		Password: password,
		TwoFA:    &TwoFactorUpdate{SMS: &off, GAuth: &off},
		Code:     code,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return ErrFlowClosed
	}
	if err != nil {
		f.state = StateForm
		f.lastErr = err
		return err
	}

	f.state = StateSuccess
	f.timer = startLogout(f.opts, f.finish)
	return nil
}

func (f *DisableFlow) finish() {
	f.mu.Lock()
	f.state = StateLoggedOut
	f.mu.Unlock()
	if f.logout != nil {
		f.logout()
	}
}

func (f *DisableFlow) Close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSuccess || f.state == StateLoggedOut {
		return false
	}
	f.gen++
	f.state = StateIdle
	f.lastErr = nil
	return true
}

func (f *DisableFlow) LoggedOut() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer == nil {
		return nil
	}
	return f.timer.done
}
