package portal

import (
	"context"
	"strings"
	"sync"
)

// DeletionFlow gates account removal behind a fresh re-authentication and,
// when a second factor is active, a verified code. Nothing is deleted unless
// every step succeeded.
type DeletionFlow struct {
	session AccountSession
	logout  func()
	opts    flowOptions

	mu          sync.Mutex
	state       State
	reauthToken string
	lastErr     error
	gen         uint64
	timer       *logoutTimer
}

func NewDeletionFlow(session AccountSession, logout func(), opts ...FlowOption) *DeletionFlow {
	return &DeletionFlow{session: session, logout: logout, opts: buildOptions(opts)}
}

func (f *DeletionFlow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *DeletionFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Confirm re-authenticates the user. It reports needsCode when the account
// has two-factor enabled; otherwise the account is deleted right away.
func (f *DeletionFlow) Confirm(ctx context.Context, email, password string) (needsCode bool, err error) {
	f.mu.Lock()
	if f.state != StateIdle && f.state != StateForm && f.state != StateError {
		f.mu.Unlock()
		return false, ErrInvalidState
	}
	if _, ok := f.session.Current(); !ok {
		f.mu.Unlock()
		return false, ErrNotLoggedIn
	}
	if strings.TrimSpace(email) == "" {
		f.mu.Unlock()
		return false, f.fail(&ValidationError{Field: "email", Message: "email is required"})
	}
	if err := requirePassword(password); err != nil {
		f.mu.Unlock()
		return false, f.fail(err)
	}
	f.state = StateSubmitting
	gen := f.gen
	f.mu.Unlock()

	token, err := f.session.Reauthenticate(ctx, email, password)
	if err != nil {
		return false, f.abort(gen, err)
	}

	status, err := f.session.TwoFactorStatus(ctx)
	if err != nil {
		return false, f.abort(gen, err)
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return false, ErrFlowClosed
	}
	f.reauthToken = token
	if status.Enabled {
		f.state = StateAwaitingCode
		f.mu.Unlock()
		return true, nil
	}
	f.mu.Unlock()

	return false, f.delete(ctx, gen, token, "")
}

// SubmitCode verifies the second factor and deletes the account. A wrong
// code leaves the flow waiting for another attempt.
func (f *DeletionFlow) SubmitCode(ctx context.Context, code string) error {
	f.mu.Lock()
	if f.state != StateAwaitingCode {
		f.mu.Unlock()
		return ErrInvalidState
	}
	if err := requireCode(code); err != nil {
		f.lastErr = err
		f.mu.Unlock()
		return err
	}
	f.state = StateSubmitting
	f.lastErr = nil
	gen := f.gen
	token := f.reauthToken
	f.mu.Unlock()

	if err := f.session.VerifyCode(ctx, code); err != nil {
		return f.retryCode(gen, err)
	}
	if err := f.delete(ctx, gen, token, code); err != nil {
		return err
	}
	return nil
}

func (f *DeletionFlow) delete(ctx context.Context, gen uint64, token, code string) error {
	if err := f.session.Delete(ctx, token, code); err != nil {
		if code != "" {
			return f.retryCode(gen, err)
		}
		return f.abort(gen, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateSuccess
	f.reauthToken = ""
	f.timer = startLogout(f.opts, f.finish)
	return nil
}

func (f *DeletionFlow) retryCode(gen uint64, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return ErrFlowClosed
	}
	f.state = StateAwaitingCode
	f.lastErr = err
	return err
}

func (f *DeletionFlow) abort(gen uint64, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return ErrFlowClosed
	}
	f.state = StateError
	f.reauthToken = ""
	f.lastErr = err
	return err
}

func (f *DeletionFlow) fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateError
	f.lastErr = err
	return err
}

func (f *DeletionFlow) finish() {
	f.mu.Lock()
	f.state = StateLoggedOut
	f.mu.Unlock()
	if f.logout != nil {
		f.logout()
	}
}

func (f *DeletionFlow) Close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSuccess || f.state == StateLoggedOut {
		return false
	}
	f.gen++
	f.state = StateIdle
	f.reauthToken = ""
	f.lastErr = nil
	return true
}

func (f *DeletionFlow) LoggedOut() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer == nil {
		return nil
	}
	return f.timer.done
}
