package portal

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/osiastedian/syshub/libs/countdown"
	"github.com/osiastedian/syshub/libs/totp"
)

type State int

const (
	StateIdle State = iota
	StateSetup
	StateForm
	StateSubmitting
	StateError
	StateAwaitingCode
	StateSuccess
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSetup:
		return "setup"
	case StateForm:
		return "form"
	case StateSubmitting:
		return "submitting"
	case StateError:
		return "error"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateSuccess:
		return "success"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// ProfileSession is what the two-factor flows need from the session provider.
type ProfileSession interface {
	Current() (User, bool)
	Update(ctx context.Context, req UpdateUserRequest) (*User, error)
}

// AccountSession is what the deletion flow needs from the session provider.
type AccountSession interface {
	Current() (User, bool)
	Reauthenticate(ctx context.Context, email, password string) (string, error)
	TwoFactorStatus(ctx context.Context) (*TwoFactorStatus, error)
	VerifyCode(ctx context.Context, code string) error
	Delete(ctx context.Context, reauthToken, code string) error
}

type flowOptions struct {
	clock    clockwork.Clock
	ticks    int
	interval time.Duration
	onTick   func(remaining int)
	issuer   string
}

type FlowOption func(*flowOptions)

func WithClock(clock clockwork.Clock) FlowOption {
	return func(o *flowOptions) { o.clock = clock }
}

// WithCountdown overrides the 3×1s countdown that precedes logout.
func WithCountdown(ticks int, interval time.Duration) FlowOption {
	return func(o *flowOptions) {
		o.ticks = ticks
		o.interval = interval
	}
}

func WithTick(fn func(remaining int)) FlowOption {
	return func(o *flowOptions) { o.onTick = fn }
}

func WithIssuer(issuer string) FlowOption {
	return func(o *flowOptions) { o.issuer = issuer }
}

func buildOptions(opts []FlowOption) flowOptions {
	o := flowOptions{
		clock:    clockwork.NewRealClock(),
		ticks:    countdown.DefaultTicks,
		interval: countdown.DefaultInterval,
		issuer:   "SysHub",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// logoutTimer starts the success countdown; done is closed once logout ran.
type logoutTimer struct {
	cd   *countdown.Countdown
	done chan struct{}
}

func startLogout(o flowOptions, complete func()) *logoutTimer {
	lt := &logoutTimer{done: make(chan struct{})}
	lt.cd = countdown.New(o.clock, o.ticks, o.interval, o.onTick, func() {
		complete()
		close(lt.done)
	})
	lt.cd.Start()
	return lt
}

func requireCode(code string) error {
	if !totp.IsCodeFormat(code) {
		return &ValidationError{Field: "code", Message: "code must be 6 digits"}
	}
	return nil
}

func requirePassword(password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}
