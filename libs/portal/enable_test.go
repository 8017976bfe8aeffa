package portal

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osiastedian/syshub/libs/totp"
)

func TestEnableFlowOpenGeneratesOnce(t *testing.T) {
	flow := NewEnableFlow(newFakeSession(), nil, WithClock(clockwork.NewFakeClock()))

	first, err := flow.Open()
	require.NoError(t, err)
	second, err := flow.Open()
	require.NoError(t, err)

	assert.Equal(t, StateSetup, flow.State())
	assert.Equal(t, first.Secret, second.Secret)
	assert.Contains(t, first.OTPAuthURL, "alice@example.com")
}

func TestEnableFlowLocalCheckBeforeNetwork(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := newFakeSession()
	flow := NewEnableFlow(session, nil, WithClock(clock))

	setup, err := flow.Open()
	require.NoError(t, err)
	good, err := totp.CodeAt(setup.Secret, clock.Now())
	require.NoError(t, err)

	wrong := "000000"
	if wrong == good {
		wrong = "111111"
	}

	cases := []struct {
		name     string
		password string
		code     string
	}{
		{"empty password", "", good},
		{"short code", "hunter22", good[:5]},
		{"letters", "hunter22", "12a456"},
		{"wrong code", "hunter22", wrong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := flow.Submit(context.Background(), tc.password, tc.code)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Equal(t, StateError, flow.State())
		})
	}
	assert.Equal(t, 0, session.updateCount())
}

func TestEnableFlowBackendRejectionKeepsSecretThenSucceeds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := newFakeSession()
	session.updateFn = func(req UpdateUserRequest) error {
		if req.Password != "correct-horse" {
			return &APIError{Status: 401, Code: "INVALID_CREDENTIAL", Message: "wrong password"}
		}
		return nil
	}
	logouts := &logoutCounter{}
	flow := NewEnableFlow(session, logouts.logout, WithClock(clock))

	setup, err := flow.Open()
	require.NoError(t, err)
	code, err := totp.CodeAt(setup.Secret, clock.Now())
	require.NoError(t, err)

	err = flow.Submit(context.Background(), "wrong", code)
	require.Error(t, err)
	assert.Equal(t, "wrong password", err.Error())
	assert.Equal(t, StateSetup, flow.State())
	assert.Equal(t, 1, session.updateCount())

	again, err := flow.Open()
	require.NoError(t, err)
	assert.Equal(t, setup.Secret, again.Secret)

	require.NoError(t, flow.Submit(context.Background(), "correct-horse", code))
	assert.Equal(t, StateSuccess, flow.State())
	assert.False(t, flow.Close())

	last := session.updates[len(session.updates)-1]
	require.NotNil(t, last.TwoFA)
	require.NotNil(t, last.TwoFA.GAuth)
	assert.True(t, *last.TwoFA.GAuth)
	assert.Equal(t, setup.Secret, last.TwoFA.Secret)
	assert.Equal(t, code, last.Code)

	runCountdown(t, clock, flow.LoggedOut(), logouts)
	assert.Equal(t, StateLoggedOut, flow.State())
	assert.False(t, flow.Close())
}

func TestEnableFlowCloseDiscardsSecret(t *testing.T) {
	flow := NewEnableFlow(newFakeSession(), nil, WithClock(clockwork.NewFakeClock()))

	first, err := flow.Open()
	require.NoError(t, err)
	require.True(t, flow.Close())
	assert.Equal(t, StateIdle, flow.State())

	second, err := flow.Open()
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)
}

func TestEnableFlowDropsResultAfterClose(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := newFakeSession()
	release := make(chan struct{})
	entered := make(chan struct{})
	session.updateFn = func(UpdateUserRequest) error {
		close(entered)
		<-release
		return nil
	}
	logouts := &logoutCounter{}
	flow := NewEnableFlow(session, logouts.logout, WithClock(clock))

	setup, err := flow.Open()
	require.NoError(t, err)
	code, err := totp.CodeAt(setup.Secret, clock.Now())
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() { result <- flow.Submit(context.Background(), "pw", code) }()

	<-entered
	assert.Equal(t, StateSubmitting, flow.State())
	assert.True(t, flow.Close())
	close(release)

	assert.ErrorIs(t, <-result, ErrFlowClosed)
	assert.Equal(t, StateIdle, flow.State())
	assert.Nil(t, flow.LoggedOut())
	assert.Equal(t, 0, logouts.count())
}

func TestEnableFlowRequiresSession(t *testing.T) {
	session := newFakeSession()
	session.user = nil
	flow := NewEnableFlow(session, nil)

	_, err := flow.Open()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestEnableFlowRefusesWhenFactorActive(t *testing.T) {
	for _, factors := range []TwoFactor{{GAuth: true}, {SMS: true}} {
		session := newFakeSession()
		session.user.TwoFA = factors
		flow := NewEnableFlow(session, nil, WithClock(clockwork.NewFakeClock()))

		setup, err := flow.Open()
		assert.ErrorIs(t, err, ErrAlreadyEnabled)
		assert.Nil(t, setup)
		assert.Equal(t, StateIdle, flow.State())
		assert.Empty(t, session.updates)
	}
}
