package portal

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletionFlowSurfacesInvalidCredential(t *testing.T) {
	session := newFakeSession()
	session.reauthErr = &APIError{Status: 401, Code: "INVALID_CREDENTIAL", Message: "invalid credential"}
	flow := NewDeletionFlow(session, nil)

	needsCode, err := flow.Confirm(context.Background(), "alice@example.com", "nope")
	require.Error(t, err)
	assert.False(t, needsCode)
	assert.Equal(t, "invalid credential", err.Error())
	assert.Equal(t, StateError, flow.State())
	assert.Empty(t, session.deletes)
}

func TestDeletionFlowRequiresPassword(t *testing.T) {
	session := newFakeSession()
	flow := NewDeletionFlow(session, nil)

	_, err := flow.Confirm(context.Background(), "alice@example.com", "")
	assert.True(t, IsValidation(err))
	assert.Empty(t, session.reauthSeen)
}

func TestDeletionFlowWithoutTwoFactorDeletesImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := newFakeSession()
	logouts := &logoutCounter{}
	flow := NewDeletionFlow(session, logouts.logout, WithClock(clock))

	needsCode, err := flow.Confirm(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)
	assert.False(t, needsCode)
	assert.Equal(t, []string{"reauth-token|"}, session.deletes)
	assert.Equal(t, StateSuccess, flow.State())

	runCountdown(t, clock, flow.LoggedOut(), logouts)
}

func TestDeletionFlowWithTwoFactor(t *testing.T) {
	clock := clockwork.NewFakeClock()
	session := newFakeSession()
	session.status = TwoFactorStatus{Enabled: true, GAuth: true}
	session.validCode = "246810"
	logouts := &logoutCounter{}
	flow := NewDeletionFlow(session, logouts.logout, WithClock(clock))

	needsCode, err := flow.Confirm(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, needsCode)
	assert.Equal(t, StateAwaitingCode, flow.State())
	assert.Empty(t, session.deletes)

	err = flow.SubmitCode(context.Background(), "12345")
	assert.True(t, IsValidation(err))
	assert.Empty(t, session.verified)

	err = flow.SubmitCode(context.Background(), "111111")
	require.Error(t, err)
	assert.Equal(t, StateAwaitingCode, flow.State())
	assert.Empty(t, session.deletes)
	_, stillThere := session.Current()
	assert.True(t, stillThere)

	require.NoError(t, flow.SubmitCode(context.Background(), "246810"))
	assert.Equal(t, []string{"reauth-token|246810"}, session.deletes)
	assert.False(t, flow.Close())

	runCountdown(t, clock, flow.LoggedOut(), logouts)
	assert.Equal(t, StateLoggedOut, flow.State())
}

func TestDeletionFlowCloseClearsReauth(t *testing.T) {
	session := newFakeSession()
	session.status = TwoFactorStatus{Enabled: true, SMS: true}
	flow := NewDeletionFlow(session, nil)

	_, err := flow.Confirm(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)
	require.True(t, flow.Close())

	assert.ErrorIs(t, flow.SubmitCode(context.Background(), "123456"), ErrInvalidState)
	assert.Empty(t, session.deletes)
}
