package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTransitionAllowsLifecycle(t *testing.T) {
	require.NoError(t, ValidateTransition(DeviceStateUnopened, DeviceStateOpened))
	require.NoError(t, ValidateTransition(DeviceStateOpened, DeviceStateRunning))
	require.NoError(t, ValidateTransition(DeviceStateRunning, DeviceStateStopped))
	require.NoError(t, ValidateTransition(DeviceStateStopped, DeviceStateRunning))
	require.NoError(t, ValidateTransition(DeviceStateStopped, DeviceStateClosed))
}

func TestValidateTransitionRejectsSkips(t *testing.T) {
	err := ValidateTransition(DeviceStateUnopened, DeviceStateRunning)
	require.Error(t, err)
}

func TestValidateTransitionClosedIsTerminal(t *testing.T) {
	require.Error(t, ValidateTransition(DeviceStateClosed, DeviceStateOpened))
}

func TestStateMachineTransition(t *testing.T) {
	sm := NewStateMachine()
	require.Equal(t, DeviceStateUnopened, sm.State())

	require.NoError(t, sm.Transition(DeviceStateOpened))
	require.Equal(t, DeviceStateOpened, sm.State())

	require.Error(t, sm.Transition(DeviceStateClosed+100))
}

func TestStateMachineFailForcesErrorState(t *testing.T) {
	sm := NewStateMachine()
	sm.Fail()
	require.Equal(t, DeviceStateError, sm.State())
}
