package hal

import "sync"

// StateMachine implements the shared Device state-transition bookkeeping
// so concrete Device types (mockaudio, and real backends as they are
// added) don't each reimplement ValidateTransition locking and error
// handling.
type StateMachine struct {
	mu    sync.Mutex
	state DeviceState
}

// NewStateMachine returns a StateMachine starting Unopened.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: DeviceStateUnopened}
}

// State returns the current state.
func (s *StateMachine) State() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition validates and applies a state change. On validation failure
// the state is left unchanged; the caller decides whether a failed
// operation (e.g. a backend Open syscall) should additionally force the
// machine into DeviceStateError via Fail.
func (s *StateMachine) Transition(to DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ValidateTransition(s.state, to); err != nil {
		return err
	}
	s.state = to
	return nil
}

// Fail forces the machine into the terminal Error state regardless of the
// current state, used when an underlying operation fails outright.
func (s *StateMachine) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = DeviceStateError
}
