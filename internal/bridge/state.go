package bridge

import "sync"

// ProcessState tracks one supervisor generation. States only move forward;
// StateTerminated is absorbing until the supervisor resets.
type ProcessState int

const (
	StateNotStarted ProcessState = iota
	StateStarting
	StateReady
	StateRunning
	StateStopping
	StateTerminated
)

func (s ProcessState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

type stateMachine struct {
	mu  sync.Mutex
	cur ProcessState
}

func (m *stateMachine) get() ProcessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// advance moves to the target state if it lies ahead of the current one.
func (m *stateMachine) advance(to ProcessState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to <= m.cur {
		return false
	}
	m.cur = to
	return true
}

// advanceFrom moves to the target state only from the given state.
func (m *stateMachine) advanceFrom(from, to ProcessState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != from || to <= from {
		return false
	}
	m.cur = to
	return true
}
