package pipeline

import (
	"log/slog"
	"sync"
)

// state names the checkpoints of one invocation. Transitions are logged so
// threshold tuning and skip-conditions stay visible instead of buried in
// conditionals.
type state int

const (
	stateDecoded state = iota + 1
	stateAuthorityChecked
	stateLocallyExtracted
	stateVisionChecked
	stateReconciled
)

func (s state) String() string {
	switch s {
	case stateDecoded:
		return "decoded"
	case stateAuthorityChecked:
		return "authority_checked"
	case stateLocallyExtracted:
		return "locally_extracted"
	case stateVisionChecked:
		return "vision_checked"
	case stateReconciled:
		return "reconciled"
	}
	return "unknown"
}

// stateMachine tracks the checkpoints of one invocation in order. The
// decode→authority chain advances it from its own goroutine, but only
// before the join point, so transitions stay monotonic; the mutex makes
// the current-state read safe anyway.
type stateMachine struct {
	logger *slog.Logger

	mu      sync.Mutex
	current state
}

func newStateMachine(logger *slog.Logger) *stateMachine {
	return &stateMachine{logger: logger}
}

// advance moves to s and logs the transition. Stages may be skipped but
// never revisited; a backwards transition is a bug in the orchestration
// and is logged instead of recorded.
func (m *stateMachine) advance(s state, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s <= m.current {
		m.logger.Warn("pipeline.state.out_of_order",
			"current", m.current.String(), "requested", s.String())
		return
	}
	m.current = s
	m.logger.Debug("pipeline.state."+s.String(), args...)
}

func (m *stateMachine) currentState() state {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
