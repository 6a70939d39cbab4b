package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// State is a stage of a render run.
type State string

const (
	StatePending       State = "PENDING"
	StateSynthesizing  State = "SYNTHESIZING"
	StateConcatenating State = "CONCATENATING"
	StateReconciling   State = "RECONCILING"
	StateCompositing   State = "COMPOSITING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

var order = map[State]int{
	StatePending:       0,
	StateSynthesizing:  1,
	StateConcatenating: 2,
	StateReconciling:   3,
	StateCompositing:   4,
	StateDone:          5,
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Progress is a coarse completion percentage for the state.
func (s State) Progress() int {
	switch s {
	case StateSynthesizing:
		return 10
	case StateConcatenating:
		return 40
	case StateReconciling:
		return 55
	case StateCompositing:
		return 70
	case StateDone:
		return 100
	}
	return 0
}

// Transition records entry into a state.
type Transition struct {
	State State
	At    time.Time
	Err   error
}

// Tracker enforces forward-only progress through the run states. FAILED
// may be entered from any non-terminal state.
type Tracker struct {
	mu      sync.Mutex
	state   State
	history []Transition
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{state: StatePending, now: time.Now}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// History returns a copy of the transitions so far.
func (t *Tracker) History() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Transition(nil), t.history...)
}

// Advance moves to next, which must come strictly after the current state.
func (t *Tracker) Advance(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return fmt.Errorf("run already %s, cannot enter %s", t.state, next)
	}
	if next == StateFailed {
		return fmt.Errorf("use Fail to enter %s", next)
	}
	to, ok := order[next]
	if !ok || to <= order[t.state] {
		return fmt.Errorf("invalid transition %s -> %s", t.state, next)
	}
	t.state = next
	t.history = append(t.history, Transition{State: next, At: t.now()})
	return nil
}

// Fail moves to FAILED. Failing a terminal run is a no-op and returns false.
func (t *Tracker) Fail(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return false
	}
	t.state = StateFailed
	t.history = append(t.history, Transition{State: StateFailed, At: t.now(), Err: err})
	return true
}
