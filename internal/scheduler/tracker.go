package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tracker records per-source fetch outcomes and keeps a backoff window per
// failing source. A source inside its window is skipped for the round; the
// window doubles on each consecutive failure up to a ceiling and resets on
// the first success.
type Tracker struct {
	base    time.Duration
	ceiling time.Duration
	clock   clockwork.Clock

	mu    sync.Mutex
	state map[string]*sourceState
}

type sourceState struct {
	failures int
	nextTry  time.Time
}

// NewTracker creates a Tracker with the given base delay and ceiling.
func NewTracker(base, ceiling time.Duration, clock clockwork.Clock) *Tracker {
	return &Tracker{
		base:    base,
		ceiling: ceiling,
		clock:   clock,
		state:   make(map[string]*sourceState),
	}
}

// Ready reports whether the source may be fetched now.
func (t *Tracker) Ready(sourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.state[sourceID]
	if !ok {
		return true
	}
	return !t.clock.Now().Before(s.nextTry)
}

// Success clears the source's failure history.
func (t *Tracker) Success(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, sourceID)
}

// Failure records a fetch failure and returns the wait before the source is
// tried again.
func (t *Tracker) Failure(sourceID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.state[sourceID]
	if !ok {
		s = &sourceState{}
		t.state[sourceID] = s
	}
	s.failures++

	wait := t.base << (s.failures - 1)
	if wait > t.ceiling || wait <= 0 {
		wait = t.ceiling
	}
	s.nextTry = t.clock.Now().Add(wait)
	return wait
}
