package progress

import (
	"sync"
	"time"

	"github.com/giantswarm/suidriver/internal/api"
)

// Tracker counts completed steps of one task.
type Tracker struct {
	mu        sync.Mutex
	completed int
	total     int
	startedAt time.Time
	now       func() time.Time
}

// NewTracker returns a tracker with a zero estimate.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Start records the start time. Later calls have no effect.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() {
		t.startedAt = t.now()
	}
}

// SetEstimatedTotal sets the estimated number of steps. The estimate never
// drops below the number of steps already completed.
func (t *Tracker) SetEstimatedTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < t.completed {
		n = t.completed
	}
	t.total = n
}

// Grow raises the estimate by n steps discovered while running.
func (t *Tracker) Grow(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.total += n
	t.mu.Unlock()
}

// Advance records one completed step. If that reaches the estimate the
// estimate is bumped, so a running task never shows as complete.
func (t *Tracker) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	if t.completed >= t.total {
		t.total++
	}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() api.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return api.ProgressSnapshot{
		StepsCompleted: t.completed,
		StepsTotal:     t.total,
		StartedAt:      t.startedAt,
	}
}
