package api

import (
	"time"
)

// ProgressSnapshot is a point-in-time view of a task's progress.
// StepsCompleted never exceeds StepsTotal.
type ProgressSnapshot struct {
	StepsCompleted int       `json:"stepsCompleted"`
	StepsTotal     int       `json:"stepsTotal"`
	StartedAt      time.Time `json:"startedAt"`
}

// Elapsed returns the time since the task started, or zero if it has not.
func (p ProgressSnapshot) Elapsed() time.Duration {
	if p.StartedAt.IsZero() {
		return 0
	}
	return time.Since(p.StartedAt)
}

// Percent returns completion in the range [0,100].
func (p ProgressSnapshot) Percent() float64 {
	if p.StepsTotal <= 0 {
		return 0
	}
	return float64(p.StepsCompleted) * 100 / float64(p.StepsTotal)
}
