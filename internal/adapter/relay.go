package adapter

import (
	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/engine"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// relay is the adapter's engine listener. It keeps the verdict bookkeeping
// and forwards events to the callback slots.
type relay struct {
	a *Adapter
}

func (r *relay) CaseStarted(ref api.CaseRef) {
	a := r.a
	a.mu.Lock()
	if !a.suitesSeen[ref.Suite] {
		a.suitesSeen[ref.Suite] = true
		a.stats.Suites++
	}
	a.mu.Unlock()

	logging.Debug("Adapter", "Running test case %s", ref)
	if cb := a.opts.Callbacks.OnCaseStarted; cb != nil {
		cb(ref)
	}
}

func (r *relay) StepFinished(ref api.CaseRef, ev engine.StepEvent) {
	a := r.a
	step := api.StepResult{
		ID:          ev.ID,
		Label:       ev.Label,
		Status:      ev.Status,
		RawReport:   ev.Report,
		Attachments: ev.Attachments,
	}
	for _, assertion := range ev.Assertions {
		if assertion.Status != api.StatusFailed {
			continue
		}
		for _, msg := range assertion.Messages {
			logging.Debug("Adapter", "Assertion %q of step %q failed: %s", assertion.Name, ev.Label, msg)
		}
		step.Failures = append(step.Failures, api.FailureRecord{
			StepLabel:     ev.Label,
			AssertionName: assertion.Name,
			Messages:      append([]string(nil), assertion.Messages...),
			RawStepReport: ev.Report,
		})
	}

	a.mu.Lock()
	a.stats.Steps++
	a.stats.Assertions += len(ev.Assertions)
	a.failures = append(a.failures, step.Failures...)
	a.caseFailures[ref] += len(step.Failures)
	a.mu.Unlock()

	if cb := a.opts.Callbacks.OnStepFinished; cb != nil {
		cb(ref, step)
	}
}

func (r *relay) CaseFinished(ref api.CaseRef, status api.Status) {
	a := r.a
	a.mu.Lock()
	a.stats.Cases++
	if status == api.StatusFailed && a.caseFailures[ref] == 0 {
		a.failedWithoutAssertions = append(a.failedWithoutAssertions, ref.String())
	}
	a.mu.Unlock()

	logging.Debug("Adapter", "Finished test case %s with status %s", ref, status)
	if cb := a.opts.Callbacks.OnCaseFinished; cb != nil {
		cb(ref, status)
	}
}

func (r *relay) StepsDiscovered(n int) {
	if cb := r.a.opts.Callbacks.OnStepsDiscovered; cb != nil {
		cb(n)
	}
}
