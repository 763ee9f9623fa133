package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Event types written by the runner.
const (
	EventCaseStarted     = "caseStarted"
	EventStepFinished    = "stepFinished"
	EventCaseFinished    = "caseFinished"
	EventStepsDiscovered = "stepsDiscovered"
)

type wireAssertion struct {
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Messages []string `json:"messages"`
}

// wireEvent is one line of runner output.
type wireEvent struct {
	Event       string          `json:"event"`
	Suite       string          `json:"suite"`
	Case        string          `json:"case"`
	Step        string          `json:"step"`
	StepID      string          `json:"stepId"`
	Status      string          `json:"status"`
	Assertions  []wireAssertion `json:"assertions"`
	Report      string          `json:"report"`
	Attachments []string        `json:"attachments"`
	Count       int             `json:"count"`
}

// errNotAnEvent marks runner output that is not an event.
var errNotAnEvent = fmt.Errorf("not an event")

// dispatchLine decodes one runner output line and delivers it to listeners.
func dispatchLine(line string, listeners []Listener) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return errNotAnEvent
	}

	var ev wireEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return fmt.Errorf("%w: %v", errNotAnEvent, err)
	}
	ref := api.CaseRef{Suite: ev.Suite, Case: ev.Case}

	switch ev.Event {
	case EventCaseStarted:
		for _, l := range listeners {
			l.CaseStarted(ref)
		}
	case EventStepFinished:
		step := StepEvent{
			ID:          ev.StepID,
			Label:       ev.Step,
			Status:      api.ParseStatus(ev.Status),
			Report:      ev.Report,
			Attachments: ev.Attachments,
		}
		for _, a := range ev.Assertions {
			step.Assertions = append(step.Assertions, AssertionResult{
				Name:     a.Name,
				Status:   api.ParseStatus(a.Status),
				Messages: a.Messages,
			})
		}
		for _, l := range listeners {
			l.StepFinished(ref, step)
		}
	case EventCaseFinished:
		status := api.ParseStatus(ev.Status)
		for _, l := range listeners {
			l.CaseFinished(ref, status)
		}
	case EventStepsDiscovered:
		for _, l := range listeners {
			l.StepsDiscovered(ev.Count)
		}
	default:
		logging.Debug("Engine", "Ignoring unknown runner event %q", ev.Event)
	}
	return nil
}
