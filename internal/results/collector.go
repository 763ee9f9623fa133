package results

import (
	"errors"
	"sync"
	"time"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// ErrFinalized is the cause of the InvalidState errors returned for events
// and repeated Finalize calls after the collector has been finalized.
var ErrFinalized = errors.New("result collector is finalized")

func rejected(op string) error {
	return api.NewTaskError(api.KindInvalidState, ErrFinalized, "%s rejected", op)
}

// Collector accumulates the result tree of one task.
type Collector struct {
	mu sync.Mutex

	root   *api.ResultNode
	suites map[string]*api.ResultNode
	cases  map[api.CaseRef]*api.ResultNode

	caseFailures            map[api.CaseRef]int
	failures                []api.FailureRecord
	failedWithoutAssertions []string

	finalized bool
	now       func() time.Time
}

// NewCollector creates a collector whose root node carries the given id and label.
func NewCollector(id, label string) *Collector {
	return &Collector{
		root: &api.ResultNode{
			Kind:   api.KindProject,
			ID:     id,
			Label:  label,
			Status: api.StatusUnknown,
		},
		suites:       make(map[string]*api.ResultNode),
		cases:        make(map[api.CaseRef]*api.ResultNode),
		caseFailures: make(map[api.CaseRef]int),
		now:          time.Now,
	}
}

// SetLabel renames the root node. Events are not affected.
func (c *Collector) SetLabel(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root.Label = label
}

// CaseStarted opens a case node, creating its suite on first use.
func (c *Collector) CaseStarted(ref api.CaseRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return rejected("CaseStarted")
	}

	now := c.now()
	if c.root.StartedAt.IsZero() {
		c.root.StartedAt = now
	}
	node := c.caseNodeLocked(ref)
	node.StartedAt = now
	return nil
}

// StepFinished appends a step node to its case and records its failures.
func (c *Collector) StepFinished(ref api.CaseRef, step api.StepResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return rejected("StepFinished")
	}

	caseNode, ok := c.cases[ref]
	if !ok {
		logging.Warn("Results", "Step %q finished for case %s that was never started", step.Label, ref)
		caseNode = c.caseNodeLocked(ref)
		caseNode.StartedAt = c.now()
	}

	id := step.ID
	if id == "" {
		id = step.Label
	}
	status := step.Status
	if status == "" {
		status = api.StatusUnknown
	}

	node := &api.ResultNode{
		Kind:        api.KindStep,
		ID:          id,
		Label:       step.Label,
		Status:      status,
		EndedAt:     c.now(),
		RawReport:   step.RawReport,
		Attachments: append([]string(nil), step.Attachments...),
	}
	for _, f := range step.Failures {
		f.Messages = append([]string(nil), f.Messages...)
		node.Failures = append(node.Failures, f)
		c.failures = append(c.failures, f)
	}
	c.caseFailures[ref] += len(step.Failures)
	caseNode.Children = append(caseNode.Children, node)
	return nil
}

// CaseFinished closes a case node with the status reported by the engine.
func (c *Collector) CaseFinished(ref api.CaseRef, status api.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return rejected("CaseFinished")
	}

	node, ok := c.cases[ref]
	if !ok {
		logging.Warn("Results", "Case %s finished without having started", ref)
		node = c.caseNodeLocked(ref)
	}
	node.Status = status
	node.EndedAt = c.now()

	if status == api.StatusFailed && c.caseFailures[ref] == 0 {
		node.FailedWithoutAssertions = true
		c.failedWithoutAssertions = append(c.failedWithoutAssertions, ref.String())
	}
	return nil
}

func (c *Collector) caseNodeLocked(ref api.CaseRef) *api.ResultNode {
	if node, ok := c.cases[ref]; ok {
		return node
	}
	suite, ok := c.suites[ref.Suite]
	if !ok {
		suite = &api.ResultNode{
			Kind:      api.KindSuite,
			ID:        ref.Suite,
			Label:     ref.Suite,
			Status:    api.StatusUnknown,
			StartedAt: c.now(),
		}
		c.suites[ref.Suite] = suite
		c.root.Children = append(c.root.Children, suite)
	}
	node := &api.ResultNode{
		Kind:   api.KindCase,
		ID:     ref.String(),
		Label:  ref.Case,
		Status: api.StatusUnknown,
	}
	c.cases[ref] = node
	suite.Children = append(suite.Children, node)
	return node
}

// CurrentResultTree returns a deep copy of the tree as it stands.
func (c *Collector) CurrentResultTree() *api.ResultNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root.Clone()
}

// Finalize aggregates statuses and freezes the tree. partial marks a tree
// produced by a cancelled or aborted run. It returns a copy of the final tree.
func (c *Collector) Finalize(partial bool) (*api.ResultNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return nil, rejected("Finalize")
	}
	c.finalized = true

	now := c.now()
	for _, suite := range c.root.Children {
		if suite.EndedAt.IsZero() {
			suite.EndedAt = now
		}
	}
	c.root.EndedAt = now
	c.root.Partial = partial
	aggregate(c.root)

	logging.Debug("Results", "Finalized result tree %s with status %s (partial=%t)", c.root.ID, c.root.Status, partial)
	return c.root.Clone(), nil
}

// Finalized reports whether Finalize has been called.
func (c *Collector) Finalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}

// Failures returns all failure records in report order.
func (c *Collector) Failures() []api.FailureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.FailureRecord, len(c.failures))
	copy(out, c.failures)
	return out
}

// FailedWithoutAssertions returns "suite/case" names of cases that failed
// without any failure record.
func (c *Collector) FailedWithoutAssertions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.failedWithoutAssertions...)
}
