package api

import (
	"time"
)

// Status is the verdict of a result node.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
)

// ParseStatus maps an engine status string onto a Status. Unrecognized
// values map to StatusUnknown; the engine's "OK"/"VALID" and "FAIL"/"INVALID"
// spellings are accepted.
func ParseStatus(s string) Status {
	switch s {
	case "PASSED", "passed", "OK", "ok", "VALID", "FINISHED":
		return StatusPassed
	case "FAILED", "failed", "FAIL", "fail", "INVALID":
		return StatusFailed
	case "ERROR", "error", "CANCELED", "CANCELLED":
		return StatusError
	default:
		return StatusUnknown
	}
}

// IsFailure reports whether the status counts as failing for aggregation.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusError
}

// NodeKind is the level of a result node.
type NodeKind string

const (
	KindProject NodeKind = "project"
	KindSuite   NodeKind = "suite"
	KindCase    NodeKind = "case"
	KindStep    NodeKind = "step"
)

// CaseRef identifies a test case within its suite.
type CaseRef struct {
	Suite string `json:"suite"`
	Case  string `json:"case"`
}

// String returns "suite/case".
func (r CaseRef) String() string {
	return r.Suite + "/" + r.Case
}

// FailureRecord describes one failing assertion of a step.
type FailureRecord struct {
	StepLabel     string   `json:"stepLabel"`
	AssertionName string   `json:"assertionName"`
	Messages      []string `json:"messages,omitempty"`
	RawStepReport string   `json:"rawStepReport,omitempty"`
}

// StepResult is the payload of a finished step event.
type StepResult struct {
	ID          string
	Label       string
	Status      Status
	RawReport   string
	Attachments []string
	Failures    []FailureRecord
}

// ResultNode is one node of the result tree (project, suite, case or step).
type ResultNode struct {
	Kind      NodeKind  `json:"kind"`
	ID        string    `json:"id,omitempty"`
	Label     string    `json:"label"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	EndedAt   time.Time `json:"endedAt,omitzero"`

	RawReport   string          `json:"rawReport,omitempty"`
	Attachments []string        `json:"attachments,omitempty"`
	Failures    []FailureRecord `json:"failures,omitempty"`

	// FailedWithoutAssertions marks a case reported FAILED by the engine
	// while none of its steps produced a failure record.
	FailedWithoutAssertions bool `json:"failedWithoutAssertions,omitempty"`

	// Partial marks a tree finalized after cancellation or an aborted run.
	Partial bool `json:"partial,omitempty"`

	Children []*ResultNode `json:"children,omitempty"`
}

// Clone returns a deep copy of the subtree rooted at n.
func (n *ResultNode) Clone() *ResultNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Attachments = cloneStrings(n.Attachments)
	if n.Failures != nil {
		c.Failures = make([]FailureRecord, len(n.Failures))
		for i, f := range n.Failures {
			f.Messages = cloneStrings(f.Messages)
			c.Failures[i] = f
		}
	}
	if n.Children != nil {
		c.Children = make([]*ResultNode, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Walk visits n and its descendants depth-first in child order.
func (n *ResultNode) Walk(fn func(node *ResultNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Counts tallies nodes of the given kind by status.
func (n *ResultNode) Counts(kind NodeKind) map[Status]int {
	counts := make(map[Status]int)
	n.Walk(func(node *ResultNode) {
		if node.Kind == kind {
			counts[node.Status]++
		}
	})
	return counts
}
