package api

import (
	"time"
)

// ExecutionState is the lifecycle state of a task.
type ExecutionState string

const (
	StateCreated     ExecutionState = "CREATED"
	StateInitialized ExecutionState = "INITIALIZED"
	StateRunning     ExecutionState = "RUNNING"
	StateCompleted   ExecutionState = "COMPLETED"
	StateFailed      ExecutionState = "FAILED"
	StateCancelled   ExecutionState = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// TestObject is the system under test a task is run against.
type TestObject struct {
	// Resources maps resource names to URIs, in declaration order.
	Resources ParameterSet `json:"resources"`
	Username  string       `json:"username,omitempty"`
	Password  string       `json:"password,omitempty"`
}

// TaskConfig is the host-supplied configuration of a single task.
type TaskConfig struct {
	// TaskID is optional; a random id is assigned when empty.
	TaskID       string       `json:"taskId,omitempty"`
	DescriptorID string       `json:"descriptorId"`
	Cases        []string     `json:"cases,omitempty"`
	Suite        string       `json:"suite,omitempty"`
	Arguments    ParameterSet `json:"arguments"`
	TestObject   TestObject   `json:"testObject"`
	IgnoreErrors bool         `json:"ignoreErrors,omitempty"`
}

// StateChange is delivered to state change callbacks.
type StateChange struct {
	TaskID    string
	OldState  ExecutionState
	NewState  ExecutionState
	Err       error
	Timestamp time.Time
}

// TaskOutcome summarizes a finished (or still running) task for the host.
type TaskOutcome struct {
	TaskID                  string           `json:"taskId"`
	DescriptorID            string           `json:"descriptorId"`
	State                   ExecutionState   `json:"state"`
	Passed                  bool             `json:"passed"`
	ErrorKind               ErrorKind        `json:"errorKind,omitempty"`
	Error                   string           `json:"error,omitempty"`
	Failures                []FailureRecord  `json:"failures,omitempty"`
	FailedWithoutAssertions []string         `json:"failedWithoutAssertions,omitempty"`
	Progress                ProgressSnapshot `json:"progress"`
}
