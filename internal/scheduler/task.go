package scheduler

import (
	"fmt"
	"time"
)

// Status represents the current state of a task.
type Status int

const (
	StatusPending   Status = iota // Waiting for dependencies
	StatusReady                   // All dependencies succeeded, about to dispatch
	StatusRunning                 // Currently executing
	StatusSucceeded               // Finished successfully
	StatusFailed                  // Finished with error, retries exhausted
	StatusBlocked                 // Will never run (no executor, or ancestor failed)
	StatusCancelled               // Run was cancelled before the task finished
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status is final for the task.
// A task never leaves Succeeded, Failed, Blocked, or Cancelled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusBlocked, StatusCancelled:
		return true
	default:
		return false
	}
}

// BlockReason explains why a task ended up Blocked.
type BlockReason int

const (
	BlockNone              BlockReason = iota // Task is not blocked
	BlockNoCapableExecutor                    // No registered executor satisfies the task's capabilities
	BlockAncestorFailed                       // A transitive dependency failed or was blocked
)

// String returns a human-readable reason name.
func (r BlockReason) String() string {
	switch r {
	case BlockNone:
		return "none"
	case BlockNoCapableExecutor:
		return "no_capable_executor"
	case BlockAncestorFailed:
		return "ancestor_failed"
	default:
		return "unknown"
	}
}

// Task represents a unit of work in the dependency graph.
// The scheduler treats Description as opaque; it exists for executors and humans.
type Task struct {
	ID           string        // Unique identifier, stable across a run
	Description  string        // Human-readable intent
	Capabilities []string      // Capability tags a matching executor must possess
	DependsOn    []string      // Task IDs that must succeed before this task is eligible
	Resources    []string      // Exclusive resource tags (mutual exclusion within a batch)
	MaxRetries   int           // Extra attempts after the first failure (0 uses the run default, <0 forces none)
	Estimate     time.Duration // Optional duration estimate, feeds the weighted critical path
	Status       Status
	BlockReason  BlockReason
	Attempts     int   // Number of executor invocations so far
	Err          error // Terminal error, if any
}

// allowedTransition reports whether a status change is valid.
// Retries re-enter Pending from Running; everything else is one-way.
func allowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		// Pending -> Failed covers rejection before dispatch, e.g. an open
		// circuit on the selected executor.
		return to == StatusReady || to == StatusFailed || to == StatusBlocked || to == StatusCancelled
	case StatusReady:
		return to == StatusRunning || to == StatusBlocked || to == StatusCancelled
	case StatusRunning:
		return to == StatusSucceeded || to == StatusFailed || to == StatusPending || to == StatusCancelled
	default:
		// Terminal states have no outgoing transitions.
		return false
	}
}

// transition validates and applies a status change on the task.
func (t *Task) transition(to Status) error {
	if !allowedTransition(t.Status, to) {
		return fmt.Errorf("task %q: invalid transition %s -> %s", t.ID, t.Status, to)
	}
	t.Status = to
	return nil
}

// cloneTask returns a deep copy so callers cannot mutate graph-owned state.
func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Capabilities != nil {
		cp.Capabilities = append([]string(nil), task.Capabilities...)
	}
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Resources != nil {
		cp.Resources = append([]string(nil), task.Resources...)
	}
	return &cp
}
