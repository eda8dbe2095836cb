package scheduler

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Outcome is the result of one task within a run. Output is opaque to the
// scheduler and flows only along declared dependency edges; there is no
// shared mutable context between tasks.
type Outcome struct {
	TaskID    string
	Status    Status
	Success   bool
	Output    string
	Err       error
	Reason    BlockReason // Set for blocked tasks, BlockNone otherwise
	Attempts  int         // Executor invocations, including retries
	StartedAt time.Time   // Zero for tasks that were never dispatched
	Duration  time.Duration
}

// RunStatus classifies a workflow run as a whole.
type RunStatus int

const (
	RunRunning            RunStatus = iota // Execution in progress
	RunCompleted                           // Every task succeeded
	RunPartiallyCompleted                  // Some succeeded, some failed or blocked
	RunFailed                              // Nothing succeeded, or fail-fast fired
	RunCancelled                           // Cancelled before reaching a natural end
)

// String returns a human-readable status name.
func (s RunStatus) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunPartiallyCompleted:
		return "partially_completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Run is the stateful record of one workflow execution: per-task outcomes,
// the terminal partition of task IDs, and timing. Only the runner mutates a
// Run; once it reaches a terminal status it is effectively immutable and
// reads need no further synchronization.
type Run struct {
	mu         sync.RWMutex
	id         string
	status     RunStatus
	startedAt  time.Time
	finishedAt time.Time
	outcomes   map[string]Outcome
}

// NewRun creates a Run in the Running state with a fresh random ID.
func NewRun() *Run {
	return &Run{
		id:        newRunID(),
		status:    RunRunning,
		startedAt: time.Now(),
		outcomes:  make(map[string]Outcome),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Status returns the current run status.
func (r *Run) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// StartedAt returns when the run began.
func (r *Run) StartedAt() time.Time {
	return r.startedAt
}

// FinishedAt returns when the run reached a terminal status (zero if running).
func (r *Run) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

// Record stores the terminal outcome for a task. One write per task ID;
// recording a second outcome for the same task is a programming error and
// panics to surface the bug early.
func (r *Run) Record(outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.outcomes[outcome.TaskID]; exists {
		panic(fmt.Sprintf("duplicate outcome for task %q", outcome.TaskID))
	}
	r.outcomes[outcome.TaskID] = outcome
}

// Outcome returns the recorded outcome for a task.
func (r *Run) Outcome(taskID string) (Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.outcomes[taskID]
	return o, ok
}

// Outcomes returns all recorded outcomes keyed by task ID.
func (r *Run) Outcomes() map[string]Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Outcome, len(r.outcomes))
	for id, o := range r.outcomes {
		out[id] = o
	}
	return out
}

// Succeeded returns the sorted IDs of tasks that succeeded.
func (r *Run) Succeeded() []string {
	return r.idsWithStatus(StatusSucceeded)
}

// Failed returns the sorted IDs of tasks that failed permanently.
func (r *Run) Failed() []string {
	return r.idsWithStatus(StatusFailed)
}

// Blocked returns the sorted IDs of tasks that were blocked.
func (r *Run) Blocked() []string {
	return r.idsWithStatus(StatusBlocked)
}

// Cancelled returns the sorted IDs of tasks that were cancelled.
func (r *Run) Cancelled() []string {
	return r.idsWithStatus(StatusCancelled)
}

func (r *Run) idsWithStatus(status Status) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, o := range r.outcomes {
		if o.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Finish classifies the run from its recorded outcomes and seals it.
// forced overrides the derived status for fail-fast and cancellation paths;
// pass RunRunning to derive from outcomes:
//   - every task Succeeded            -> Completed
//   - some Succeeded, some not        -> PartiallyCompleted
//   - nothing Succeeded               -> Failed
func (r *Run) Finish(forced RunStatus) RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != RunRunning {
		return r.status
	}

	status := forced
	if status == RunRunning {
		succeeded, unsucceeded := 0, 0
		for _, o := range r.outcomes {
			if o.Status == StatusSucceeded {
				succeeded++
			} else {
				unsucceeded++
			}
		}
		switch {
		case unsucceeded == 0:
			status = RunCompleted
		case succeeded > 0:
			status = RunPartiallyCompleted
		default:
			status = RunFailed
		}
	}

	r.status = status
	r.finishedAt = time.Now()
	return status
}

// newRunID generates a short random hex identifier for a run.
func newRunID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is unrecoverable for our purposes
		panic(fmt.Sprintf("run id generation: %v", err))
	}
	return fmt.Sprintf("run-%x", b)
}
