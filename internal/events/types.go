package events

import (
	"time"
)

// Event is the base interface for all run lifecycle events.
// Topic groups related events for subscription filtering.
type Event interface {
	EventType() string
	Topic() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskRetrying  = "task.retrying"
	EventTypeTaskSucceeded = "task.succeeded"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskBlocked   = "task.blocked"
	EventTypeTaskCancelled = "task.cancelled"
	EventTypeBatchStarted  = "run.batch_started"
	EventTypeRunProgress   = "run.progress"
	EventTypeRunFinished   = "run.finished"
)

// TaskStarted is published when a task is dispatched to an executor.
type TaskStarted struct {
	ID        string
	Executor  string
	Attempt   int // 1 for the first attempt
	Timestamp time.Time
}

func (e TaskStarted) EventType() string { return EventTypeTaskStarted }
func (e TaskStarted) Topic() string     { return TopicTask }
func (e TaskStarted) TaskID() string    { return e.ID }

// TaskRetrying is published when a failed attempt will be retried.
type TaskRetrying struct {
	ID        string
	Attempt   int // The attempt that just failed
	Err       error
	Timestamp time.Time
}

func (e TaskRetrying) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetrying) Topic() string     { return TopicTask }
func (e TaskRetrying) TaskID() string    { return e.ID }

// TaskSucceeded is published when a task completes successfully.
type TaskSucceeded struct {
	ID        string
	Output    string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskSucceeded) EventType() string { return EventTypeTaskSucceeded }
func (e TaskSucceeded) Topic() string     { return TopicTask }
func (e TaskSucceeded) TaskID() string    { return e.ID }

// TaskFailed is published when a task fails with retries exhausted.
type TaskFailed struct {
	ID        string
	Err       error
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailed) EventType() string { return EventTypeTaskFailed }
func (e TaskFailed) Topic() string     { return TopicTask }
func (e TaskFailed) TaskID() string    { return e.ID }

// TaskBlocked is published when a task will never run.
type TaskBlocked struct {
	ID        string
	Reason    string // "no_capable_executor" or "ancestor_failed"
	Err       error
	Timestamp time.Time
}

func (e TaskBlocked) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlocked) Topic() string     { return TopicTask }
func (e TaskBlocked) TaskID() string    { return e.ID }

// TaskCancelled is published when a task is cancelled before finishing.
type TaskCancelled struct {
	ID        string
	Timestamp time.Time
}

func (e TaskCancelled) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelled) Topic() string     { return TopicTask }
func (e TaskCancelled) TaskID() string    { return e.ID }

// BatchStarted is published when the runner begins a plan batch.
type BatchStarted struct {
	Index     int // Batch index within the plan
	Size      int // Tasks in the batch
	Timestamp time.Time
}

func (e BatchStarted) EventType() string { return EventTypeBatchStarted }
func (e BatchStarted) Topic() string     { return TopicRun }
func (e BatchStarted) TaskID() string    { return "" }

// RunProgress is published whenever a task reaches a terminal state.
type RunProgress struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Blocked   int
	Cancelled int
	Running   int
	Timestamp time.Time
}

func (e RunProgress) EventType() string { return EventTypeRunProgress }
func (e RunProgress) Topic() string     { return TopicRun }
func (e RunProgress) TaskID() string    { return "" }

// RunFinished is published once, when the run reaches a terminal status.
type RunFinished struct {
	RunID     string
	Status    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinished) EventType() string { return EventTypeRunFinished }
func (e RunFinished) Topic() string     { return TopicRun }
func (e RunFinished) TaskID() string    { return "" }
