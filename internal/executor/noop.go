package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/conductor/internal/scheduler"
)

// Noop succeeds immediately without doing any work.
// Used for dry runs and for exercising a workflow's structure end to end.
type Noop struct {
	name         string
	capabilities []string
}

// NewNoop creates a no-op executor.
func NewNoop(name string, capabilities []string) *Noop {
	return &Noop{
		name:         name,
		capabilities: append([]string(nil), capabilities...),
	}
}

// Name returns the executor's registry name.
func (e *Noop) Name() string {
	return e.name
}

// Capabilities returns the capability tags this executor satisfies.
func (e *Noop) Capabilities() []string {
	return append([]string(nil), e.capabilities...)
}

// Invoke reports immediate success, echoing the task description.
func (e *Noop) Invoke(ctx context.Context, task *scheduler.Task) (scheduler.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return scheduler.Outcome{TaskID: task.ID, Err: err}, err
	}

	now := time.Now()
	return scheduler.Outcome{
		TaskID:    task.ID,
		Success:   true,
		Output:    fmt.Sprintf("noop: %s", task.Description),
		StartedAt: now,
	}, nil
}
