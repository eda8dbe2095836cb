package executor

import (
	"context"
	"time"

	"github.com/aristath/conductor/internal/scheduler"
)

// InvokeFunc is the signature wrapped by a Func executor.
// Returning an error marks the attempt failed (and eligible for retry).
type InvokeFunc func(ctx context.Context, task *scheduler.Task) (string, error)

// Func adapts an in-process Go function to the Executor interface.
// It is the primary vehicle for embedding the engine in another program and
// for tests that need deterministic executor behavior.
type Func struct {
	name         string
	capabilities []string
	fn           InvokeFunc
}

// NewFunc creates a function-backed executor.
func NewFunc(name string, capabilities []string, fn InvokeFunc) *Func {
	return &Func{
		name:         name,
		capabilities: append([]string(nil), capabilities...),
		fn:           fn,
	}
}

// Name returns the executor's registry name.
func (e *Func) Name() string {
	return e.name
}

// Capabilities returns the capability tags this executor satisfies.
func (e *Func) Capabilities() []string {
	return append([]string(nil), e.capabilities...)
}

// Invoke calls the wrapped function, honoring ctx through the function itself.
func (e *Func) Invoke(ctx context.Context, task *scheduler.Task) (scheduler.Outcome, error) {
	started := time.Now()

	output, err := e.fn(ctx, task)
	outcome := scheduler.Outcome{
		TaskID:    task.ID,
		Success:   err == nil,
		Output:    output,
		Err:       err,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	return outcome, nil
}
