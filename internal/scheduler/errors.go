package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCapableExecutor is returned by Registry.Acquire when no registered
// executor satisfies a task's required capabilities.
var ErrNoCapableExecutor = errors.New("no capable executor")

// ErrGraphSealed is returned when a validated graph is mutated.
var ErrGraphSealed = errors.New("graph is sealed after validation")

// ErrGraphNotValidated is returned when planning is attempted before Validate.
var ErrGraphNotValidated = errors.New("graph has not been validated")

// CycleError reports a dependency cycle found during validation.
// Tasks holds the IDs participating in the cycle, in traversal order.
type CycleError struct {
	Tasks []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Tasks, " -> "))
}

// UnknownTaskError reports a dependency reference to a task that does not
// exist in the graph.
type UnknownTaskError struct {
	TaskID    string // Task declaring the dependency
	DependsOn string // The missing dependency ID
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DependsOn)
}
