// Package executor provides concrete implementations of the scheduler's
// Executor boundary: in-process functions, per-invocation subprocesses, and
// a no-op executor for dry runs. The scheduler core never depends on this
// package; it sees only the scheduler.Executor interface.
package executor

import (
	"fmt"

	"github.com/aristath/conductor/internal/scheduler"
)

// Config describes one executor to construct.
type Config struct {
	Name         string   // Unique registry name
	Type         string   // "command" or "noop"
	Capabilities []string // Capability tags this executor satisfies
	Command      string   // Binary to run (command type)
	Args         []string // Default args prepended to every invocation
	WorkDir      string   // Working directory for subprocesses
}

// New creates an executor from its configuration.
// This factory switches on cfg.Type and returns the appropriate adapter.
// Func executors are constructed programmatically via NewFunc, not from config.
func New(cfg Config, pm *ProcessManager) (scheduler.Executor, error) {
	switch cfg.Type {
	case "command":
		return NewCommand(cfg, pm)
	case "noop":
		return NewNoop(cfg.Name, cfg.Capabilities), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", cfg.Type)
	}
}
