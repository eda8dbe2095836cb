// Package orchestrator drives a validated dependency graph to completion:
// it walks the execution plan batch by batch, dispatches ready tasks to
// matched executors, applies retry and failure policy, and aggregates the
// outcome into a workflow run.
package orchestrator

import (
	"time"

	"github.com/aristath/conductor/internal/scheduler"
)

// RetryConfig configures exponential backoff between retry attempts.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time per task (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// RunConfig configures one workflow run.
type RunConfig struct {
	// MaxConcurrency caps concurrent task dispatch within a batch.
	// Zero or negative means unbounded up to the batch size.
	MaxConcurrency int

	// FailFast cancels all remaining tasks after the first permanent task
	// failure. Default is best-effort: independent branches keep running.
	FailFast bool

	// DefaultMaxRetries applies to tasks that don't set MaxRetries.
	DefaultMaxRetries int

	// TaskTimeout bounds a single executor invocation. An invocation that
	// exceeds it counts as a failed attempt, eligible for retry.
	// Zero means no timeout.
	TaskTimeout time.Duration

	// Retry tunes the backoff between attempts.
	Retry RetryConfig

	// DisableBreaker turns off the per-executor circuit breaker.
	DisableBreaker bool
}

// DefaultRunConfig returns the default run configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Retry: DefaultRetryConfig(),
	}
}

// effectiveMaxRetries resolves a task's retry budget against the run default.
// Task.MaxRetries > 0 wins, 0 falls back to the default, < 0 forces none.
func effectiveMaxRetries(task *scheduler.Task, cfg RunConfig) int {
	switch {
	case task.MaxRetries > 0:
		return task.MaxRetries
	case task.MaxRetries < 0:
		return 0
	default:
		return cfg.DefaultMaxRetries
	}
}
