package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/conductor/internal/scheduler"
)

// BreakerRegistry manages per-executor circuit breakers.
// The failure unit is one full task execution, retries included: an executor
// that fails several tasks in a row trips its breaker, and while the circuit
// is open further tasks against it fail immediately without invoking. A task
// alone can never trip the breaker with its own retry attempts.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a new circuit breaker registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the named executor.
// Creates a new one if it doesn't exist.
func (r *BreakerRegistry) Get(executorName string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[executorName]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        executorName,
		MaxRequests: 3,                // Test requests allowed in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Don't count cancellation as executor failure
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[executorName] = cb
	return cb
}

// attemptHooks lets the runner observe individual attempts: marking graph
// state before each dispatch and publishing retry events between attempts.
type attemptHooks struct {
	beforeAttempt func(attempt int)
	onRetry       func(attempt int, err error, wait time.Duration)
}

// invokeWithRetry runs the executor for the task with exponential backoff
// retry and optional circuit breaker protection. The task is invoked at most
// maxRetries+1 times. An attempt fails when Invoke returns an error or an
// unsuccessful outcome; exceeding cfg.TaskTimeout fails the attempt without
// failing the run's context.
//
// The breaker wraps the whole retry sequence, not individual attempts, so an
// open circuit rejects the task before its first attempt and the outcome
// reports zero attempts; a closed circuit never cuts a task's retry budget
// short.
func invokeWithRetry(ctx context.Context, exec scheduler.Executor, task *scheduler.Task, cfg RunConfig, maxRetries int, cb *gobreaker.CircuitBreaker, hooks attemptHooks) (scheduler.Outcome, error) {
	if cb == nil {
		return retrySequence(ctx, exec, task, cfg, maxRetries, hooks)
	}

	var out scheduler.Outcome
	ran := false
	_, err := cb.Execute(func() (interface{}, error) {
		ran = true
		var seqErr error
		out, seqErr = retrySequence(ctx, exec, task, cfg, maxRetries, hooks)
		return nil, seqErr
	})
	if !ran {
		// Rejected while open or half-open: the executor was never invoked.
		out = scheduler.Outcome{TaskID: task.ID}
	}
	return out, err
}

// retrySequence drives the backoff retry loop for one task.
func retrySequence(ctx context.Context, exec scheduler.Executor, task *scheduler.Task, cfg RunConfig, maxRetries int, hooks attemptHooks) (scheduler.Outcome, error) {
	attempt := 0
	var last scheduler.Outcome

	operation := func() error {
		// Check parent context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		attempt++
		if hooks.beforeAttempt != nil {
			hooks.beforeAttempt(attempt)
		}

		attemptCtx := ctx
		if cfg.TaskTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.TaskTimeout)
			defer cancel()
		}

		out, err := exec.Invoke(attemptCtx, task)
		if err == nil && !out.Success {
			err = out.Err
			if err == nil {
				err = errors.New("executor reported failure")
			}
		}
		last = out

		if err != nil {
			// Parent cancelled - stop retrying
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}

			return err
		}

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.Retry.InitialInterval
	policy.MaxInterval = cfg.Retry.MaxInterval
	policy.MaxElapsedTime = cfg.Retry.MaxElapsedTime
	policy.Multiplier = cfg.Retry.Multiplier
	policy.RandomizationFactor = cfg.Retry.RandomizationFactor

	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx)

	err := backoff.RetryNotify(operation, bo, func(attemptErr error, wait time.Duration) {
		if hooks.onRetry != nil {
			hooks.onRetry(attempt, attemptErr, wait)
		}
	})

	last.TaskID = task.ID
	last.Attempts = attempt
	return last, err
}
