package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/conductor/internal/events"
	"github.com/aristath/conductor/internal/scheduler"
)

// Runner executes a validated dependency graph batch by batch.
//
// Within a batch all ready tasks are dispatched concurrently, bounded by
// MaxConcurrency; the runner waits for the whole batch to reach terminal
// states before advancing (the batch barrier), so a task never starts before
// all of its dependencies have succeeded.
type Runner struct {
	cfg      RunConfig
	graph    *scheduler.Graph
	registry *scheduler.Registry
	locks    *scheduler.ResourceLockManager
	breakers *BreakerRegistry
	bus      *events.Bus // Optional; nil disables event publishing

	mu        sync.Mutex
	run       *scheduler.Run
	succeeded map[string]bool
	failFast  bool               // Set once the fail-fast policy has fired
	cancel    context.CancelFunc // Cancels the run's context on fail-fast
}

// NewRunner creates a Runner for a graph and registry.
// The bus may be nil when no observer cares about lifecycle events.
func NewRunner(graph *scheduler.Graph, registry *scheduler.Registry, cfg RunConfig, bus *events.Bus) *Runner {
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Runner{
		cfg:       cfg,
		graph:     graph,
		registry:  registry,
		locks:     scheduler.NewResourceLockManager(),
		breakers:  NewBreakerRegistry(),
		bus:       bus,
		succeeded: make(map[string]bool),
	}
}

// Run executes the plan to a terminal state and returns the workflow run.
// The graph must have been validated; planning errors surface here before
// any task is dispatched. Task-level failures never surface as an error --
// they are recorded in the run for the caller to inspect.
func (r *Runner) Run(ctx context.Context) (*scheduler.Run, error) {
	plan, err := r.graph.Plan()
	if err != nil {
		return nil, err
	}

	run := scheduler.NewRun()
	r.mu.Lock()
	r.run = run
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	for i, batch := range plan.Batches {
		if runCtx.Err() != nil {
			break
		}

		ready := r.readyInBatch(batch)
		if len(ready) == 0 {
			continue
		}

		r.publish(events.BatchStarted{Index: i, Size: len(ready), Timestamp: time.Now()})

		limit := r.cfg.MaxConcurrency
		if limit <= 0 {
			limit = len(ready)
		}

		g, gctx := errgroup.WithContext(runCtx)
		g.SetLimit(limit)

		for _, task := range ready {
			t := task
			g.Go(func() error {
				r.executeTask(gctx, t)
				return nil
			})
		}

		// Batch barrier: later batches may depend on any task in this one.
		if err := g.Wait(); err != nil {
			log.Printf("ERROR: unexpected batch error: %v", err)
		}
	}

	r.cancelRemaining(run)

	forced := scheduler.RunRunning
	switch {
	case ctx.Err() != nil:
		forced = scheduler.RunCancelled
	case r.failFastFired():
		forced = scheduler.RunFailed
	}
	status := run.Finish(forced)

	r.publish(events.RunFinished{
		RunID:     run.ID(),
		Status:    status.String(),
		Duration:  time.Since(run.StartedAt()),
		Timestamp: time.Now(),
	})

	return run, nil
}

// readyInBatch returns the batch members eligible for dispatch: still
// Pending with every dependency succeeded. Tasks whose ancestors failed were
// already marked Blocked when the failure propagated, so they simply don't
// appear here.
func (r *Runner) readyInBatch(batch []string) []*scheduler.Task {
	r.mu.Lock()
	succeeded := make(map[string]bool, len(r.succeeded))
	for id := range r.succeeded {
		succeeded[id] = true
	}
	r.mu.Unlock()

	members := make(map[string]bool, len(batch))
	for _, id := range batch {
		members[id] = true
	}

	var ready []*scheduler.Task
	for _, task := range r.graph.Ready(succeeded) {
		if members[task.ID] {
			ready = append(ready, task)
		}
	}
	return ready
}

// executeTask drives one task to a terminal state: executor selection,
// resource locking, the retry loop, and failure propagation.
func (r *Runner) executeTask(ctx context.Context, task *scheduler.Task) {
	if ctx.Err() != nil {
		r.recordCancelled(task.ID)
		return
	}

	exec, err := r.registry.Acquire(task)
	if err != nil {
		r.recordBlocked(task.ID, scheduler.BlockNoCapableExecutor, err)
		return
	}
	defer r.registry.Release(exec.Name())

	r.locks.LockAll(task.Resources)
	defer r.locks.UnlockAll(task.Resources)

	maxRetries := effectiveMaxRetries(task, r.cfg)

	var cb *gobreaker.CircuitBreaker
	if !r.cfg.DisableBreaker {
		cb = r.breakers.Get(exec.Name())
	}

	hooks := attemptHooks{
		beforeAttempt: func(attempt int) {
			if attempt > 1 {
				if err := r.graph.MarkRetrying(task.ID); err != nil {
					log.Printf("ERROR: %v", err)
				}
			}
			if err := r.graph.MarkReady(task.ID); err != nil {
				log.Printf("ERROR: %v", err)
			}
			if err := r.graph.MarkRunning(task.ID); err != nil {
				log.Printf("ERROR: %v", err)
			}
			r.publish(events.TaskStarted{
				ID:        task.ID,
				Executor:  exec.Name(),
				Attempt:   attempt,
				Timestamp: time.Now(),
			})
		},
		onRetry: func(attempt int, attemptErr error, wait time.Duration) {
			r.publish(events.TaskRetrying{
				ID:        task.ID,
				Attempt:   attempt,
				Err:       attemptErr,
				Timestamp: time.Now(),
			})
		},
	}

	outcome, invokeErr := invokeWithRetry(ctx, exec, task, r.cfg, maxRetries, cb, hooks)

	if invokeErr == nil {
		r.recordSucceeded(outcome)
		return
	}

	// The run's context ending means cancellation, not task failure.
	if ctx.Err() != nil && (errors.Is(invokeErr, context.Canceled) || errors.Is(invokeErr, ctx.Err())) {
		r.recordCancelled(task.ID)
		return
	}

	r.recordFailed(task.ID, outcome, invokeErr)
}

// recordSucceeded marks success and adds the task to the succeeded set used
// by later readiness computation.
func (r *Runner) recordSucceeded(outcome scheduler.Outcome) {
	if err := r.graph.MarkSucceeded(outcome.TaskID); err != nil {
		log.Printf("ERROR: %v", err)
	}

	r.mu.Lock()
	r.succeeded[outcome.TaskID] = true
	run := r.run
	r.mu.Unlock()

	outcome.Status = scheduler.StatusSucceeded
	run.Record(outcome)

	r.publish(events.TaskSucceeded{
		ID:        outcome.TaskID,
		Output:    outcome.Output,
		Attempts:  outcome.Attempts,
		Duration:  outcome.Duration,
		Timestamp: time.Now(),
	})
	r.publishProgress()
}

// recordFailed marks permanent failure, propagates Blocked to dependents,
// and fires the fail-fast policy if configured.
func (r *Runner) recordFailed(taskID string, outcome scheduler.Outcome, taskErr error) {
	if err := r.graph.MarkFailed(taskID, taskErr); err != nil {
		log.Printf("ERROR: %v", err)
	}

	outcome.TaskID = taskID
	outcome.Status = scheduler.StatusFailed
	outcome.Success = false
	if outcome.Err == nil {
		outcome.Err = taskErr
	}

	r.mu.Lock()
	run := r.run
	r.mu.Unlock()
	run.Record(outcome)

	r.publish(events.TaskFailed{
		ID:        taskID,
		Err:       taskErr,
		Attempts:  outcome.Attempts,
		Duration:  outcome.Duration,
		Timestamp: time.Now(),
	})

	r.blockDependents(taskID)
	r.publishProgress()

	if r.cfg.FailFast {
		r.mu.Lock()
		already := r.failFast
		r.failFast = true
		cancel := r.cancel
		r.mu.Unlock()

		if !already {
			log.Printf("WARNING: fail-fast triggered by task %q, cancelling remaining tasks", taskID)
			cancel()
		}
	}
}

// recordBlocked marks a task Blocked and propagates to its dependents.
func (r *Runner) recordBlocked(taskID string, reason scheduler.BlockReason, taskErr error) {
	if err := r.graph.MarkBlocked(taskID, reason, taskErr); err != nil {
		log.Printf("ERROR: %v", err)
	}

	r.mu.Lock()
	run := r.run
	r.mu.Unlock()

	run.Record(scheduler.Outcome{
		TaskID: taskID,
		Status: scheduler.StatusBlocked,
		Err:    taskErr,
		Reason: reason,
	})

	r.publish(events.TaskBlocked{
		ID:        taskID,
		Reason:    reason.String(),
		Err:       taskErr,
		Timestamp: time.Now(),
	})

	r.blockDependents(taskID)
	r.publishProgress()
}

// blockDependents propagates Blocked to every still-pending transitive
// dependent, recording an outcome for each so downstream batches skip them.
func (r *Runner) blockDependents(taskID string) {
	blocked := r.graph.BlockDependents(taskID)
	if len(blocked) == 0 {
		return
	}

	r.mu.Lock()
	run := r.run
	r.mu.Unlock()

	for _, id := range blocked {
		task, _ := r.graph.Get(id)
		run.Record(scheduler.Outcome{
			TaskID: id,
			Status: scheduler.StatusBlocked,
			Err:    task.Err,
			Reason: scheduler.BlockAncestorFailed,
		})
		r.publish(events.TaskBlocked{
			ID:        id,
			Reason:    scheduler.BlockAncestorFailed.String(),
			Err:       task.Err,
			Timestamp: time.Now(),
		})
	}
}

// recordCancelled marks a task Cancelled and records its outcome.
func (r *Runner) recordCancelled(taskID string) {
	if err := r.graph.MarkCancelled(taskID); err != nil {
		log.Printf("ERROR: %v", err)
	}

	r.mu.Lock()
	run := r.run
	r.mu.Unlock()

	run.Record(scheduler.Outcome{
		TaskID: taskID,
		Status: scheduler.StatusCancelled,
		Err:    context.Canceled,
	})

	r.publish(events.TaskCancelled{ID: taskID, Timestamp: time.Now()})
	r.publishProgress()
}

// cancelRemaining marks every task that never reached a terminal state as
// Cancelled. A no-op on runs that ended naturally.
func (r *Runner) cancelRemaining(run *scheduler.Run) {
	for _, task := range r.graph.Tasks() {
		if task.Status.IsTerminal() {
			continue
		}
		if _, recorded := run.Outcome(task.ID); recorded {
			continue
		}
		r.recordCancelled(task.ID)
	}
}

// failFastFired reports whether the fail-fast policy triggered.
func (r *Runner) failFastFired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failFast
}

// publish sends an event when a bus is attached.
func (r *Runner) publish(event events.Event) {
	if r.bus != nil {
		r.bus.Publish(event)
	}
}

// publishProgress emits a run-level progress snapshot from graph statuses.
func (r *Runner) publishProgress() {
	if r.bus == nil {
		return
	}

	r.mu.Lock()
	run := r.run
	r.mu.Unlock()

	progress := events.RunProgress{RunID: run.ID(), Timestamp: time.Now()}
	for _, task := range r.graph.Tasks() {
		progress.Total++
		switch task.Status {
		case scheduler.StatusSucceeded:
			progress.Succeeded++
		case scheduler.StatusFailed:
			progress.Failed++
		case scheduler.StatusBlocked:
			progress.Blocked++
		case scheduler.StatusCancelled:
			progress.Cancelled++
		case scheduler.StatusRunning:
			progress.Running++
		}
	}
	r.bus.Publish(progress)
}
