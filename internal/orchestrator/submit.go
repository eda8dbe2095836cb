package orchestrator

import (
	"context"
	"fmt"

	"github.com/aristath/conductor/internal/events"
	"github.com/aristath/conductor/internal/scheduler"
)

// WaitFunc blocks until a streamed run reaches a terminal state and returns it.
type WaitFunc func() (*scheduler.Run, error)

// Submit builds a graph from the tasks, validates it, registers the
// executors, and runs the workflow to a terminal state.
//
// Graph-level errors (cycles, unknown dependency references, duplicate IDs)
// return synchronously before any task is dispatched. Task-level failures do
// not: the caller inspects the returned run to judge overall success.
func Submit(ctx context.Context, tasks []*scheduler.Task, executors []scheduler.Executor, cfg RunConfig) (*scheduler.Run, error) {
	runner, err := prepare(tasks, executors, cfg, nil)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}

// SubmitStream is Submit with progress observability: it returns a channel
// of lifecycle events and a WaitFunc for the final run. The event channel
// closes once the run finishes. Validation errors return synchronously,
// before the run starts.
func SubmitStream(ctx context.Context, tasks []*scheduler.Task, executors []scheduler.Executor, cfg RunConfig) (<-chan events.Event, WaitFunc, error) {
	bus := events.NewBus()

	runner, err := prepare(tasks, executors, cfg, bus)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}

	sub := bus.SubscribeAll(0)

	done := make(chan struct{})
	var run *scheduler.Run
	var runErr error

	go func() {
		defer close(done)
		defer bus.Close()
		run, runErr = runner.Run(ctx)
	}()

	wait := func() (*scheduler.Run, error) {
		<-done
		return run, runErr
	}

	return sub, wait, nil
}

// prepare assembles and validates the graph and registry for a submission.
func prepare(tasks []*scheduler.Task, executors []scheduler.Executor, cfg RunConfig, bus *events.Bus) (*Runner, error) {
	graph := scheduler.NewGraph()
	for _, task := range tasks {
		if err := graph.AddTask(task); err != nil {
			return nil, fmt.Errorf("building graph: %w", err)
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	registry := scheduler.NewRegistry()
	for _, exec := range executors {
		if err := registry.Register(exec); err != nil {
			return nil, fmt.Errorf("registering executors: %w", err)
		}
	}

	return NewRunner(graph, registry, cfg, bus), nil
}
