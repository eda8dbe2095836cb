package scheduler

import (
	"fmt"
	"sync"

	"github.com/gammazero/toposort"
)

// Graph owns a set of tasks and their dependency edges.
// It is the exclusive owner of its tasks: Get and Tasks return copies,
// and all status changes go through the Mark* methods.
//
// Lifecycle: build with AddTask, seal with Validate, then plan and execute.
// Mutating a sealed graph returns ErrGraphSealed; rebuild instead.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	order      []string            // Insertion order, for deterministic iteration
	dependents map[string][]string // taskID -> tasks that depend on it
	sealed     bool
	plan       *Plan // Cached execution plan, nil until computed
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// AddTask adds a task to the graph. Returns an error if the ID is empty,
// already present, or the graph has been sealed by Validate.
func (g *Graph) AddTask(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return ErrGraphSealed
	}
	if task.ID == "" {
		return fmt.Errorf("task ID must not be empty")
	}
	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	g.tasks[task.ID] = task
	g.order = append(g.order, task.ID)
	g.plan = nil

	for _, depID := range task.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
	}

	return nil
}

// RemoveTask removes a task from an unsealed graph.
// Dangling references left behind are caught by Validate.
func (g *Graph) RemoveTask(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return ErrGraphSealed
	}
	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	delete(g.tasks, taskID)
	for i, id := range g.order {
		if id == taskID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	for _, depID := range task.DependsOn {
		deps := g.dependents[depID]
		for i, id := range deps {
			if id == taskID {
				g.dependents[depID] = append(deps[:i], deps[i+1:]...)
				break
			}
		}
	}
	delete(g.dependents, taskID)
	g.plan = nil

	return nil
}

// Validate checks that every dependency reference resolves and that the
// dependency relation is acyclic. On success the graph is sealed; further
// mutation requires a rebuild. Safe to call repeatedly.
//
// Cycle detection is a depth-first traversal with an in-progress marker:
// revisiting an in-progress node means the path from that node back to
// itself is a cycle, reported in a CycleError.
func (g *Graph) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, taskID := range g.order {
		task := g.tasks[taskID]
		for _, depID := range task.DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return &UnknownTaskError{TaskID: taskID, DependsOn: depID}
			}
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.tasks))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		state[id] = inStack
		stack = append(stack, id)

		for _, depID := range g.tasks[id].DependsOn {
			switch state[depID] {
			case inStack:
				// Extract the cycle members from the traversal stack.
				start := 0
				for i, sid := range stack {
					if sid == depID {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				cycle = append(cycle, depID)
				return &CycleError{Tasks: cycle}
			case unvisited:
				if cerr := visit(depID); cerr != nil {
					return cerr
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, taskID := range g.order {
		if state[taskID] == unvisited {
			if cerr := visit(taskID); cerr != nil {
				return cerr
			}
		}
	}

	g.sealed = true
	return nil
}

// Sealed reports whether the graph has passed validation.
func (g *Graph) Sealed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sealed
}

// Order returns a topological ordering of task IDs. Requires a validated
// graph. Used by the critical-path computation and diagnostic output;
// execution ordering comes from the plan's batches, not from here.
func (g *Graph) Order() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.sealed {
		return nil, ErrGraphNotValidated
	}

	var edges []toposort.Edge
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if len(task.DependsOn) == 0 {
			// Keep isolated tasks in the sort output.
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		// Unreachable on a validated graph.
		return nil, fmt.Errorf("topological sort: %w", err)
	}

	order := make([]string, 0, len(g.tasks))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// Ready returns copies of the tasks that are eligible for dispatch: status
// Pending with every dependency in the succeeded set. Recomputed as results
// arrive rather than trusting precomputed levels, so a failed ancestor keeps
// its dependents out of the ready set regardless of level.
func (g *Graph) Ready(succeeded map[string]bool) []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Task
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if task.Status != StatusPending {
			continue
		}

		ok := true
		for _, depID := range task.DependsOn {
			if !succeeded[depID] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

// Get returns a copy of the task by ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.tasks))
	for _, taskID := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[taskID]))
	}
	return tasks
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Dependents returns the IDs of tasks that directly depend on taskID.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[taskID]...)
}

// MarkReady transitions a task from Pending to Ready.
func (g *Graph) MarkReady(taskID string) error {
	return g.mark(taskID, func(t *Task) error {
		return t.transition(StatusReady)
	})
}

// MarkRunning transitions a task to Running and counts the attempt.
func (g *Graph) MarkRunning(taskID string) error {
	return g.mark(taskID, func(t *Task) error {
		if err := t.transition(StatusRunning); err != nil {
			return err
		}
		t.Attempts++
		return nil
	})
}

// MarkSucceeded transitions a task from Running to Succeeded.
func (g *Graph) MarkSucceeded(taskID string) error {
	return g.mark(taskID, func(t *Task) error {
		return t.transition(StatusSucceeded)
	})
}

// MarkFailed transitions a task to Failed and records the error. Usually
// from Running; from Pending when the task was rejected before dispatch.
func (g *Graph) MarkFailed(taskID string, taskErr error) error {
	return g.mark(taskID, func(t *Task) error {
		if err := t.transition(StatusFailed); err != nil {
			return err
		}
		t.Err = taskErr
		return nil
	})
}

// MarkRetrying transitions a failed attempt back to Pending for re-dispatch
// within the same batch.
func (g *Graph) MarkRetrying(taskID string) error {
	return g.mark(taskID, func(t *Task) error {
		return t.transition(StatusPending)
	})
}

// MarkBlocked transitions a task to Blocked with the given reason.
func (g *Graph) MarkBlocked(taskID string, reason BlockReason, taskErr error) error {
	return g.mark(taskID, func(t *Task) error {
		if err := t.transition(StatusBlocked); err != nil {
			return err
		}
		t.BlockReason = reason
		t.Err = taskErr
		return nil
	})
}

// MarkCancelled transitions a non-terminal task to Cancelled.
func (g *Graph) MarkCancelled(taskID string) error {
	return g.mark(taskID, func(t *Task) error {
		return t.transition(StatusCancelled)
	})
}

func (g *Graph) mark(taskID string, apply func(*Task) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	return apply(task)
}

// BlockDependents marks every transitive dependent of taskID that is still
// Pending as Blocked with reason AncestorFailed. Returns the IDs it blocked.
// Called after a task fails permanently or is itself blocked, before later
// batches are evaluated, so downstream tasks are never dispatched.
func (g *Graph) BlockDependents(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var blocked []string
	visited := map[string]bool{taskID: true}
	queue := append([]string(nil), g.dependents[taskID]...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		task := g.tasks[id]
		if task != nil && task.Status == StatusPending {
			task.Status = StatusBlocked
			task.BlockReason = BlockAncestorFailed
			task.Err = fmt.Errorf("ancestor task %q did not succeed", taskID)
			blocked = append(blocked, id)
		}

		queue = append(queue, g.dependents[id]...)
	}

	return blocked
}
