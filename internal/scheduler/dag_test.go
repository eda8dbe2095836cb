package scheduler

import (
	"errors"
	"strings"
	"testing"
)

func TestAddTaskRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	g := NewGraph()

	if err := g.AddTask(&Task{ID: "a"}); err != nil {
		t.Fatalf("AddTask(a) error: %v", err)
	}
	if err := g.AddTask(&Task{ID: "a"}); err == nil {
		t.Error("Expected error adding duplicate task ID")
	}
	if err := g.AddTask(&Task{ID: ""}); err == nil {
		t.Error("Expected error adding task with empty ID")
	}
	if g.Len() != 1 {
		t.Errorf("Expected 1 task, got %d", g.Len())
	}
}

func TestValidateDetectsUnknownDependency(t *testing.T) {
	g := NewGraph()
	if err := g.AddTask(&Task{ID: "a", DependsOn: []string{"ghost"}}); err != nil {
		t.Fatalf("AddTask() error: %v", err)
	}

	err := g.Validate()
	if err == nil {
		t.Fatal("Expected validation error for unknown dependency")
	}

	var unknownErr *UnknownTaskError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Expected UnknownTaskError, got %T: %v", err, err)
	}
	if unknownErr.TaskID != "a" || unknownErr.DependsOn != "ghost" {
		t.Errorf("Expected a -> ghost, got %s -> %s", unknownErr.TaskID, unknownErr.DependsOn)
	}
	if g.Sealed() {
		t.Error("Graph must not seal after failed validation")
	}
}

func TestValidateDetectsCycles(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*Task
		cycle []string // IDs that must all appear in the reported cycle
	}{
		{
			name: "self cycle",
			tasks: []*Task{
				{ID: "a", DependsOn: []string{"a"}},
			},
			cycle: []string{"a"},
		},
		{
			name: "two node cycle",
			tasks: []*Task{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
			cycle: []string{"a", "b"},
		},
		{
			name: "cycle behind valid prefix",
			tasks: []*Task{
				{ID: "root"},
				{ID: "x", DependsOn: []string{"root", "z"}},
				{ID: "y", DependsOn: []string{"x"}},
				{ID: "z", DependsOn: []string{"y"}},
			},
			cycle: []string{"x", "y", "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			for _, task := range tt.tasks {
				if err := g.AddTask(task); err != nil {
					t.Fatalf("AddTask() error: %v", err)
				}
			}

			err := g.Validate()
			if err == nil {
				t.Fatal("Expected cycle error")
			}

			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("Expected CycleError, got %T: %v", err, err)
			}
			for _, id := range tt.cycle {
				found := false
				for _, member := range cycleErr.Tasks {
					if member == id {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected %q in cycle %v", id, cycleErr.Tasks)
				}
			}
			if !strings.Contains(err.Error(), "->") {
				t.Errorf("Expected arrow-formatted cycle message, got %q", err.Error())
			}
		})
	}
}

func TestValidateSealsGraph(t *testing.T) {
	g := NewGraph()
	if err := g.AddTask(&Task{ID: "a"}); err != nil {
		t.Fatalf("AddTask() error: %v", err)
	}

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !g.Sealed() {
		t.Fatal("Expected graph to be sealed after validation")
	}

	if err := g.AddTask(&Task{ID: "b"}); !errors.Is(err, ErrGraphSealed) {
		t.Errorf("Expected ErrGraphSealed adding to sealed graph, got %v", err)
	}
	if err := g.RemoveTask("a"); !errors.Is(err, ErrGraphSealed) {
		t.Errorf("Expected ErrGraphSealed removing from sealed graph, got %v", err)
	}

	// Repeat validation is a no-op, not an error.
	if err := g.Validate(); err != nil {
		t.Errorf("Repeated Validate() error: %v", err)
	}
}

func TestRemoveTaskThenValidateCatchesDangling(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})
	g.AddTask(&Task{ID: "b", DependsOn: []string{"a"}})

	if err := g.RemoveTask("a"); err != nil {
		t.Fatalf("RemoveTask() error: %v", err)
	}

	var unknownErr *UnknownTaskError
	if err := g.Validate(); !errors.As(err, &unknownErr) {
		t.Errorf("Expected UnknownTaskError after removing a dependency, got %v", err)
	}
}

func TestOrderIsTopological(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "c", DependsOn: []string{"a", "b"}})
	g.AddTask(&Task{ID: "a"})
	g.AddTask(&Task{ID: "b", DependsOn: []string{"a"}})
	g.AddTask(&Task{ID: "isolated"})

	if _, err := g.Order(); !errors.Is(err, ErrGraphNotValidated) {
		t.Fatalf("Expected ErrGraphNotValidated before Validate, got %v", err)
	}

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	order, err := g.Order()
	if err != nil {
		t.Fatalf("Order() error: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("Expected 4 tasks in order, got %d: %v", len(order), order)
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, task := range g.Tasks() {
		for _, depID := range task.DependsOn {
			if pos[depID] > pos[task.ID] {
				t.Errorf("Dependency %q ordered after %q: %v", depID, task.ID, order)
			}
		}
	}
}

func TestReadyTracksSucceededSet(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})
	g.AddTask(&Task{ID: "b", DependsOn: []string{"a"}})
	g.AddTask(&Task{ID: "c", DependsOn: []string{"a", "b"}})

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	ready := g.Ready(nil)
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("Expected only a ready initially, got %v", readyIDs(ready))
	}

	g.MarkReady("a")
	g.MarkRunning("a")
	g.MarkSucceeded("a")

	ready = g.Ready(map[string]bool{"a": true})
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Errorf("Expected only b ready after a succeeded, got %v", readyIDs(ready))
	}

	ready = g.Ready(map[string]bool{"a": true, "b": true})
	// b is still Pending in the graph, so both b and c qualify
	if len(ready) != 2 {
		t.Errorf("Expected b and c ready, got %v", readyIDs(ready))
	}
}

func readyIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func TestGetReturnsCopy(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a", Capabilities: []string{"x"}})

	task, ok := g.Get("a")
	if !ok {
		t.Fatal("Expected task a to exist")
	}
	task.Status = StatusFailed
	task.Capabilities[0] = "mutated"

	fresh, _ := g.Get("a")
	if fresh.Status != StatusPending {
		t.Error("Mutating the returned copy must not affect graph state")
	}
	if fresh.Capabilities[0] != "x" {
		t.Error("Mutating the returned slice must not affect graph state")
	}
}

func TestMarkRunningCountsAttempts(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})
	g.Validate()

	g.MarkReady("a")
	g.MarkRunning("a")
	g.MarkRetrying("a")
	g.MarkReady("a")
	g.MarkRunning("a")

	task, _ := g.Get("a")
	if task.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", task.Attempts)
	}
}

func TestMarkRejectsInvalidTransitions(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})
	g.Validate()

	// Pending -> Succeeded skips Ready/Running
	if err := g.MarkSucceeded("a"); err == nil {
		t.Error("Expected error for Pending -> Succeeded")
	}

	g.MarkReady("a")
	g.MarkRunning("a")
	g.MarkSucceeded("a")

	// Terminal states are final
	if err := g.MarkCancelled("a"); err == nil {
		t.Error("Expected error cancelling a succeeded task")
	}
	if err := g.MarkRunning("missing"); err == nil {
		t.Error("Expected error marking an unknown task")
	}
}

func TestBlockDependentsPropagatesTransitively(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})
	g.AddTask(&Task{ID: "b", DependsOn: []string{"a"}})
	g.AddTask(&Task{ID: "c", DependsOn: []string{"b"}})
	g.AddTask(&Task{ID: "d", DependsOn: []string{"c"}})
	g.AddTask(&Task{ID: "unrelated"})
	g.Validate()

	g.MarkReady("a")
	g.MarkRunning("a")
	g.MarkFailed("a", errors.New("boom"))

	blocked := g.BlockDependents("a")
	if len(blocked) != 3 {
		t.Fatalf("Expected 3 blocked dependents, got %v", blocked)
	}

	for _, id := range []string{"b", "c", "d"} {
		task, _ := g.Get(id)
		if task.Status != StatusBlocked {
			t.Errorf("Expected %s blocked, got %s", id, task.Status)
		}
		if task.BlockReason != BlockAncestorFailed {
			t.Errorf("Expected ancestor_failed reason for %s, got %s", id, task.BlockReason)
		}
	}

	task, _ := g.Get("unrelated")
	if task.Status != StatusPending {
		t.Errorf("Unrelated task must stay pending, got %s", task.Status)
	}
}

func TestBlockDependentsSkipsTerminalTasks(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})
	g.AddTask(&Task{ID: "b", DependsOn: []string{"a"}})
	g.Validate()

	g.MarkCancelled("b")

	g.MarkReady("a")
	g.MarkRunning("a")
	g.MarkFailed("a", errors.New("boom"))

	if blocked := g.BlockDependents("a"); len(blocked) != 0 {
		t.Errorf("Expected no newly blocked tasks, got %v", blocked)
	}

	task, _ := g.Get("b")
	if task.Status != StatusCancelled {
		t.Errorf("Cancelled task must not be re-marked, got %s", task.Status)
	}
}

func TestDependentsReturnsDirectDependents(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})
	g.AddTask(&Task{ID: "b", DependsOn: []string{"a"}})
	g.AddTask(&Task{ID: "c", DependsOn: []string{"a"}})
	g.AddTask(&Task{ID: "d", DependsOn: []string{"b"}})

	deps := g.Dependents("a")
	if len(deps) != 2 {
		t.Errorf("Expected 2 direct dependents of a, got %v", deps)
	}
}
