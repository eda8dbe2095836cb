package scheduler

import (
	"errors"
	"testing"
	"time"
)

func buildValidated(t *testing.T, tasks ...*Task) *Graph {
	t.Helper()
	g := NewGraph()
	for _, task := range tasks {
		if err := g.AddTask(task); err != nil {
			t.Fatalf("AddTask(%s) error: %v", task.ID, err)
		}
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	return g
}

func TestPlanRequiresValidation(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Task{ID: "a"})

	if _, err := g.Plan(); !errors.Is(err, ErrGraphNotValidated) {
		t.Errorf("Expected ErrGraphNotValidated, got %v", err)
	}
}

func TestPlanBatchesByLevel(t *testing.T) {
	// Diamond plus a long tail:
	//   a -> b, a -> c, {b,c} -> d, d -> e
	g := buildValidated(t,
		&Task{ID: "a"},
		&Task{ID: "b", DependsOn: []string{"a"}},
		&Task{ID: "c", DependsOn: []string{"a"}},
		&Task{ID: "d", DependsOn: []string{"b", "c"}},
		&Task{ID: "e", DependsOn: []string{"d"}},
	)

	plan, err := g.Plan()
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if len(plan.Batches) != 4 {
		t.Fatalf("Expected 4 batches, got %d: %v", len(plan.Batches), plan.Batches)
	}
	if plan.TaskCount() != 5 {
		t.Errorf("Expected 5 tasks in plan, got %d", plan.TaskCount())
	}

	expected := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2, "e": 3}
	for id, batch := range expected {
		if got := plan.BatchOf(id); got != batch {
			t.Errorf("Expected %s in batch %d, got %d", id, batch, got)
		}
	}
	if plan.BatchOf("missing") != -1 {
		t.Error("Expected -1 for unknown task")
	}
}

func TestPlanLevelInvariant(t *testing.T) {
	// Every task's dependencies must land in a strictly earlier batch.
	g := buildValidated(t,
		&Task{ID: "t1"},
		&Task{ID: "t2"},
		&Task{ID: "t3", DependsOn: []string{"t1"}},
		&Task{ID: "t4", DependsOn: []string{"t1", "t2"}},
		&Task{ID: "t5", DependsOn: []string{"t3", "t2"}},
		&Task{ID: "t6", DependsOn: []string{"t4", "t5"}},
	)

	plan, err := g.Plan()
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	for _, task := range g.Tasks() {
		for _, depID := range task.DependsOn {
			if plan.BatchOf(depID) >= plan.BatchOf(task.ID) {
				t.Errorf("Dependency %s (batch %d) not strictly before %s (batch %d)",
					depID, plan.BatchOf(depID), task.ID, plan.BatchOf(task.ID))
			}
		}
	}
}

func TestPlanIsCachedAndDeterministic(t *testing.T) {
	g := buildValidated(t,
		&Task{ID: "a"},
		&Task{ID: "b", DependsOn: []string{"a"}},
	)

	first, err := g.Plan()
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	second, err := g.Plan()
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if first != second {
		t.Error("Expected planning a sealed graph twice to return the cached plan")
	}
}

func TestCriticalPathUnweighted(t *testing.T) {
	g := buildValidated(t,
		&Task{ID: "a"},
		&Task{ID: "b", DependsOn: []string{"a"}},
		&Task{ID: "c", DependsOn: []string{"b"}},
		&Task{ID: "short"},
	)

	cp, err := g.CriticalPath()
	if err != nil {
		t.Fatalf("CriticalPath() error: %v", err)
	}

	if cp.Length() != 3 {
		t.Fatalf("Expected 3-task critical path, got %v", cp.TaskIDs)
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if cp.TaskIDs[i] != id {
			t.Errorf("Expected path %v, got %v", want, cp.TaskIDs)
			break
		}
	}
	if cp.Duration != 0 {
		t.Errorf("Expected zero duration without estimates, got %v", cp.Duration)
	}
}

func TestCriticalPathWeighted(t *testing.T) {
	// The shorter chain carries the bigger estimates, so it wins.
	g := buildValidated(t,
		&Task{ID: "a", Estimate: 1 * time.Second},
		&Task{ID: "b", DependsOn: []string{"a"}, Estimate: 1 * time.Second},
		&Task{ID: "c", DependsOn: []string{"b"}, Estimate: 1 * time.Second},
		&Task{ID: "big", Estimate: 10 * time.Second},
		&Task{ID: "bigger", DependsOn: []string{"big"}, Estimate: 10 * time.Second},
	)

	cp, err := g.CriticalPath()
	if err != nil {
		t.Fatalf("CriticalPath() error: %v", err)
	}

	if cp.Length() != 2 || cp.TaskIDs[0] != "big" || cp.TaskIDs[1] != "bigger" {
		t.Errorf("Expected [big bigger], got %v", cp.TaskIDs)
	}
	if cp.Duration != 20*time.Second {
		t.Errorf("Expected 20s duration, got %v", cp.Duration)
	}
}

func TestCriticalPathStableWithSparseEstimates(t *testing.T) {
	// Two zero-estimate roots feed the only estimated task, so the chains
	// weigh the same. The tie must resolve to the same path no matter how
	// the dependencies are ordered.
	for _, deps := range [][]string{{"zeta", "alpha"}, {"alpha", "zeta"}} {
		g := buildValidated(t,
			&Task{ID: "zeta"},
			&Task{ID: "alpha"},
			&Task{ID: "sink", DependsOn: deps, Estimate: 5 * time.Second},
		)

		cp, err := g.CriticalPath()
		if err != nil {
			t.Fatalf("CriticalPath() error: %v", err)
		}
		if cp.Length() != 2 || cp.TaskIDs[0] != "alpha" || cp.TaskIDs[1] != "sink" {
			t.Errorf("Dependencies %v: expected [alpha sink], got %v", deps, cp.TaskIDs)
		}
		if cp.Duration != 5*time.Second {
			t.Errorf("Expected 5s duration, got %v", cp.Duration)
		}
	}
}

func TestCriticalPathEmptyGraph(t *testing.T) {
	g := NewGraph()
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	cp, err := g.CriticalPath()
	if err != nil {
		t.Fatalf("CriticalPath() error: %v", err)
	}
	if cp.Length() != 0 {
		t.Errorf("Expected empty path, got %v", cp.TaskIDs)
	}
}

func TestDescribeRendersOneLinePerBatch(t *testing.T) {
	g := buildValidated(t,
		&Task{ID: "a"},
		&Task{ID: "b", DependsOn: []string{"a"}},
	)

	plan, _ := g.Plan()
	lines := plan.Describe()
	if len(lines) != 2 {
		t.Errorf("Expected 2 lines, got %v", lines)
	}
}
