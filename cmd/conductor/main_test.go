package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/conductor/internal/config"
	"github.com/aristath/conductor/internal/executor"
	"github.com/aristath/conductor/internal/scheduler"
)

func TestBuildExecutorsSortedAndConstructed(t *testing.T) {
	cfg := &config.Config{
		Executors: map[string]config.ExecutorConfig{
			"zeta":  {Type: "noop", Capabilities: []string{"b"}},
			"alpha": {Type: "noop", Capabilities: []string{"a"}},
		},
	}

	executors, err := buildExecutors(cfg, executor.NewProcessManager())
	if err != nil {
		t.Fatalf("buildExecutors() error: %v", err)
	}

	if len(executors) != 2 {
		t.Fatalf("Expected 2 executors, got %d", len(executors))
	}
	// Map keys sort so registration order is deterministic
	if executors[0].Name() != "alpha" || executors[1].Name() != "zeta" {
		t.Errorf("Expected [alpha zeta], got [%s %s]", executors[0].Name(), executors[1].Name())
	}
}

func TestBuildExecutorsUnknownType(t *testing.T) {
	cfg := &config.Config{
		Executors: map[string]config.ExecutorConfig{
			"bad": {Type: "teleport"},
		},
	}

	if _, err := buildExecutors(cfg, executor.NewProcessManager()); err == nil {
		t.Error("Expected error for unknown executor type, got nil")
	}
}

func TestBuildRunConfigWorkflowOverridesConfig(t *testing.T) {
	cfg := &config.Config{
		Run: config.RunDefaults{MaxConcurrency: 4, MaxRetries: 1},
	}
	wf := &config.Workflow{
		Name: "test",
		Run:  &config.RunDefaults{MaxConcurrency: 2, FailFast: true, TaskTimeout: "30s"},
	}

	runCfg, err := buildRunConfig(cfg, wf)
	if err != nil {
		t.Fatalf("buildRunConfig() error: %v", err)
	}

	if runCfg.MaxConcurrency != 2 {
		t.Errorf("Expected MaxConcurrency 2 from workflow override, got %d", runCfg.MaxConcurrency)
	}
	if !runCfg.FailFast {
		t.Error("Expected FailFast from workflow override")
	}
	if runCfg.TaskTimeout != 30*time.Second {
		t.Errorf("Expected TaskTimeout 30s, got %v", runCfg.TaskTimeout)
	}
	if runCfg.Retry.Multiplier == 0 {
		t.Error("Expected retry defaults to be populated")
	}
}

func TestBuildRunConfigInvalidTimeout(t *testing.T) {
	cfg := &config.Config{
		Run: config.RunDefaults{TaskTimeout: "not-a-duration"},
	}
	wf := &config.Workflow{Name: "test"}

	if _, err := buildRunConfig(cfg, wf); err == nil {
		t.Error("Expected error for invalid task_timeout, got nil")
	}
}

func TestPrintPlanRejectsCycle(t *testing.T) {
	tasks := []*scheduler.Task{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}

	if err := printPlan(tasks); err == nil {
		t.Error("Expected cycle error from printPlan, got nil")
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Executors: map[string]config.ExecutorConfig{
			"dry-run": {Type: "noop", Capabilities: []string{"general"}},
		},
		Journal: config.JournalConfig{Path: filepath.Join(dir, "runs.db")},
	}
	wf := &config.Workflow{Name: "e2e"}
	tasks := []*scheduler.Task{
		{ID: "a", Capabilities: []string{"general"}},
		{ID: "b", DependsOn: []string{"a"}, Capabilities: []string{"general"}},
	}

	run, err := execute(context.Background(), cfg, wf, tasks, false)
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	if run.Status() != scheduler.RunCompleted {
		t.Errorf("Expected completed run, got %s", run.Status())
	}

	// Journal should have been written
	if _, err := os.Stat(filepath.Join(dir, "runs.db")); err != nil {
		t.Errorf("Expected journal file to exist: %v", err)
	}
}
