package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aristath/conductor/internal/scheduler"
)

// TaskSpec declares one task in a workflow file.
type TaskSpec struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`
	Resources    []string `json:"resources,omitempty"`
	MaxRetries   int      `json:"max_retries,omitempty"`
	Estimate     string   `json:"estimate,omitempty"` // Go duration string, e.g. "30s"
}

// Workflow is a JSON document describing one submission: a named set of
// interdependent tasks plus optional run-level overrides.
type Workflow struct {
	Name  string       `json:"name"`
	Tasks []TaskSpec   `json:"tasks"`
	Run   *RunDefaults `json:"run,omitempty"` // Overrides config-level run defaults
}

// LoadWorkflow reads and parses a workflow file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow %s: %w", path, err)
	}

	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing workflow %s: %w", path, err)
	}

	if len(wf.Tasks) == 0 {
		return nil, fmt.Errorf("workflow %s declares no tasks", path)
	}

	return &wf, nil
}

// SchedulerTasks converts the declared tasks into scheduler tasks.
// Structural problems (duplicate IDs, cycles, unknown dependencies) are not
// checked here; graph validation owns those.
func (wf *Workflow) SchedulerTasks() ([]*scheduler.Task, error) {
	tasks := make([]*scheduler.Task, 0, len(wf.Tasks))
	for _, spec := range wf.Tasks {
		if spec.ID == "" {
			return nil, fmt.Errorf("workflow %q: task with empty id", wf.Name)
		}

		var estimate time.Duration
		if spec.Estimate != "" {
			var err error
			estimate, err = time.ParseDuration(spec.Estimate)
			if err != nil {
				return nil, fmt.Errorf("task %q: invalid estimate: %w", spec.ID, err)
			}
		}

		tasks = append(tasks, &scheduler.Task{
			ID:           spec.ID,
			Description:  spec.Description,
			Capabilities: spec.Capabilities,
			DependsOn:    spec.DependsOn,
			Resources:    spec.Resources,
			MaxRetries:   spec.MaxRetries,
			Estimate:     estimate,
		})
	}
	return tasks, nil
}

// ParseRunDefaults converts RunDefaults into a duration-typed view usable by
// callers assembling a run configuration.
func ParseRunDefaults(rd RunDefaults) (maxConcurrency int, failFast bool, maxRetries int, taskTimeout time.Duration, err error) {
	if rd.TaskTimeout != "" {
		taskTimeout, err = time.ParseDuration(rd.TaskTimeout)
		if err != nil {
			return 0, false, 0, 0, fmt.Errorf("invalid task_timeout: %w", err)
		}
	}
	return rd.MaxConcurrency, rd.FailFast, rd.MaxRetries, taskTimeout, nil
}
