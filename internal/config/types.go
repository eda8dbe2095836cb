package config

// ExecutorConfig declares one executor available to workflows.
type ExecutorConfig struct {
	Type         string   `json:"type"`                   // Executor type: "command" or "noop"
	Capabilities []string `json:"capabilities"`           // Capability tags the executor satisfies
	Command      string   `json:"command,omitempty"`      // Binary for command executors
	Args         []string `json:"args,omitempty"`         // Default args for command executors
	WorkDir      string   `json:"work_dir,omitempty"`     // Working directory for subprocesses
}

// RunDefaults carries run-level knobs applied to every submission unless a
// workflow file overrides them. Durations are Go duration strings ("90s").
type RunDefaults struct {
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
	FailFast       bool   `json:"fail_fast,omitempty"`
	MaxRetries     int    `json:"max_retries,omitempty"`
	TaskTimeout    string `json:"task_timeout,omitempty"`
}

// JournalConfig controls the sqlite run journal.
type JournalConfig struct {
	Disabled bool   `json:"disabled,omitempty"`
	Path     string `json:"path,omitempty"` // Defaults to .conductor/runs.db
}

// Config is the top-level configuration.
type Config struct {
	Executors map[string]ExecutorConfig `json:"executors"`
	Run       RunDefaults               `json:"run"`
	Journal   JournalConfig             `json:"journal"`
}
