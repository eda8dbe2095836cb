package config

// DefaultConfig returns the default configuration with a built-in dry-run
// executor and a generic shell executor.
func DefaultConfig() *Config {
	return &Config{
		Executors: map[string]ExecutorConfig{
			"dry-run": {
				Type:         "noop",
				Capabilities: []string{"general"},
			},
			"shell": {
				Type:         "command",
				Capabilities: []string{"general", "shell"},
				Command:      "sh",
				Args:         []string{"-c", "cat >/dev/null; echo ok"},
			},
		},
		Run: RunDefaults{
			MaxConcurrency: 4,
		},
		Journal: JournalConfig{
			Path: ".conductor/runs.db",
		},
	}
}
