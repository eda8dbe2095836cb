package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aristath/conductor/internal/scheduler"
)

// CommandExecutor performs tasks by running a configured CLI once per
// invocation (subprocess-per-invocation model). The task is written to the
// subprocess's stdin as JSON; the result is read from stdout.
type CommandExecutor struct {
	name         string
	capabilities []string
	command      string
	args         []string
	workDir      string
	procMgr      *ProcessManager
}

// taskPayload is the JSON document written to the subprocess's stdin.
type taskPayload struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
	Attempt      int      `json:"attempt"`
}

// commandResult is the JSON structure a well-behaved command prints to
// stdout. Example: {"success": true, "output": "done"}.
// Commands that print anything else are judged by exit code, with raw stdout
// as the output.
type commandResult struct {
	Success *bool  `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

// NewCommand creates a subprocess-backed executor.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewCommand(cfg Config, procMgr *ProcessManager) (*CommandExecutor, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("executor %q: command must not be empty", cfg.Name)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &CommandExecutor{
		name:         cfg.Name,
		capabilities: append([]string(nil), cfg.Capabilities...),
		command:      cfg.Command,
		args:         append([]string(nil), cfg.Args...),
		workDir:      workDir,
		procMgr:      procMgr,
	}, nil
}

// Name returns the executor's registry name.
func (e *CommandExecutor) Name() string {
	return e.name
}

// Capabilities returns the capability tags this executor satisfies.
func (e *CommandExecutor) Capabilities() []string {
	return append([]string(nil), e.capabilities...)
}

// Invoke runs the configured command for the task and parses its result.
// Cancellation and deadlines arrive through ctx; exec.CommandContext kills
// the subprocess when the context ends.
func (e *CommandExecutor) Invoke(ctx context.Context, task *scheduler.Task) (scheduler.Outcome, error) {
	started := time.Now()

	stdin, err := json.Marshal(taskPayload{
		ID:           task.ID,
		Description:  task.Description,
		Capabilities: task.Capabilities,
		Attempt:      task.Attempts,
	})
	if err != nil {
		return scheduler.Outcome{}, fmt.Errorf("marshaling task payload: %w", err)
	}

	cmd := newCommand(ctx, e.command, e.args...)
	cmd.Dir = e.workDir

	stdout, stderr, runErr := runCommand(cmd, e.procMgr, stdin)
	outcome := scheduler.Outcome{
		TaskID:    task.ID,
		StartedAt: started,
		Duration:  time.Since(started),
	}

	result, parseErr := parseCommandResult(stdout)
	switch {
	case parseErr == nil && result.Success != nil:
		// Structured result wins over the exit code.
		outcome.Success = *result.Success
		outcome.Output = result.Output
		if !outcome.Success {
			msg := result.Error
			if msg == "" {
				msg = "command reported failure"
			}
			outcome.Err = fmt.Errorf("%s", msg)
		}
	case runErr != nil:
		outcome.Err = fmt.Errorf("command executor %q: %w", e.name, runErr)
		if len(stderr) > 0 {
			outcome.Output = strings.TrimSpace(string(stderr))
		}
	default:
		outcome.Success = true
		outcome.Output = strings.TrimSpace(string(stdout))
	}

	return outcome, nil
}

// parseCommandResult parses the JSON output of a command invocation.
func parseCommandResult(data []byte) (commandResult, error) {
	var res commandResult
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed[0] != '{' {
		return res, fmt.Errorf("not a JSON object")
	}
	if err := json.Unmarshal([]byte(trimmed), &res); err != nil {
		return res, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return res, nil
}
