package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/aristath/conductor/internal/config"
	"github.com/aristath/conductor/internal/events"
	"github.com/aristath/conductor/internal/executor"
	"github.com/aristath/conductor/internal/orchestrator"
	"github.com/aristath/conductor/internal/persistence"
	"github.com/aristath/conductor/internal/scheduler"
	"github.com/aristath/conductor/internal/tui"
)

func main() {
	planOnly := flag.Bool("plan", false, "print the execution plan and critical path without running")
	useTUI := flag.Bool("tui", false, "watch the run in the terminal dashboard")
	history := flag.Int("history", 0, "list the N most recent runs from the journal and exit")
	flag.Usage = usage
	flag.Parse()

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *history > 0 {
		if err := showHistory(ctx, cfg, *history); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	wf, err := config.LoadWorkflow(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tasks, err := wf.SchedulerTasks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *planOnly {
		if err := printPlan(tasks); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	run, err := execute(ctx, cfg, wf, tasks, *useTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printSummary(run)

	if run.Status() != scheduler.RunCompleted {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: conductor [flags] <workflow.json>\n\nFlags:\n")
	flag.PrintDefaults()
}

// execute runs the workflow to a terminal state and journals the result.
func execute(ctx context.Context, cfg *config.Config, wf *config.Workflow, tasks []*scheduler.Task, useTUI bool) (*scheduler.Run, error) {
	pm := executor.NewProcessManager()

	executors, err := buildExecutors(cfg, pm)
	if err != nil {
		return nil, err
	}

	runCfg, err := buildRunConfig(cfg, wf)
	if err != nil {
		return nil, err
	}

	eventCh, wait, err := orchestrator.SubmitStream(ctx, tasks, executors, runCfg)
	if err != nil {
		return nil, err
	}

	observerDone := make(chan error, 1)
	if useTUI {
		go func() { observerDone <- tui.Run(eventCh) }()
	} else {
		go func() {
			logEvents(eventCh)
			observerDone <- nil
		}()
	}

	run, runErr := wait()

	// A cancelled run may leave subprocesses behind their context's grace
	// period; sweep the process group remnants.
	if ctx.Err() != nil {
		if err := pm.KillAll(); err != nil {
			log.Printf("WARNING: killing subprocesses: %v", err)
		}
	}

	if err := <-observerDone; err != nil {
		log.Printf("WARNING: display error: %v", err)
	}

	if runErr != nil {
		return nil, runErr
	}

	if !cfg.Journal.Disabled {
		if err := journalRun(cfg.Journal.Path, wf.Name, run); err != nil {
			log.Printf("WARNING: journaling run: %v", err)
		}
	}

	return run, nil
}

// buildExecutors constructs every executor declared in the config.
// Names come from the config map keys, sorted so registration order (and
// therefore tie-breaking) is stable across runs.
func buildExecutors(cfg *config.Config, pm *executor.ProcessManager) ([]scheduler.Executor, error) {
	names := make([]string, 0, len(cfg.Executors))
	for name := range cfg.Executors {
		names = append(names, name)
	}
	sort.Strings(names)

	executors := make([]scheduler.Executor, 0, len(names))
	for _, name := range names {
		ec := cfg.Executors[name]
		exec, err := executor.New(executor.Config{
			Name:         name,
			Type:         ec.Type,
			Capabilities: ec.Capabilities,
			Command:      ec.Command,
			Args:         ec.Args,
			WorkDir:      ec.WorkDir,
		}, pm)
		if err != nil {
			return nil, fmt.Errorf("executor %q: %w", name, err)
		}
		executors = append(executors, exec)
	}
	return executors, nil
}

// buildRunConfig merges config-level run defaults with workflow overrides.
func buildRunConfig(cfg *config.Config, wf *config.Workflow) (orchestrator.RunConfig, error) {
	defaults := cfg.Run
	if wf.Run != nil {
		defaults = *wf.Run
	}

	maxConcurrency, failFast, maxRetries, taskTimeout, err := config.ParseRunDefaults(defaults)
	if err != nil {
		return orchestrator.RunConfig{}, err
	}

	runCfg := orchestrator.DefaultRunConfig()
	runCfg.MaxConcurrency = maxConcurrency
	runCfg.FailFast = failFast
	runCfg.DefaultMaxRetries = maxRetries
	runCfg.TaskTimeout = taskTimeout
	return runCfg, nil
}

// printPlan validates the graph and prints its batches and critical path.
func printPlan(tasks []*scheduler.Task) error {
	graph := scheduler.NewGraph()
	for _, task := range tasks {
		if err := graph.AddTask(task); err != nil {
			return err
		}
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	plan, err := graph.Plan()
	if err != nil {
		return err
	}
	for _, line := range plan.Describe() {
		fmt.Println(line)
	}

	cp, err := graph.CriticalPath()
	if err != nil {
		return err
	}
	fmt.Printf("critical path (%d tasks", cp.Length())
	if cp.Duration > 0 {
		fmt.Printf(", ~%v", cp.Duration)
	}
	fmt.Printf("): %v\n", cp.TaskIDs)

	return nil
}

// logEvents writes lifecycle events to the standard logger until the
// channel closes.
func logEvents(ch <-chan events.Event) {
	for event := range ch {
		switch e := event.(type) {
		case events.TaskStarted:
			log.Printf("task %s started (executor=%s attempt=%d)", e.ID, e.Executor, e.Attempt)
		case events.TaskRetrying:
			log.Printf("WARNING: task %s attempt %d failed, retrying: %v", e.ID, e.Attempt, e.Err)
		case events.TaskSucceeded:
			log.Printf("task %s succeeded in %v", e.ID, e.Duration)
		case events.TaskFailed:
			log.Printf("ERROR: task %s failed after %d attempts: %v", e.ID, e.Attempts, e.Err)
		case events.TaskBlocked:
			log.Printf("WARNING: task %s blocked (%s)", e.ID, e.Reason)
		case events.TaskCancelled:
			log.Printf("task %s cancelled", e.ID)
		case events.BatchStarted:
			log.Printf("batch %d started (%d tasks)", e.Index, e.Size)
		case events.RunFinished:
			log.Printf("run %s finished: %s (%v)", e.RunID, e.Status, e.Duration)
		}
	}
}

// journalRun persists the finished run to the sqlite journal.
func journalRun(path, workflow string, run *scheduler.Run) error {
	if path == "" {
		path = ".conductor/runs.db"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := persistence.NewSQLiteStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.SaveRun(ctx, workflow, run)
}

// showHistory lists recent runs from the journal.
func showHistory(ctx context.Context, cfg *config.Config, limit int) error {
	path := cfg.Journal.Path
	if path == "" {
		path = ".conductor/runs.db"
	}

	store, err := persistence.NewSQLiteStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, s := range summaries {
		fmt.Printf("%s  %-20s %-19s %3d tasks  %s\n",
			s.ID, s.Workflow, s.Status, s.TaskCount, s.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// printSummary writes the final per-status task lists to stdout.
func printSummary(run *scheduler.Run) {
	fmt.Printf("\nrun %s: %s\n", run.ID(), run.Status())
	if ids := run.Succeeded(); len(ids) > 0 {
		fmt.Printf("  succeeded: %v\n", ids)
	}
	if ids := run.Failed(); len(ids) > 0 {
		fmt.Printf("  failed:    %v\n", ids)
	}
	if ids := run.Blocked(); len(ids) > 0 {
		fmt.Printf("  blocked:   %v\n", ids)
	}
	if ids := run.Cancelled(); len(ids) > 0 {
		fmt.Printf("  cancelled: %v\n", ids)
	}
}
