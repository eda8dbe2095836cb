package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// Executor is the boundary contract for anything that can perform tasks.
// Implementations live outside the scheduler (see internal/executor); the
// registry treats them as shared, read-only collaborators and never manages
// their lifecycle.
//
// Invoke must honor ctx cancellation and deadline at least by returning
// promptly; it must be safe to call concurrently and idempotent-safe under
// retry (at-most-once delivery is not guaranteed).
type Executor interface {
	Name() string
	Capabilities() []string
	Invoke(ctx context.Context, task *Task) (Outcome, error)
}

// registryEntry tracks a registered executor and its in-flight load.
type registryEntry struct {
	exec     Executor
	caps     map[string]bool
	order    int // Registration order, tie-breaker for selection
	inFlight int
}

// Registry holds registered executors and matches them to tasks.
//
// A task is assignable to an executor iff the task's required capabilities
// are a subset of the executor's. Among matches, Acquire picks the executor
// with the fewest in-flight tasks, breaking ties by registration order so
// selection is deterministic.
type Registry struct {
	mu      sync.Mutex
	entries []*registryEntry
	byName  map[string]*registryEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*registryEntry),
	}
}

// Register adds an executor. Returns an error on duplicate names.
func (r *Registry) Register(exec Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := exec.Name()
	if name == "" {
		return fmt.Errorf("executor name must not be empty")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("executor %q already registered", name)
	}

	caps := make(map[string]bool, len(exec.Capabilities()))
	for _, c := range exec.Capabilities() {
		caps[c] = true
	}

	entry := &registryEntry{
		exec:  exec,
		caps:  caps,
		order: len(r.entries),
	}
	r.entries = append(r.entries, entry)
	r.byName[name] = entry
	return nil
}

// Len returns the number of registered executors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// matches reports whether the entry's capabilities cover the task's.
func (e *registryEntry) matches(task *Task) bool {
	for _, c := range task.Capabilities {
		if !e.caps[c] {
			return false
		}
	}
	return true
}

// Acquire selects an executor for the task and increments its in-flight
// count. The caller must pair every successful Acquire with a Release.
// Returns ErrNoCapableExecutor when nothing matches.
func (r *Registry) Acquire(task *Task) (Executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *registryEntry
	for _, entry := range r.entries {
		if !entry.matches(task) {
			continue
		}
		if best == nil || entry.inFlight < best.inFlight {
			best = entry
		}
		// Equal load keeps the earlier registration: entries are scanned
		// in registration order and ties never displace best.
	}

	if best == nil {
		return nil, fmt.Errorf("task %q requires %v: %w", task.ID, task.Capabilities, ErrNoCapableExecutor)
	}

	best.inFlight++
	return best.exec, nil
}

// Release decrements the in-flight count for the named executor.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.byName[name]; ok && entry.inFlight > 0 {
		entry.inFlight--
	}
}

// InFlight returns the current in-flight count for the named executor.
func (r *Registry) InFlight(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.byName[name]; ok {
		return entry.inFlight
	}
	return 0
}

// Names returns registered executor names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.entries))
	for i, entry := range r.entries {
		names[i] = entry.exec.Name()
	}
	return names
}
