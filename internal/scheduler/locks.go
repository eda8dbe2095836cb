package scheduler

import (
	"sort"
	"sync"
)

// ResourceLockManager provides mutual exclusion for tasks that declare
// exclusive resource tags. Uses a keyed mutex pattern: each tag gets its own
// mutex, so tasks touching different resources run concurrently while tasks
// sharing a tag serialize within a batch. It never affects ordering across
// batches.
type ResourceLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-resource mutexes
}

// NewResourceLockManager creates a new ResourceLockManager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given resource tag, creating it on first use.
func (r *ResourceLockManager) Lock(resource string) {
	r.mu.Lock()
	tagLock, exists := r.locks[resource]
	if !exists {
		tagLock = &sync.Mutex{}
		r.locks[resource] = tagLock
	}
	r.mu.Unlock()

	// Acquire outside the manager lock to avoid contention.
	tagLock.Lock()
}

// Unlock releases the mutex for the given resource tag.
func (r *ResourceLockManager) Unlock(resource string) {
	r.mu.Lock()
	tagLock, exists := r.locks[resource]
	r.mu.Unlock()

	if exists {
		tagLock.Unlock()
	}
}

// LockAll acquires locks for all given resource tags.
// Tags are sorted lexicographically before acquisition so two tasks sharing
// several resources always lock in the same order, preventing deadlocks.
func (r *ResourceLockManager) LockAll(resources []string) {
	if len(resources) == 0 {
		return
	}

	sorted := make([]string, len(resources))
	copy(sorted, resources)
	sort.Strings(sorted)

	for _, resource := range sorted {
		r.Lock(resource)
	}
}

// UnlockAll releases locks for all given resource tags, in reverse sorted
// order for symmetry with LockAll.
func (r *ResourceLockManager) UnlockAll(resources []string) {
	if len(resources) == 0 {
		return
	}

	sorted := make([]string, len(resources))
	copy(sorted, resources)
	sort.Strings(sorted)

	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}
