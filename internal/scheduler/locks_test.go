package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameResource(t *testing.T) {
	lm := NewResourceLockManager()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.Lock("db")
			defer lm.Unlock("db")

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("Expected at most 1 concurrent holder of a resource, got %d", maxActive)
	}
}

func TestDifferentResourcesDoNotBlock(t *testing.T) {
	lm := NewResourceLockManager()
	lm.Lock("a")
	defer lm.Unlock("a")

	done := make(chan struct{})
	go func() {
		lm.Lock("b")
		lm.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on a different resource must not block")
	}
}

func TestLockAllAvoidsDeadlockOnOverlappingSets(t *testing.T) {
	lm := NewResourceLockManager()

	// Two goroutines take the same resources declared in opposite orders.
	// Sorted acquisition means they cannot deadlock.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			lm.LockAll([]string{"x", "y", "z"})
			lm.UnlockAll([]string{"x", "y", "z"})
		}()
		go func() {
			defer wg.Done()
			lm.LockAll([]string{"z", "y", "x"})
			lm.UnlockAll([]string{"z", "y", "x"})
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("LockAll deadlocked on overlapping resource sets")
	}
}

func TestLockAllEmptyIsNoop(t *testing.T) {
	lm := NewResourceLockManager()
	lm.LockAll(nil)
	lm.UnlockAll(nil)
	lm.Unlock("never-locked")
}
