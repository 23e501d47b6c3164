package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/dqm/internal/core"
)

func TestGate_AcquireRelease(t *testing.T) {
	gate := NewGate()

	if gate.Active() {
		t.Error("new gate should be idle")
	}

	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !gate.Active() {
		t.Error("after Acquire, Active = false, want true")
	}

	gate.Release()
	if gate.Active() {
		t.Error("after Release, Active = true, want false")
	}
}

func TestGate_TryAcquire(t *testing.T) {
	gate := NewGate()

	if err := gate.TryAcquire(); err != nil {
		t.Fatalf("first TryAcquire failed: %v", err)
	}

	// Second TryAcquire should fail immediately (no blocking)
	start := time.Now()
	err := gate.TryAcquire()
	elapsed := time.Since(start)

	if !errors.Is(err, core.ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	if elapsed > 10*time.Millisecond {
		t.Errorf("TryAcquire blocked for %v", elapsed)
	}

	gate.Release()

	if err := gate.TryAcquire(); err != nil {
		t.Errorf("TryAcquire after Release failed: %v", err)
	}
	gate.Release()
}

func TestGate_Serializes(t *testing.T) {
	const runs = 8

	gate := NewGate()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inside, maxInside := 0, 0

	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := gate.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer gate.Release()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}

	wg.Wait()

	if maxInside != 1 {
		t.Errorf("observed %d concurrent runs, want 1", maxInside)
	}
	if gate.Active() {
		t.Error("gate still active after all runs")
	}
}

func TestGate_ContextCancellation(t *testing.T) {
	gate := NewGate()

	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gate.Acquire(cancelCtx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after context cancellation")
	}

	gate.Release()
}

func TestGate_WaitForDrain(t *testing.T) {
	gate := NewGate()
	gate.Acquire(context.Background())

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- gate.WaitForDrain(context.Background())
	}()

	select {
	case <-drainDone:
		t.Error("WaitForDrain returned while a run was active")
	case <-time.After(50 * time.Millisecond):
	}

	gate.Release()

	select {
	case err := <-drainDone:
		if err != nil {
			t.Errorf("WaitForDrain returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("WaitForDrain did not complete after release")
	}
}

func TestGate_WaitForDrain_ContextCancelled(t *testing.T) {
	gate := NewGate()
	gate.Acquire(context.Background())

	cancelCtx, cancel := context.WithCancel(context.Background())

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- gate.WaitForDrain(cancelCtx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-drainDone:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("WaitForDrain did not return after context cancellation")
	}

	gate.Release()
}

func TestGate_Status(t *testing.T) {
	gate := NewGate()

	if status := gate.Status(); status.Active || !status.Since.IsZero() {
		t.Errorf("idle status = %+v, want zero", status)
	}

	before := time.Now()
	gate.Acquire(context.Background())

	status := gate.Status()
	if !status.Active {
		t.Error("Active = false, want true")
	}
	if status.Since.Before(before) {
		t.Errorf("Since = %v, want at or after %v", status.Since, before)
	}

	gate.Release()
}

func TestGate_UnblocksWaiter(t *testing.T) {
	gate := NewGate()
	gate.Acquire(context.Background())

	acquired := make(chan struct{})
	go func() {
		if err := gate.Acquire(context.Background()); err != nil {
			t.Errorf("waiting Acquire failed: %v", err)
			return
		}
		close(acquired)
		gate.Release()
	}()

	time.Sleep(50 * time.Millisecond)
	gate.Release()

	select {
	case <-acquired:
	case <-time.After(500 * time.Millisecond):
		t.Error("waiter did not acquire after release")
	}
}
