// Package scheduler provides tests for timer- and connectivity-driven
// drains.
package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/retailpoint/possync/internal/connectivity"
	"github.com/retailpoint/possync/internal/models"
	"github.com/retailpoint/possync/internal/queue"
	"github.com/retailpoint/possync/internal/sync/productcache"
)

type fakeEngine struct {
	mu    sync.Mutex
	syncs int
}

func (f *fakeEngine) SyncOfflineData(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return nil
}

func (f *fakeEngine) Status(ctx context.Context) models.SyncStatus {
	return models.SyncStatus{}
}

func (f *fakeEngine) InProgress() bool {
	return false
}

func (f *fakeEngine) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

type fakeFetcher struct{}

func (fakeFetcher) FetchAllProducts(ctx context.Context) ([]*models.Product, error) {
	return nil, nil
}

func setupScheduler(t *testing.T, cfg *Config) (*Scheduler, *fakeEngine, *connectivity.Monitor) {
	t.Helper()

	engine := &fakeEngine{}
	// Degraded queue is enough here; the scheduler only sweeps it.
	q := queue.New(nil)
	cache := productcache.New(q, fakeFetcher{})
	monitor := connectivity.New(connectivity.Config{InitialOnline: false})

	return New(engine, q, cache, monitor, cfg), engine, monitor
}

func waitForSyncs(t *testing.T, engine *fakeEngine, want int) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if engine.syncCount() >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("Timed out waiting for %d drains, saw %d", want, engine.syncCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestReconnectTriggersDrain tests that an offline-to-online transition
// drains the queue.
func TestReconnectTriggersDrain(t *testing.T) {
	sched, engine, monitor := setupScheduler(t, &Config{
		SyncInterval:  time.Hour,
		SweepInterval: time.Hour,
	})
	sched.Start(context.Background())
	defer sched.Stop()

	monitor.SetOnline(true)
	waitForSyncs(t, engine, 1)
}

// TestPeriodicDrainWhileOnline tests the ticker-driven drain.
func TestPeriodicDrainWhileOnline(t *testing.T) {
	sched, engine, monitor := setupScheduler(t, &Config{
		SyncInterval:  20 * time.Millisecond,
		SweepInterval: time.Hour,
	})
	monitor.SetOnline(true)
	sched.Start(context.Background())
	defer sched.Stop()

	waitForSyncs(t, engine, 2)
}

// TestNoPeriodicDrainWhileOffline tests that ticks are skipped offline.
func TestNoPeriodicDrainWhileOffline(t *testing.T) {
	sched, engine, _ := setupScheduler(t, &Config{
		SyncInterval:  10 * time.Millisecond,
		SweepInterval: time.Hour,
	})
	sched.Start(context.Background())
	defer sched.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := engine.syncCount(); got != 0 {
		t.Errorf("Expected no drains while offline, got %d", got)
	}
}

// TestStopUnsubscribes tests that transitions after Stop no longer drain.
func TestStopUnsubscribes(t *testing.T) {
	sched, engine, monitor := setupScheduler(t, &Config{
		SyncInterval:  time.Hour,
		SweepInterval: time.Hour,
	})
	sched.Start(context.Background())
	sched.Stop()

	monitor.SetOnline(true)
	time.Sleep(30 * time.Millisecond)
	if got := engine.syncCount(); got != 0 {
		t.Errorf("Expected no drains after Stop, got %d", got)
	}
}

// TestStartStopIdempotent tests that repeated lifecycle calls are safe.
func TestStartStopIdempotent(t *testing.T) {
	sched, _, _ := setupScheduler(t, nil)

	ctx := context.Background()
	sched.Start(ctx)
	sched.Start(ctx)
	sched.Stop()
	sched.Stop()
}
