// Package scheduler drives the sync engine: periodic drains while online,
// connectivity-triggered drains, and the cache garbage-collection sweep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/retailpoint/possync/internal/connectivity"
	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/metrics"
	"github.com/retailpoint/possync/internal/queue"
	syncpkg "github.com/retailpoint/possync/internal/sync"
	"github.com/retailpoint/possync/internal/sync/productcache"
)

// Config holds scheduler configuration.
type Config struct {
	SyncInterval  time.Duration // periodic drain while online (default: 1 minute)
	SweepInterval time.Duration // expired-cache sweep (default: 5 minutes)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  1 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Scheduler runs the engine on a timer and on connectivity transitions.
// Overlapping triggers are absorbed by the engine's own in-progress guard.
type Scheduler struct {
	engine  syncpkg.EngineInterface
	queue   *queue.OfflineQueue
	cache   *productcache.Cache
	monitor *connectivity.Monitor

	syncInterval  time.Duration
	sweepInterval time.Duration

	mu          sync.Mutex
	isRunning   bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()
}

// New creates a Scheduler.
func New(engine syncpkg.EngineInterface, q *queue.OfflineQueue, cache *productcache.Cache, monitor *connectivity.Monitor, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		engine:        engine,
		queue:         q,
		cache:         cache,
		monitor:       monitor,
		syncInterval:  cfg.SyncInterval,
		sweepInterval: cfg.SweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background loops and subscribes to connectivity
// transitions.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.unsubscribe = s.monitor.OnChange(func(ev connectivity.Event) {
		if ev.Kind != connectivity.EventResync {
			return
		}
		// Resync off the signalling goroutine; monitor callbacks must not
		// block.
		go s.onReconnect(ctx)
	})

	s.wg.Add(2)
	go s.syncLoop(ctx)
	go s.sweepLoop(ctx)

	logging.Info("sync scheduler started")
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stopCh)
	s.wg.Wait()

	logging.Info("sync scheduler stopped")
}

// onReconnect drains the queue and refreshes the catalog snapshot.
func (s *Scheduler) onReconnect(ctx context.Context) {
	if err := s.engine.SyncOfflineData(ctx); err != nil {
		logging.Error("reconnect drain failed", err)
	}
	if err := s.cache.CacheProducts(ctx); err != nil {
		logging.Warn("failed to refresh product cache on reconnect", map[string]interface{}{"error": err.Error()})
	}
}

// syncLoop runs the periodic drain while online.
func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			if err := s.engine.SyncOfflineData(ctx); err != nil {
				logging.Error("periodic drain failed", err)
			}
		}
	}
}

// sweepLoop garbage-collects expired cache rows and refreshes the queue
// depth gauges.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.queue.ClearExpiredCache(ctx); err != nil {
				logging.Warn("cache sweep failed", map[string]interface{}{"error": err.Error()})
			}
			if stats, err := s.queue.Stats(ctx); err == nil {
				metrics.ObserveQueueStats(stats)
			}
		}
	}
}
