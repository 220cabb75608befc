// Package service composes the sync core into one explicitly constructed
// object with an init/dispose lifecycle. It is the surface the UI layer
// talks to; construct one per application instance and inject fakes for
// the store and remote in tests.
package service

import (
	"context"

	"github.com/retailpoint/possync/internal/connectivity"
	"github.com/retailpoint/possync/internal/ident"
	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/models"
	"github.com/retailpoint/possync/internal/queue"
	syncpkg "github.com/retailpoint/possync/internal/sync"
	"github.com/retailpoint/possync/internal/sync/productcache"
	"github.com/retailpoint/possync/internal/sync/scheduler"
)

// OfflineSyncService wires the offline queue, sync engine, connectivity
// monitor and product cache behind the interface the UI layer consumes.
type OfflineSyncService struct {
	queue     *queue.OfflineQueue
	engine    syncpkg.EngineInterface
	monitor   *connectivity.Monitor
	cache     *productcache.Cache
	remote    syncpkg.RemoteStore
	scheduler *scheduler.Scheduler
}

// New creates the service. The scheduler may be nil for embedders that
// drive the engine themselves.
func New(q *queue.OfflineQueue, engine syncpkg.EngineInterface, monitor *connectivity.Monitor,
	cache *productcache.Cache, remote syncpkg.RemoteStore, sched *scheduler.Scheduler) *OfflineSyncService {
	return &OfflineSyncService{
		queue:     q,
		engine:    engine,
		monitor:   monitor,
		cache:     cache,
		remote:    remote,
		scheduler: sched,
	}
}

// Init starts the background machinery and warms the product cache when
// connectivity allows.
func (s *OfflineSyncService) Init(ctx context.Context) {
	s.monitor.Start(ctx)
	if s.scheduler != nil {
		s.scheduler.Start(ctx)
	}

	if s.monitor.IsOnline() {
		if err := s.cache.CacheProducts(ctx); err != nil {
			logging.Warn("initial product cache refresh failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close stops the background machinery.
func (s *OfflineSyncService) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.monitor.Stop()
}

// IsOnline reports the connectivity monitor's current state.
func (s *OfflineSyncService) IsOnline() bool {
	return s.monitor.IsOnline()
}

// Status returns the aggregate sync status for the UI.
func (s *OfflineSyncService) Status(ctx context.Context) models.SyncStatus {
	return s.engine.Status(ctx)
}

// SyncOfflineData triggers a drain pass; safe to call at any time.
func (s *OfflineSyncService) SyncOfflineData(ctx context.Context) error {
	return s.engine.SyncOfflineData(ctx)
}

// AddSaleToOfflineQueue enqueues a sale for later sync and returns its id.
func (s *OfflineSyncService) AddSaleToOfflineQueue(ctx context.Context, sale *models.PendingSale) (string, error) {
	return s.queue.AddPendingSale(ctx, sale)
}

// AddOperationToOfflineQueue enqueues a deferred operation.
func (s *OfflineSyncService) AddOperationToOfflineQueue(ctx context.Context, op *models.PendingOperation) error {
	_, err := s.queue.AddPendingOperation(ctx, op)
	return err
}

// RecordSale is the POS checkout path: write directly to the remote store
// when online, queue when offline. A remote failure while nominally online
// falls back to the queue rather than losing the sale.
func (s *OfflineSyncService) RecordSale(ctx context.Context, sale *models.PendingSale) (id string, queued bool, err error) {
	if sale.ID == "" {
		// The client reference doubles as the remote idempotency key, so
		// it must exist before the first create attempt.
		sale.ID = ident.NewSaleID()
	}

	if s.monitor.IsOnline() {
		remoteID, err := s.remote.CreateSale(ctx, syncpkg.CreateSaleInput{
			ClientRef:     sale.ID,
			Items:         sale.Items,
			Total:         sale.Total,
			Tax:           sale.Tax,
			FinalTotal:    sale.FinalTotal,
			PaymentMethod: sale.PaymentMethod,
			SoldBy:        sale.SoldBy,
			SoldByName:    sale.SoldByName,
			Customer:      sale.Customer,
			IsOfflineSale: false,
		})
		if err == nil {
			return remoteID, false, nil
		}
		logging.Warn("online sale create failed, queueing instead", map[string]interface{}{"error": err.Error()})
	}

	localID, err := s.queue.AddPendingSale(ctx, sale)
	if err != nil {
		return "", false, err
	}
	return localID, true, nil
}

// CachedProducts returns the catalog snapshot for offline browsing.
func (s *OfflineSyncService) CachedProducts(ctx context.Context) []*models.Product {
	return s.cache.CachedProducts(ctx)
}

// DeadLetters returns items abandoned after the retry ceiling, for manual
// recovery.
func (s *OfflineSyncService) DeadLetters(ctx context.Context) ([]*models.DeadLetter, error) {
	return s.queue.DeadLetters(ctx)
}

// ClearAllQueues empties the local queue tables. Operator action.
func (s *OfflineSyncService) ClearAllQueues(ctx context.Context) error {
	return s.queue.ClearAll(ctx)
}
