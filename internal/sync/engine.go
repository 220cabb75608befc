// Package sync provides the engine that drains the offline queue into the
// remote store.
package sync

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/retailpoint/possync/internal/connectivity"
	apperrors "github.com/retailpoint/possync/internal/errors"
	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/metrics"
	"github.com/retailpoint/possync/internal/models"
	"github.com/retailpoint/possync/internal/queue"
)

// MaxSyncAttempts is the retry ceiling: a queued item that fails this many
// times is moved to the dead-letter table instead of retrying forever.
const MaxSyncAttempts = 5

// CreateSaleInput carries everything the remote store needs to persist a
// sale. ClientRef is the locally generated queue id, threaded through as an
// idempotency key so a crash between remote success and local delete cannot
// create the sale twice.
type CreateSaleInput struct {
	ClientRef     string
	Items         []models.SaleItem
	Total         decimal.Decimal
	Tax           decimal.Decimal
	FinalTotal    decimal.Decimal
	PaymentMethod models.PaymentMethod
	SoldBy        string
	SoldByName    string
	Customer      models.CustomerInfo
	IsOfflineSale bool
}

// RemoteSale is the remote store's view of a sale, as much of it as the
// reconciliation pass needs.
type RemoteSale struct {
	ID     string
	Status string
}

// RemoteStore is the interface the sync core consumes from the hosted
// document database. Implementations must time out their own calls; the
// engine has no per-item timeout beyond the drain context.
type RemoteStore interface {
	// CreateSale atomically persists the sale and best-effort decrements
	// per-item stock. Must deduplicate on ClientRef.
	CreateSale(ctx context.Context, in CreateSaleInput) (string, error)

	// UpdateProduct applies a partial update to the named product.
	UpdateProduct(ctx context.Context, productID string, fields map[string]interface{}) error

	// PendingSyncSales returns remote sales still flagged pending_sync.
	PendingSyncSales(ctx context.Context) ([]RemoteSale, error)

	// MarkSaleSynced flips a remote sale's status to completed.
	MarkSaleSynced(ctx context.Context, saleID string) error

	// FetchAllProducts returns the full product catalog.
	FetchAllProducts(ctx context.Context) ([]*models.Product, error)
}

// Engine drains the offline queue into the remote store with bounded
// retries. It is the exclusive remover of queue rows.
type Engine struct {
	queue   *queue.OfflineQueue
	remote  RemoteStore
	monitor *connectivity.Monitor

	mu         sync.Mutex
	inProgress bool
}

// NewEngine creates a sync engine.
func NewEngine(q *queue.OfflineQueue, remote RemoteStore, monitor *connectivity.Monitor) *Engine {
	return &Engine{
		queue:   q,
		remote:  remote,
		monitor: monitor,
	}
}

// InProgress reports whether a drain pass is currently running.
func (e *Engine) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inProgress
}

// Status recomputes the aggregate sync status for the UI layer.
func (e *Engine) Status(ctx context.Context) models.SyncStatus {
	stats, err := e.queue.Stats(ctx)
	if err != nil {
		logging.Warn("failed to read queue stats", map[string]interface{}{"error": err.Error()})
	}
	return models.SyncStatus{
		IsOnline:          e.monitor.IsOnline(),
		QueueLength:       stats.PendingSales + stats.PendingOperations,
		SyncInProgress:    e.InProgress(),
		PendingSales:      stats.PendingSales,
		PendingOperations: stats.PendingOperations,
		CachedItems:       stats.CachedItems,
	}
}

// SyncOfflineData runs one full drain pass: pending sales first, then
// pending operations, then reconciliation of remote offline-marked sales.
// A call while offline or while another pass is running is a no-op. A
// failure on one item never aborts the rest of the pass.
func (e *Engine) SyncOfflineData(ctx context.Context) error {
	if !e.monitor.IsOnline() {
		logging.Debug("skipping sync, offline")
		return nil
	}

	e.mu.Lock()
	if e.inProgress {
		e.mu.Unlock()
		logging.Debug("sync already in progress, skipping")
		return nil
	}
	e.inProgress = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inProgress = false
		e.mu.Unlock()

		if stats, err := e.queue.Stats(context.Background()); err == nil {
			metrics.ObserveQueueStats(stats)
		}
	}()

	e.drainSales(ctx)
	e.drainOperations(ctx)
	e.reconcileRemoteSales(ctx)

	metrics.SyncRuns.Inc()
	return nil
}

// drainSales pushes queued sales to the remote store, oldest first.
func (e *Engine) drainSales(ctx context.Context) {
	sales, err := e.queue.PendingSales(ctx)
	if err != nil {
		logging.ErrorWithCode("failed to list pending sales", string(apperrors.ErrQueueRead), err)
		return
	}

	for _, sale := range sales {
		select {
		case <-ctx.Done():
			return
		default:
		}

		in := CreateSaleInput{
			ClientRef:     sale.ID,
			Items:         sale.Items,
			Total:         sale.Total,
			Tax:           sale.Tax,
			FinalTotal:    sale.FinalTotal,
			PaymentMethod: sale.PaymentMethod,
			SoldBy:        sale.SoldBy,
			SoldByName:    sale.SoldByName,
			Customer:      sale.Customer,
			// The sale is being created now, while online.
			IsOfflineSale: false,
		}

		remoteID, err := e.remote.CreateSale(ctx, in)
		if err != nil {
			e.handleSaleFailure(ctx, sale, err)
			continue
		}

		if err := e.queue.RemovePendingSale(ctx, sale.ID); err != nil {
			logging.ErrorWithCode("failed to remove synced sale from queue", string(apperrors.ErrQueueWrite), err,
				map[string]interface{}{"id": sale.ID})
			continue
		}

		metrics.SalesSynced.Inc()
		logging.Info("synced offline sale", map[string]interface{}{
			"id":        sale.ID,
			"remote_id": remoteID,
		})
	}
}

// handleSaleFailure bumps the retry count and abandons the sale to the
// dead-letter table once it crosses the ceiling.
func (e *Engine) handleSaleFailure(ctx context.Context, sale *models.PendingSale, cause error) {
	count, err := e.queue.IncrementSaleRetry(ctx, sale.ID)
	if err != nil {
		logging.ErrorWithCode("failed to increment sale retry", string(apperrors.ErrQueueWrite), err,
			map[string]interface{}{"id": sale.ID})
		return
	}
	metrics.SyncRetries.Inc()

	if count < MaxSyncAttempts {
		logging.Warn("sale sync failed, will retry", map[string]interface{}{
			"id":      sale.ID,
			"attempt": count,
			"error":   cause.Error(),
		})
		return
	}

	sale.RetryCount = count
	payload, _ := json.Marshal(sale)
	dl := &models.DeadLetter{
		ID:       sale.ID,
		Kind:     models.DeadLetterSale,
		Payload:  payload,
		Attempts: count,
		Reason:   cause.Error(),
	}
	if err := e.queue.AddDeadLetter(ctx, dl); err != nil {
		logging.ErrorWithCode("failed to record abandoned sale", string(apperrors.ErrQueueWrite), err,
			map[string]interface{}{"id": sale.ID})
	}
	if err := e.queue.RemovePendingSale(ctx, sale.ID); err != nil {
		logging.ErrorWithCode("failed to remove abandoned sale", string(apperrors.ErrQueueWrite), err,
			map[string]interface{}{"id": sale.ID})
		return
	}

	metrics.SalesAbandoned.Inc()
	logging.ErrorWithCode("sale abandoned after max attempts", string(apperrors.ErrSaleAbandoned), cause,
		map[string]interface{}{"id": sale.ID, "attempts": count})
}

// drainOperations dispatches queued operations by type with the same
// retry/abandon policy as sales. Unknown types and malformed payloads are
// programmer errors, not transient failures: dropped without retry.
func (e *Engine) drainOperations(ctx context.Context) {
	ops, err := e.queue.PendingOperations(ctx)
	if err != nil {
		logging.ErrorWithCode("failed to list pending operations", string(apperrors.ErrQueueRead), err)
		return
	}

	for _, op := range ops {
		select {
		case <-ctx.Done():
			return
		default:
		}

		retryable, err := e.dispatchOperation(ctx, op)
		if err == nil {
			if err := e.queue.RemovePendingOperation(ctx, op.ID); err != nil {
				logging.ErrorWithCode("failed to remove synced operation", string(apperrors.ErrQueueWrite), err,
					map[string]interface{}{"id": op.ID})
				continue
			}
			metrics.OperationsSynced.Inc()
			logging.Info("synced offline operation", map[string]interface{}{"id": op.ID, "type": string(op.Type)})
			continue
		}

		if !retryable {
			logging.Warn("dropping non-retryable operation", map[string]interface{}{
				"id":    op.ID,
				"type":  string(op.Type),
				"error": err.Error(),
			})
			if err := e.queue.RemovePendingOperation(ctx, op.ID); err != nil {
				logging.ErrorWithCode("failed to drop operation", string(apperrors.ErrQueueWrite), err,
					map[string]interface{}{"id": op.ID})
			}
			metrics.OperationsDropped.Inc()
			continue
		}

		e.handleOperationFailure(ctx, op, err)
	}
}

// dispatchOperation applies one operation against the remote store. The
// returned bool reports whether a failure is retryable.
func (e *Engine) dispatchOperation(ctx context.Context, op *models.PendingOperation) (retryable bool, err error) {
	switch op.Type {
	case models.OpSale:
		var sale models.PendingSale
		if err := json.Unmarshal(op.Payload, &sale); err != nil {
			return false, apperrors.Wrap(apperrors.ErrBadPayload, "sale operation payload", err)
		}
		_, err := e.remote.CreateSale(ctx, CreateSaleInput{
			ClientRef:     op.ID,
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
		return true, err

	case models.OpProductUpdate:
		var p models.ProductUpdatePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return false, apperrors.Wrap(apperrors.ErrBadPayload, "product update payload", err)
		}
		if p.ProductID == "" || len(p.Fields) == 0 {
			return false, apperrors.New(apperrors.ErrBadPayload, "product update missing product id or fields")
		}
		return true, e.remote.UpdateProduct(ctx, p.ProductID, p.Fields)

	case models.OpStockUpdate:
		var p models.StockUpdatePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return false, apperrors.Wrap(apperrors.ErrBadPayload, "stock update payload", err)
		}
		if p.ProductID == "" {
			return false, apperrors.New(apperrors.ErrBadPayload, "stock update missing product id")
		}
		return true, e.remote.UpdateProduct(ctx, p.ProductID, map[string]interface{}{"stock": p.Stock})

	default:
		return false, apperrors.New(apperrors.ErrUnknownOpType, string(op.Type))
	}
}

// handleOperationFailure mirrors handleSaleFailure for operations.
func (e *Engine) handleOperationFailure(ctx context.Context, op *models.PendingOperation, cause error) {
	count, err := e.queue.IncrementOperationRetry(ctx, op.ID)
	if err != nil {
		logging.ErrorWithCode("failed to increment operation retry", string(apperrors.ErrQueueWrite), err,
			map[string]interface{}{"id": op.ID})
		return
	}
	metrics.SyncRetries.Inc()

	if count < MaxSyncAttempts {
		logging.Warn("operation sync failed, will retry", map[string]interface{}{
			"id":      op.ID,
			"type":    string(op.Type),
			"attempt": count,
			"error":   cause.Error(),
		})
		return
	}

	op.RetryCount = count
	payload, _ := json.Marshal(op)
	dl := &models.DeadLetter{
		ID:       op.ID,
		Kind:     models.DeadLetterOperation,
		Payload:  payload,
		Attempts: count,
		Reason:   cause.Error(),
	}
	if err := e.queue.AddDeadLetter(ctx, dl); err != nil {
		logging.ErrorWithCode("failed to record abandoned operation", string(apperrors.ErrQueueWrite), err,
			map[string]interface{}{"id": op.ID})
	}
	if err := e.queue.RemovePendingOperation(ctx, op.ID); err != nil {
		logging.ErrorWithCode("failed to remove abandoned operation", string(apperrors.ErrQueueWrite), err,
			map[string]interface{}{"id": op.ID})
		return
	}

	metrics.OperationsAbandoned.Inc()
	logging.ErrorWithCode("operation abandoned after max attempts", string(apperrors.ErrOpAbandoned), cause,
		map[string]interface{}{"id": op.ID, "attempts": count})
}

// reconcileRemoteSales flips remote sales still flagged pending_sync to
// completed. Independent of the local queue drain: these sales were
// written to the remote store directly through a different path.
func (e *Engine) reconcileRemoteSales(ctx context.Context) {
	sales, err := e.remote.PendingSyncSales(ctx)
	if err != nil {
		logging.ErrorWithCode("failed to query remote pending_sync sales", string(apperrors.ErrRemoteQuery), err)
		return
	}

	for _, sale := range sales {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := e.remote.MarkSaleSynced(ctx, sale.ID); err != nil {
			logging.Warn("failed to mark remote sale synced", map[string]interface{}{
				"id":    sale.ID,
				"error": err.Error(),
			})
			continue
		}
		metrics.SalesReconciled.Inc()
	}
}
