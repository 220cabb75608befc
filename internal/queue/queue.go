// Package queue provides the offline queue manager, the typed facade over
// the local durable store. Nothing outside this package touches the queue
// tables directly.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailpoint/possync/internal/db"
	"github.com/retailpoint/possync/internal/ident"
	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/models"
)

// OfflineQueue manages pending sales, pending operations and cached blobs.
//
// When constructed without a store (nil handle) every operation degrades to
// a no-op or an empty result instead of returning an error, so callers run
// identically in environments without persistence.
type OfflineQueue struct {
	store *db.DB
}

// New creates an OfflineQueue over the given store. A nil store puts the
// queue in degraded no-persistence mode.
func New(store *db.DB) *OfflineQueue {
	if store == nil {
		logging.Warn("offline queue running without persistence, queued data will not survive restarts")
	}
	return &OfflineQueue{store: store}
}

// Available reports whether durable persistence is backing the queue.
func (q *OfflineQueue) Available() bool {
	return q.store != nil
}

// AddPendingSale persists a sale captured while offline and returns its
// id. A valid pre-assigned id is kept so a failed online create falls back
// to the queue under the same client reference; anything else is replaced
// with a fresh generated id.
func (q *OfflineQueue) AddPendingSale(ctx context.Context, sale *models.PendingSale) (string, error) {
	id := sale.ID
	if !ident.IsValid(id) {
		id = ident.NewSaleID()
	}
	sale.ID = id
	sale.Status = models.SaleStatusPendingSync
	sale.RetryCount = 0
	sale.LastRetry = 0
	if sale.Timestamp == 0 {
		sale.Timestamp = time.Now().UnixMilli()
	}

	if q.store == nil {
		return id, nil
	}

	items, err := json.Marshal(sale.Items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sale items: %w", err)
	}
	customer, err := json.Marshal(sale.Customer)
	if err != nil {
		return "", fmt.Errorf("failed to marshal customer info: %w", err)
	}

	_, err = q.store.ExecContext(ctx, `
		INSERT INTO pending_sales
		  (id, items, total, tax, final_total, payment_method, sold_by, sold_by_name, customer_info, status, retry_count, last_retry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		sale.ID, string(items), sale.Total.String(), sale.Tax.String(), sale.FinalTotal.String(),
		string(sale.PaymentMethod), sale.SoldBy, sale.SoldByName, string(customer),
		sale.Status, sale.Timestamp)
	if err != nil {
		return "", fmt.Errorf("failed to persist pending sale: %w", err)
	}

	logging.Debug("queued offline sale", map[string]interface{}{"id": id})
	return id, nil
}

// PendingSales returns all queued sales in enqueue order, oldest first.
func (q *OfflineQueue) PendingSales(ctx context.Context) ([]*models.PendingSale, error) {
	if q.store == nil {
		return nil, nil
	}

	rows, err := q.store.QueryContext(ctx, `
		SELECT id, items, total, tax, final_total, payment_method, sold_by, sold_by_name, customer_info, status, retry_count, last_retry, created_at
		FROM pending_sales ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending sales: %w", err)
	}
	defer rows.Close()

	var sales []*models.PendingSale
	for rows.Next() {
		sale, err := scanPendingSale(rows.Scan)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func scanPendingSale(scan func(...interface{}) error) (*models.PendingSale, error) {
	s := &models.PendingSale{}
	var items, total, tax, finalTotal, paymentMethod, customer string
	var lastRetry sql.NullInt64
	err := scan(&s.ID, &items, &total, &tax, &finalTotal, &paymentMethod,
		&s.SoldBy, &s.SoldByName, &customer, &s.Status, &s.RetryCount, &lastRetry, &s.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &s.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sale items: %w", err)
	}
	if err := json.Unmarshal([]byte(customer), &s.Customer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal customer info: %w", err)
	}
	if s.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("bad total %q: %w", total, err)
	}
	if s.Tax, err = decimal.NewFromString(tax); err != nil {
		return nil, fmt.Errorf("bad tax %q: %w", tax, err)
	}
	if s.FinalTotal, err = decimal.NewFromString(finalTotal); err != nil {
		return nil, fmt.Errorf("bad final total %q: %w", finalTotal, err)
	}
	s.PaymentMethod = models.PaymentMethod(paymentMethod)
	if lastRetry.Valid {
		s.LastRetry = lastRetry.Int64
	}
	return s, nil
}

// RemovePendingSale deletes a queued sale. Removing an absent id is not an
// error; removal happens exactly once per sale and only the sync engine
// calls it.
func (q *OfflineQueue) RemovePendingSale(ctx context.Context, id string) error {
	if q.store == nil {
		return nil
	}
	_, err := q.store.ExecContext(ctx, "DELETE FROM pending_sales WHERE id = ?", id)
	return err
}

// IncrementSaleRetry bumps a sale's retry count and stamps the attempt
// time, returning the new count. Absent ids are a no-op returning 0.
func (q *OfflineQueue) IncrementSaleRetry(ctx context.Context, id string) (int, error) {
	return q.incrementRetry(ctx, "pending_sales", id)
}

// AddPendingOperation persists a deferred operation and returns its id.
func (q *OfflineQueue) AddPendingOperation(ctx context.Context, op *models.PendingOperation) (string, error) {
	id := ident.NewOperationID()
	op.ID = id
	op.RetryCount = 0
	op.LastRetry = 0
	if op.Timestamp == 0 {
		op.Timestamp = time.Now().UnixMilli()
	}
	if op.Payload == nil {
		op.Payload = json.RawMessage("{}")
	}

	if q.store == nil {
		return id, nil
	}

	_, err := q.store.ExecContext(ctx, `
		INSERT INTO pending_operations (id, op_type, payload, retry_count, last_retry, created_at)
		VALUES (?, ?, ?, 0, NULL, ?)`,
		op.ID, string(op.Type), string(op.Payload), op.Timestamp)
	if err != nil {
		return "", fmt.Errorf("failed to persist pending operation: %w", err)
	}

	logging.Debug("queued offline operation", map[string]interface{}{"id": id, "type": string(op.Type)})
	return id, nil
}

// PendingOperations returns all queued operations in enqueue order.
func (q *OfflineQueue) PendingOperations(ctx context.Context) ([]*models.PendingOperation, error) {
	if q.store == nil {
		return nil, nil
	}

	rows, err := q.store.QueryContext(ctx, `
		SELECT id, op_type, payload, retry_count, last_retry, created_at
		FROM pending_operations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.PendingOperation
	for rows.Next() {
		op := &models.PendingOperation{}
		var opType, payload string
		var lastRetry sql.NullInt64
		if err := rows.Scan(&op.ID, &opType, &payload, &op.RetryCount, &lastRetry, &op.Timestamp); err != nil {
			return nil, err
		}
		op.Type = models.OperationType(opType)
		op.Payload = json.RawMessage(payload)
		if lastRetry.Valid {
			op.LastRetry = lastRetry.Int64
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// RemovePendingOperation deletes a queued operation; absent ids are a no-op.
func (q *OfflineQueue) RemovePendingOperation(ctx context.Context, id string) error {
	if q.store == nil {
		return nil
	}
	_, err := q.store.ExecContext(ctx, "DELETE FROM pending_operations WHERE id = ?", id)
	return err
}

// IncrementOperationRetry bumps an operation's retry count, returning the
// new count. Absent ids are a no-op returning 0.
func (q *OfflineQueue) IncrementOperationRetry(ctx context.Context, id string) (int, error) {
	return q.incrementRetry(ctx, "pending_operations", id)
}

func (q *OfflineQueue) incrementRetry(ctx context.Context, table, id string) (int, error) {
	if q.store == nil {
		return 0, nil
	}

	now := time.Now().UnixMilli()
	res, err := q.store.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET retry_count = retry_count + 1, last_retry = ? WHERE id = ?", table),
		now, id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, nil
	}

	var count int
	err = q.store.QueryRowContext(ctx,
		fmt.Sprintf("SELECT retry_count FROM %s WHERE id = ?", table), id).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SetCachedData upserts a named blob. A zero ttl stores the entry without
// expiry.
func (q *OfflineQueue) SetCachedData(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	if q.store == nil {
		return nil
	}

	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal cached data: %w", err)
	}

	now := time.Now().UnixMilli()
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = now + ttl.Milliseconds()
	}

	_, err = q.store.ExecContext(ctx, `
		INSERT INTO cache_entries (key, data, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, string(blob), now, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to persist cache entry: %w", err)
	}
	return nil
}

// GetCachedData reads a named blob into out. Returns false on a miss; an
// entry past its expiry counts as a miss and is purged on the spot.
func (q *OfflineQueue) GetCachedData(ctx context.Context, key string, out interface{}) (bool, error) {
	if q.store == nil {
		return false, nil
	}

	var blob string
	var expiresAt sql.NullInt64
	err := q.store.QueryRowContext(ctx,
		"SELECT data, expires_at FROM cache_entries WHERE key = ?", key).Scan(&blob, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if expiresAt.Valid && time.Now().UnixMilli() > expiresAt.Int64 {
		// Lazy purge on expired read
		if _, err := q.store.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
			logging.Warn("failed to purge expired cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false, nil
	}

	if err := json.Unmarshal([]byte(blob), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache entry %q: %w", key, err)
	}
	return true, nil
}

// ClearExpiredCache sweeps every expired cache row and returns the number
// deleted. A passive garbage-collection pass; expired reads are already
// filtered by GetCachedData.
func (q *OfflineQueue) ClearExpiredCache(ctx context.Context) (int, error) {
	if q.store == nil {
		return 0, nil
	}

	res, err := q.store.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at < ?",
		time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		logging.Debug("swept expired cache entries", map[string]interface{}{"count": affected})
	}
	return int(affected), nil
}

// Stats returns the three independent queue counts.
func (q *OfflineQueue) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	if q.store == nil {
		return stats, nil
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM pending_sales", &stats.PendingSales},
		{"SELECT COUNT(*) FROM pending_operations", &stats.PendingOperations},
		{"SELECT COUNT(*) FROM cache_entries", &stats.CachedItems},
	}
	for _, c := range counts {
		if err := q.store.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return models.QueueStats{}, fmt.Errorf("failed to count queue rows: %w", err)
		}
	}
	return stats, nil
}

// ClearAll empties all three queue tables. Operator-initiated cache reset.
func (q *OfflineQueue) ClearAll(ctx context.Context) error {
	if q.store == nil {
		return nil
	}

	for _, table := range []string{"pending_sales", "pending_operations", "cache_entries"} {
		if _, err := q.store.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	logging.Info("offline queues cleared")
	return nil
}

// AddDeadLetter records an abandoned queue item for manual recovery.
func (q *OfflineQueue) AddDeadLetter(ctx context.Context, dl *models.DeadLetter) error {
	if q.store == nil {
		return nil
	}
	if dl.AbandonedAt == 0 {
		dl.AbandonedAt = time.Now().UnixMilli()
	}
	_, err := q.store.ExecContext(ctx, `
		INSERT INTO dead_letters (id, kind, payload, attempts, reason, abandoned_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		dl.ID, string(dl.Kind), string(dl.Payload), dl.Attempts, dl.Reason, dl.AbandonedAt)
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

// DeadLetters returns all abandoned items, most recent first.
func (q *OfflineQueue) DeadLetters(ctx context.Context) ([]*models.DeadLetter, error) {
	if q.store == nil {
		return nil, nil
	}

	rows, err := q.store.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, reason, abandoned_at
		FROM dead_letters ORDER BY abandoned_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*models.DeadLetter
	for rows.Next() {
		dl := &models.DeadLetter{}
		var kind, payload string
		if err := rows.Scan(&dl.ID, &kind, &payload, &dl.Attempts, &dl.Reason, &dl.AbandonedAt); err != nil {
			return nil, err
		}
		dl.Kind = models.DeadLetterKind(kind)
		dl.Payload = json.RawMessage(payload)
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}
