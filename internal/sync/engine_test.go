// Package sync provides unit tests for the drain engine.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/retailpoint/possync/internal/connectivity"
	"github.com/retailpoint/possync/internal/db"
	"github.com/retailpoint/possync/internal/models"
	"github.com/retailpoint/possync/internal/queue"
)

// fakeRemote is an in-memory RemoteStore with controllable failures. It
// deduplicates sale creation on ClientRef, like the real store.
type fakeRemote struct {
	mu sync.Mutex

	failCreates bool
	failUpdates bool
	blockCreate chan struct{} // when set, CreateSale waits on it

	createCalls    int
	salesByRef     map[string]string
	productUpdates map[string][]map[string]interface{}
	pendingRemote  []RemoteSale
	markedSynced   []string
	products       []*models.Product
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		salesByRef:     make(map[string]string),
		productUpdates: make(map[string][]map[string]interface{}),
	}
}

func (f *fakeRemote) CreateSale(ctx context.Context, in CreateSaleInput) (string, error) {
	f.mu.Lock()
	block := f.blockCreate
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreates {
		return "", errors.New("remote unavailable")
	}
	if id, ok := f.salesByRef[in.ClientRef]; ok {
		return id, nil
	}
	id := "remote-" + in.ClientRef
	f.salesByRef[in.ClientRef] = id
	return id, nil
}

func (f *fakeRemote) UpdateProduct(ctx context.Context, productID string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates {
		return errors.New("remote unavailable")
	}
	f.productUpdates[productID] = append(f.productUpdates[productID], fields)
	return nil
}

func (f *fakeRemote) PendingSyncSales(ctx context.Context) ([]RemoteSale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingRemote, nil
}

func (f *fakeRemote) MarkSaleSynced(ctx context.Context, saleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedSynced = append(f.markedSynced, saleID)
	return nil
}

func (f *fakeRemote) FetchAllProducts(ctx context.Context) ([]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products, nil
}

func (f *fakeRemote) saleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.salesByRef)
}

// setupEngine wires an engine over a temp sqlite queue and a fake remote,
// starting online.
func setupEngine(t *testing.T) (*Engine, *queue.OfflineQueue, *fakeRemote, *connectivity.Monitor) {
	t.Helper()

	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	migrator := db.NewMigrator(store.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	q := queue.New(store)
	remote := newFakeRemote()
	monitor := connectivity.New(connectivity.Config{InitialOnline: true})
	return NewEngine(q, remote, monitor), q, remote, monitor
}

func queuedSale(t *testing.T, q *queue.OfflineQueue) string {
	t.Helper()
	id, err := q.AddPendingSale(context.Background(), &models.PendingSale{
		Items: []models.SaleItem{
			{ProductID: "prod-1", Name: "USB Cable", UnitPrice: decimal.NewFromInt(10), Quantity: 2, Subtotal: decimal.NewFromInt(20)},
		},
		Total:         decimal.NewFromInt(20),
		Tax:           decimal.Zero,
		FinalTotal:    decimal.NewFromInt(20),
		PaymentMethod: models.PaymentCash,
	})
	if err != nil {
		t.Fatalf("AddPendingSale failed: %v", err)
	}
	return id
}

// TestDrainDeliversQueuedSales tests the core scenario: sales queued while
// offline are delivered exactly once on drain and the queue empties.
func TestDrainDeliversQueuedSales(t *testing.T) {
	engine, q, remote, monitor := setupEngine(t)
	ctx := context.Background()

	monitor.SetOnline(false)
	queuedSale(t, q)
	queuedSale(t, q)

	// Offline: drain is a no-op
	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}
	if remote.saleCount() != 0 {
		t.Fatal("No sales should sync while offline")
	}

	monitor.SetOnline(true)
	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}

	if remote.saleCount() != 2 {
		t.Errorf("Expected 2 remote sales, got %d", remote.saleCount())
	}
	status := engine.Status(ctx)
	if status.QueueLength != 0 || status.PendingSales != 0 {
		t.Errorf("Expected empty queue after drain, got %+v", status)
	}
}

// TestDrainIsIdempotentAcrossRetries tests that re-draining after a
// partial failure cannot create a sale twice remotely (the client ref
// deduplicates).
func TestDrainIsIdempotentAcrossRetries(t *testing.T) {
	engine, q, remote, _ := setupEngine(t)
	ctx := context.Background()

	id := queuedSale(t, q)

	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}
	// Simulate the crash-between-ack-and-delete case: the sale is back in
	// the queue under the same id.
	sale := &models.PendingSale{ID: id, Items: []models.SaleItem{{ProductID: "prod-1", Quantity: 1}},
		Total: decimal.NewFromInt(10), Tax: decimal.Zero, FinalTotal: decimal.NewFromInt(10),
		PaymentMethod: models.PaymentCash}
	if _, err := q.AddPendingSale(ctx, sale); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if sale.ID != id {
		t.Fatalf("Expected requeue to keep id %q, got %q", id, sale.ID)
	}

	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}

	if remote.saleCount() != 1 {
		t.Errorf("Expected the replay to deduplicate, got %d remote sales", remote.saleCount())
	}
}

// TestRetryCeiling tests that a deterministically failing sale is retried
// exactly MaxSyncAttempts times, then moved to the dead-letter table.
func TestRetryCeiling(t *testing.T) {
	engine, q, remote, _ := setupEngine(t)
	ctx := context.Background()

	remote.failCreates = true
	id := queuedSale(t, q)

	for attempt := 1; attempt <= MaxSyncAttempts; attempt++ {
		if err := engine.SyncOfflineData(ctx); err != nil {
			t.Fatalf("SyncOfflineData failed: %v", err)
		}

		sales, _ := q.PendingSales(ctx)
		if attempt < MaxSyncAttempts {
			if len(sales) != 1 {
				t.Fatalf("Attempt %d: expected sale still queued", attempt)
			}
			if sales[0].RetryCount != attempt {
				t.Errorf("Attempt %d: expected RetryCount %d, got %d", attempt, attempt, sales[0].RetryCount)
			}
		} else if len(sales) != 0 {
			t.Fatalf("Expected sale purged after %d attempts", MaxSyncAttempts)
		}
	}

	if remote.saleCount() != 0 {
		t.Error("Abandoned sale must not appear remotely")
	}

	letters, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("DeadLetters failed: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("Expected 1 dead letter, got %d", len(letters))
	}
	if letters[0].ID != id || letters[0].Attempts != MaxSyncAttempts {
		t.Errorf("Unexpected dead letter: %+v", letters[0])
	}
}

// TestNoDoubleDrain tests that a second SyncOfflineData call during an
// active drain is a no-op.
func TestNoDoubleDrain(t *testing.T) {
	engine, q, remote, _ := setupEngine(t)
	ctx := context.Background()

	queuedSale(t, q)
	release := make(chan struct{})
	remote.blockCreate = release

	done := make(chan struct{})
	go func() {
		engine.SyncOfflineData(ctx)
		close(done)
	}()

	// Wait for the first drain to take the guard
	deadline := time.After(2 * time.Second)
	for !engine.InProgress() {
		select {
		case <-deadline:
			t.Fatal("First drain never started")
		case <-time.After(time.Millisecond):
		}
	}

	// Second call must return immediately without draining
	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("Overlapping SyncOfflineData should be a no-op, got %v", err)
	}
	if !engine.InProgress() {
		t.Error("First drain should still be in progress")
	}

	close(release)
	<-done

	if engine.InProgress() {
		t.Error("In-progress flag should clear after the drain")
	}
	remote.mu.Lock()
	calls := remote.createCalls
	remote.mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected exactly 1 create call, got %d", calls)
	}
}

// TestOperationDispatch tests product_update and stock_update dispatch.
func TestOperationDispatch(t *testing.T) {
	engine, q, remote, _ := setupEngine(t)
	ctx := context.Background()

	productUpdate, _ := json.Marshal(models.ProductUpdatePayload{
		ProductID: "prod-1",
		Fields:    map[string]any{"name": "HDMI Cable"},
	})
	stockUpdate, _ := json.Marshal(models.StockUpdatePayload{ProductID: "prod-2", Stock: 9})

	q.AddPendingOperation(ctx, &models.PendingOperation{Type: models.OpProductUpdate, Payload: productUpdate})
	q.AddPendingOperation(ctx, &models.PendingOperation{Type: models.OpStockUpdate, Payload: stockUpdate})

	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}

	if len(remote.productUpdates["prod-1"]) != 1 {
		t.Errorf("Expected product update for prod-1, got %v", remote.productUpdates)
	}
	updates := remote.productUpdates["prod-2"]
	if len(updates) != 1 || updates[0]["stock"] != 9 {
		t.Errorf("Expected stock update to 9 for prod-2, got %v", updates)
	}

	ops, _ := q.PendingOperations(ctx)
	if len(ops) != 0 {
		t.Errorf("Expected operation queue drained, got %d", len(ops))
	}
}

// TestSaleOperationDispatch tests that a queued sale-typed operation is
// created remotely.
func TestSaleOperationDispatch(t *testing.T) {
	engine, q, remote, _ := setupEngine(t)
	ctx := context.Background()

	payload, _ := json.Marshal(&models.PendingSale{
		Items:         []models.SaleItem{{ProductID: "prod-1", Quantity: 1}},
		Total:         decimal.NewFromInt(10),
		Tax:           decimal.Zero,
		FinalTotal:    decimal.NewFromInt(10),
		PaymentMethod: models.PaymentCard,
	})
	q.AddPendingOperation(ctx, &models.PendingOperation{Type: models.OpSale, Payload: payload})

	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}

	if remote.saleCount() != 1 {
		t.Errorf("Expected 1 remote sale from sale operation, got %d", remote.saleCount())
	}
}

// TestUnknownOperationDropped tests that an unrecognized operation type is
// dropped on the first pass with no retry recorded.
func TestUnknownOperationDropped(t *testing.T) {
	engine, q, remote, _ := setupEngine(t)
	ctx := context.Background()

	q.AddPendingOperation(ctx, &models.PendingOperation{
		Type:    models.OperationType("foo"),
		Payload: json.RawMessage(`{}`),
	})

	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}

	ops, _ := q.PendingOperations(ctx)
	if len(ops) != 0 {
		t.Fatalf("Expected unknown operation dropped, still have %d", len(ops))
	}
	if remote.saleCount() != 0 {
		t.Error("Unknown operation must not reach the remote store")
	}
}

// TestOperationRetryCeiling tests the abandon path for operations.
func TestOperationRetryCeiling(t *testing.T) {
	engine, q, remote, _ := setupEngine(t)
	ctx := context.Background()

	remote.failUpdates = true
	payload, _ := json.Marshal(models.StockUpdatePayload{ProductID: "prod-1", Stock: 3})
	q.AddPendingOperation(ctx, &models.PendingOperation{Type: models.OpStockUpdate, Payload: payload})

	for i := 0; i < MaxSyncAttempts; i++ {
		if err := engine.SyncOfflineData(ctx); err != nil {
			t.Fatalf("SyncOfflineData failed: %v", err)
		}
	}

	ops, _ := q.PendingOperations(ctx)
	if len(ops) != 0 {
		t.Errorf("Expected operation purged after ceiling, got %d", len(ops))
	}
	letters, _ := q.DeadLetters(ctx)
	if len(letters) != 1 || letters[0].Kind != models.DeadLetterOperation {
		t.Errorf("Expected 1 operation dead letter, got %+v", letters)
	}
}

// TestReconcileRemoteSales tests that remote pending_sync sales are marked
// completed independently of the local queue.
func TestReconcileRemoteSales(t *testing.T) {
	engine, _, remote, _ := setupEngine(t)
	ctx := context.Background()

	remote.pendingRemote = []RemoteSale{
		{ID: "r1", Status: models.SaleStatusPendingSync},
		{ID: "r2", Status: models.SaleStatusPendingSync},
	}

	if err := engine.SyncOfflineData(ctx); err != nil {
		t.Fatalf("SyncOfflineData failed: %v", err)
	}

	remote.mu.Lock()
	marked := append([]string(nil), remote.markedSynced...)
	remote.mu.Unlock()
	if len(marked) != 2 {
		t.Errorf("Expected 2 sales reconciled, got %v", marked)
	}
}

// TestStatus tests the derived status snapshot.
func TestStatus(t *testing.T) {
	engine, q, _, monitor := setupEngine(t)
	ctx := context.Background()

	monitor.SetOnline(false)
	queuedSale(t, q)
	q.AddPendingOperation(ctx, &models.PendingOperation{Type: models.OpStockUpdate, Payload: json.RawMessage(`{}`)})
	q.SetCachedData(ctx, "products", []string{}, 0)

	status := engine.Status(ctx)
	if status.IsOnline {
		t.Error("Expected offline status")
	}
	if status.QueueLength != 2 || status.PendingSales != 1 || status.PendingOperations != 1 || status.CachedItems != 1 {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.SyncInProgress {
		t.Error("No drain should be in progress")
	}
}
