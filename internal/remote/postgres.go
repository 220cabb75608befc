// Package remote implements the RemoteStore interface against Postgres.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/models"
	syncpkg "github.com/retailpoint/possync/internal/sync"
)

type postgresStore struct{ db *sql.DB }

// NewPostgresStore creates a Postgres-backed RemoteStore.
func NewPostgresStore(db *sql.DB) syncpkg.RemoteStore { return &postgresStore{db: db} }

// Schema for the remote tables. Applied with EnsureSchema; safe to re-run.
const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	sku TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	price NUMERIC(12,2) NOT NULL DEFAULT 0,
	stock INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sales (
	id TEXT PRIMARY KEY,
	client_ref TEXT NOT NULL UNIQUE,
	items JSONB NOT NULL,
	total NUMERIC(12,2) NOT NULL,
	tax NUMERIC(12,2) NOT NULL,
	final_total NUMERIC(12,2) NOT NULL,
	payment_method TEXT NOT NULL,
	sold_by TEXT NOT NULL DEFAULT '',
	sold_by_name TEXT NOT NULL DEFAULT '',
	customer_info JSONB NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	is_offline BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sales_status ON sales(status);
`

// EnsureSchema creates the remote tables if they don't exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Ping reports whether the remote store is reachable; used as the
// connectivity monitor's probe.
func Ping(db *sql.DB) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		return db.PingContext(ctx) == nil
	}
}

// clampStock computes the post-sale stock level. Stock never goes negative.
func clampStock(current, quantity int) int {
	next := current - quantity
	if next < 0 {
		return 0
	}
	return next
}

// CreateSale persists the sale and decrements per-item stock in one
// transaction. Deduplicates on ClientRef: replaying a sale the store has
// already seen returns the existing id without touching stock again.
func (s *postgresStore) CreateSale(ctx context.Context, in syncpkg.CreateSaleInput) (string, error) {
	items, err := json.Marshal(in.Items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sale items: %w", err)
	}
	customer, err := json.Marshal(in.Customer)
	if err != nil {
		return "", fmt.Errorf("failed to marshal customer info: %w", err)
	}

	status := models.SaleStatusCompleted
	if in.IsOfflineSale {
		status = models.SaleStatusPendingSync
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sales
		  (id, client_ref, items, total, tax, final_total, payment_method, sold_by, sold_by_name, customer_info, status, is_offline)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (client_ref) DO NOTHING`,
		id, in.ClientRef, items, in.Total, in.Tax, in.FinalTotal,
		string(in.PaymentMethod), in.SoldBy, in.SoldByName, customer, status, in.IsOfflineSale)
	if err != nil {
		return "", fmt.Errorf("failed to insert sale: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		// Replay of an already-created sale; stock was decremented the
		// first time around.
		var existing string
		if err := tx.QueryRowContext(ctx,
			"SELECT id FROM sales WHERE client_ref = $1", in.ClientRef).Scan(&existing); err != nil {
			return "", fmt.Errorf("failed to resolve existing sale: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", err
		}
		logging.Debug("sale create deduplicated", map[string]interface{}{"client_ref": in.ClientRef})
		return existing, nil
	}

	for _, item := range in.Items {
		var stock int
		err := tx.QueryRowContext(ctx,
			"SELECT stock FROM products WHERE id = $1 FOR UPDATE", item.ProductID).Scan(&stock)
		if err == sql.ErrNoRows {
			// A vanished product must not fail the sale.
			logging.Warn("product missing during stock decrement, skipping", map[string]interface{}{
				"product_id": item.ProductID,
				"sale_id":    id,
			})
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read stock for %s: %w", item.ProductID, err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = $2, updated_at = now() WHERE id = $1",
			item.ProductID, clampStock(stock, item.Quantity)); err != nil {
			return "", fmt.Errorf("failed to decrement stock for %s: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit sale: %w", err)
	}
	return id, nil
}

// allowed partial-update columns for UpdateProduct
var productColumns = map[string]string{
	"name":     "name",
	"sku":      "sku",
	"category": "category",
	"price":    "price",
	"stock":    "stock",
}

// UpdateProduct applies a partial update to the named product.
func (s *postgresStore) UpdateProduct(ctx context.Context, productID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	sets := []string{}
	args := []interface{}{}
	n := 1
	for field, value := range fields {
		col, ok := productColumns[field]
		if !ok {
			return fmt.Errorf("unknown product field %q", field)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, value)
		n++
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, productID)

	query := fmt.Sprintf("UPDATE products SET %s WHERE id = $%d", strings.Join(sets, ", "), n)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update product %s: %w", productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		logging.Warn("product update targeted missing product", map[string]interface{}{"product_id": productID})
	}
	return nil
}

// PendingSyncSales returns remote sales still flagged pending_sync.
func (s *postgresStore) PendingSyncSales(ctx context.Context) ([]syncpkg.RemoteSale, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, status FROM sales WHERE status = $1", models.SaleStatusPendingSync)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending_sync sales: %w", err)
	}
	defer rows.Close()

	var sales []syncpkg.RemoteSale
	for rows.Next() {
		var sale syncpkg.RemoteSale
		if err := rows.Scan(&sale.ID, &sale.Status); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// MarkSaleSynced flips a remote sale's status to completed.
func (s *postgresStore) MarkSaleSynced(ctx context.Context, saleID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sales SET status = $2 WHERE id = $1", saleID, models.SaleStatusCompleted)
	return err
}

// FetchAllProducts returns the full catalog.
func (s *postgresStore) FetchAllProducts(ctx context.Context) ([]*models.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, sku, category, price, stock, updated_at FROM products ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p := &models.Product{}
		var price string
		var updatedAt time.Time
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &price, &p.Stock, &updatedAt); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("bad price %q for product %s: %w", price, p.ID, err)
		}
		p.UpdatedAt = updatedAt.UnixMilli()
		products = append(products, p)
	}
	return products, rows.Err()
}
