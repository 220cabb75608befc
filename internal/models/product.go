package models

import "github.com/shopspring/decimal"

// Product is a catalog entry as cached locally and held by the remote store.
type Product struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	SKU       string          `db:"sku" json:"sku,omitempty"`
	Category  string          `db:"category" json:"category,omitempty"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	UpdatedAt int64           `db:"updated_at" json:"updatedAt"` // epoch ms
}
