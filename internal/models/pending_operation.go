package models

import "encoding/json"

// OperationType identifies a deferred side effect queued while offline.
type OperationType string

const (
	OpSale          OperationType = "sale"
	OpProductUpdate OperationType = "product_update"
	OpStockUpdate   OperationType = "stock_update"
)

// PendingOperation is a generic deferred operation awaiting remote dispatch.
type PendingOperation struct {
	ID         string          `db:"id" json:"id"`
	Type       OperationType   `db:"op_type" json:"type"`
	Payload    json.RawMessage `db:"payload" json:"data"`
	Timestamp  int64           `db:"created_at" json:"timestamp"` // epoch ms
	RetryCount int             `db:"retry_count" json:"retryCount"`
	LastRetry  int64           `db:"last_retry" json:"lastRetry,omitempty"` // epoch ms, 0 = never
}

// TableName returns the table name for PendingOperation.
func (PendingOperation) TableName() string {
	return "pending_operations"
}

// ProductUpdatePayload is the payload of an OpProductUpdate operation.
type ProductUpdatePayload struct {
	ProductID string         `json:"productId"`
	Fields    map[string]any `json:"fields"`
}

// StockUpdatePayload is the payload of an OpStockUpdate operation.
type StockUpdatePayload struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
}
