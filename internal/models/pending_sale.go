// Package models provides data model definitions for the possync core.
package models

import "github.com/shopspring/decimal"

// SaleStatus values for locally queued and remote sales.
const (
	SaleStatusPendingSync = "pending_sync"
	SaleStatusCompleted   = "completed"
)

// PaymentMethod identifies how a sale was paid.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile"
)

// SaleItem is a single line item of a sale.
type SaleItem struct {
	ProductID    string          `json:"productId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Warranty     string          `json:"warranty,omitempty"`
	SerialNumber string          `json:"serialNumber,omitempty"`
}

// CustomerInfo carries the customer details attached to a sale.
type CustomerInfo struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
}

// PendingSale is a sale captured while offline, awaiting remote creation.
// It is only ever mutated to bump RetryCount/LastRetry; removal from the
// queue happens exactly once, on remote success or after the retry ceiling.
type PendingSale struct {
	ID            string          `db:"id" json:"id"`
	Items         []SaleItem      `db:"items" json:"items"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
	FinalTotal    decimal.Decimal `db:"final_total" json:"finalTotal"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"paymentMethod"`
	SoldBy        string          `db:"sold_by" json:"soldBy"`
	SoldByName    string          `db:"sold_by_name" json:"soldByName"`
	Customer      CustomerInfo    `db:"customer_info" json:"customerInfo"`
	Timestamp     int64           `db:"created_at" json:"timestamp"` // epoch ms
	Status        string          `db:"status" json:"status"`
	RetryCount    int             `db:"retry_count" json:"retryCount"`
	LastRetry     int64           `db:"last_retry" json:"lastRetry,omitempty"` // epoch ms, 0 = never
}

// TableName returns the table name for PendingSale.
func (PendingSale) TableName() string {
	return "pending_sales"
}
