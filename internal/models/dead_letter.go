package models

import "encoding/json"

// DeadLetterKind identifies what kind of queued item was abandoned.
type DeadLetterKind string

const (
	DeadLetterSale      DeadLetterKind = "sale"
	DeadLetterOperation DeadLetterKind = "operation"
)

// DeadLetter records a queued item abandoned after exhausting its retry
// ceiling, kept for manual recovery instead of being dropped silently.
type DeadLetter struct {
	ID          string          `db:"id" json:"id"`
	Kind        DeadLetterKind  `db:"kind" json:"kind"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Attempts    int             `db:"attempts" json:"attempts"`
	Reason      string          `db:"reason" json:"reason"`
	AbandonedAt int64           `db:"abandoned_at" json:"abandonedAt"` // epoch ms
}

// TableName returns the table name for DeadLetter.
func (DeadLetter) TableName() string {
	return "dead_letters"
}
