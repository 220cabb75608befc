package models

// QueueStats holds the three independent row counts of the offline queue.
type QueueStats struct {
	PendingSales      int `json:"pendingSales"`
	PendingOperations int `json:"pendingOperations"`
	CachedItems       int `json:"cachedItems"`
}

// SyncStatus is the derived, read-only view of the sync subsystem exposed
// to the UI layer. It is recomputed on demand, never persisted.
type SyncStatus struct {
	IsOnline          bool `json:"isOnline"`
	QueueLength       int  `json:"queueLength"`
	SyncInProgress    bool `json:"syncInProgress"`
	PendingSales      int  `json:"pendingSales"`
	PendingOperations int  `json:"pendingOperations"`
	CachedItems       int  `json:"cachedItems"`
}
