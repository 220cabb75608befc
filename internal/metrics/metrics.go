// Package metrics exposes prometheus instrumentation for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/retailpoint/possync/internal/models"
)

var (
	// SalesSynced counts pending sales successfully created remotely.
	SalesSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_sales_synced_total",
		Help: "Pending sales drained to the remote store.",
	})

	// SalesAbandoned counts sales dropped after the retry ceiling.
	SalesAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_sales_abandoned_total",
		Help: "Pending sales abandoned after exhausting retries.",
	})

	// OperationsSynced counts operations successfully dispatched remotely.
	OperationsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_operations_synced_total",
		Help: "Pending operations drained to the remote store.",
	})

	// OperationsAbandoned counts operations dropped after the retry ceiling.
	OperationsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_operations_abandoned_total",
		Help: "Pending operations abandoned after exhausting retries.",
	})

	// OperationsDropped counts operations dropped without retry
	// (unknown type or malformed payload).
	OperationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_operations_dropped_total",
		Help: "Pending operations dropped as non-retryable.",
	})

	// SyncRetries counts failed per-item sync attempts.
	SyncRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_sync_retries_total",
		Help: "Failed sync attempts that scheduled a retry.",
	})

	// SyncRuns counts completed drain passes.
	SyncRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_sync_runs_total",
		Help: "Completed offline-data drain passes.",
	})

	// SalesReconciled counts remote offline-marked sales flipped to completed.
	SalesReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_sales_reconciled_total",
		Help: "Remote pending_sync sales marked completed.",
	})

	// CacheHits counts product-cache reads served from the snapshot.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_cache_hits_total",
		Help: "Cached catalog reads served from the snapshot.",
	})

	// CacheMisses counts product-cache reads with no usable snapshot.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "possync_cache_misses_total",
		Help: "Cached catalog reads that found no usable snapshot.",
	})

	// QueueDepth tracks the current row count per queue table.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "possync_queue_depth",
		Help: "Current number of rows per offline queue table.",
	}, []string{"queue"})
)

// ObserveQueueStats publishes queue counts to the depth gauges.
func ObserveQueueStats(stats models.QueueStats) {
	QueueDepth.WithLabelValues("pending_sales").Set(float64(stats.PendingSales))
	QueueDepth.WithLabelValues("pending_operations").Set(float64(stats.PendingOperations))
	QueueDepth.WithLabelValues("cache_entries").Set(float64(stats.CachedItems))
}
