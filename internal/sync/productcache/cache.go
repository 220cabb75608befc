// Package productcache keeps a recent catalog snapshot available to the
// point-of-sale screen while offline.
package productcache

import (
	"context"
	"sync"
	"time"

	"github.com/retailpoint/possync/internal/logging"
	"github.com/retailpoint/possync/internal/metrics"
	"github.com/retailpoint/possync/internal/models"
	"github.com/retailpoint/possync/internal/queue"
)

const (
	productsKey  = "products"
	customersKey = "customers"

	productsTTL  = 24 * time.Hour
	customersTTL = 12 * time.Hour
)

// CatalogFetcher is the slice of the remote store the cache needs.
type CatalogFetcher interface {
	FetchAllProducts(ctx context.Context) ([]*models.Product, error)
}

// Cache is the product catalog snapshot. The durable copy lives in the
// offline queue's cache table; a second in-memory copy serves reads when
// the durable store is unavailable.
type Cache struct {
	queue  *queue.OfflineQueue
	remote CatalogFetcher

	mu        sync.RWMutex
	products  []*models.Product
	customers []models.CustomerInfo
}

// New creates a product cache.
func New(q *queue.OfflineQueue, remote CatalogFetcher) *Cache {
	return &Cache{queue: q, remote: remote}
}

// CacheProducts fetches the full catalog from the remote store and stores
// it with a 24-hour expiry. Called opportunistically on reconnect.
func (c *Cache) CacheProducts(ctx context.Context) error {
	products, err := c.remote.FetchAllProducts(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.products = products
	c.mu.Unlock()

	if err := c.queue.SetCachedData(ctx, productsKey, products, productsTTL); err != nil {
		return err
	}

	logging.Info("cached product catalog", map[string]interface{}{"count": len(products)})
	return nil
}

// CachedProducts returns the cached catalog, or an empty slice when the
// snapshot is absent or expired. Falls back to the in-memory copy when the
// durable store is unavailable.
func (c *Cache) CachedProducts(ctx context.Context) []*models.Product {
	if c.queue.Available() {
		var products []*models.Product
		ok, err := c.queue.GetCachedData(ctx, productsKey, &products)
		if err != nil {
			logging.Warn("failed to read cached products", map[string]interface{}{"error": err.Error()})
		}
		if ok {
			metrics.CacheHits.Inc()
			return products
		}
	}

	c.mu.RLock()
	fallback := c.products
	c.mu.RUnlock()

	if len(fallback) > 0 {
		metrics.CacheHits.Inc()
		return fallback
	}

	metrics.CacheMisses.Inc()
	return []*models.Product{}
}

// CacheCustomers stores a customer snapshot with a 12-hour expiry. The
// customer list comes from the caller; the sync core has no customer query
// of its own.
func (c *Cache) CacheCustomers(ctx context.Context, customers []models.CustomerInfo) error {
	c.mu.Lock()
	c.customers = customers
	c.mu.Unlock()

	return c.queue.SetCachedData(ctx, customersKey, customers, customersTTL)
}

// CachedCustomers returns the cached customer snapshot, or an empty slice.
func (c *Cache) CachedCustomers(ctx context.Context) []models.CustomerInfo {
	if c.queue.Available() {
		var customers []models.CustomerInfo
		ok, err := c.queue.GetCachedData(ctx, customersKey, &customers)
		if err != nil {
			logging.Warn("failed to read cached customers", map[string]interface{}{"error": err.Error()})
		}
		if ok {
			return customers
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.customers) > 0 {
		return c.customers
	}
	return []models.CustomerInfo{}
}
