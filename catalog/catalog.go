// Package catalog manages registered webhook event type definitions.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/internal/entity"
)

// Catalog is the in-memory cached service for managing webhook event types.
type Catalog struct {
	store    Store
	cache    map[string]cacheEntry
	cacheTTL time.Duration
	mu       sync.RWMutex
	logger   *slog.Logger
}

// cacheEntry tracks when an event type was loaded so each entry expires
// independently.
type cacheEntry struct {
	et       *EventType
	loadedAt time.Time
}

// Config configures the catalog service.
type Config struct {
	// CacheTTL bounds how long a cached event type is served without a
	// store read. Zero disables caching entirely.
	CacheTTL time.Duration
}

// NewCatalog creates a new Catalog backed by the given store.
func NewCatalog(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:    store,
		cache:    make(map[string]cacheEntry),
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}
}

// RegisterType registers or updates an event type definition.
func (c *Catalog) RegisterType(ctx context.Context, def Definition, metadata map[string]string) (*EventType, error) {
	et := &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
		Metadata:   metadata,
	}

	if err := c.store.RegisterType(ctx, et); err != nil {
		return nil, err
	}

	c.put(def.Name, et)
	return et, nil
}

// GetType returns an event type by name. A cached entry is served while it
// is within the TTL; anything else is read through from the store.
func (c *Catalog) GetType(ctx context.Context, name string) (*EventType, error) {
	if c.cacheTTL > 0 {
		c.mu.RLock()
		entry, ok := c.cache[name]
		c.mu.RUnlock()
		if ok && time.Since(entry.loadedAt) <= c.cacheTTL {
			return entry.et, nil
		}
	}

	et, err := c.store.GetType(ctx, name)
	if err != nil {
		return nil, err
	}

	c.put(name, et)
	return et, nil
}

// ListTypes returns all registered event types.
func (c *Catalog) ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error) {
	return c.store.ListTypes(ctx, opts)
}

// DeleteType soft-deletes (deprecates) an event type and removes it from cache.
func (c *Catalog) DeleteType(ctx context.Context, name string) error {
	if err := c.store.DeleteType(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	return nil
}

// InvalidateCache clears the in-memory cache, forcing fresh reads from the store.
func (c *Catalog) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// put stores a cache entry stamped with the load time. A no-op when
// caching is disabled.
func (c *Catalog) put(name string, et *EventType) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	c.cache[name] = cacheEntry{et: et, loadedAt: time.Now()}
	c.mu.Unlock()
}

// WarmCache preloads the cache from the store. With caching disabled it
// only verifies the store is reachable.
func (c *Catalog) WarmCache(ctx context.Context) error {
	types, err := c.store.ListTypes(ctx, ListOpts{IncludeDeprecated: false})
	if err != nil {
		return err
	}

	if c.cacheTTL == 0 {
		return nil
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]cacheEntry, len(types))
	for _, et := range types {
		c.cache[et.Definition.Name] = cacheEntry{et: et, loadedAt: now}
	}
	return nil
}
