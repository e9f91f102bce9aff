package subst

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedStorage wraps any TemplateStorage with a read-through cache on Get.
// Writes through the wrapper invalidate the affected name.
type CachedStorage struct {
	storage TemplateStorage
	config  CacheConfig
	cache   *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// CacheConfig configures the caching behavior.
type CacheConfig struct {
	// TTL is how long cached entries remain valid.
	// Default: 5 minutes.
	TTL time.Duration

	// CleanupInterval is how often expired entries are purged.
	// Default: 10 minutes.
	CleanupInterval time.Duration

	// NegativeCacheTTL is how long to cache "not found" results.
	// Set to 0 to disable negative caching.
	NegativeCacheTTL time.Duration
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// DefaultCacheConfig returns the default caching configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:              DefaultCacheTTL,
		CleanupInterval:  DefaultCacheCleanupInterval,
		NegativeCacheTTL: 30 * time.Second,
	}
}

// cacheMiss marks a cached "not found" result.
type cacheMiss struct{}

// NewCachedStorage wraps a storage with caching.
func NewCachedStorage(storage TemplateStorage, config CacheConfig) *CachedStorage {
	if config.TTL == 0 {
		config.TTL = DefaultCacheTTL
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = DefaultCacheCleanupInterval
	}

	return &CachedStorage{
		storage: storage,
		config:  config,
		cache:   gocache.New(config.TTL, config.CleanupInterval),
	}
}

// Get retrieves a template, using cache when available.
func (s *CachedStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, NewStorageClosedError()
	}

	if cached, ok := s.cache.Get(name); ok {
		s.hits.Add(1)
		switch v := cached.(type) {
		case cacheMiss:
			return nil, NewTemplateNotFoundError(name)
		case *StoredTemplate:
			return copyStoredTemplate(v), nil
		}
	}
	s.misses.Add(1)

	tmpl, err := s.storage.Get(ctx, name)
	if err != nil {
		if s.config.NegativeCacheTTL > 0 && IsTemplateNotFoundError(err) {
			s.cache.Set(name, cacheMiss{}, s.config.NegativeCacheTTL)
		}
		return nil, err
	}

	s.cache.Set(name, copyStoredTemplate(tmpl), gocache.DefaultExpiration)
	return tmpl, nil
}

// GetVersion retrieves a specific version (not cached).
func (s *CachedStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	return s.storage.GetVersion(ctx, name, version)
}

// Save stores a template and invalidates its cache entry.
func (s *CachedStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
	if s.isClosed() {
		return NewStorageClosedError()
	}
	err := s.storage.Save(ctx, tmpl)
	s.Invalidate(tmpl.Name)
	return err
}

// Delete removes a template and invalidates its cache entry.
func (s *CachedStorage) Delete(ctx context.Context, name string) error {
	if s.isClosed() {
		return NewStorageClosedError()
	}
	err := s.storage.Delete(ctx, name)
	s.Invalidate(name)
	return err
}

// Exists reports existence, answering from the cache when possible.
func (s *CachedStorage) Exists(ctx context.Context, name string) (bool, error) {
	if cached, ok := s.cache.Get(name); ok {
		_, missing := cached.(cacheMiss)
		return !missing, nil
	}
	return s.storage.Exists(ctx, name)
}

// List passes through to the underlying storage.
func (s *CachedStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
	return s.storage.List(ctx, query)
}

// ListVersions passes through to the underlying storage.
func (s *CachedStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	return s.storage.ListVersions(ctx, name)
}

// Close flushes the cache and closes the underlying storage.
func (s *CachedStorage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cache.Flush()
	return s.storage.Close()
}

// Invalidate removes a name from the cache.
func (s *CachedStorage) Invalidate(name string) {
	s.cache.Delete(name)
}

// InvalidateAll clears the cache.
func (s *CachedStorage) InvalidateAll() {
	s.cache.Flush()
}

// Stats returns cache statistics.
func (s *CachedStorage) Stats() CacheStats {
	return CacheStats{
		Entries: s.cache.ItemCount(),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}
}

func (s *CachedStorage) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
