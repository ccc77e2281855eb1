package schema

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/intentflow/internal/cache"
)

// Store holds resolved documents encoded as YAML, keyed by source.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheObserver receives cache outcomes; internal/metrics implements it.
type CacheObserver interface {
	ObserveSchemaCache(hit bool)
}

// =============================================================================
// 📦 CachedLoader
// =============================================================================

// CachedLoader wraps a Loader with a Store. Concurrent loads of the same
// source share one resolution.
type CachedLoader struct {
	loader   *Loader
	store    Store
	ttl      time.Duration
	group    singleflight.Group
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedLoader creates a CachedLoader. observer may be nil.
func NewCachedLoader(loader *Loader, store Store, ttl time.Duration, observer CacheObserver, logger *zap.Logger) *CachedLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedLoader{
		loader:   loader,
		store:    store,
		ttl:      ttl,
		observer: observer,
		logger:   logger.With(zap.String("component", "schema_cache")),
	}
}

// DefaultSharedLoadTimeout bounds a shared load when the loader's HTTP
// client has no timeout of its own.
const DefaultSharedLoadTimeout = 30 * time.Second

// Load returns the cached document for source, resolving it on a miss.
// Store failures degrade to an uncached load. A shared load is detached from
// the caller that started it; each caller stops waiting when its own ctx ends.
func (c *CachedLoader) Load(ctx context.Context, source string) (*Document, error) {
	key := normalizeLocation(source)

	if data, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("schema cache read failed", zap.String("source", key), zap.Error(err))
	} else if ok {
		doc, perr := decodeCached(key, data)
		if perr == nil {
			c.observe(true)
			return doc, nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("source", key), zap.Error(perr))
		_ = c.store.Delete(ctx, key)
	}
	c.observe(false)

	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := c.sharedContext(ctx)
		defer cancel()

		doc, err := c.loader.Load(loadCtx, source)
		if err != nil {
			return nil, err
		}
		data, err := doc.Bytes()
		if err != nil {
			return doc, nil
		}
		if err := c.store.Set(loadCtx, key, data, c.ttl); err != nil {
			c.logger.Warn("schema cache write failed", zap.String("source", key), zap.Error(err))
		}
		return doc, nil
	})

	select {
	case <-ctx.Done():
		return nil, &SchemaLoadError{Source: source, Cause: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("schema load shared", zap.String("source", key))
		}
		return res.Val.(*Document), nil
	}
}

// sharedContext keeps ctx values but not its cancellation, bounded by the
// loader's fetch timeout.
func (c *CachedLoader) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.loader.client.Timeout
	if timeout <= 0 {
		timeout = DefaultSharedLoadTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// Invalidate drops source from the store.
func (c *CachedLoader) Invalidate(ctx context.Context, source string) error {
	return c.store.Delete(ctx, normalizeLocation(source))
}

func (c *CachedLoader) observe(hit bool) {
	if c.observer != nil {
		c.observer.ObserveSchemaCache(hit)
	}
}

// decodeCached rebuilds a Document from its resolved YAML encoding.
func decodeCached(source string, data []byte) (*Document, error) {
	root, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return &Document{source: source, root: root}, nil
}

// =============================================================================
// 🧠 MemoryStore
// =============================================================================

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore is an in-process Store with per-entry expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !s.expired(e) {
		return e.data, true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a Set may have landed between the two locks
	cur, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.expired(cur) {
		return cur.data, true, nil
	}
	delete(s.entries, key)
	return nil, false, nil
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && s.now().After(e.expires)
}

func (s *MemoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// =============================================================================
// 🔴 RedisStore
// =============================================================================

// RedisStore keeps documents in Redis through the shared cache manager.
type RedisStore struct {
	manager *cache.Manager
	prefix  string
}

// NewRedisStore creates a RedisStore. Keys are prefix + source.
func NewRedisStore(manager *cache.Manager, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "intentflow:schema:"
	}
	return &RedisStore{manager: manager, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.manager.Get(ctx, s.prefix+key)
	if cache.IsCacheMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.manager.Set(ctx, s.prefix+key, string(data), ttl)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.manager.Delete(ctx, s.prefix+key)
}

// NopStore disables caching.
type NopStore struct{}

func (NopStore) Get(context.Context, string) ([]byte, bool, error)         { return nil, false, nil }
func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopStore) Delete(context.Context, string) error                     { return nil }
