// Package registry caches remote engine handles per connection name and
// caller, so repeated queries reuse pooled connections instead of
// re-establishing them on every request.
package registry

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vizql/vizql/internal/observability"
)

var ErrUnknownConnection = errors.New("registry: unknown connection")

const (
	DefaultMaxEngines = 100
	AnonymousCaller   = "anonymous"
)

// Factory builds an engine handle for one request. The request context carries
// the caller identity, so factories can authenticate per user.
type Factory func(ctx context.Context) (*sql.DB, error)

// CallerIDFunc extracts the caller identity used to partition the handle
// cache. It must return a non-empty value; AnonymousCaller is the usual
// fallback.
type CallerIDFunc func(ctx context.Context) string

type Options struct {
	MaxEngines int
	CallerID   CallerIDFunc
	Logger     *slog.Logger
}

type cacheKey struct {
	connection string
	caller     string
}

type cacheEntry struct {
	key    cacheKey
	handle *sql.DB
}

// Registry holds named connection factories and a bounded LRU cache of the
// handles they produce. All cache mutations happen under one mutex; factory
// invocation and handle disposal never do.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	drivers   map[string]string
	entries   map[cacheKey]*list.Element
	order     *list.List // front is most recently used

	maxEngines int
	callerID   CallerIDFunc
	logger     *slog.Logger
}

func New(opts Options) *Registry {
	maxEngines := opts.MaxEngines
	if maxEngines <= 0 {
		maxEngines = DefaultMaxEngines
	}
	callerID := opts.CallerID
	if callerID == nil {
		callerID = func(context.Context) string { return AnonymousCaller }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories:  map[string]Factory{},
		drivers:    map[string]string{},
		entries:    map[cacheKey]*list.Element{},
		order:      list.New(),
		maxEngines: maxEngines,
		callerID:   callerID,
		logger:     logger,
	}
}

// Register stores a factory under name, replacing any prior registration.
// The driver is informational (e.g. "postgres", "mysql") and may be empty.
func (r *Registry) Register(name, driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	if driver != "" {
		r.drivers[name] = driver
	}
}

func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Driver(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drivers[name]
}

func (r *Registry) ListConnections() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEngine returns the cached handle for (name, caller), marking it most
// recently used, or invokes the factory and caches the result. When the
// insert pushes the cache over capacity the least recently used handle is
// evicted and disposed. Concurrent misses for the same key may each run the
// factory; the first cached handle wins and the losing handle is disposed.
func (r *Registry) GetEngine(ctx context.Context, name string) (*sql.DB, error) {
	r.mu.Lock()
	factory, ok := r.factories[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
	}
	key := cacheKey{connection: name, caller: r.callerID(ctx)}
	if element, ok := r.entries[key]; ok {
		r.order.MoveToFront(element)
		handle := element.Value.(*cacheEntry).handle
		r.mu.Unlock()
		observability.EngineCacheHit()
		return handle, nil
	}
	r.mu.Unlock()

	observability.EngineCacheMiss()
	handle, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", name, err)
	}

	r.mu.Lock()
	if element, ok := r.entries[key]; ok {
		// Lost the construction race; keep the cached handle.
		r.order.MoveToFront(element)
		cached := element.Value.(*cacheEntry).handle
		r.mu.Unlock()
		r.dispose(key, handle)
		return cached, nil
	}
	r.entries[key] = r.order.PushFront(&cacheEntry{key: key, handle: handle})
	var evicted *cacheEntry
	if r.order.Len() > r.maxEngines {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		evicted = oldest.Value.(*cacheEntry)
		delete(r.entries, evicted.key)
	}
	size := r.order.Len()
	r.mu.Unlock()

	observability.SetEngineHandles(size)
	if evicted != nil {
		observability.EngineCacheEviction()
		r.dispose(evicted.key, evicted.handle)
	}
	return handle, nil
}

// DisposeAll disposes every cached handle and clears the cache. Safe to call
// more than once; factories stay registered.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	stale := make([]*cacheEntry, 0, len(r.entries))
	for _, element := range r.entries {
		stale = append(stale, element.Value.(*cacheEntry))
	}
	r.entries = map[cacheKey]*list.Element{}
	r.order.Init()
	r.mu.Unlock()

	observability.SetEngineHandles(0)
	for _, entry := range stale {
		r.dispose(entry.key, entry.handle)
	}
}

// Disposal failures must not surface to the request that triggered them.
func (r *Registry) dispose(key cacheKey, handle *sql.DB) {
	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		r.logger.Warn("engine handle dispose failed",
			slog.String("connection", key.connection),
			slog.String("caller", key.caller),
			slog.Any("error", err),
		)
	}
}
