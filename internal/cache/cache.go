// Package cache is a two-tier read-through cache (process memory in front of a
// durable storage.Store) with per-key TTL, a stale-while-revalidate grace
// window and request deduplication for concurrent misses on the same key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/happydevs-studio/wool-witch/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPrefix     = "cache:"
	DefaultStaleGrace = 10 * time.Minute
)

var ErrTypeMismatch = errors.New("cache: cached value has an unexpected type")

// Fetcher loads the authoritative value for a key.
type Fetcher[T any] func(ctx context.Context) (T, error)

type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*memEntry
	refreshing map[string]struct{}

	durable storage.Store
	prefix  string
	grace   time.Duration
	now     func() time.Time
	log     *zap.Logger

	// writeMu orders fetch results against invalidation. gen moves on every
	// Put, Invalidate, InvalidatePrefix and Clear; a fetch that started under
	// an older gen returns its value to its callers but never stores it.
	writeMu sync.Mutex
	gen     atomic.Uint64

	group singleflight.Group
	bg    sync.WaitGroup
	stats stats
}

type memEntry struct {
	Entry
	value any
}

type Option func(*Cache)

// WithDurable adds a persistent second tier. Without it the cache lives in
// memory only.
func WithDurable(s storage.Store) Option {
	return func(c *Cache) { c.durable = s }
}

// WithPrefix namespaces durable keys so they never collide with the cart key.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

func WithStaleGrace(d time.Duration) Option {
	return func(c *Cache) { c.grace = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*memEntry),
		refreshing: make(map[string]struct{}),
		prefix:     DefaultPrefix,
		grace:      DefaultStaleGrace,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the value cached under key, calling fetch when there is no
// usable entry. Fresh entries are returned as is. Stale entries inside the
// grace window are returned immediately while a single background refresh
// replaces them. Missing or expired entries block on fetch, and concurrent
// callers for the same key share one fetch. The key must encode every request
// parameter, and a given key must always be fetched with the same T.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch Fetcher[T]) (T, error) {
	if e, ok := c.lookup(ctx, key); ok {
		switch e.State(c.now(), c.grace) {
		case StateFresh:
			if v, err := decode[T](e); err == nil {
				c.stats.hits.Add(1)
				return v, nil
			}
		case StateStale:
			if v, err := decode[T](e); err == nil {
				c.stats.stale.Add(1)
				revalidate(ctx, c, key, ttl, fetch)
				return v, nil
			}
		}
	}

	c.stats.misses.Add(1)
	v, err := load(context.WithoutCancel(ctx), c, key, ttl, fetch)
	if err != nil {
		c.stats.errors.Add(1)
		var zero T
		return zero, err
	}
	return v, nil
}

func load[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch Fetcher[T]) (T, error) {
	gen := c.gen.Load()
	// Callers arriving after an invalidation start their own fetch rather
	// than joining one that may return the old value.
	v, err, _ := c.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if !c.storeAt(ctx, gen, key, ttl, val) {
			c.log.Debug("discarding fetch that raced an invalidation", zap.String("key", key))
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	val, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: key %q holds %T", ErrTypeMismatch, key, v)
	}
	return val, nil
}

func revalidate[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch Fetcher[T]) {
	c.mu.Lock()
	if _, busy := c.refreshing[key]; busy {
		c.mu.Unlock()
		return
	}
	c.refreshing[key] = struct{}{}
	c.mu.Unlock()

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, key)
			c.mu.Unlock()
		}()

		if _, err := load(context.WithoutCancel(ctx), c, key, ttl, fetch); err != nil {
			c.stats.errors.Add(1)
			c.log.Warn("background revalidation failed, keeping stale entry",
				zap.String("key", key), zap.Error(err))
			return
		}
		c.stats.refreshes.Add(1)
	}()
}

// Put overwrites key with value, used after writes that make the cached copy
// wrong.
func Put[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, value T) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.gen.Add(1)
	c.store(ctx, key, ttl, value)
}

// storeAt stores value only if nothing was invalidated since gen was read.
func (c *Cache) storeAt(ctx context.Context, gen uint64, key string, ttl time.Duration, value any) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.gen.Load() != gen {
		return false
	}
	c.store(ctx, key, ttl, value)
	return true
}

// store writes both tiers. Callers hold writeMu.
func (c *Cache) store(ctx context.Context, key string, ttl time.Duration, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache value is not serializable, keeping it in memory only",
			zap.String("key", key), zap.Error(err))
	}

	e := &memEntry{
		Entry: Entry{Key: key, Payload: payload, StoredAt: c.now(), TTL: ttl},
		value: value,
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	if c.durable == nil || payload == nil {
		return
	}
	data, err := json.Marshal(e.Entry)
	if err != nil {
		return
	}
	if err := c.durable.Set(ctx, c.prefix+key, data, ttl+c.grace); err != nil {
		c.log.Warn("failed to persist cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (*memEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e, true
	}
	if c.durable == nil {
		return nil, false
	}

	gen := c.gen.Load()
	data, err := c.durable.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Warn("durable cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		c.log.Warn("dropping corrupt durable cache entry", zap.String("key", key))
		if err := c.durable.Delete(ctx, c.prefix+key); err != nil {
			c.log.Warn("failed to drop corrupt cache entry", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	e = &memEntry{Entry: entry}
	c.mu.Lock()
	if cur, ok := c.entries[key]; ok {
		e = cur
	} else if c.gen.Load() == gen {
		c.entries[key] = e
	}
	c.mu.Unlock()
	return e, true
}

func decode[T any](e *memEntry) (T, error) {
	if v, ok := e.value.(T); ok {
		return v, nil
	}
	var v T
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("decode cache entry %q: %w", e.Key, err)
	}
	return v, nil
}

// Invalidate drops keys from both tiers.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.gen.Add(1)

	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()

	if c.durable == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.durable.Delete(ctx, full...); err != nil {
		return fmt.Errorf("invalidate durable entries: %w", err)
	}
	return nil
}

// InvalidatePrefix drops every key starting with prefix from both tiers.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.gen.Add(1)

	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.durable == nil {
		return nil
	}
	if err := c.durable.DeletePrefix(ctx, c.prefix+prefix); err != nil {
		return fmt.Errorf("invalidate durable prefix: %w", err)
	}
	return nil
}

// Clear wipes both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.gen.Add(1)

	c.mu.Lock()
	c.entries = make(map[string]*memEntry)
	c.mu.Unlock()

	if c.durable == nil {
		return nil
	}
	if err := c.durable.DeletePrefix(ctx, c.prefix); err != nil {
		return fmt.Errorf("clear durable cache: %w", err)
	}
	return nil
}

// Close waits for in-flight background refreshes.
func (c *Cache) Close() {
	c.bg.Wait()
}

type stats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	stale     atomic.Uint64
	refreshes atomic.Uint64
	errors    atomic.Uint64
}

type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Stale     uint64 `json:"stale"`
	Refreshes uint64 `json:"refreshes"`
	Errors    uint64 `json:"errors"`
	Entries   int    `json:"entries"`
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:      c.stats.hits.Load(),
		Misses:    c.stats.misses.Load(),
		Stale:     c.stats.stale.Load(),
		Refreshes: c.stats.refreshes.Load(),
		Errors:    c.stats.errors.Load(),
		Entries:   n,
	}
}
