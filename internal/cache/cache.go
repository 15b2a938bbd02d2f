package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rice/internal/logging"
)

// ErrNotFound is returned by Get when no live entry exists for a key.
var ErrNotFound = errors.New("cache: entry not found")

// Fill produces a fresh analysis for key when it is missing or expired.
// It is only ever invoked once per key at a time, even under concurrent
// Get calls, via single-flight coalescing.
type Fill func(ctx context.Context, key string) (Entry, error)

// Cache is a TTL-bounded, size-capped, disk-backed store of analysis
// entries addressed by digest key. Concurrent Gets for the same missing
// key share a single Fill invocation.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element // key -> element holding *Entry, in insertion order
	order   *list.List
	maxSize int
	ttl     time.Duration // default entry lifetime; 0 means entries carry their own
	dir     string        // empty disables disk persistence
	group   singleflight.Group
	hits    int64
	misses  int64
	evicted int64
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithDiskPersistence enables writing entries to dir as "<key>.json"
// files via an atomic temp-file-then-rename sequence, and loads any
// entries already present there.
func WithDiskPersistence(dir string) Option {
	return func(c *Cache) { c.dir = dir }
}

// WithTTL sets the lifetime stamped onto entries Put without an
// explicit ExpiresAt.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// New creates a cache holding at most maxSize live entries. maxSize <= 0
// means unbounded.
func New(maxSize int, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dir != "" {
		c.loadFromDisk()
	}
	return c
}

func (c *Cache) loadFromDisk() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, de.Name()))
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		if e.Expired(time.Now()) {
			continue
		}
		c.insertLocked(e)
	}
}

// Get returns the live entry for key, or ErrNotFound.
func (c *Cache) Get(key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return Entry{}, ErrNotFound
	}
	e := el.Value.(*Entry)
	if e.Expired(time.Now()) {
		c.removeLocked(key)
		c.misses++
		return Entry{}, ErrNotFound
	}
	c.hits++
	return *e, nil
}

// GetOrFill returns the live entry for key, calling fill to produce one
// if missing or expired. Concurrent GetOrFill calls for the same key
// share a single fill invocation.
func (c *Cache) GetOrFill(ctx context.Context, key string, fill Fill) (Entry, error) {
	if e, err := c.Get(key); err == nil {
		return e, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if e, err := c.Get(key); err == nil {
			return e, nil
		}
		e, err := fill(ctx, key)
		if err != nil {
			return Entry{}, err
		}
		c.Put(e)
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Put stores e, evicting the oldest-produced entry if the cache is at
// capacity, and persisting to disk if enabled.
func (c *Cache) Put(e Entry) {
	if e.Key == "" {
		logging.Get(logging.CategoryCache).Warn("dropping cache entry with empty key")
		return
	}
	if e.ProducedAt.IsZero() {
		e.ProducedAt = time.Now()
	}
	if e.ExpiresAt.IsZero() && c.ttl > 0 {
		e.ExpiresAt = e.ProducedAt.Add(c.ttl)
	}

	c.mu.Lock()
	c.insertLocked(e)
	c.mu.Unlock()

	if c.dir != "" {
		if err := c.writeToDisk(e); err != nil {
			logging.Get(logging.CategoryCache).Warn("failed to persist cache entry %s: %v", e.Key, err)
		}
	}
}

func (c *Cache) insertLocked(e Entry) {
	if el, ok := c.entries[e.Key]; ok {
		c.order.Remove(el)
		delete(c.entries, e.Key)
	}

	entry := e
	el := c.order.PushBack(&entry)
	c.entries[e.Key] = el

	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		// Oldest ProducedAt goes first; ties keep insertion order.
		for el := oldest.Next(); el != nil; el = el.Next() {
			if el.Value.(*Entry).ProducedAt.Before(oldest.Value.(*Entry).ProducedAt) {
				oldest = el
			}
		}
		old := oldest.Value.(*Entry)
		c.order.Remove(oldest)
		delete(c.entries, old.Key)
		c.evicted++
		if c.dir != "" {
			_ = os.Remove(filepath.Join(c.dir, old.Key+".json"))
		}
	}
}

func (c *Cache) removeLocked(key string) {
	el, ok := c.entries[key]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.entries, key)
}

// Delete removes key from the cache and, if persisted, from disk.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()

	if c.dir != "" {
		_ = os.Remove(filepath.Join(c.dir, key+".json"))
	}
}

// Len returns the number of live entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats reports the cache's configuration and cumulative counters.
type Stats struct {
	TTL        time.Duration
	MaxEntries int
	Entries    int
	Hits       int64
	Misses     int64
	Evicted    int64
}

// Stats returns the cache's configuration and cumulative counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TTL:        c.ttl,
		MaxEntries: c.maxSize,
		Entries:    c.order.Len(),
		Hits:       c.hits,
		Misses:     c.misses,
		Evicted:    c.evicted,
	}
}

func (c *Cache) writeToDisk(e Entry) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "."+e.Key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	finalPath := filepath.Join(c.dir, e.Key+".json")
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
