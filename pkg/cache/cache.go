// Package cache provides a typed LRU cache with msgpack persistence.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// Entry is a cache entry with metadata. Entries are what Save writes.
type Entry[V any] struct {
	Key        string    `msgpack:"key"`
	Value      V         `msgpack:"value"`
	CreatedAt  time.Time `msgpack:"created_at"`
	AccessedAt time.Time `msgpack:"accessed_at"`
}

// LRU is an in-memory least-recently-used cache safe for concurrent use.
type LRU[V any] struct {
	mu      sync.Mutex
	items   map[string]*listItem[V]
	lru     list[V] // most recent at head
	maxSize int
	onEvict func(key string, value V)

	hits   int64
	misses int64
}

type listItem[V any] struct {
	Entry[V]
	prev *listItem[V]
	next *listItem[V]
}

// list is a doubly-linked list of entries.
type list[V any] struct {
	head *listItem[V] // most recently accessed
	tail *listItem[V] // least recently accessed
	len  int
}

func (l *list[V]) unlink(item *listItem[V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list[V]) pushFront(item *listItem[V]) {
	item.prev = nil
	item.next = l.head
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list[V]) moveToFront(item *listItem[V]) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// Options configures an LRU.
type Options[V any] struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// OnEvict is called when an entry is evicted or deleted.
	OnEvict func(key string, value V)
}

// New creates an LRU with the given options.
func New[V any](opts Options[V]) *LRU[V] {
	return &LRU[V]{
		items:   make(map[string]*listItem[V]),
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
	}
}

// Get returns the value stored under key and records a hit or a miss.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Peek returns the value under key without touching recency or statistics.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[key]; ok {
		return item.Value, true
	}
	var zero V
	return zero, false
}

// Set stores value under key, evicting the least recently used entries
// when the cache is full.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if item, ok := c.items[key]; ok {
		item.Value = value
		item.AccessedAt = now
		c.lru.moveToFront(item)
		return
	}
	item := &listItem[V]{Entry: Entry[V]{Key: key, Value: value, CreatedAt: now, AccessedAt: now}}
	c.items[key] = item
	c.lru.pushFront(item)
	c.evictIfNeeded()
}

// Delete removes key from the cache.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	if c.onEvict != nil {
		c.onEvict(key, item.Value)
	}
}

// Clear removes all entries. Statistics are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listItem[V])
	c.lru = list[V]{}
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys from most to least recently used.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.lru.len)
	for it := c.lru.head; it != nil; it = it.next {
		keys = append(keys, it.Key)
	}
	return keys
}

func (c *LRU[V]) evictIfNeeded() {
	for c.maxSize > 0 && c.lru.len > c.maxSize {
		item := c.lru.tail
		c.lru.unlink(item)
		delete(c.items, item.Key)
		if c.onEvict != nil {
			c.onEvict(item.Key, item.Value)
		}
	}
}

// Stats is a snapshot of cache statistics.
type Stats struct {
	Length    int   `json:"length"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
}

// Stats returns the current statistics.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Length: len(c.items), HitCount: c.hits, MissCount: c.misses}
}

// HitRate returns the fraction of Get calls that hit.
func (c *LRU[V]) HitRate() float64 {
	s := c.Stats()
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// ResetStats zeroes the hit and miss counters.
func (c *LRU[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses = 0, 0
}

// Save writes the entries, most recently used first, using msgpack.
func (c *LRU[V]) Save(w io.Writer) error {
	c.mu.Lock()
	entries := make([]Entry[V], 0, c.lru.len)
	for it := c.lru.head; it != nil; it = it.next {
		entries = append(entries, it.Entry)
	}
	c.mu.Unlock()

	return msgpack.NewEncoder(w).Encode(entries)
}

// Load replaces the contents with entries written by Save, keeping their
// recency order. Entries beyond MaxSize are evicted.
func (c *LRU[V]) Load(r io.Reader) error {
	var entries []Entry[V]
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listItem[V], len(entries))
	c.lru = list[V]{}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if old, ok := c.items[e.Key]; ok {
			c.lru.unlink(old)
		}
		item := &listItem[V]{Entry: e}
		c.items[e.Key] = item
		c.lru.pushFront(item)
	}
	c.evictIfNeeded()
	return nil
}

// PersistToFile saves the cache to path, creating parent directories.
func PersistToFile[V any](c *LRU[V], path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFromFile loads the cache from path. A missing file is not an error.
func LoadFromFile[V any](c *LRU[V], path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}
