// Package respcache implements the Response Cache (spec §4.5): an
// LRU-with-TTL memoization layer keyed by a fingerprint over the
// trimmed prompt and canonical model name.
//
// Grounded on pkg/session's asyncWriter/gofrs-flock cross-process file
// locking pattern for persist/load, generalized from session transcript
// persistence to a single-file cache blob, and on pkg/subagent.Watch's
// fsnotify debounce loop for reloading the on-disk cache after an
// external writer touches it.
package respcache

import (
	"container/list"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Entry is one cached response (mirrors clidriver.Result's shape so the
// cache stays independent of the driver package — see spec §2's
// dependency order, which builds the cache before the driver).
type Entry struct {
	ResponseText string    `json:"response_text"`
	Model        string    `json:"model"`
	AuthUsed     string    `json:"auth_used"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	SessionID    string    `json:"session_id"`
	StoredAt     time.Time `json:"stored_at"`
}

// Stats reports cache health (spec §4.5 "stats").
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
	Expiries  int64
}

type node struct {
	key   string
	entry Entry
}

// Cache is a bounded, TTL-aware LRU keyed by fingerprint string.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	now   func() time.Time
	elems map[string]*list.Element
	order *list.List // front = most recently used

	hits, misses, evictions, expiries int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry time-to-live. Zero means entries never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxEntries sets the LRU bound. Must be positive.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.max = n
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

const defaultMaxEntries = 500

// New builds a Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		max:   defaultMaxEntries,
		now:   time.Now,
		elems: make(map[string]*list.Element),
		order: list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached entry for key, promoting it to
// most-recently-used. Expired entries are evicted lazily here and
// counted separately from LRU evictions (spec §4.5 "Eviction").
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.elems[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	n := el.Value.(*node)

	if c.expired(n.entry) {
		c.removeElement(el)
		c.expiries++
		c.misses++
		return Entry{}, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return n.entry, true
}

// Set stores an entry, promoting it to most-recently-used. If the
// insert overflows max, the least-recently-used key is evicted (spec
// §4.5 "Eviction").
func (c *Cache) Set(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, entry)
}

func (c *Cache) setLocked(key string, entry Entry) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}
	if el, ok := c.elems[key]; ok {
		el.Value.(*node).entry = entry
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&node{key: key, entry: entry})
	c.elems[key] = el

	if c.order.Len() > c.max {
		back := c.order.Back()
		if back != nil {
			c.removeElement(back)
			c.evictions++
		}
	}
}

// Has reports whether key is present and unexpired, without promoting it.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elems[key]
	if !ok {
		return false
	}
	return !c.expired(el.Value.(*node).entry)
}

// Invalidate removes key, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elems[key]; ok {
		c.removeElement(el)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elems = make(map[string]*list.Element)
	c.order = list.New()
}

// Stats reports current cache health.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.order.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expiries:  c.expiries,
	}
}

func (c *Cache) expired(e Entry) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(e.StoredAt) > c.ttl
}

func (c *Cache) removeElement(el *list.Element) {
	n := el.Value.(*node)
	delete(c.elems, n.key)
	c.order.Remove(el)
}

// persistedBlob is the on-disk shape written by Persist and read by Load.
type persistedBlob struct {
	Entries map[string]Entry `json:"entries"`
}

const lockTimeout = 5 * time.Second

// Persist writes the cache to path as JSON, guarded by a sibling
// <path>.lock flock file so concurrent writers across processes don't
// tear the file (spec §4.5 "persist ... to a single file at a
// configured path").
func (c *Cache) Persist(path string) error {
	c.mu.Lock()
	blob := persistedBlob{Entries: make(map[string]Entry, c.order.Len())}
	for el := c.order.Front(); el != nil; el = el.Next() {
		n := el.Value.(*node)
		blob.Entries[n.key] = n.entry
	}
	c.mu.Unlock()

	data, err := json.Marshal(blob)
	if err != nil {
		return err
	}

	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return err
	}
	if !locked {
		return context.DeadlineExceeded
	}
	defer fl.Unlock()

	return os.WriteFile(path, data, 0o644)
}

// Load reads path and replaces the cache contents. Expired entries and
// malformed input are silently skipped (spec §4.5 "loading silently
// skips expired entries and malformed input"); a missing file is not
// an error — it just leaves the cache empty.
func (c *Cache) Load(path string) error {
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err == nil && locked {
		defer fl.Unlock()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var blob persistedBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil // malformed input is skipped, not fatal
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.elems = make(map[string]*list.Element)
	c.order = list.New()
	for key, entry := range blob.Entries {
		if c.expired(entry) {
			c.expiries++
			continue
		}
		c.setLocked(key, entry)
	}
	return nil
}
