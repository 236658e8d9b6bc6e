package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/wbrown/janus-dataflow/datalog/query"
)

const (
	defaultCacheSize = 1000
	defaultCacheTTL  = 5 * time.Minute
)

// TopologyCache keeps compile results for repeated patterns. Entries live for
// the TTL; when the cache is full, expired entries are purged first and then
// the entry stored longest ago is dropped. Every Get returns a private copy,
// so callers may modify what they receive.
type TopologyCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	hits, misses int64

	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	result *Result
	stored time.Time
}

// NewTopologyCache creates a cache holding at most maxSize results for ttl
// each. Non-positive values select 1000 entries and five minutes.
func NewTopologyCache(maxSize int, ttl time.Duration) *TopologyCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &TopologyCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns a copy of the result compiled for p with opts.
func (c *TopologyCache) Get(p *query.Pattern, opts Options) (*Result, bool) {
	if c == nil || p == nil {
		return nil, false
	}
	key := computeKey(p, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.expired(entry, time.Now()) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.result.clone(), true
}

// Set stores a copy of result.
func (c *TopologyCache) Set(p *query.Pattern, opts Options, result *Result) {
	if c == nil || p == nil || result == nil {
		return
	}
	key := computeKey(p, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictExpired(now)
		if len(c.entries) >= c.maxSize {
			c.evictOldest()
		}
	}
	c.entries[key] = cacheEntry{result: result.clone(), stored: now}
}

func (c *TopologyCache) expired(e cacheEntry, now time.Time) bool {
	return now.Sub(e.stored) > c.ttl
}

// evictExpired drops every entry past its TTL. Callers hold mu.
func (c *TopologyCache) evictExpired(now time.Time) {
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
		}
	}
}

// evictOldest drops the entry stored longest ago. Callers hold mu.
func (c *TopologyCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.stored.Before(oldest) {
			oldestKey, oldest = key, e.stored
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Clear empties the cache and resets its counters.
func (c *TopologyCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.hits, c.misses = 0, 0
}

// Stats reports hits, misses and the number of stored results.
func (c *TopologyCache) Stats() (hits, misses int64, size int) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries)
}

// computeKey hashes the pattern structure and every option that changes the
// compiled topology. Constant types are part of the key: 1 and 1.0 differ.
func computeKey(p *query.Pattern, opts Options) string {
	h := sha256.New()

	fmt.Fprintf(h, "FIND:")
	for _, sym := range p.Find {
		fmt.Fprintf(h, "%s;", sym)
	}
	hashPattern(h, p)

	fmt.Fprintf(h, "OPTIONS:")
	fmt.Fprintf(h, "Arity:%d;", opts.Arity)
	fmt.Fprintf(h, "Input:%q;", opts.InputFeed)
	fmt.Fprintf(h, "Retraction:%v;", opts.EnableRetraction)
	fmt.Fprintf(h, "TerminalPolicy:%v;", opts.TerminalPolicy)
	fmt.Fprintf(h, "Terminal:%v;", opts.Terminal != nil)

	return hex.EncodeToString(h.Sum(nil))
}

func hashPattern(h io.Writer, p *query.Pattern) {
	fmt.Fprintf(h, "WHERE(%s):", p.Kind)
	for _, clause := range p.Where {
		if clause == nil {
			fmt.Fprintf(h, "nil;")
			continue
		}
		for _, term := range clause.Terms {
			switch t := term.(type) {
			case query.Constant:
				fmt.Fprintf(h, "%T=%v,", t.Value, t.Value)
			case nil:
				fmt.Fprintf(h, "nil,")
			default:
				fmt.Fprintf(h, "%s,", t)
			}
		}
		fmt.Fprintf(h, ";")
	}
	for _, nested := range p.Nested {
		if nested != nil {
			hashPattern(h, nested)
		}
	}
	fmt.Fprintf(h, "END;")
}
