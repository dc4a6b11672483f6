// Package cache holds parsed templates and rendered pages keyed by the hash
// of their content.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/neurodesk/templateparser/pkg/template"
)

// DefaultMaxEntries is the parse cache capacity when none is configured.
const DefaultMaxEntries = 1024

type options struct {
	logger     *zap.Logger
	maxEntries int
}

// Option configures a Cache or Store.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxEntries bounds the number of parsed templates kept. The oldest
// entry is evicted first.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Key returns the content hash used for src.
func Key(src string) uint64 {
	return xxh3.HashString(src)
}

type entry struct {
	src string
	tpl *template.Template
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Cache maps template source to its parse result. Returned templates are
// shared and must be treated as read-only. Concurrent misses for the same
// source parse it once.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint64]*entry
	order   []uint64
	group   singleflight.Group
	opts    options

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns an empty Cache.
func New(opts ...Option) *Cache {
	return &Cache{
		entries: make(map[uint64]*entry),
		opts:    buildOptions(opts),
	}
}

// Get returns the parsed form of src, parsing it on a miss. Parse errors are
// returned and not cached.
func (c *Cache) Get(src string) (*template.Template, error) {
	key := Key(src)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && e.src == src {
		c.hits.Add(1)
		return e.tpl, nil
	}

	c.misses.Add(1)
	if ok {
		// Hash collision with a different source: parse without caching.
		c.opts.logger.Warn("template cache key collision", zap.Uint64("key", key))
		return template.Parse(src)
	}

	v, err, shared := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		c.opts.logger.Debug("template cache miss", zap.Uint64("key", key), zap.Int("bytes", len(src)))
		tpl, err := template.Parse(src)
		if err != nil {
			return nil, err
		}
		return c.store(key, src, tpl), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.opts.logger.Debug("template parse shared", zap.Uint64("key", key))
	}
	return v.(*template.Template), nil
}

// store publishes tpl under key and returns the published template, which is
// the earlier one if another parse of the same source won the race.
func (c *Cache) store(key uint64, src string, tpl *template.Template) *template.Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		if e.src == src {
			return e.tpl
		}
		return tpl
	}
	for len(c.order) >= c.opts.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = &entry{src: src, tpl: tpl}
	c.order = append(c.order, key)
	return tpl
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*entry)
	c.order = nil
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.Len()}
}
