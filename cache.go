package grimoire

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/grimoiredb/grimoire/dialect"
)

// Cache is the interface backing Spell.WithCache. Implement it with a
// preferred store; MemoryCache is the bundled in-process one.
type Cache interface {
	// Get retrieves a value; nil, nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value with a TTL; a zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes one key.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Clear removes everything.
	Clear(ctx context.Context) error
}

// cacheKey derives a stable key from the table, SQL and bind values.
func cacheKey(table, query string, values []any) string {
	var sb strings.Builder
	sb.WriteString(table)
	sb.WriteByte(':')
	sb.WriteString(query)
	for _, v := range values {
		fmt.Fprintf(&sb, "|%v", v)
	}
	return sb.String()
}

// cachedResult is the msgpack envelope for a cached row set.
type cachedResult struct {
	Fields []string `msgpack:"fields"`
	Rows   [][]any  `msgpack:"rows"`
}

func (r *Realm) cacheGet(ctx context.Context, key string) (*dialect.Result, error) {
	raw, err := r.cache.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var env cachedResult
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &dialect.Result{
		Fields:       env.Fields,
		Rows:         env.Rows,
		AffectedRows: int64(len(env.Rows)),
	}, nil
}

func (r *Realm) cacheSet(ctx context.Context, key string, result *dialect.Result, ttl time.Duration) {
	raw, err := msgpack.Marshal(cachedResult{Fields: result.Fields, Rows: result.Rows})
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, key, raw, ttl)
}

// invalidateCache drops cached row sets of the table after any write
// through the realm.
func (r *Realm) invalidateCache(ctx context.Context, table string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.DeletePrefix(ctx, table+":")
}

// MemoryCache is a small in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	return entry.value, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// DeletePrefix implements Cache.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}
