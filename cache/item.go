package cache

import (
	"sync"

	"github.com/nkyo/gocached/record"
)

// SetItem stores an arbitrary in-process value at key. Strings and
// []byte are stored byte-identical; anything else is JSON-serialized
// on entry, so the wire-level representation stays canonical bytes.
func (c *Cache) SetItem(key string, value any, expirationSeconds int64) error {
	b, err := record.MarshalValue(value)
	if err != nil {
		return err
	}
	return c.Set(key, b, 0, expirationSeconds)
}

// GetItem retrieves the value stored at key as an in-process value:
// JSON-object payloads are decoded back, everything else comes back as
// a string. Returns ErrCacheMiss if key is absent or expired.
func (c *Cache) GetItem(key string) (any, error) {
	b, _, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	return record.UnmarshalValue(b), nil
}

// DeleteItem removes key. Returns ErrCacheMiss if key was absent.
func (c *Cache) DeleteItem(key string) error {
	return c.Delete(key)
}

// The process-wide default cache backing the package-level embeddable
// API. Lazily initialized; Init and Teardown are the explicit
// lifecycle entry points.
var (
	defaultMu    sync.Mutex
	defaultCache *Cache
)

// Init replaces the process-wide default cache with a freshly
// constructed one and returns it. The previous default, if any, is
// closed.
func Init(bound Bound, opts ...Option) *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache != nil {
		defaultCache.Close()
	}
	defaultCache = New(bound, opts...)
	return defaultCache
}

// Default returns the process-wide default cache, lazily constructing
// an unbounded one on first use.
func Default() *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache == nil {
		defaultCache = New(Unbounded())
	}
	return defaultCache
}

// Teardown closes and clears the process-wide default cache. A later
// Default or Init call starts over with a fresh one.
func Teardown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache != nil {
		defaultCache.Close()
		defaultCache = nil
	}
}

// SetItem stores value in the process-wide default cache.
func SetItem(key string, value any, expirationSeconds int64) error {
	return Default().SetItem(key, value, expirationSeconds)
}

// GetItem retrieves key from the process-wide default cache.
func GetItem(key string) (any, error) {
	return Default().GetItem(key)
}

// DeleteItem removes key from the process-wide default cache.
func DeleteItem(key string) error {
	return Default().DeleteItem(key)
}
