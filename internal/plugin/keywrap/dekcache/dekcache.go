// Package dekcache is a bounded TTL cache for unwrapped DEKs, shared by the
// remote keywrap providers. Entries age out by time only, never by usage, so
// a compromised DEK cannot be kept alive by traffic.
package dekcache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	maxEntries  = 4096
	numCounters = 10 * maxEntries
)

// Cache maps wrapped-DEK bytes to their plaintext DEKs.
type Cache struct {
	inner *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// New returns a cache with the given TTL, or nil when ttl <= 0 (caching
// disabled). A nil *Cache is safe to use.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return nil
	}
	inner, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: numCounters,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil
	}
	return &Cache{inner: inner, ttl: ttl}
}

func cacheKey(wrapped []byte) string {
	sum := sha256.Sum256(wrapped)
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached plaintext DEK for a wrapped DEK, if
// present. Callers zero the returned slice after use, so the cached copy
// must stay private to the cache.
func (c *Cache) Get(wrapped []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	dek, ok := c.inner.Get(cacheKey(wrapped))
	if !ok {
		return nil, false
	}
	out := make([]byte, len(dek))
	copy(out, dek)
	return out, true
}

// Put stores a private copy of the plaintext DEK under its wrapped form for
// the cache TTL.
func (c *Cache) Put(wrapped, dek []byte) {
	if c == nil {
		return
	}
	own := make([]byte, len(dek))
	copy(own, dek)
	c.inner.SetWithTTL(cacheKey(wrapped), own, 1, c.ttl)
}
