package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// FallbackTTL is the lifetime of local tier entries regardless of the remote TTL.
const FallbackTTL = 10 * time.Minute

// LocalTier is the process-local fallback. It is safe for concurrent use and starts empty.
type LocalTier struct {
	items *gocache.Cache
	ttl   time.Duration
}

// NewLocalTier creates a local tier whose entries expire after ttl.
func NewLocalTier(ttl time.Duration) *LocalTier {
	if ttl <= 0 {
		ttl = FallbackTTL
	}
	return &LocalTier{
		items: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Get returns a copy of the stored value.
func (l *LocalTier) Get(key string) ([]byte, bool) {
	v, ok := l.items.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Set stores a copy of value.
func (l *LocalTier) Set(key string, value []byte) {
	l.items.Set(key, append([]byte(nil), value...), l.ttl)
}

// Len reports the number of entries, including expired ones not yet evicted.
func (l *LocalTier) Len() int {
	return l.items.ItemCount()
}
