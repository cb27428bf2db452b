// Package cache implements the two-tier read-through/write-through cache used for catalog
// lookups and dashboard aggregates.
//
// The remote tier (Redis) is shared and may be unreachable. The local tier is an in-process
// fallback written on every Set with its own short TTL. Remote failures are logged and counted,
// never returned: callers only ever see a hit or a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-stats-dashboard/internal/metrics"
)

// ErrMiss is returned by a RemoteTier when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Tier identifies which layer served a hit.
type Tier string

// Tiers.
const (
	TierRemote Tier = "remote"
	TierLocal  Tier = "local"
)

// RemoteTier is the shared cache. Implementations return ErrMiss for absent keys and any other
// error for unavailability.
type RemoteTier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) error
}

// Hit is a cached value and the tier it came from.
type Hit struct {
	Value []byte
	Tier  Tier
}

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 2 * time.Second

// Manager coordinates the remote and local tiers.
type Manager struct {
	remote  RemoteTier
	local   *LocalTier
	timeout time.Duration
	logger  *zap.Logger
}

// NewManager builds a Manager. remote may be nil, in which case only the local tier is used.
func NewManager(remote RemoteTier, local *LocalTier, timeout time.Duration, logger *zap.Logger) *Manager {
	if local == nil {
		local = NewLocalTier(FallbackTTL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		remote:  remote,
		local:   local,
		timeout: timeout,
		logger:  logger,
	}
}

// HasRemote reports whether a remote tier is configured.
func (m *Manager) HasRemote() bool {
	return m.remote != nil
}

// Get reads the remote tier first, then the local tier.
func (m *Manager) Get(ctx context.Context, key string) (Hit, bool) {
	if m.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, m.timeout)
		val, err := m.remote.Get(rctx, key)
		cancel()
		switch {
		case err == nil:
			metrics.ObserveCacheLookup(string(TierRemote), true)
			return Hit{Value: val, Tier: TierRemote}, true
		case errors.Is(err, ErrMiss):
			metrics.ObserveCacheLookup(string(TierRemote), false)
		default:
			metrics.ObserveCacheError(string(TierRemote), "get")
			m.logger.Warn("remote cache get failed, using local tier", zap.String("key", key), zap.Error(err))
		}
	}

	if val, ok := m.local.Get(key); ok {
		metrics.ObserveCacheLookup(string(TierLocal), true)
		return Hit{Value: val, Tier: TierLocal}, true
	}
	metrics.ObserveCacheLookup(string(TierLocal), false)
	return Hit{}, false
}

// Set writes the remote tier with ttl and always writes the local tier with its own TTL.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if m.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := m.remote.Set(rctx, key, value, ttl)
		cancel()
		if err != nil {
			metrics.ObserveCacheError(string(TierRemote), "set")
			m.logger.Warn("remote cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	m.local.Set(key, value)
}

// FlushRemote clears the remote namespace. The local tier is left alone. It reports whether the
// flush succeeded; without a remote tier there is nothing to flush and it returns true.
func (m *Manager) FlushRemote(ctx context.Context) bool {
	if m.remote == nil {
		return true
	}
	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.remote.Flush(rctx); err != nil {
		metrics.ObserveCacheError(string(TierRemote), "flush")
		m.logger.Warn("remote cache flush failed", zap.Error(err))
		return false
	}
	m.logger.Info("remote cache flushed")
	return true
}

// GetJSON decodes a cached value into dst. Undecodable entries count as misses.
func (m *Manager) GetJSON(ctx context.Context, key string, dst any) (Tier, bool) {
	hit, ok := m.Get(ctx, key)
	if !ok {
		return "", false
	}
	if err := json.Unmarshal(hit.Value, dst); err != nil {
		m.logger.Warn("cached value undecodable", zap.String("key", key), zap.String("tier", string(hit.Tier)), zap.Error(err))
		return "", false
	}
	return hit.Tier, true
}

// SetJSON encodes v and stores it.
func (m *Manager) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("cache value not encodable", zap.String("key", key), zap.Error(err))
		return
	}
	m.Set(ctx, key, data, ttl)
}
