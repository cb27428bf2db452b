// Package dashboard serves catalog and KPI lookups through the cache tiers and triggers refreshes.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/labor-stats-dashboard/internal/aggregate"
	"github.com/JakeFAU/labor-stats-dashboard/internal/cache"
	"github.com/JakeFAU/labor-stats-dashboard/internal/clock"
	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/JakeFAU/labor-stats-dashboard/internal/etl"
	"github.com/JakeFAU/labor-stats-dashboard/internal/fetcher/datagov"
)

// ErrNotFound is returned when the upstream has no data for the request.
var ErrNotFound = errors.New("no data found")

// Source reports where a response came from.
type Source string

// Response sources.
const (
	SourceCache  Source = "cache"
	SourceMemory Source = "memory"
	SourceLive   Source = "live"
)

func sourceFor(t cache.Tier) Source {
	if t == cache.TierRemote {
		return SourceCache
	}
	return SourceMemory
}

// DefaultMonths is the dashboard window when the caller gives none.
const DefaultMonths = 12

// States lists the states present upstream.
type States struct {
	States []string `json:"states"`
	Source Source   `json:"source"`
}

// Districts lists the districts of one state.
type Districts struct {
	State     string   `json:"state"`
	Districts []string `json:"districts"`
	Source    Source   `json:"source"`
}

// Dashboard is the KPI and series payload for one district.
type Dashboard struct {
	State       string            `json:"state"`
	District    string            `json:"district"`
	KPIs        aggregate.KPIs    `json:"kpis"`
	Series      []aggregate.Point `json:"series"`
	LastUpdated time.Time         `json:"last_updated"`
	Source      Source            `json:"source"`
	FromCache   bool              `json:"from_cache"`
}

// Refresh reports a completed refresh.
type Refresh struct {
	Message      string     `json:"message"`
	Timestamp    time.Time  `json:"timestamp"`
	CacheFlushed bool       `json:"cache_flushed"`
	Result       etl.Result `json:"result"`
}

// Config controls the service.
type Config struct {
	// FetchLimit caps how many upstream records a cache miss reads.
	FetchLimit int
}

// Service answers dashboard queries.
type Service struct {
	cache   *cache.Manager
	fetcher etl.Fetcher
	runner  etl.Runner
	clock   clock.Clock
	cfg     Config
	logger  *zap.Logger
	flight  singleflight.Group
}

// NewService wires a Service. runner may be nil, in which case Refresh only flushes the cache.
func NewService(
	cacheManager *cache.Manager,
	fetcher etl.Fetcher,
	runner etl.Runner,
	clk clock.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Service, error) {
	if cacheManager == nil {
		return nil, errors.New("cache manager is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = datagov.DefaultLimit
	}
	return &Service{
		cache:   cacheManager,
		fetcher: fetcher,
		runner:  runner,
		clock:   clk,
		cfg:     cfg,
		logger:  logger.Named("dashboard"),
	}, nil
}

// States returns every state name, cached for a day.
func (s *Service) States(ctx context.Context) (States, error) {
	key := cache.StatesKey()
	var names []string
	if tier, ok := s.cache.GetJSON(ctx, key, &names); ok {
		return States{States: names, Source: sourceFor(tier)}, nil
	}
	v, err := s.load(ctx, key, func(fctx context.Context, records []dataset.RawRecord) (any, error) {
		names := aggregate.States(records)
		if len(names) == 0 {
			return nil, ErrNotFound
		}
		s.cache.SetJSON(fctx, key, names, cache.CatalogTTL)
		return names, nil
	})
	if err != nil {
		return States{}, err
	}
	return States{States: v.([]string), Source: SourceLive}, nil
}

// Districts returns the district names for state, cached for a day.
func (s *Service) Districts(ctx context.Context, state string) (Districts, error) {
	key := cache.DistrictsKey(state)
	var names []string
	if tier, ok := s.cache.GetJSON(ctx, key, &names); ok {
		return Districts{State: state, Districts: names, Source: sourceFor(tier)}, nil
	}
	v, err := s.load(ctx, key, func(fctx context.Context, records []dataset.RawRecord) (any, error) {
		names, err := aggregate.Districts(records, state)
		if err != nil {
			return nil, notFound(err)
		}
		s.cache.SetJSON(fctx, key, names, cache.CatalogTTL)
		return names, nil
	})
	if err != nil {
		return Districts{}, err
	}
	return Districts{State: state, Districts: v.([]string), Source: SourceLive}, nil
}

// Dashboard returns KPIs and the series for one district. months only distinguishes cache entries.
// The key folds case, so state and district in the response are always the caller's spelling.
func (s *Service) Dashboard(ctx context.Context, state, district string, months int) (Dashboard, error) {
	if months <= 0 {
		months = DefaultMonths
	}
	key := cache.DashboardKey(state, district, months)
	var cached Dashboard
	if tier, ok := s.cache.GetJSON(ctx, key, &cached); ok {
		cached.State, cached.District = state, district
		cached.Source = sourceFor(tier)
		cached.FromCache = true
		return cached, nil
	}
	v, err := s.load(ctx, key, func(fctx context.Context, records []dataset.RawRecord) (any, error) {
		res, err := aggregate.Aggregate(records, state, district)
		if err != nil {
			return nil, notFound(err)
		}
		payload := Dashboard{
			State:       state,
			District:    district,
			KPIs:        res.KPIs,
			Series:      res.Series,
			LastUpdated: s.clock.Now(),
			Source:      SourceLive,
		}
		s.cache.SetJSON(fctx, key, payload, cache.AggregateTTL)
		return payload, nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	out := v.(Dashboard)
	out.State, out.District = state, district
	return out, nil
}

// Refresh clears the remote cache namespace and runs the ETL pipeline synchronously.
// The process-local tier is left alone and ages out on its own TTL.
func (s *Service) Refresh(ctx context.Context) (Refresh, error) {
	flushed := s.cache.FlushRemote(ctx)
	out := Refresh{CacheFlushed: flushed}
	if s.runner != nil {
		res, err := s.runner.Run(ctx)
		out.Result = res
		if err != nil {
			return out, fmt.Errorf("refresh: %w", err)
		}
	}
	out.Message = "ETL refresh complete."
	out.Timestamp = s.clock.Now()
	s.logger.Info("refresh complete",
		zap.Bool("cache_flushed", flushed),
		zap.Int("written", out.Result.Written),
	)
	return out, nil
}

// load coalesces concurrent misses on key into one upstream fetch and compute.
func (s *Service) load(
	ctx context.Context,
	key string,
	compute func(context.Context, []dataset.RawRecord) (any, error),
) (any, error) {
	v, err, shared := s.flight.Do(key, func() (any, error) {
		// The first caller's cancellation must not fail the callers sharing this flight.
		fctx := context.WithoutCancel(ctx)
		records := s.fetcher.Fetch(fctx, datagov.Query{Limit: s.cfg.FetchLimit})
		if len(records) == 0 {
			return nil, ErrNotFound
		}
		return compute(fctx, records)
	})
	if shared {
		s.logger.Debug("coalesced cache miss", zap.String("key", key))
	}
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return v, nil
}

func notFound(err error) error {
	if errors.Is(err, aggregate.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
