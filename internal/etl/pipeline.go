// Package etl runs the fetch, normalize, reconcile cycle and schedules it.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-stats-dashboard/internal/clock"
	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/JakeFAU/labor-stats-dashboard/internal/fetcher/datagov"
	"github.com/JakeFAU/labor-stats-dashboard/internal/metrics"
	"github.com/JakeFAU/labor-stats-dashboard/internal/storage"
)

// DefaultDataset names snapshots when Config.Dataset is empty.
const DefaultDataset = "district_monthly"

// Fetcher supplies raw records. An empty slice means the upstream had nothing or was unreachable.
type Fetcher interface {
	Fetch(ctx context.Context, q datagov.Query) []dataset.RawRecord
}

// IDGenerator issues snapshot identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls a pipeline run.
type Config struct {
	Dataset string
	Limit   int
}

// Result summarizes one run.
type Result struct {
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Fetched    int       `json:"fetched"`
	Written    int       `json:"written"`
	Rejected   int       `json:"rejected"`
	Coerced    int       `json:"coerced"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Pipeline fetches, normalizes, and reconciles one batch per Run.
type Pipeline struct {
	fetcher Fetcher
	store   storage.Provider
	clock   clock.Clock
	ids     IDGenerator
	cfg     Config
	logger  *zap.Logger
}

// NewPipeline wires a Pipeline.
func NewPipeline(
	fetcher Fetcher,
	store storage.Provider,
	clk clock.Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	return &Pipeline{
		fetcher: fetcher,
		store:   store,
		clock:   clk,
		ids:     ids,
		cfg:     cfg,
		logger:  logger.Named("etl"),
	}, nil
}

// Run executes one ETL cycle. Only a storage failure returns an error; in that case nothing from
// the batch was kept.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res := Result{StartedAt: p.clock.Now()}
	started := time.Now()

	records := p.fetcher.Fetch(ctx, datagov.Query{Limit: p.cfg.Limit})
	res.Fetched = len(records)
	if len(records) == 0 {
		p.logger.Warn("etl run fetched no records")
		res.FinishedAt = p.clock.Now()
		metrics.ObserveETLRun("empty", time.Since(started))
		return res, nil
	}

	rows := make([]dataset.CanonicalRow, 0, len(records))
	for i, rec := range records {
		norm, err := dataset.Normalize(rec)
		if err != nil {
			res.Rejected++
			p.logger.Warn("record rejected", zap.Int("index", i), zap.Error(err))
			continue
		}
		if len(norm.Coerced) > 0 {
			res.Coerced++
			p.logger.Debug("record values coerced to zero",
				zap.Int("index", i),
				zap.Any("fields", norm.Coerced),
			)
		}
		rows = append(rows, norm.Row)
	}

	id, err := p.ids.NewID()
	if err != nil {
		metrics.ObserveETLRun("failed", time.Since(started))
		return res, fmt.Errorf("snapshot id: %w", err)
	}
	snap := dataset.Snapshot{
		ID:        id,
		Dataset:   p.cfg.Dataset,
		FetchedAt: res.StartedAt,
		Records:   records,
	}

	written, err := p.store.Reconcile(ctx, snap, rows)
	if err != nil {
		p.logger.Error("etl reconcile failed",
			zap.String("snapshot_id", id),
			zap.Int("rows", len(rows)),
			zap.Error(err),
		)
		metrics.ObserveETLRun("failed", time.Since(started))
		res.FinishedAt = p.clock.Now()
		return res, fmt.Errorf("etl run: %w", err)
	}

	res.SnapshotID = id
	res.Written = written
	res.FinishedAt = p.clock.Now()
	metrics.ObserveETLRun("succeeded", time.Since(started))
	metrics.ObserveETLRecords("written", written)
	metrics.ObserveETLRecords("rejected", res.Rejected)
	metrics.ObserveETLRecords("coerced", res.Coerced)
	p.logger.Info("etl run complete",
		zap.String("snapshot_id", id),
		zap.Int("fetched", res.Fetched),
		zap.Int("written", res.Written),
		zap.Int("rejected", res.Rejected),
		zap.Int("coerced", res.Coerced),
	)
	return res, nil
}
