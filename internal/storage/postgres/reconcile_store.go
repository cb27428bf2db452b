// Package postgres provides the Postgres-backed reconciliation store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/JakeFAU/labor-stats-dashboard/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock.PgxPoolIface satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// ReconcileStore writes snapshots and canonical rows in one transaction per batch.
type ReconcileStore struct {
	pool pool
}

var _ storage.Provider = (*ReconcileStore)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*ReconcileStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ReconcileStore{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*ReconcileStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ReconcileStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *ReconcileStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the database is reachable.
func (s *ReconcileStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", storage.ErrStorage, err)
	}
	return nil
}

// keyTrimRunes is every rune unicode.IsSpace accepts, so SQL key matching trims exactly what
// dataset.NormalizeKeyPart trims.
var keyTrimRunes = []rune{
	'\t', '\n', '\v', '\f', '\r', ' ', 0x85, 0xA0, 0x1680,
	0x2000, 0x2001, 0x2002, 0x2003, 0x2004, 0x2005, 0x2006, 0x2007, 0x2008, 0x2009, 0x200A,
	0x2028, 0x2029, 0x202F, 0x205F, 0x3000,
}

// keyTrimLiteral renders keyTrimRunes as a Postgres escape string of \uXXXX escapes.
func keyTrimLiteral() string {
	var b strings.Builder
	b.WriteString("E'")
	for _, r := range keyTrimRunes {
		fmt.Fprintf(&b, `\u%04X`, r)
	}
	b.WriteString("'")
	return b.String()
}

// keyExpr is the normalized form of a key column, matching dataset.NormalizeKeyPart.
func keyExpr(col string) string {
	return fmt.Sprintf("upper(btrim(%s, %s))", col, keyTrimLiteral())
}

// Schema is the table layout the store expects. EnsureSchema applies it idempotently.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_snapshots (
	id UUID PRIMARY KEY,
	dataset TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	payload JSONB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS ix_raw_snapshots_dataset_fetched ON raw_snapshots (dataset, fetched_at DESC)`,
	`CREATE TABLE IF NOT EXISTS district_monthly (
	id BIGSERIAL PRIMARY KEY,
	state_code TEXT NOT NULL,
	state_name TEXT NOT NULL,
	district_code TEXT NOT NULL,
	district_name TEXT NOT NULL,
	fin_year TEXT NOT NULL,
	month TEXT NOT NULL,
	total_households_worked BIGINT,
	total_individuals_worked BIGINT,
	persondays BIGINT,
	wages NUMERIC,
	avg_wage NUMERIC,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_district_monthly_key ON district_monthly (
	%s, %s, %s, %s
)`, keyExpr("state_code"), keyExpr("district_code"), keyExpr("fin_year"), keyExpr("month")),
}

// EnsureSchema creates the tables and indexes when missing.
func (s *ReconcileStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", storage.ErrStorage, err)
		}
	}
	return nil
}

const (
	insertSnapshotSQL = `INSERT INTO raw_snapshots (id, dataset, fetched_at, payload) VALUES ($1, $2, $3, $4)`

	lockKeySQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	insertRowSQL = `INSERT INTO district_monthly (
	state_code,
	state_name,
	district_code,
	district_name,
	fin_year,
	month,
	total_households_worked,
	total_individuals_worked,
	persondays,
	wages,
	avg_wage
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`

	latestSnapshotSQL = `SELECT id::text, dataset, fetched_at, COALESCE(jsonb_array_length(payload->'records'), 0)
FROM raw_snapshots
WHERE dataset = $1
ORDER BY fetched_at DESC
LIMIT 1`
)

var deleteRowSQL = fmt.Sprintf(`DELETE FROM district_monthly
WHERE %s = $1
	AND %s = $2
	AND %s = $3
	AND %s = $4`, keyExpr("state_code"), keyExpr("district_code"), keyExpr("fin_year"), keyExpr("month"))

// Reconcile appends the snapshot and replaces every row by key inside one transaction.
// Each key is guarded by a transaction-scoped advisory lock so concurrent batches touching the
// same key serialize instead of both inserting.
func (s *ReconcileStore) Reconcile(ctx context.Context, snap dataset.Snapshot, rows []dataset.CanonicalRow) (int, error) {
	payload, err := json.Marshal(map[string]any{"records": snap.Records})
	if err != nil {
		return 0, fmt.Errorf("%w: marshal snapshot: %w", storage.ErrStorage, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", storage.ErrStorage, err)
	}
	fail := func(op string, cause error) (int, error) {
		// The rollback error is secondary to the cause.
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("%w: %s: %w", storage.ErrStorage, op, cause)
	}

	if _, err := tx.Exec(ctx, insertSnapshotSQL, snap.ID, snap.Dataset, snap.FetchedAt, payload); err != nil {
		return fail("insert snapshot", err)
	}

	unique := storage.Dedupe(rows)
	for _, row := range unique {
		key := row.Key()
		if _, err := tx.Exec(ctx, lockKeySQL, key.String()); err != nil {
			return fail("lock "+key.String(), err)
		}
		if _, err := tx.Exec(ctx, deleteRowSQL, key.StateCode, key.DistrictCode, key.FinYear, key.Month); err != nil {
			return fail("delete "+key.String(), err)
		}
		if _, err := tx.Exec(ctx, insertRowSQL, rowArgs(row)...); err != nil {
			return fail("insert "+key.String(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", storage.ErrStorage, err)
	}
	return len(unique), nil
}

// LatestSnapshot returns metadata for the newest snapshot of a dataset.
func (s *ReconcileStore) LatestSnapshot(ctx context.Context, datasetName string) (dataset.SnapshotInfo, error) {
	var info dataset.SnapshotInfo
	err := s.pool.QueryRow(ctx, latestSnapshotSQL, datasetName).Scan(
		&info.ID,
		&info.Dataset,
		&info.FetchedAt,
		&info.RecordCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dataset.SnapshotInfo{}, storage.ErrNotFound
		}
		return dataset.SnapshotInfo{}, fmt.Errorf("%w: latest snapshot: %w", storage.ErrStorage, err)
	}
	return info, nil
}

func rowArgs(row dataset.CanonicalRow) []any {
	return []any{
		row.StateCode,
		row.StateName,
		row.DistrictCode,
		row.DistrictName,
		row.FinYear,
		row.Month,
		row.TotalHouseholdsWorked,
		row.TotalIndividualsWorked,
		row.Persondays,
		numericArg(row.Wages),
		numericArg(row.AvgWage),
	}
}

// numericArg sends decimals as text so NUMERIC keeps full precision; nil becomes NULL.
func numericArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
