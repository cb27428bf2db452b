// Package storage defines the reconciliation store contract shared by the Postgres and in-memory
// backends. The store owns two things: the canonical rows, replaced by key, and the append-only
// raw snapshots of each ingestion batch.
package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps every durable-write failure. A batch that fails with it was rolled back.
	ErrStorage = errors.New("storage failure")
)

// Provider persists ETL batches.
type Provider interface {
	// Reconcile stores the snapshot and replaces each row by key, all or nothing.
	// It returns the number of rows written after in-batch deduplication.
	Reconcile(ctx context.Context, snap dataset.Snapshot, rows []dataset.CanonicalRow) (int, error)
	// LatestSnapshot describes the most recent snapshot for a dataset.
	LatestSnapshot(ctx context.Context, datasetName string) (dataset.SnapshotInfo, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close()
}

// Dedupe keeps the last row for each key and orders the result by key. Writers lock keys in this
// order, so concurrent batches cannot deadlock on each other.
func Dedupe(rows []dataset.CanonicalRow) []dataset.CanonicalRow {
	byKey := make(map[dataset.RowKey]dataset.CanonicalRow, len(rows))
	for _, row := range rows {
		byKey[row.Key()] = row
	}
	out := make([]dataset.CanonicalRow, 0, len(byKey))
	for _, row := range byKey {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})
	return out
}
