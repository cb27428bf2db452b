// Package memory holds an in-process reconciliation store for development and tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/JakeFAU/labor-stats-dashboard/internal/storage"
)

// ReconcileStore keeps canonical rows by key and the newest raw snapshot per dataset.
type ReconcileStore struct {
	mu        sync.RWMutex
	rows      map[dataset.RowKey]dataset.CanonicalRow
	snapshots map[string]dataset.Snapshot
}

var _ storage.Provider = (*ReconcileStore)(nil)

// NewReconcileStore constructs an empty store.
func NewReconcileStore() *ReconcileStore {
	return &ReconcileStore{
		rows:      make(map[dataset.RowKey]dataset.CanonicalRow),
		snapshots: make(map[string]dataset.Snapshot),
	}
}

// Reconcile replaces rows by key and keeps a copy of the snapshot, payload included.
func (s *ReconcileStore) Reconcile(_ context.Context, snap dataset.Snapshot, rows []dataset.CanonicalRow) (int, error) {
	unique := storage.Dedupe(rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range unique {
		s.rows[row.Key()] = row
	}
	s.snapshots[snap.Dataset] = copySnapshot(snap)
	return len(unique), nil
}

// LatestSnapshot returns the last snapshot recorded for the dataset.
func (s *ReconcileStore) LatestSnapshot(_ context.Context, datasetName string) (dataset.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[datasetName]
	if !ok {
		return dataset.SnapshotInfo{}, storage.ErrNotFound
	}
	return snap.Info(), nil
}

// Snapshot returns a copy of the newest raw snapshot for the dataset.
func (s *ReconcileStore) Snapshot(datasetName string) (dataset.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[datasetName]
	if !ok {
		return dataset.Snapshot{}, storage.ErrNotFound
	}
	return copySnapshot(snap), nil
}

func copySnapshot(snap dataset.Snapshot) dataset.Snapshot {
	records := make([]dataset.RawRecord, len(snap.Records))
	for i, rec := range snap.Records {
		records[i] = maps.Clone(rec)
	}
	snap.Records = records
	return snap
}

// Rows returns a copy of every stored row ordered by key.
func (s *ReconcileStore) Rows() []dataset.CanonicalRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dataset.CanonicalRow, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})
	return out
}

// Ping always succeeds.
func (s *ReconcileStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *ReconcileStore) Close() {}
