package etl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/labor-stats-dashboard/internal/clock"
	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/JakeFAU/labor-stats-dashboard/internal/fetcher/datagov"
	"github.com/JakeFAU/labor-stats-dashboard/internal/storage"
	"github.com/JakeFAU/labor-stats-dashboard/internal/storage/memory"
)

type stubFetcher struct {
	records []dataset.RawRecord
	queries []datagov.Query
}

func (f *stubFetcher) Fetch(_ context.Context, q datagov.Query) []dataset.RawRecord {
	f.queries = append(f.queries, q)
	return f.records
}

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("snap-%d", g.n), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

var start = time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

func sampleRecords() []dataset.RawRecord {
	return []dataset.RawRecord{
		{"state_name": "Kerala", "district_name": "Idukki", "fin_year": "2023-2024", "month": "Apr", "Total_Households": "1,200"},
		{"State_Name": "Kerala", "District_Name": "Idukki", "Fin_Year": "2023-2024", "Month": "May", "persondays": "n/a"},
		{"state_name": "Kerala", "fin_year": "2023-2024", "month": "Apr"},
	}
}

func TestPipelineRunWritesRows(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{records: sampleRecords()}
	store := memory.NewReconcileStore()
	p, err := NewPipeline(fetcher, store, clock.NewFixed(start), &seqIDs{}, Config{Limit: 50}, zap.NewNop())
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "snap-1", res.SnapshotID)
	require.Equal(t, 3, res.Fetched)
	require.Equal(t, 2, res.Written)
	require.Equal(t, 1, res.Rejected)
	require.Equal(t, 1, res.Coerced)
	require.Equal(t, start, res.StartedAt)
	require.Equal(t, 50, fetcher.queries[0].Limit)

	rows := store.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, int64(1200), *rows[0].TotalHouseholdsWorked)

	info, err := store.LatestSnapshot(context.Background(), DefaultDataset)
	require.NoError(t, err)
	require.Equal(t, "snap-1", info.ID)
	require.Equal(t, 3, info.RecordCount)
}

func TestPipelineRunIsIdempotentPerKey(t *testing.T) {
	t.Parallel()

	store := memory.NewReconcileStore()
	p, err := NewPipeline(&stubFetcher{records: sampleRecords()}, store, clock.NewFixed(start), &seqIDs{}, Config{}, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, store.Rows(), 2)
}

func TestPipelineRunEmptyFetch(t *testing.T) {
	t.Parallel()

	store := &storage.MockProvider{}
	p, err := NewPipeline(&stubFetcher{}, store, clock.NewFixed(start), &seqIDs{}, Config{}, zap.NewNop())
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Fetched)
	require.Empty(t, res.SnapshotID)
	store.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineRunStorageFailure(t *testing.T) {
	t.Parallel()

	store := &storage.MockProvider{}
	storeErr := fmt.Errorf("%w: commit: connection lost", storage.ErrStorage)
	store.On("Reconcile", mock.Anything, mock.AnythingOfType("dataset.Snapshot"), mock.Anything).
		Return(0, storeErr).Once()

	p, err := NewPipeline(&stubFetcher{records: sampleRecords()}, store, clock.NewFixed(start), &seqIDs{}, Config{Dataset: "mgnrega"}, zap.NewNop())
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.ErrorIs(t, err, storage.ErrStorage)
	require.Zero(t, res.Written)
	require.Empty(t, res.SnapshotID)
	store.AssertExpectations(t)

	snap, ok := store.Calls[0].Arguments.Get(1).(dataset.Snapshot)
	require.True(t, ok)
	require.Equal(t, "mgnrega", snap.Dataset)
	require.Len(t, snap.Records, 3)
}

func TestPipelineRunIDFailure(t *testing.T) {
	t.Parallel()

	store := &storage.MockProvider{}
	p, err := NewPipeline(&stubFetcher{records: sampleRecords()}, store, clock.NewFixed(start), failingIDs{}, Config{}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	store.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewPipelineValidatesDependencies(t *testing.T) {
	t.Parallel()

	store := memory.NewReconcileStore()
	_, err := NewPipeline(nil, store, nil, &seqIDs{}, Config{}, nil)
	require.Error(t, err)
	_, err = NewPipeline(&stubFetcher{}, nil, nil, &seqIDs{}, Config{}, nil)
	require.Error(t, err)
	_, err = NewPipeline(&stubFetcher{}, store, nil, nil, Config{}, nil)
	require.Error(t, err)
}
