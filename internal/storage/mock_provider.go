package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
)

// MockProvider is a mock implementation of the Provider interface for testing.
type MockProvider struct {
	mock.Mock
}

// Reconcile is the mock implementation of the Reconcile method.
func (m *MockProvider) Reconcile(ctx context.Context, snap dataset.Snapshot, rows []dataset.CanonicalRow) (int, error) {
	args := m.Called(ctx, snap, rows)
	return args.Int(0), args.Error(1) //nolint:wrapcheck
}

// LatestSnapshot is the mock implementation of the LatestSnapshot method.
func (m *MockProvider) LatestSnapshot(ctx context.Context, datasetName string) (dataset.SnapshotInfo, error) {
	args := m.Called(ctx, datasetName)
	info, _ := args.Get(0).(dataset.SnapshotInfo)
	return info, args.Error(1) //nolint:wrapcheck
}

// Ping is the mock implementation of the Ping method.
func (m *MockProvider) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0) //nolint:wrapcheck
}

// Close is the mock implementation of the Close method.
func (m *MockProvider) Close() {
	m.Called()
}
