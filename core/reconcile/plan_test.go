package reconcile

import (
	"context"
	"errors"
	"testing"

	"store-migrator/core/errs"
	"store-migrator/core/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockMutator implements both Adapter and Mutator for testing.
type mockMutator struct {
	mockAdapter
	removed  []string
	fixed    []Reference
	failures []storage.RemoveFailure
}

func (m *mockMutator) DeleteObjects(ctx context.Context, names []string) ([]storage.RemoveFailure, error) {
	m.removed = append(m.removed, names...)
	return m.failures, nil
}

func (m *mockMutator) FixReferences(ctx context.Context, refs []Reference) (int, error) {
	m.fixed = append(m.fixed, refs...)
	return len(refs), nil
}

func testReport() *Report {
	ignored := ref("photos", "p3", "d.jpg")
	ignored.OnDangling = ""
	return &Report{
		Unused: []storage.ObjectInfo{
			{Name: "b.jpg", Size: 20},
			{Name: "e.jpg", Size: 5},
		},
		UnusedBytes: 25,
		Dangling:    []Reference{ref("photos", "p2", "c.jpg"), ignored},
	}
}

func TestApplyCleanup_RequiresConfirmation(t *testing.T) {
	mutator := &mockMutator{}
	engine := NewEngine(Spec{Adapter: mutator}, zap.NewNop())

	stats, err := engine.ApplyCleanup(context.Background(), testReport(), CleanupOptions{
		DeleteObjects: true,
		FixReferences: true,
	})
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 2, stats.ObjectsRemoved)
	assert.Equal(t, 1, stats.ReferencesFixed)
	assert.Empty(t, mutator.removed)
	assert.Empty(t, mutator.fixed)
}

func TestApplyCleanup_DryRunDoesNothing(t *testing.T) {
	mutator := &mockMutator{}
	engine := NewEngine(Spec{Adapter: mutator}, zap.NewNop())

	_, err := engine.ApplyCleanup(context.Background(), testReport(), CleanupOptions{
		DryRun:        true,
		Confirmed:     true,
		DeleteObjects: true,
		FixReferences: true,
	})
	require.NoError(t, err)
	assert.Empty(t, mutator.removed)
	assert.Empty(t, mutator.fixed)
}

func TestApplyCleanup_Executes(t *testing.T) {
	mutator := &mockMutator{
		failures: []storage.RemoveFailure{{Name: "e.jpg", Err: errors.New("denied")}},
	}
	engine := NewEngine(Spec{Adapter: mutator}, zap.NewNop())

	stats, err := engine.ApplyCleanup(context.Background(), testReport(), CleanupOptions{
		Confirmed:     true,
		DeleteObjects: true,
		FixReferences: true,
	})
	require.NoError(t, err)
	assert.False(t, stats.DryRun)
	assert.Equal(t, []string{"b.jpg", "e.jpg"}, mutator.removed)
	assert.Equal(t, 1, stats.ObjectsRemoved)
	assert.Equal(t, int64(20), stats.BytesRemoved)
	require.Len(t, stats.ObjectFailures, 1)
	assert.Contains(t, stats.ObjectFailures[0], "denied")

	require.Len(t, mutator.fixed, 1)
	assert.Equal(t, "p2", mutator.fixed[0].DocID)
	assert.Equal(t, 1, stats.ReferencesFixed)
	assert.Equal(t, 1, stats.ReferencesSkipped)
}

func TestApplyCleanup_OnlyRequestedActions(t *testing.T) {
	mutator := &mockMutator{}
	engine := NewEngine(Spec{Adapter: mutator}, zap.NewNop())

	stats, err := engine.ApplyCleanup(context.Background(), testReport(), CleanupOptions{
		Confirmed:     true,
		DeleteObjects: true,
	})
	require.NoError(t, err)
	assert.Len(t, mutator.removed, 2)
	assert.Empty(t, mutator.fixed)
	assert.Zero(t, stats.ReferencesFixed)
}

func TestApplyCleanup_AdapterWithoutMutator(t *testing.T) {
	engine := NewEngine(Spec{Adapter: &mockAdapter{}}, zap.NewNop())

	_, err := engine.ApplyCleanup(context.Background(), testReport(), CleanupOptions{
		Confirmed:     true,
		DeleteObjects: true,
	})
	require.Error(t, err)
	assert.True(t, errs.IsFatalConfig(err))
}
