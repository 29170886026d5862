package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"store-migrator/core/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockAdapter is a simple test adapter.
type mockAdapter struct {
	objects    []storage.ObjectInfo
	refs       []Reference
	objectsErr error
	refsErr    error
	loads      atomic.Int32
}

func (m *mockAdapter) Name() string {
	return "mock"
}

func (m *mockAdapter) LoadObjects(ctx context.Context) ([]storage.ObjectInfo, error) {
	m.loads.Add(1)
	return m.objects, m.objectsErr
}

func (m *mockAdapter) LoadReferences(ctx context.Context) ([]Reference, error) {
	return m.refs, m.refsErr
}

func ref(source, docID, object string) Reference {
	return Reference{
		URL:        "https://storage.googleapis.com/bkt/" + object,
		Source:     source,
		Collection: source,
		DocID:      docID,
		Field:      "url",
		Bucket:     "bkt",
		Object:     object,
		OnDangling: DeleteDocument,
	}
}

var testCategories = []Category{
	{Prefix: "photos/", Name: "photo"},
	{Prefix: "user_photos/", Name: "user_photo"},
}

func TestAnalyze_UnusedAndDangling(t *testing.T) {
	adapter := &mockAdapter{
		objects: []storage.ObjectInfo{
			{Bucket: "bkt", Name: "a.jpg", Size: 10},
			{Bucket: "bkt", Name: "b.jpg", Size: 20},
		},
		refs: []Reference{
			ref("photos", "p1", "a.jpg"),
			ref("photos", "p2", "c.jpg"),
		},
	}
	engine := NewEngine(Spec{Adapter: adapter, Bucket: "bkt"}, zap.NewNop())

	report, err := engine.Analyze(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Unused, 1)
	assert.Equal(t, "b.jpg", report.Unused[0].Name)
	assert.Equal(t, int64(20), report.UnusedBytes)
	require.Len(t, report.Dangling, 1)
	assert.Equal(t, "c.jpg", report.Dangling[0].Object)
	assert.Equal(t, "p2", report.Dangling[0].DocID)
	assert.Equal(t, 2, report.Objects)
	assert.Equal(t, 2, report.References)
}

func TestAnalyze_GroupsByCategoryAndCollection(t *testing.T) {
	adapter := &mockAdapter{
		objects: []storage.ObjectInfo{
			{Name: "photos/1.jpg", Size: 100},
			{Name: "photos/2.jpg", Size: 50},
			{Name: "user_photos/u1.jpg", Size: 5},
			{Name: "misc/readme.txt", Size: 1},
		},
		refs: []Reference{
			ref("photos", "p1", "photos/1.jpg"),
			ref("users", "u1", "user_photos/u1.jpg"),
			ref("users", "u2", "user_photos/u2.jpg"),
			{URL: "not a url", Source: "users", Collection: "users", DocID: "u3", Field: "photoUrl"},
		},
	}
	engine := NewEngine(Spec{Adapter: adapter, Bucket: "bkt", Categories: testCategories}, zap.NewNop())

	report, err := engine.Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []CategoryReport{
		{Category: OtherCategory, Objects: 1, Bytes: 1, Unused: 1, UnusedBytes: 1},
		{Category: "photo", Objects: 2, Bytes: 150, Unused: 1, UnusedBytes: 50},
		{Category: "user_photo", Objects: 1, Bytes: 5},
	}, report.ByCategory)
	assert.Equal(t, []CollectionReport{
		{Source: "photos", References: 1},
		{Source: "users", References: 3, Dangling: 1, Unrecognized: 1},
	}, report.ByCollection)
	require.Len(t, report.Unrecognized, 1)
	assert.Equal(t, "u3", report.Unrecognized[0].DocID)
}

func TestAnalyze_ScopedIgnoresOtherObjects(t *testing.T) {
	adapter := &mockAdapter{
		objects: []storage.ObjectInfo{
			{Name: "photos/1.jpg", Size: 100},
			{Name: "misc/readme.txt", Size: 1},
		},
	}
	engine := NewEngine(Spec{Adapter: adapter, Categories: testCategories, Scoped: true}, zap.NewNop())

	report, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Objects)
	require.Len(t, report.Unused, 1)
	assert.Equal(t, "photos/1.jpg", report.Unused[0].Name)
}

func TestAnalyze_OtherBucketIsUnrecognized(t *testing.T) {
	other := ref("photos", "p1", "a.jpg")
	other.Bucket = "elsewhere"
	adapter := &mockAdapter{
		objects: []storage.ObjectInfo{{Name: "a.jpg", Size: 1}},
		refs:    []Reference{other},
	}
	engine := NewEngine(Spec{Adapter: adapter, Bucket: "bkt"}, zap.NewNop())

	report, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Unused, 1)
	assert.Empty(t, report.Dangling)
	assert.Len(t, report.Unrecognized, 1)
}

func TestAnalyze_HeuristicOnlyWarns(t *testing.T) {
	adapter := &mockAdapter{
		objects: []storage.ObjectInfo{{Name: "photos/cat.jpg", Size: 1}},
		refs: []Reference{
			{URL: "https://cdn.example.com/img?f=cat.jpg", Source: "posts", Collection: "posts", DocID: "p1", Field: "image"},
		},
	}
	engine := NewEngine(Spec{Adapter: adapter, Heuristic: true}, zap.NewNop())

	report, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Unused, 1, "heuristic matches never clear an object")
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "photos/cat.jpg")
}

func TestAnalyze_LoadErrors(t *testing.T) {
	tests := []struct {
		name       string
		objectsErr error
		refsErr    error
		expectErr  string
	}{
		{name: "objects", objectsErr: errors.New("list failed"), expectErr: "list failed"},
		{name: "references", refsErr: errors.New("scan failed"), expectErr: "scan failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &mockAdapter{objectsErr: tt.objectsErr, refsErr: tt.refsErr}
			_, err := NewEngine(Spec{Adapter: adapter}, zap.NewNop()).Analyze(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}
}

func TestCached_SharesAnalysis(t *testing.T) {
	adapter := &mockAdapter{objects: []storage.ObjectInfo{{Name: "a.jpg"}}}
	engine := NewEngine(Spec{Adapter: adapter, CacheTTL: time.Minute}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Cached(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := engine.Cached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), adapter.loads.Load())

	engine.Invalidate()
	_, err = engine.Cached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), adapter.loads.Load())
}

func TestCached_ZeroTTLAlwaysAnalyzes(t *testing.T) {
	adapter := &mockAdapter{}
	engine := NewEngine(Spec{Adapter: adapter}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := engine.Cached(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), adapter.loads.Load())
}
