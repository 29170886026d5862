package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/testutil"
	"store-migrator/feature/migrate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBatcher(t *testing.T, store docstore.Store, size int) *migrate.Batcher {
	t.Helper()
	cfg := migrate.DefaultBatchConfig()
	cfg.Size = size
	cfg.MaxRetries = 1
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	b, err := migrate.NewBatcher(store, cfg, zap.NewNop(),
		migrate.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)
	return b
}

func testConfig() Config {
	return Config{
		Collection:     "users",
		NaturalKey:     "email",
		ActivityFields: DefaultActivityFields,
		CreatedField:   "createdAt",
		IdentityField:  "uid",
		References: append(DefaultReferences(),
			ReferenceRule{Collection: "chats/*/messages", Field: "senderId", Kind: KindScalar},
		),
	}
}

// seed builds two duplicate users where "new" is the survivor.
func seed() *testutil.MemoryStore {
	store := testutil.NewMemoryStore()
	store.Put("users", "old", map[string]any{"email": "ann@example.com", "name": "Ann", "bio": "hi", "lastLogin": int64(1000)})
	store.Put("users", "new", map[string]any{"email": "ann@example.com", "name": "Ann B", "bio": "", "lastLogin": int64(2000)})
	store.Put("users", "solo", map[string]any{"email": "bob@example.com", "name": "Bob"})
	store.Put("chats", "c1", map[string]any{"participants": []any{"old", "solo"}})
	store.Put("chats", "c2", map[string]any{"participants": []any{"old", "new"}})
	store.Put("chat_c1", "m1", map[string]any{"senderId": "old", "text": "hey"})
	store.Put("chat_c1", "m2", map[string]any{"senderId": "solo", "text": "yo"})
	store.Put("chats/c1/messages", "m1", map[string]any{"senderId": "old"})
	return store
}

func newDeduplicator(t *testing.T, store docstore.Store, cfg Config) *Deduplicator {
	t.Helper()
	d, err := New(store, newBatcher(t, store, 500), cfg, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestDeduplicate_MergesRewritesAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := seed()
	d := newDeduplicator(t, store, testConfig())

	stats, err := d.Deduplicate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 1, stats.Groups)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 4, stats.ReferencesRewritten)

	survivor := store.Fields("users", "new")
	assert.Equal(t, "Ann B", survivor["name"])
	assert.Equal(t, "hi", survivor["bio"])
	assert.Nil(t, store.Fields("users", "old"))

	assert.Equal(t, []any{"new", "solo"}, store.Fields("chats", "c1")["participants"])
	assert.Equal(t, []any{"new"}, store.Fields("chats", "c2")["participants"])
	assert.Equal(t, "new", store.Fields("chat_c1", "m1")["senderId"])
	assert.Equal(t, "solo", store.Fields("chat_c1", "m2")["senderId"])
	assert.Equal(t, "new", store.Fields("chats/c1/messages", "m1")["senderId"])
}

func TestDeduplicate_NoDependentReferencesDeletedID(t *testing.T) {
	ctx := context.Background()
	store := seed()
	d := newDeduplicator(t, store, testConfig())

	stats, err := d.Deduplicate(ctx)
	require.NoError(t, err)

	deleted := map[string]bool{}
	for _, r := range stats.Results {
		for _, id := range r.Deleted {
			deleted[id] = true
		}
	}
	require.NotEmpty(t, deleted)

	for path, fields := range store.Snapshot() {
		if strings.HasPrefix(path, "users/") {
			continue
		}
		for _, v := range fields {
			switch val := v.(type) {
			case string:
				assert.False(t, deleted[val], "%s still references %s", path, val)
			case []any:
				for _, item := range val {
					s, _ := item.(string)
					assert.False(t, deleted[s], "%s still references %s", path, s)
				}
			}
		}
	}
}

func TestDeduplicate_RewritesCommitBeforeDeletes(t *testing.T) {
	ctx := context.Background()
	store := seed()
	d := newDeduplicator(t, store, testConfig())

	_, err := d.Deduplicate(ctx)
	require.NoError(t, err)

	batches := store.Batches()
	require.Len(t, batches, 2)
	for _, op := range batches[0] {
		assert.Equal(t, docstore.OpUpsert, op.Kind)
	}
	require.Len(t, batches[1], 1)
	assert.Equal(t, docstore.OpDelete, batches[1][0].Kind)
	assert.Equal(t, "old", batches[1][0].DocID)
}

func TestDeduplicate_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := seed()
	cfg := testConfig()
	cfg.DryRun = true
	d := newDeduplicator(t, store, cfg)

	stats, err := d.Deduplicate(ctx)
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 1, stats.Merged)
	assert.Empty(t, store.Batches())
	assert.NotNil(t, store.Fields("users", "old"))
}

func TestDeduplicate_FailedGroupIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := seed()
	store.Put("users", "x1", map[string]any{"email": "zed@example.com"})
	store.Put("users", "x2", map[string]any{"email": "zed@example.com", "blob": strings.Repeat("a", 2048)})

	cfg := migrate.DefaultBatchConfig()
	cfg.MaxDocumentBytes = 1024
	b, err := migrate.NewBatcher(store, cfg, zap.NewNop(),
		migrate.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)
	d, err := New(store, b, testConfig(), zap.NewNop())
	require.NoError(t, err)

	stats, err := d.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Groups)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 1, stats.Skipped)

	var skipped GroupResult
	for _, r := range stats.Results {
		if r.Error != "" {
			skipped = r
		}
	}
	assert.Equal(t, "zed@example.com", skipped.Key)
	assert.NotNil(t, store.Fields("users", "x1"))
	assert.NotNil(t, store.Fields("users", "x2"))
}

func TestDeduplicate_ExhaustedRetriesAbort(t *testing.T) {
	ctx := context.Background()
	store := seed()
	store.CommitHook = func([]docstore.Operation) error {
		return errs.Transient("commit", errors.New("unavailable"))
	}
	d := newDeduplicator(t, store, testConfig())

	_, err := d.Deduplicate(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.NotNil(t, store.Fields("users", "old"))
}

// flakyStore fails the first listings of each collection with a transient
// error.
type flakyStore struct {
	*testutil.MemoryStore
	failures    map[string]int
	collections int
}

func (s *flakyStore) ListDocuments(ctx context.Context, collection string) ([]docstore.Document, error) {
	if s.failures[collection] > 0 {
		s.failures[collection]--
		return nil, errs.Transient("list "+collection, errors.New("unavailable"))
	}
	return s.MemoryStore.ListDocuments(ctx, collection)
}

func (s *flakyStore) ListCollections(ctx context.Context) ([]string, error) {
	if s.collections > 0 {
		s.collections--
		return nil, errs.Transient("list collections", errors.New("unavailable"))
	}
	return s.MemoryStore.ListCollections(ctx)
}

func TestDeduplicate_RetriesDependentListings(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{
		MemoryStore: seed(),
		failures:    map[string]int{"users": 1, "chats": 2, "chat_c1": 1},
		collections: 1,
	}
	cfg := testConfig()
	cfg.ListRetries = 2
	d := newDeduplicator(t, store, cfg)
	d.retryInterval = time.Millisecond

	stats, err := d.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 4, stats.ReferencesRewritten)
	assert.Nil(t, store.Fields("users", "old")["email"])
}

func TestDeduplicate_ListingRetriesExhaustedAbort(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: seed(), failures: map[string]int{"chats": 3}}
	cfg := testConfig()
	cfg.ListRetries = 2
	d := newDeduplicator(t, store, cfg)
	d.retryInterval = time.Millisecond

	_, err := d.Deduplicate(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.NotNil(t, store.Fields("users", "old")["email"], "nothing is merged")
}

func TestDeduplicate_IdentityMismatchWarns(t *testing.T) {
	ctx := context.Background()
	store := seed()
	store.Put("users", "old", map[string]any{"email": "ann@example.com", "uid": "other", "lastLogin": int64(1000)})
	d := newDeduplicator(t, store, testConfig())

	stats, err := d.Deduplicate(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Warnings, 1)
	assert.Contains(t, stats.Warnings[0], "other")
	assert.Contains(t, stats.Warnings[0], string(errs.KindConsistency))
}

func TestDeduplicate_SubCollectionsWithoutLister(t *testing.T) {
	ctx := context.Background()
	mem := seed()
	store := struct{ docstore.Store }{mem}
	cfg := testConfig()
	cfg.References = []ReferenceRule{{Collection: "chats/*/messages", Field: "senderId", Kind: KindScalar}}
	d := newDeduplicator(t, store, cfg)

	stats, err := d.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ReferencesRewritten)
	assert.Equal(t, "new", mem.Fields("chats/c1/messages", "m1")["senderId"])
}

func TestDeduplicate_PrefixPatternNeedsLister(t *testing.T) {
	ctx := context.Background()
	store := struct{ docstore.Store }{seed()}
	d := newDeduplicator(t, store, testConfig())

	_, err := d.Deduplicate(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsFatalConfig(err))
}

func TestNew_RequiresKey(t *testing.T) {
	store := testutil.NewMemoryStore()
	cfg := testConfig()
	cfg.NaturalKey = ""

	_, err := New(store, newBatcher(t, store, 10), cfg, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errs.IsFatalConfig(err))

	cfg = testConfig()
	cfg.References = []ReferenceRule{{Collection: "chats", Field: "participants", Kind: "set"}}
	_, err = New(store, newBatcher(t, store, 10), cfg, zap.NewNop())
	assert.True(t, errs.IsFatalConfig(err))
}
