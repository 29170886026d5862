package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/testutil"
	"store-migrator/feature/assets"
	"store-migrator/feature/dedup"
	"store-migrator/feature/migrate"
	"store-migrator/feature/references"
	"store-migrator/feature/validate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sourceTree = `{
  "users": {
    "u1": {"name": "Ann", "email": "ann@example.com", "lastLogin": 1000},
    "u2": {"name": "Ann B", "email": "ann@example.com", "lastLogin": 2000, "photoUrl": "https://firebasestorage.googleapis.com/v0/b/target/o/user_photos%2Fu2.jpg"}
  },
  "chats": {
    "c1": {"participants": {"0": "u1", "1": "u2"}}
  }
}`

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func buildStages(t *testing.T, store *testutil.MemoryStore) Stages {
	t.Helper()
	logger := zap.NewNop()
	tree := testutil.NewMemoryTree(t, sourceTree)
	rules := []migrate.Rule{{Collection: "users"}, {Collection: "chats"}}
	transformer := migrate.NewTransformer(migrate.DefaultCreatedField, rules...)

	batcher, err := migrate.NewBatcher(store, migrate.DefaultBatchConfig(), logger, migrate.WithSleep(noSleep))
	require.NoError(t, err)

	source := testutil.NewMemoryBucket("source")
	source.Put("user_photos/u2.jpg", "jpeg")
	source.Put("user_photos/stale.jpg", "old")
	target := testutil.NewMemoryBucket("target")

	dd, err := dedup.New(store, batcher, dedup.Config{
		Collection:   "users",
		NaturalKey:   "email",
		CreatedField: "createdAt",
		References:   []dedup.ReferenceRule{{Collection: "chats", Field: "participants", Kind: dedup.KindArray}},
	}, logger)
	require.NoError(t, err)

	engine, err := references.NewEngine(references.Config{}, target, store, batcher, logger)
	require.NoError(t, err)

	return Stages{
		Migrator:     migrate.NewMigrator(tree, batcher, transformer, logger),
		Rules:        rules,
		Validator:    validate.NewValidator(tree, store, transformer, rules, validate.Config{SampleSize: 1}, logger),
		Copier:       assets.NewCopier(source, target, logger, assets.WithSleep(noSleep)),
		CopyOptions:  assets.CopyOptions{Concurrency: 2, TempDir: t.TempDir()},
		Deduplicator: dd,
		Reconciler:   engine,
	}
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	store := testutil.NewMemoryStore()
	p := New(buildStages(t, store), zap.NewNop())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{StageMigrate, StageValidate, StageAssets, StageDedup, StageReconcile}, summary.Completed)
	assert.Empty(t, summary.Failed)

	assert.True(t, summary.Validation.Passed)
	assert.Equal(t, 2, summary.Assets.Copied)
	assert.Equal(t, 1, summary.Dedup.Merged)
	assert.Equal(t, []any{"u2"}, store.Fields("chats", "c1")["participants"])
	assert.Nil(t, store.Fields("users", "u1"))

	require.NotNil(t, summary.Reconcile)
	require.Len(t, summary.Reconcile.Unused, 1)
	assert.Equal(t, "user_photos/stale.jpg", summary.Reconcile.Unused[0].Name)
	assert.Empty(t, summary.Reconcile.Dangling)
}

func TestPipeline_SkipsMissingStages(t *testing.T) {
	store := testutil.NewMemoryStore()
	stages := buildStages(t, store)
	stages.Copier = nil
	stages.Reconciler = nil

	summary, err := New(stages, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{StageMigrate, StageValidate, StageDedup}, summary.Completed)
	assert.Nil(t, summary.Assets)
	assert.Nil(t, summary.Reconcile)
}

func TestPipeline_StopsAtFailedStage(t *testing.T) {
	store := testutil.NewMemoryStore()
	stages := buildStages(t, store)
	cfg := migrate.DefaultBatchConfig()
	cfg.MaxRetries = 0
	batcher, err := migrate.NewBatcher(store, cfg, zap.NewNop(), migrate.WithSleep(noSleep))
	require.NoError(t, err)
	stages.Migrator = migrate.NewMigrator(testutil.NewMemoryTree(t, sourceTree), batcher,
		migrate.NewTransformer(migrate.DefaultCreatedField, stages.Rules...), zap.NewNop())

	store.CommitHook = func([]docstore.Operation) error {
		return errs.Transient("commit", errors.New("unavailable"))
	}

	summary, err := New(stages, zap.NewNop()).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, StageMigrate, summary.Failed)
	assert.Empty(t, summary.Completed)
	assert.NotNil(t, summary.Migration)
	assert.Nil(t, summary.Validation)
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(buildStages(t, testutil.NewMemoryStore()), zap.NewNop()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageMigrate, summary.Failed)
}
