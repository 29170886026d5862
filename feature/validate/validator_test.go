package validate

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"store-migrator/core/docstore"
	"store-migrator/core/testutil"
	"store-migrator/feature/migrate"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sourceTree = `{
  "users": {
    "u1": {"name": "Ann", "email": "ann@example.com"},
    "u2": {"name": "Bob", "createdAt": 1700000000000}
  },
  "usernames": {"ann": "u1", "bob": "u2"},
  "posts": {
    "p1": {"userId": "u1", "likes": {"u2": true}, "comments": {"c1": {"text": "hi"}}}
  }
}`

func migrated(t *testing.T, store docstore.Store) (*testutil.MemoryTree, *migrate.Transformer) {
	t.Helper()
	tree := testutil.NewMemoryTree(t, sourceTree)
	transformer := migrate.NewTransformer(migrate.DefaultCreatedField, migrate.DefaultRules()...)
	batcher, err := migrate.NewBatcher(store, migrate.DefaultBatchConfig(), zap.NewNop(),
		migrate.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)

	_, err = migrate.NewMigrator(tree, batcher, transformer, zap.NewNop()).Run(context.Background(), migrate.DefaultRules())
	require.NoError(t, err)
	return tree, transformer
}

func TestValidate_Passes(t *testing.T) {
	store := testutil.NewMemoryStore()
	tree, transformer := migrated(t, store)

	v := NewValidator(tree, store, transformer, migrate.DefaultRules(), Config{SampleSize: 5}, zap.NewNop())
	report, err := v.Validate(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Passed)
	require.Len(t, report.Collections, 3)
	users := report.Collections[0]
	assert.Equal(t, "users", users.Collection)
	assert.Equal(t, 2, users.SourceCount)
	assert.Equal(t, 2, users.TargetCount)
	assert.Equal(t, []string{"u1", "u2"}, users.Sampled)
	assert.Empty(t, users.Diff)
}

func TestValidate_PassesOnSQLStore(t *testing.T) {
	store := testutil.TempSQLStore(t)
	tree, transformer := migrated(t, store)

	v := NewValidator(tree, store, transformer, migrate.DefaultRules(), Config{SampleSize: 5}, zap.NewNop())
	report, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed, "%+v", report.Collections)
	assert.Empty(t, report.SchemaMissing)
}

func TestValidate_CountMismatchAndDiff(t *testing.T) {
	store := testutil.NewMemoryStore()
	tree, transformer := migrated(t, store)

	store.Put("users", "u2", map[string]any{"name": "Robert", "createdAt": int64(1700000000000)})
	require.NoError(t, store.CommitBatch(context.Background(), []docstore.Operation{docstore.Delete("usernames", "bob")}))

	v := NewValidator(tree, store, transformer, migrate.DefaultRules(), Config{SampleSize: 5}, zap.NewNop())
	report, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed)

	users := report.Collections[0]
	assert.True(t, users.Match)
	assert.Contains(t, users.Diff, `-  "name": "Bob"`)
	assert.Contains(t, users.Diff, `+  "name": "Robert"`)

	usernames := report.Collections[1]
	assert.False(t, usernames.Match)
	assert.Equal(t, 2, usernames.SourceCount)
	assert.Equal(t, 1, usernames.TargetCount)
	assert.Equal(t, []string{"bob"}, usernames.Missing)
}

func TestDiff_IgnoresStampedFields(t *testing.T) {
	expected := docstore.Document{Collection: "users", ID: "u1", Fields: map[string]any{
		"name":      "Ann",
		"createdAt": docstore.ServerTimestamp,
	}}
	actual := docstore.Document{Collection: "users", ID: "u1", Fields: map[string]any{
		"name":      "Ann",
		"createdAt": "2024-01-01T00:00:00Z",
	}}

	diff, err := Diff(expected, actual)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestHandleValidate(t *testing.T) {
	store := testutil.NewMemoryStore()
	tree, transformer := migrated(t, store)
	v := NewValidator(tree, store, transformer, migrate.DefaultRules(), Config{SampleSize: 1}, zap.NewNop())

	feature := NewFeature(Config{Enabled: true}, v, zap.NewNop())
	assert.Equal(t, "validate", feature.Name())
	assert.True(t, feature.IsEnabled())

	app := fiber.New()
	require.NoError(t, feature.Load(app))

	resp, err := app.Test(httptest.NewRequest("GET", "/validate", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["passed"])
}
