package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"store-migrator/core/database"
	"store-migrator/core/errs"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLStore_CommitAndRead(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	err := store.CommitBatch(ctx, []Operation{
		Upsert("users", "u2", map[string]any{"name": "Bob"}),
		Upsert("users", "u1", map[string]any{"name": "Ann", "photoUrl": "x", "createdAt": ServerTimestamp}),
		Upsert("chats/c1/messages", "m1", map[string]any{"senderId": "u1"}),
	})
	require.NoError(t, err)

	docs, err := store.ListDocuments(ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "u1", docs[0].ID)
	assert.Equal(t, "u2", docs[1].ID)
	assert.Equal(t, fixed.Format(time.RFC3339), docs[0].Fields["createdAt"])

	// Upsert replaces, field delete removes, delete of a missing doc is fine.
	err = store.CommitBatch(ctx, []Operation{
		Upsert("users", "u2", map[string]any{"name": "Robert"}),
		DeleteFields("users", "u1", "photoUrl"),
		DeleteFields("users", "ghost", "photoUrl"),
		Delete("users", "nobody"),
	})
	require.NoError(t, err)

	doc, ok, err := store.GetDocument(ctx, "users", "u2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "Robert"}, doc.Fields)

	doc, ok, err = store.GetDocument(ctx, "users", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, doc.Fields, "photoUrl")
	assert.Equal(t, "Ann", doc.Fields["name"])

	_, ok, err = store.GetDocument(ctx, "users", "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	collections, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chats/c1/messages", "users"}, collections)

	missing, err := database.MissingColumns(store.DB(), DocumentsTable, DocumentColumns)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSQLStore_InvalidOperationWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	err := store.CommitBatch(ctx, []Operation{
		Upsert("users", "u1", map[string]any{"name": "Ann"}),
		{Kind: OpFieldDelete, Collection: "users", DocID: "u1"},
	})
	assert.True(t, errs.IsValidation(err))

	docs, err := store.ListDocuments(ctx, "users")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSQLStore_RollbackIsTransient(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	store := &SQLStore{db: gormDB, now: time.Now}

	mock.ExpectBegin()
	mock.ExpectExec(".*").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = store.CommitBatch(context.Background(), []Operation{
		Upsert("users", "u1", map[string]any{"name": "Ann"}),
	})
	assert.True(t, errs.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
