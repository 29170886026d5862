package mocks

import (
	"context"

	"store-migrator/core/docstore"

	"github.com/stretchr/testify/mock"
)

// Store is a mock implementation of docstore.Store
type Store struct {
	mock.Mock
}

func (m *Store) CommitBatch(ctx context.Context, ops []docstore.Operation) error {
	args := m.Called(ctx, ops)
	return args.Error(0)
}

func (m *Store) ListDocuments(ctx context.Context, collection string) ([]docstore.Document, error) {
	args := m.Called(ctx, collection)
	if docs, ok := args.Get(0).([]docstore.Document); ok {
		return docs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) GetDocument(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	args := m.Called(ctx, collection, id)
	return args.Get(0).(docstore.Document), args.Bool(1), args.Error(2)
}
