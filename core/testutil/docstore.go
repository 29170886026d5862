// Package testutil provides in-memory stores and helpers for tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"store-migrator/core/database"
	"store-migrator/core/docstore"
)

// MemoryStore is an in-memory docstore.Store that records every committed
// batch.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]map[string]map[string]any
	batches [][]docstore.Operation

	// CommitHook runs before a batch is applied. A non-nil error fails the
	// commit without writing anything.
	CommitHook func(ops []docstore.Operation) error
	// Now resolves server timestamps.
	Now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: map[string]map[string]map[string]any{},
		Now:  func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

// Put stores a document directly, bypassing batches.
func (s *MemoryStore) Put(collection, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[collection] == nil {
		s.docs[collection] = map[string]map[string]any{}
	}
	s.docs[collection][id] = docstore.CloneFields(fields)
}

// Fields returns a copy of a stored document's fields, or nil.
func (s *MemoryStore) Fields(collection, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return docstore.CloneFields(s.docs[collection][id])
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

// Batches returns the committed batches in order.
func (s *MemoryStore) Batches() [][]docstore.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]docstore.Operation, len(s.batches))
	copy(out, s.batches)
	return out
}

// CommitBatch applies ops atomically.
func (s *MemoryStore) CommitBatch(_ context.Context, ops []docstore.Operation) error {
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	if s.CommitHook != nil {
		if err := s.CommitHook(ops); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	for _, op := range ops {
		coll := s.docs[op.Collection]
		switch op.Kind {
		case docstore.OpUpsert:
			if coll == nil {
				coll = map[string]map[string]any{}
				s.docs[op.Collection] = coll
			}
			coll[op.DocID] = docstore.ResolveServerTimestamps(docstore.CloneFields(op.Fields), now)
		case docstore.OpDelete:
			delete(coll, op.DocID)
		case docstore.OpFieldDelete:
			if doc, ok := coll[op.DocID]; ok {
				for _, name := range op.FieldNames {
					delete(doc, name)
				}
			}
		}
	}
	s.batches = append(s.batches, append([]docstore.Operation(nil), ops...))
	return nil
}

// ListDocuments returns the documents of a collection ordered by id.
func (s *MemoryStore) ListDocuments(_ context.Context, collection string) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.docs[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, docstore.Document{
			Collection: collection,
			ID:         id,
			Fields:     docstore.CloneFields(coll[id]),
		})
	}
	return docs, nil
}

// GetDocument returns one document.
func (s *MemoryStore) GetDocument(_ context.Context, collection, id string) (docstore.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.docs[collection][id]
	if !ok {
		return docstore.Document{}, false, nil
	}
	return docstore.Document{Collection: collection, ID: id, Fields: docstore.CloneFields(fields)}, true, nil
}

// ListCollections returns the non-empty collection paths, sorted.
func (s *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name, coll := range s.docs {
		if len(coll) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Snapshot returns every document keyed by path.
func (s *MemoryStore) Snapshot() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]map[string]any{}
	for coll, docs := range s.docs {
		for id, fields := range docs {
			out[strings.Join([]string{coll, id}, "/")] = docstore.CloneFields(fields)
		}
	}
	return out
}

// TempSQLStore opens a SQL store on an in-memory SQLite database.
func TempSQLStore(t *testing.T) *docstore.SQLStore {
	t.Helper()

	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	store, err := docstore.NewSQLStore(db)
	if err != nil {
		t.Fatalf("Failed to create sql store: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store
}
