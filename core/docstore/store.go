package docstore

import (
	"context"
	"strings"

	"store-migrator/core/errs"
)

// OpKind tags a MigrationOperation variant.
type OpKind string

const (
	// OpUpsert replaces the whole document, creating it when absent.
	OpUpsert OpKind = "upsert"
	// OpDelete removes a document. Deleting a missing document is a no-op.
	OpDelete OpKind = "delete"
	// OpFieldDelete removes the named fields from an existing document.
	OpFieldDelete OpKind = "field_delete"
)

// Operation is one write in a batch. Treat it as immutable once enqueued.
type Operation struct {
	Kind       OpKind
	Collection string
	DocID      string
	Fields     map[string]any
	FieldNames []string
}

// Upsert builds an upsert operation.
func Upsert(collection, docID string, fields map[string]any) Operation {
	return Operation{Kind: OpUpsert, Collection: collection, DocID: docID, Fields: fields}
}

// Delete builds a delete operation.
func Delete(collection, docID string) Operation {
	return Operation{Kind: OpDelete, Collection: collection, DocID: docID}
}

// DeleteFields builds a field-delete operation.
func DeleteFields(collection, docID string, fieldNames ...string) Operation {
	return Operation{Kind: OpFieldDelete, Collection: collection, DocID: docID, FieldNames: fieldNames}
}

// Key identifies the document an operation targets.
func (o Operation) Key() string {
	return o.Collection + "/" + o.DocID
}

// Validate checks the operation shape. Failures are validation errors.
func (o Operation) Validate() error {
	op := "validate " + o.Key()
	if o.Collection == "" || strings.HasPrefix(o.Collection, "/") || strings.HasSuffix(o.Collection, "/") {
		return errs.Validationf(op, "%w: invalid collection %q", errs.ErrInvalidOperation, o.Collection)
	}
	if o.DocID == "" || strings.Contains(o.DocID, "/") {
		return errs.Validationf(op, "%w: invalid document id %q", errs.ErrInvalidOperation, o.DocID)
	}
	switch o.Kind {
	case OpUpsert:
		if o.Fields == nil {
			return errs.Validationf(op, "%w: upsert without fields", errs.ErrInvalidOperation)
		}
	case OpDelete:
	case OpFieldDelete:
		if len(o.FieldNames) == 0 {
			return errs.Validationf(op, "%w: field delete without field names", errs.ErrInvalidOperation)
		}
	default:
		return errs.Validationf(op, "%w: unknown kind %q", errs.ErrInvalidOperation, o.Kind)
	}
	return nil
}

// Document is a stored document.
type Document struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
}

// Path returns "collection/id".
func (d Document) Path() string {
	return d.Collection + "/" + d.ID
}

// Store is the target document store consumed by the engine.
type Store interface {
	// CommitBatch applies ops as one atomic write group, in order.
	CommitBatch(ctx context.Context, ops []Operation) error
	// ListDocuments returns every document of a collection ordered by id.
	ListDocuments(ctx context.Context, collection string) ([]Document, error)
	// GetDocument returns the document and whether it exists.
	GetDocument(ctx context.Context, collection, id string) (Document, bool, error)
}

// CollectionLister is implemented by stores that can enumerate collection
// paths, including sub-collection paths such as "chats/c1/messages".
type CollectionLister interface {
	ListCollections(ctx context.Context) ([]string, error)
}

// SubCollection joins a parent document path and a sub-collection name.
func SubCollection(collection, docID, sub string) string {
	return collection + "/" + docID + "/" + sub
}
