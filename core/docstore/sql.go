package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"store-migrator/core/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentsTable is the table the SQL store writes to.
const DocumentsTable = "documents"

// DocumentColumns lists the columns the SQL store requires.
var DocumentColumns = []string{"collection", "doc_id", "fields", "updated_at"}

type documentRow struct {
	Collection string    `gorm:"primaryKey;size:255"`
	DocID      string    `gorm:"primaryKey;column:doc_id;size:255"`
	Fields     string    `gorm:"type:text;not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (documentRow) TableName() string { return DocumentsTable }

// SQLStore implements Store on a relational database through GORM. Fields
// are kept as a JSON object per row.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLStore wraps db and creates the documents table when missing.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// DB returns the underlying connection.
func (s *SQLStore) DB() *gorm.DB { return s.db }

// CommitBatch applies ops in one transaction.
func (s *SQLStore) CommitBatch(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	now := s.now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := applyOperation(tx, op, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errs.IsValidation(err) {
		return errs.Transient("commit batch", err)
	}
	return err
}

func applyOperation(tx *gorm.DB, op Operation, now time.Time) error {
	switch op.Kind {
	case OpUpsert:
		payload, err := json.Marshal(ResolveServerTimestamps(op.Fields, now))
		if err != nil {
			return errs.Validation("encode "+op.Key(), err)
		}
		row := documentRow{Collection: op.Collection, DocID: op.DocID, Fields: string(payload), UpdatedAt: now}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
		}).Create(&row).Error

	case OpDelete:
		return tx.Where("collection = ? AND doc_id = ?", op.Collection, op.DocID).
			Delete(&documentRow{}).Error

	case OpFieldDelete:
		var row documentRow
		err := tx.Where("collection = ? AND doc_id = ?", op.Collection, op.DocID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		fields, err := decodeFields(row.Fields)
		if err != nil {
			return err
		}
		for _, name := range op.FieldNames {
			delete(fields, name)
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		return tx.Model(&documentRow{}).
			Where("collection = ? AND doc_id = ?", op.Collection, op.DocID).
			Updates(map[string]any{"fields": string(payload), "updated_at": now}).Error
	}
	return nil
}

// ListDocuments returns every document of a collection ordered by id.
func (s *SQLStore) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("doc_id").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Transient("list "+collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// GetDocument returns one document.
func (s *SQLStore) GetDocument(ctx context.Context, collection, id string) (Document, bool, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, errs.Transient("get "+collection+"/"+id, err)
	}
	doc, err := row.toDocument()
	return doc, err == nil, err
}

// ListCollections returns every collection path that holds documents.
func (s *SQLStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&documentRow{}).
		Distinct("collection").
		Order("collection").
		Pluck("collection", &names).Error
	if err != nil {
		return nil, errs.Transient("list collections", err)
	}
	return names, nil
}

func (r documentRow) toDocument() (Document, error) {
	fields, err := decodeFields(r.Fields)
	if err != nil {
		return Document{}, fmt.Errorf("failed to decode %s/%s: %w", r.Collection, r.DocID, err)
	}
	return Document{Collection: r.Collection, ID: r.DocID, Fields: fields}, nil
}

func decodeFields(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if raw == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
