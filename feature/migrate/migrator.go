package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/treestore"

	"go.uber.org/zap"
)

// CollectionResult summarizes the migration of one collection.
type CollectionResult struct {
	Collection string   `json:"collection" yaml:"collection"`
	Source     string   `json:"source" yaml:"source"`
	Documents  int      `json:"documents" yaml:"documents"`
	Failed     int      `json:"failed" yaml:"failed"`
	Errors     []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Result summarizes a migration run.
type Result struct {
	Collections []CollectionResult `json:"collections" yaml:"collections"`
	Batches     Stats              `json:"batches" yaml:"batches"`
	Duration    time.Duration      `json:"duration" yaml:"duration"`
}

// Migrator copies tree collections into the document store.
type Migrator struct {
	source      treestore.Store
	batcher     *Batcher
	transformer *Transformer
	logger      *zap.Logger
}

// NewMigrator wires a migrator.
func NewMigrator(source treestore.Store, batcher *Batcher, transformer *Transformer, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{source: source, batcher: batcher, transformer: transformer, logger: logger}
}

// Run migrates every rule in order. It stops at the first error that is
// not limited to a single document.
func (m *Migrator) Run(ctx context.Context, rules []Rule) (Result, error) {
	started := time.Now()
	var result Result

	for _, rule := range rules {
		cr, err := m.MigrateCollection(ctx, rule)
		result.Collections = append(result.Collections, cr)
		if err != nil {
			result.Batches = m.batcher.Stats()
			result.Duration = time.Since(started)
			return result, err
		}
	}

	result.Batches = m.batcher.Stats()
	result.Duration = time.Since(started)
	return result, nil
}

// MigrateCollection transforms the source subtree of rule and upserts every
// document. Documents failing validation are counted and skipped.
func (m *Migrator) MigrateCollection(ctx context.Context, rule Rule) (CollectionResult, error) {
	path := rule.SourcePath()
	res := CollectionResult{Collection: rule.Collection, Source: strings.Join(path, "/")}
	l := m.logger.With(zap.String("collection", rule.Collection), zap.String("source", res.Source))

	if rule.Collection == "" {
		return res, errs.FatalConfigf("migrate", "%w: rule without collection", errs.ErrMissingConfig)
	}

	root, err := treestore.Read(ctx, m.source, path...)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", res.Source, err)
	}
	if root.Value == nil {
		l.Info("No source data found")
		return res, nil
	}

	l.Info("Migrating collection")
	for doc := range m.transformer.Transform(root, rule.Collection) {
		op := docstore.Upsert(doc.Collection, doc.ID, doc.Fields)
		err := m.batcher.Enqueue(ctx, op)
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			failed := m.countRejected(&res, l, rejected, op.Key())
			if rejected.Cause != nil {
				return res, err
			}
			if !failed {
				res.Documents++
			}
			continue
		}
		if errs.IsValidation(err) {
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
			l.Warn("Skipping document", zap.String("doc", doc.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return res, err
		}
		res.Documents++
	}

	if _, err := m.batcher.Flush(ctx); err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			m.countRejected(&res, l, rejected, "")
		}
		if rejected == nil || rejected.Cause != nil {
			return res, err
		}
	}

	l.Info("Collection migrated",
		zap.Int("documents", res.Documents),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// countRejected moves documents the store refused from Documents to Failed.
// Documents enqueued earlier were already counted as migrated; current is
// the key of the document being enqueued, which was not. It reports whether
// current was among the refused.
func (m *Migrator) countRejected(res *CollectionResult, l *zap.Logger, rejected *RejectedError, current string) bool {
	found := false
	for _, r := range rejected.Rejected {
		if r.Key == current {
			found = true
		} else {
			res.Documents--
		}
		res.Failed++
		res.Errors = append(res.Errors, r.Err.Error())
		l.Warn("Document rejected by store", zap.String("doc", r.Key), zap.Error(r.Err))
	}
	return found
}
