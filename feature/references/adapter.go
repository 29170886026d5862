package references

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"store-migrator/core/docstore"
	"store-migrator/core/reconcile"
	"store-migrator/core/storage"
	"store-migrator/feature/migrate"

	"go.uber.org/zap"
)

// Adapter reconciles a bucket against document fields holding URLs.
// It implements reconcile.Adapter and reconcile.Mutator.
type Adapter struct {
	bucket   storage.Bucket
	store    docstore.Store
	batcher  *migrate.Batcher
	parser   *Parser
	sources  []Source
	prefixes []string
	logger   *zap.Logger
}

// NewAdapter creates an adapter. When prefixes is empty the whole bucket is
// listed. batcher may be nil for read-only use.
func NewAdapter(bucket storage.Bucket, store docstore.Store, batcher *migrate.Batcher, parser *Parser, sources []Source, prefixes []string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		bucket:   bucket,
		store:    store,
		batcher:  batcher,
		parser:   parser,
		sources:  sources,
		prefixes: prefixes,
		logger:   logger,
	}
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "references"
}

// LoadObjects lists the bucket once per prefix.
func (a *Adapter) LoadObjects(ctx context.Context) ([]storage.ObjectInfo, error) {
	prefixes := a.prefixes
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}

	var objects []storage.ObjectInfo
	for _, prefix := range prefixes {
		listed, err := a.bucket.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		objects = append(objects, listed...)
	}
	return objects, nil
}

// LoadReferences scans every source for URL values.
func (a *Adapter) LoadReferences(ctx context.Context) ([]reconcile.Reference, error) {
	var refs []reconcile.Reference
	for _, src := range a.sources {
		collections := []string{src.Collection}
		if src.SubCollection != "" {
			parents, err := a.store.ListDocuments(ctx, src.Collection)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", src.Collection, err)
			}
			collections = collections[:0]
			for _, p := range parents {
				collections = append(collections, docstore.SubCollection(src.Collection, p.ID, src.SubCollection))
			}
		}

		for _, coll := range collections {
			docs, err := a.store.ListDocuments(ctx, coll)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", coll, err)
			}
			for _, doc := range docs {
				refs = append(refs, a.extract(src, doc)...)
			}
		}
	}
	return refs, nil
}

func (a *Adapter) extract(src Source, doc docstore.Document) []reconcile.Reference {
	var refs []reconcile.Reference
	for _, field := range src.Fields {
		raw, ok := doc.Fields[field].(string)
		if !ok || !LooksLikeURL(raw) {
			continue
		}
		ref := reconcile.Reference{
			URL:        raw,
			Source:     src.Label(),
			Collection: doc.Collection,
			DocID:      doc.ID,
			Field:      field,
			OnDangling: src.OnDangling,
		}
		if bucket, object, ok := a.parser.Parse(raw); ok {
			ref.Bucket = bucket
			ref.Object = object
		}
		refs = append(refs, ref)
	}
	return refs
}

// DeleteObjects removes objects from the bucket.
func (a *Adapter) DeleteObjects(ctx context.Context, names []string) ([]storage.RemoveFailure, error) {
	return storage.RemoveAll(ctx, a.bucket, names)
}

// FixReferences deletes the owning document or the referencing fields,
// per reference policy. A document with any delete_document reference is
// deleted once; otherwise its dangling fields are removed together.
func (a *Adapter) FixReferences(ctx context.Context, refs []reconcile.Reference) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	if a.batcher == nil {
		return 0, fmt.Errorf("reference fixes need a batcher")
	}

	type target struct {
		collection, id string
		deleteDoc      bool
		fields         []string
		refs           int
	}
	targets := map[string]*target{}
	for _, ref := range refs {
		key := ref.Collection + "/" + ref.DocID
		t, ok := targets[key]
		if !ok {
			t = &target{collection: ref.Collection, id: ref.DocID}
			targets[key] = t
		}
		t.refs++
		switch ref.OnDangling {
		case reconcile.DeleteDocument:
			t.deleteDoc = true
		case reconcile.DeleteFields:
			t.fields = append(t.fields, ref.Field)
		}
	}

	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fixed := 0
	for _, k := range keys {
		t := targets[k]
		var op docstore.Operation
		switch {
		case t.deleteDoc:
			op = docstore.Delete(t.collection, t.id)
		case len(t.fields) > 0:
			op = docstore.DeleteFields(t.collection, t.id, t.fields...)
		default:
			continue
		}
		if err := a.batcher.Enqueue(ctx, op); err != nil {
			return fixed, err
		}
		fixed += t.refs
		a.logger.Debug("Dangling reference queued",
			zap.String("document", k),
			zap.String("kind", string(op.Kind)),
			zap.String("fields", strings.Join(t.fields, ",")),
		)
	}
	if _, err := a.batcher.Flush(ctx); err != nil {
		return fixed, err
	}
	return fixed, nil
}
