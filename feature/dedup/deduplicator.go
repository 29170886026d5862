package dedup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/metrics"
	"store-migrator/feature/migrate"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithMetrics reports group results to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Deduplicator) { d.metrics = m }
}

// Deduplicator merges documents sharing a natural key into one survivor.
type Deduplicator struct {
	store   docstore.Store
	batcher *migrate.Batcher
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	retryInterval time.Duration

	// dependents caches dependent collections for the run, kept in sync
	// with the rewrites issued.
	dependents map[string][]docstore.Document
}

// New validates cfg and creates a Deduplicator.
func New(store docstore.Store, batcher *migrate.Batcher, cfg Config, logger *zap.Logger, opts ...Option) (*Deduplicator, error) {
	if cfg.Collection == "" {
		return nil, errs.FatalConfigf("dedup", "%w: dedup.collection", errs.ErrMissingConfig)
	}
	if cfg.NaturalKey == "" {
		return nil, errs.FatalConfigf("dedup", "%w: dedup.natural_key", errs.ErrMissingConfig)
	}
	if len(cfg.ActivityFields) == 0 {
		cfg.ActivityFields = DefaultActivityFields
	}
	for _, ref := range cfg.References {
		if ref.Collection == "" || ref.Field == "" {
			return nil, errs.FatalConfigf("dedup", "reference rule needs collection and field: %+v", ref)
		}
		if ref.Kind != KindArray && ref.Kind != KindScalar {
			return nil, errs.FatalConfigf("dedup", "unknown reference kind %q", ref.Kind)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Deduplicator{store: store, batcher: batcher, cfg: cfg, logger: logger, retryInterval: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Deduplicate processes every duplicate group of the configured
// collection. A failing group is skipped; exhausted retries abort.
func (d *Deduplicator) Deduplicate(ctx context.Context) (Stats, error) {
	started := time.Now()
	stats := Stats{DryRun: d.cfg.DryRun}
	d.dependents = map[string][]docstore.Document{}

	docs, err := d.list(ctx, d.cfg.Collection)
	if err != nil {
		return stats, fmt.Errorf("failed to list %s: %w", d.cfg.Collection, err)
	}
	stats.Documents = len(docs)
	d.dependents[d.cfg.Collection] = docs

	groups := BuildGroups(docs, d.cfg.NaturalKey)
	stats.Groups = len(groups)
	d.logger.Info("Duplicate groups found",
		zap.String("collection", d.cfg.Collection),
		zap.String("natural_key", d.cfg.NaturalKey),
		zap.Int("documents", len(docs)),
		zap.Int("groups", len(groups)),
	)

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(started)
			return stats, err
		}

		stats.Warnings = append(stats.Warnings, d.identityWarnings(group)...)

		res, err := d.processGroup(ctx, group)
		stats.Processed++
		if err != nil {
			if isFatal(err) {
				stats.Results = append(stats.Results, res)
				stats.Duration = time.Since(started)
				return stats, err
			}
			res.Error = err.Error()
			stats.Skipped++
			stats.Results = append(stats.Results, res)
			d.metrics.DedupGroup("skipped")
			d.logger.Warn("Skipping duplicate group", zap.String("key", group.Key), zap.Error(err))
			continue
		}

		stats.Merged++
		stats.Deleted += len(res.Deleted)
		stats.ReferencesRewritten += res.Rewritten
		stats.Results = append(stats.Results, res)
		d.metrics.DedupGroup("merged")
		d.logger.Info("Duplicate group merged",
			zap.String("key", group.Key),
			zap.String("survivor", res.Survivor),
			zap.Strings("deleted", res.Deleted),
			zap.Int("rewritten", res.Rewritten),
		)
	}

	stats.Duration = time.Since(started)
	return stats, nil
}

func (d *Deduplicator) processGroup(ctx context.Context, group Group) (GroupResult, error) {
	survivor, losers := SelectSurvivor(group.Candidates, d.cfg.ActivityFields, d.cfg.CreatedField)
	res := GroupResult{Key: group.Key, Survivor: survivor.ID}

	loserIDs := make(map[string]bool, len(losers))
	loserFields := make([]map[string]any, 0, len(losers))
	for _, l := range losers {
		loserIDs[l.ID] = true
		loserFields = append(loserFields, l.Fields)
		res.Deleted = append(res.Deleted, l.ID)
	}

	merged, filled := MergeFields(survivor.Fields, loserFields...)
	res.MergedFields = filled

	// Pending writes keyed by document path; the survivor goes first.
	writes := map[string]docstore.Document{}
	order := []string{}
	survivorDoc := docstore.Document{Collection: d.cfg.Collection, ID: survivor.ID, Fields: merged}
	writes[survivorDoc.Path()] = survivorDoc
	order = append(order, survivorDoc.Path())

	for _, rule := range d.cfg.References {
		collections, err := d.resolveCollections(ctx, rule.Collection)
		if err != nil {
			return res, err
		}
		for _, coll := range collections {
			docs, err := d.dependentDocs(ctx, coll)
			if err != nil {
				return res, err
			}
			for _, doc := range docs {
				if coll == d.cfg.Collection && loserIDs[doc.ID] {
					continue
				}
				current, pending := writes[doc.Path()]
				if !pending {
					current = doc
				}
				value, changed := RewriteReference(current.Fields[rule.Field], rule.Kind, loserIDs, survivor.ID)
				if !changed {
					continue
				}
				fields := docstore.CloneFields(current.Fields)
				fields[rule.Field] = value
				current.Fields = fields
				if !pending {
					order = append(order, doc.Path())
				}
				writes[doc.Path()] = current
				res.Rewritten++
			}
		}
	}

	upserts := make([]docstore.Operation, 0, len(order))
	for _, p := range order {
		doc := writes[p]
		upserts = append(upserts, docstore.Upsert(doc.Collection, doc.ID, doc.Fields))
	}
	deletes := make([]docstore.Operation, 0, len(losers))
	for _, l := range losers {
		deletes = append(deletes, docstore.Delete(d.cfg.Collection, l.ID))
	}

	for _, op := range append(append([]docstore.Operation{}, upserts...), deletes...) {
		if err := d.batcher.Check(op); err != nil {
			return res, err
		}
	}
	if d.cfg.DryRun {
		return res, nil
	}

	// Survivor and rewrites are committed before any delete is issued.
	if err := d.enqueueAll(ctx, upserts); err != nil {
		return res, err
	}
	if err := d.enqueueAll(ctx, deletes); err != nil {
		return res, err
	}

	d.applyToCache(writes, loserIDs)
	return res, nil
}

func (d *Deduplicator) enqueueAll(ctx context.Context, ops []docstore.Operation) error {
	for _, op := range ops {
		if err := d.batcher.Enqueue(ctx, op); err != nil {
			return err
		}
	}
	_, err := d.batcher.Flush(ctx)
	return err
}

func (d *Deduplicator) applyToCache(writes map[string]docstore.Document, deleted map[string]bool) {
	for coll, docs := range d.dependents {
		kept := docs[:0]
		for _, doc := range docs {
			if coll == d.cfg.Collection && deleted[doc.ID] {
				continue
			}
			if w, ok := writes[doc.Path()]; ok {
				doc.Fields = w.Fields
			}
			kept = append(kept, doc)
		}
		d.dependents[coll] = kept
	}
}

func (d *Deduplicator) dependentDocs(ctx context.Context, collection string) ([]docstore.Document, error) {
	if docs, ok := d.dependents[collection]; ok {
		return docs, nil
	}
	docs, err := d.list(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	d.dependents[collection] = docs
	return docs, nil
}

// resolveCollections expands a collection pattern into collection paths.
func (d *Deduplicator) resolveCollections(ctx context.Context, pattern string) ([]string, error) {
	if !strings.Contains(pattern, "*") {
		return []string{pattern}, nil
	}

	if lister, ok := d.store.(docstore.CollectionLister); ok {
		var names []string
		err := d.retry(ctx, func() error {
			var err error
			names, err = lister.ListCollections(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list collections: %w", err)
		}
		var out []string
		for _, name := range names {
			if ok, _ := path.Match(pattern, name); ok {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out, nil
	}

	// Without a lister only "parent/*/sub" can be expanded, through the
	// parent documents.
	segments := strings.Split(pattern, "/")
	if len(segments) != 3 || segments[1] != "*" || strings.Contains(segments[0]+segments[2], "*") {
		return nil, errs.FatalConfigf("dedup", "collection pattern %q needs a store that lists collections", pattern)
	}
	parents, err := d.dependentDocs(ctx, segments[0])
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parents))
	for _, p := range parents {
		out = append(out, docstore.SubCollection(segments[0], p.ID, segments[2]))
	}
	return out, nil
}

// list reads a whole collection, retrying transient failures.
func (d *Deduplicator) list(ctx context.Context, collection string) ([]docstore.Document, error) {
	var docs []docstore.Document
	err := d.retry(ctx, func() error {
		var err error
		docs, err = d.store.ListDocuments(ctx, collection)
		return err
	})
	return docs, err
}

func (d *Deduplicator) retry(ctx context.Context, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.retryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max(d.cfg.ListRetries, 0))), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errs.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		d.metrics.Retry("dedup")
		d.logger.Debug("Retrying listing", zap.Duration("wait", wait), zap.Error(err))
	})
}

func (d *Deduplicator) identityWarnings(group Group) []string {
	if d.cfg.IdentityField == "" {
		return nil
	}
	var warnings []string
	for _, c := range group.Candidates {
		id, ok := c.Fields[d.cfg.IdentityField].(string)
		if !ok || id == "" || id == c.ID {
			continue
		}
		err := errs.Consistency("dedup "+group.Key,
			fmt.Errorf("document %s has %s %q", c.ID, d.cfg.IdentityField, id))
		warnings = append(warnings, err.Error())
		d.logger.Warn("Identity mismatch", zap.String("key", group.Key), zap.Error(err))
	}
	return warnings
}

// isFatal reports whether err must abort the whole pass.
func isFatal(err error) bool {
	return errs.IsTransient(err) || errs.IsFatalConfig(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
