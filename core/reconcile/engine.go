package reconcile

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"store-migrator/core/metrics"
	"store-migrator/core/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Spec configures an Engine.
type Spec struct {
	// Adapter supplies objects and references.
	Adapter Adapter

	// Bucket is the name reported and matched against reference buckets.
	Bucket string

	// Categories classify objects by name prefix. The first match wins.
	Categories []Category

	// Scoped drops objects that match no category from the analysis.
	Scoped bool

	// Heuristic adds warnings for unused objects whose base name occurs
	// inside an unrecognized reference.
	Heuristic bool

	// CacheTTL is the lifetime of a cached report. Zero disables caching.
	CacheTTL time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics publishes findings to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine compares stored objects with the references pointing at them.
type Engine struct {
	spec    Spec
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	cache   *Cache
}

// NewEngine creates an Engine for spec.
func NewEngine(spec Spec, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{spec: spec, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = NewCache(spec.CacheTTL, e.Analyze)
	return e
}

// Spec returns the engine configuration.
func (e *Engine) Spec() Spec { return e.spec }

// Analyze builds both sets concurrently and compares them. It never
// mutates either store.
func (e *Engine) Analyze(ctx context.Context) (*Report, error) {
	started := time.Now()

	var (
		objects []storage.ObjectInfo
		refs    []Reference
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		objects, err = e.spec.Adapter.LoadObjects(gctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		refs, err = e.spec.Adapter.LoadReferences(gctx)
		if err != nil {
			return fmt.Errorf("failed to collect references: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := e.compare(objects, refs)
	report.GeneratedAt = e.now()
	report.Duration = time.Since(started)
	e.publish(report)

	e.logger.Info("Reconciliation analyzed",
		zap.String("adapter", e.spec.Adapter.Name()),
		zap.Int("objects", report.Objects),
		zap.Int("references", report.References),
		zap.Int("unused", len(report.Unused)),
		zap.Int("dangling", len(report.Dangling)),
		zap.Int("unrecognized", len(report.Unrecognized)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// Cached returns the cached report, analyzing when it is missing or stale.
func (e *Engine) Cached(ctx context.Context) (*Report, error) {
	return e.cache.Get(ctx)
}

// Invalidate drops the cached report.
func (e *Engine) Invalidate() {
	e.cache.Invalidate()
}

// Category returns the category of an object name.
func (e *Engine) Category(name string) string {
	for _, c := range e.spec.Categories {
		if strings.HasPrefix(name, c.Prefix) {
			return c.Name
		}
	}
	return OtherCategory
}

func (e *Engine) compare(objects []storage.ObjectInfo, refs []Reference) *Report {
	report := &Report{Bucket: e.spec.Bucket}

	present := make(map[string]storage.ObjectInfo, len(objects))
	categories := map[string]*CategoryReport{}
	for _, obj := range objects {
		cat := e.Category(obj.Name)
		if e.spec.Scoped && cat == OtherCategory {
			continue
		}
		present[obj.Name] = obj
		cr := categoryReport(categories, cat)
		cr.Objects++
		cr.Bytes += obj.Size
		report.Objects++
		report.ObjectBytes += obj.Size
	}

	referenced := map[string]bool{}
	collections := map[string]*CollectionReport{}
	for _, ref := range refs {
		cr := collectionReport(collections, ref.Source)
		cr.References++
		report.References++

		if !ref.Recognized() || !e.sameBucket(ref.Bucket) {
			cr.Unrecognized++
			report.Unrecognized = append(report.Unrecognized, ref)
			continue
		}
		referenced[ref.Object] = true
		if _, ok := present[ref.Object]; ok {
			continue
		}
		if e.spec.Scoped && e.Category(ref.Object) == OtherCategory {
			continue
		}
		cr.Dangling++
		report.Dangling = append(report.Dangling, ref)
	}

	for name, obj := range present {
		if referenced[name] {
			continue
		}
		report.Unused = append(report.Unused, obj)
		report.UnusedBytes += obj.Size
		cr := categoryReport(categories, e.Category(name))
		cr.Unused++
		cr.UnusedBytes += obj.Size
	}

	sort.Slice(report.Unused, func(i, j int) bool { return report.Unused[i].Name < report.Unused[j].Name })
	sortReferences(report.Dangling)
	sortReferences(report.Unrecognized)

	for _, cr := range categories {
		report.ByCategory = append(report.ByCategory, *cr)
	}
	sort.Slice(report.ByCategory, func(i, j int) bool { return report.ByCategory[i].Category < report.ByCategory[j].Category })
	for _, cr := range collections {
		report.ByCollection = append(report.ByCollection, *cr)
	}
	sort.Slice(report.ByCollection, func(i, j int) bool { return report.ByCollection[i].Source < report.ByCollection[j].Source })

	if e.spec.Heuristic {
		report.Warnings = containmentWarnings(report.Unused, report.Unrecognized)
	}
	return report
}

// sameBucket treats a reference without a bucket, or an engine without
// one, as local.
func (e *Engine) sameBucket(bucket string) bool {
	return bucket == "" || e.spec.Bucket == "" || bucket == e.spec.Bucket
}

func (e *Engine) publish(report *Report) {
	if e.metrics == nil {
		return
	}
	for _, c := range report.ByCategory {
		e.metrics.Finding("objects", c.Category, c.Objects)
		e.metrics.Finding("unused", c.Category, c.Unused)
	}
	for _, c := range report.ByCollection {
		e.metrics.Finding("dangling", c.Source, c.Dangling)
		e.metrics.Finding("unrecognized", c.Source, c.Unrecognized)
	}
}

// containmentWarnings flags unused objects whose base name appears in an
// unrecognized URL. The match is advisory and never feeds cleanup.
func containmentWarnings(unused []storage.ObjectInfo, unrecognized []Reference) []string {
	var warnings []string
	for _, obj := range unused {
		base := path.Base(obj.Name)
		if base == "" || base == "." || base == "/" {
			continue
		}
		for _, ref := range unrecognized {
			if strings.Contains(ref.URL, base) {
				warnings = append(warnings, fmt.Sprintf("unused object %s may be referenced by %s/%s.%s", obj.Name, ref.Collection, ref.DocID, ref.Field))
				break
			}
		}
	}
	return warnings
}

func categoryReport(m map[string]*CategoryReport, name string) *CategoryReport {
	cr, ok := m[name]
	if !ok {
		cr = &CategoryReport{Category: name}
		m[name] = cr
	}
	return cr
}

func collectionReport(m map[string]*CollectionReport, name string) *CollectionReport {
	cr, ok := m[name]
	if !ok {
		cr = &CollectionReport{Source: name}
		m[name] = cr
	}
	return cr
}

func sortReferences(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.Field < b.Field
	})
}
