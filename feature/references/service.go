package references

import (
	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/reconcile"
	"store-migrator/core/storage"
	"store-migrator/feature/migrate"

	"go.uber.org/zap"
)

// NewEngine wires an Adapter over bucket and store into a reconcile
// engine configured by cfg. batcher may be nil when the engine is only
// used to analyze.
func NewEngine(cfg Config, bucket storage.Bucket, store docstore.Store, batcher *migrate.Batcher, logger *zap.Logger, opts ...reconcile.Option) (*reconcile.Engine, error) {
	cfg = cfg.WithDefaults()

	patterns, err := CompilePatterns(cfg.Patterns)
	if err != nil {
		return nil, errs.FatalConfig("reconcile", err)
	}
	for _, src := range cfg.Sources {
		if src.Collection == "" || len(src.Fields) == 0 {
			return nil, errs.FatalConfigf("reconcile", "reference source needs a collection and fields: %+v", src)
		}
		switch src.OnDangling {
		case "", reconcile.DeleteDocument, reconcile.DeleteFields:
		default:
			return nil, errs.FatalConfigf("reconcile", "unknown dangling policy %q", src.OnDangling)
		}
	}

	var prefixes []string
	if cfg.Scoped {
		for _, c := range cfg.Categories {
			prefixes = append(prefixes, c.Prefix)
		}
	}

	adapter := NewAdapter(bucket, store, batcher, NewParser(patterns), cfg.Sources, prefixes, logger)
	spec := reconcile.Spec{
		Adapter:    adapter,
		Bucket:     bucket.Name(),
		Categories: cfg.Categories,
		Scoped:     cfg.Scoped,
		Heuristic:  cfg.Heuristic,
		CacheTTL:   cfg.CacheTTL,
	}
	return reconcile.NewEngine(spec, logger, opts...), nil
}
