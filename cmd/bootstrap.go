package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"store-migrator/core/config"
	"store-migrator/core/database"
	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/logger"
	"store-migrator/core/metrics"
	"store-migrator/core/reconcile"
	"store-migrator/core/storage"
	"store-migrator/core/treestore"
	"store-migrator/feature/assets"
	"store-migrator/feature/dedup"
	"store-migrator/feature/migrate"
	"store-migrator/feature/references"
	"store-migrator/feature/validate"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// env is everything a command needs after startup: configuration, logger,
// metrics and the stores it opened.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	runID   string

	source        treestore.Store
	target        docstore.Store
	sourceBucket  storage.Bucket
	targetBucket  storage.Bucket
	batcher       *migrate.Batcher
	closers       []func(context.Context)
	stopSignalCtx context.CancelFunc
}

// setup loads and validates the configuration, then opens the stores in
// needs. The returned context is cancelled on SIGINT or SIGTERM.
func setup(parent context.Context, component string, needs config.Needs) (context.Context, *env, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(needs); err != nil {
		return nil, nil, err
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, errs.FatalConfig("logger", err)
	}
	zap.ReplaceGlobals(logg)

	e := &env{cfg: cfg, runID: uuid.NewString()}
	e.logger = logger.WithRun(logg, e.runID, component)

	e.metrics, err = metrics.New(prometheus.NewRegistry())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	e.stopSignalCtx = stop

	if err := e.open(ctx, needs); err != nil {
		e.close()
		return nil, nil, err
	}
	return ctx, e, nil
}

func (e *env) open(ctx context.Context, needs config.Needs) error {
	var err error

	if needs.Source {
		if e.source, err = treestore.Open(ctx, e.cfg.Source); err != nil {
			return fmt.Errorf("failed to open source tree: %w", err)
		}
	}

	if needs.Target {
		if e.target, err = e.openTarget(ctx); err != nil {
			return fmt.Errorf("failed to open target store: %w", err)
		}
		e.batcher, err = migrate.NewBatcher(e.target, e.cfg.Batch, e.logger, migrate.WithMetrics(e.metrics))
		if err != nil {
			return err
		}
	}

	if needs.SourceStorage {
		if e.sourceBucket, err = e.openBucket(ctx, e.cfg.SourceStorage); err != nil {
			return fmt.Errorf("failed to open source bucket: %w", err)
		}
	}
	if needs.TargetStorage {
		if e.targetBucket, err = e.openBucket(ctx, e.cfg.TargetStorage); err != nil {
			return fmt.Errorf("failed to open target bucket: %w", err)
		}
	}
	return nil
}

func (e *env) openTarget(ctx context.Context) (docstore.Store, error) {
	switch e.cfg.Target.Driver {
	case docstore.DriverSQL:
		db, err := database.Connect(e.cfg.Database)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func(context.Context) {
			if err := database.Close(db); err != nil {
				e.logger.Warn("Failed to close SQL document store", zap.Error(err))
			}
		})
		e.logger.Info("Connected to SQL document store", zap.String("driver", e.cfg.Database.Driver))
		return docstore.NewSQLStore(db)
	default:
		s, err := docstore.NewMongoStore(ctx, e.cfg.Target)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func(ctx context.Context) { _ = s.Close(ctx) })
		e.logger.Info("Connected to MongoDB document store", zap.String("database", e.cfg.Target.Database))
		return s, nil
	}
}

func (e *env) openBucket(ctx context.Context, cfg storage.Config) (storage.Bucket, error) {
	b, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := b.(io.Closer); ok {
		e.closers = append(e.closers, func(context.Context) { _ = c.Close() })
	}
	return b, nil
}

// close releases every store in reverse opening order.
func (e *env) close() {
	ctx := context.Background()
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i](ctx)
	}
	if e.stopSignalCtx != nil {
		e.stopSignalCtx()
	}
	_ = e.logger.Sync()
}

func (e *env) newTransformer() *migrate.Transformer {
	return migrate.NewTransformer(e.cfg.Migration.CreatedField, e.cfg.Migration.Rules...)
}

func (e *env) newMigrator(t *migrate.Transformer) *migrate.Migrator {
	return migrate.NewMigrator(e.source, e.batcher, t, e.logger.Named("migrate"))
}

func (e *env) newValidator(t *migrate.Transformer) *validate.Validator {
	return validate.NewValidator(e.source, e.target, t, e.cfg.Migration.Rules, e.cfg.Validation, e.logger.Named("validate"))
}

func (e *env) newCopier() *assets.Copier {
	return assets.NewCopier(e.sourceBucket, e.targetBucket, e.logger.Named("assets"), assets.WithMetrics(e.metrics))
}

func (e *env) newDeduplicator(cfg dedup.Config) (*dedup.Deduplicator, error) {
	return dedup.New(e.target, e.batcher, cfg, e.logger.Named("dedup"), dedup.WithMetrics(e.metrics))
}

func (e *env) newReconciler() (*reconcile.Engine, error) {
	return references.NewEngine(e.cfg.Reconcile, e.targetBucket, e.target, e.batcher, e.logger.Named("reconcile"), reconcile.WithMetrics(e.metrics))
}
