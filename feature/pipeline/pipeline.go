package pipeline

import (
	"context"
	"fmt"
	"time"

	"store-migrator/core/reconcile"
	"store-migrator/feature/assets"
	"store-migrator/feature/dedup"
	"store-migrator/feature/migrate"
	"store-migrator/feature/validate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage names, in execution order.
const (
	StageMigrate   = "migrate"
	StageValidate  = "validate"
	StageAssets    = "assets"
	StageDedup     = "dedup"
	StageReconcile = "reconcile"
)

// Stages holds the components of a run. A nil component skips its stage.
type Stages struct {
	Migrator *migrate.Migrator
	Rules    []migrate.Rule

	// Validator runs right after the migration, before deduplication
	// changes the document counts.
	Validator *validate.Validator

	Copier      *assets.Copier
	CopyOptions assets.CopyOptions

	Deduplicator *dedup.Deduplicator

	Reconciler *reconcile.Engine
}

// Summary collects what every stage reported. Stages that did not run
// are nil.
type Summary struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	Completed  []string          `json:"completed" yaml:"completed"`
	Failed     string            `json:"failed,omitempty" yaml:"failed,omitempty"`
	Migration  *migrate.Result   `json:"migration,omitempty" yaml:"migration,omitempty"`
	Validation *validate.Report  `json:"validation,omitempty" yaml:"validation,omitempty"`
	Assets     *assets.CopyStats `json:"assets,omitempty" yaml:"assets,omitempty"`
	Dedup      *dedup.Stats      `json:"dedup,omitempty" yaml:"dedup,omitempty"`
	Reconcile  *reconcile.Report `json:"reconcile,omitempty" yaml:"reconcile,omitempty"`
	Duration   time.Duration     `json:"duration" yaml:"duration"`
}

// Pipeline runs the stages one after another.
type Pipeline struct {
	stages Stages
	logger *zap.Logger
	newID  func() string
}

// New creates a pipeline.
func New(stages Stages, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{stages: stages, logger: logger, newID: uuid.NewString}
}

// Run executes every configured stage in order and stops at the first
// stage error. The summary holds everything reported up to that point.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	summary := &Summary{RunID: p.newID()}
	l := p.logger.With(zap.String("run_id", summary.RunID))
	l.Info("Pipeline started")

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{StageMigrate, p.when(p.stages.Migrator != nil, func(ctx context.Context) error {
			res, err := p.stages.Migrator.Run(ctx, p.stages.Rules)
			summary.Migration = &res
			return err
		})},
		{StageValidate, p.when(p.stages.Validator != nil, func(ctx context.Context) error {
			report, err := p.stages.Validator.Validate(ctx)
			summary.Validation = report
			return err
		})},
		{StageAssets, p.when(p.stages.Copier != nil, func(ctx context.Context) error {
			stats, err := p.stages.Copier.CopyAll(ctx, p.stages.CopyOptions)
			summary.Assets = &stats
			return err
		})},
		{StageDedup, p.when(p.stages.Deduplicator != nil, func(ctx context.Context) error {
			stats, err := p.stages.Deduplicator.Deduplicate(ctx)
			summary.Dedup = &stats
			return err
		})},
		{StageReconcile, p.when(p.stages.Reconciler != nil, func(ctx context.Context) error {
			report, err := p.stages.Reconciler.Analyze(ctx)
			summary.Reconcile = report
			return err
		})},
	}

	for _, step := range steps {
		if step.run == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			summary.Failed = step.name
			summary.Duration = time.Since(started)
			return summary, err
		}

		stageStarted := time.Now()
		l.Info("Stage started", zap.String("stage", step.name))
		if err := step.run(ctx); err != nil {
			summary.Failed = step.name
			summary.Duration = time.Since(started)
			l.Error("Stage failed", zap.String("stage", step.name), zap.Error(err))
			return summary, fmt.Errorf("stage %s: %w", step.name, err)
		}
		summary.Completed = append(summary.Completed, step.name)
		l.Info("Stage finished", zap.String("stage", step.name), zap.Duration("duration", time.Since(stageStarted)))
	}

	summary.Duration = time.Since(started)
	l.Info("Pipeline finished", zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (p *Pipeline) when(enabled bool, run func(context.Context) error) func(context.Context) error {
	if !enabled {
		return nil
	}
	return run
}
