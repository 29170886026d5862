package reconcile

import (
	"context"
	"fmt"

	"store-migrator/core/errs"

	"go.uber.org/zap"
)

// ApplyCleanup removes the unused objects and fixes the dangling
// references of report. Nothing is changed unless opts.Confirmed is set
// and opts.DryRun is not; in that case the returned stats describe what
// would have been done.
func (e *Engine) ApplyCleanup(ctx context.Context, report *Report, opts CleanupOptions) (CleanupStats, error) {
	stats := CleanupStats{DryRun: opts.DryRun || !opts.Confirmed}
	if report == nil {
		return stats, errs.Validationf("apply cleanup", "no report to apply")
	}

	if stats.DryRun {
		if opts.DeleteObjects {
			stats.ObjectsRemoved = len(report.Unused)
			stats.BytesRemoved = report.UnusedBytes
		}
		if opts.FixReferences {
			for _, ref := range report.Dangling {
				if ref.OnDangling == "" {
					stats.ReferencesSkipped++
					continue
				}
				stats.ReferencesFixed++
			}
		}
		return stats, nil
	}

	mutator, ok := e.spec.Adapter.(Mutator)
	if !ok {
		return stats, errs.FatalConfigf("apply cleanup", "adapter %s does not implement Mutator", e.spec.Adapter.Name())
	}

	if opts.FixReferences && len(report.Dangling) > 0 {
		var fixable []Reference
		for _, ref := range report.Dangling {
			if ref.OnDangling == "" {
				stats.ReferencesSkipped++
				continue
			}
			fixable = append(fixable, ref)
		}
		fixed, err := mutator.FixReferences(ctx, fixable)
		stats.ReferencesFixed = fixed
		if err != nil {
			return stats, fmt.Errorf("failed to fix references: %w", err)
		}
	}

	if opts.DeleteObjects && len(report.Unused) > 0 {
		names := make([]string, 0, len(report.Unused))
		sizes := make(map[string]int64, len(report.Unused))
		for _, obj := range report.Unused {
			names = append(names, obj.Name)
			sizes[obj.Name] = obj.Size
		}

		failures, err := mutator.DeleteObjects(ctx, names)
		failed := make(map[string]bool, len(failures))
		for _, f := range failures {
			failed[f.Name] = true
			stats.ObjectFailures = append(stats.ObjectFailures, fmt.Sprintf("%s: %v", f.Name, f.Err))
			e.logger.Warn("Failed to remove object", zap.String("object", f.Name), zap.Error(f.Err))
		}
		if err != nil {
			return stats, fmt.Errorf("failed to remove objects: %w", err)
		}
		for _, name := range names {
			if failed[name] {
				continue
			}
			stats.ObjectsRemoved++
			stats.BytesRemoved += sizes[name]
		}
	}

	// The cached report no longer matches the stores.
	e.Invalidate()

	e.logger.Info("Cleanup applied",
		zap.Int("objects_removed", stats.ObjectsRemoved),
		zap.Int64("bytes_removed", stats.BytesRemoved),
		zap.Int("object_failures", len(stats.ObjectFailures)),
		zap.Int("references_fixed", stats.ReferencesFixed),
		zap.Int("references_skipped", stats.ReferencesSkipped),
	)
	return stats, nil
}
