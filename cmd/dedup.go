package cmd

import (
	"context"
	"io"
	"strings"

	"store-migrator/core/config"
	"store-migrator/feature/dedup"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dedupDryRun bool
	dedupFormat string
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Merge documents sharing a natural key",
	Long: `Groups documents of the configured collection by their natural key, keeps the
most recently active one, fills its empty fields from the others, rewrites
references to the removed ids and finally deletes the duplicates.

Examples:
  # Show what would be merged
  store-migrator dedup --dry-run

  # Merge for real
  store-migrator dedup`,
	RunE: runDedup,
}

func init() {
	dedupCmd.Flags().BoolVar(&dedupDryRun, "dry-run", false, "Report groups and survivors without writing")
	addFormatFlag(dedupCmd, &dedupFormat)
	RootCmd.AddCommand(dedupCmd)
}

func runDedup(cmd *cobra.Command, args []string) error {
	ctx, e, err := setup(cmd.Context(), "dedup", config.Needs{Target: true})
	if err != nil {
		return err
	}
	defer e.close()

	cfg := e.cfg.Dedup
	if dedupDryRun {
		cfg.DryRun = true
	}
	return e.deduplicate(ctx, cmd.OutOrStdout(), cfg)
}

// deduplicate merges the duplicate groups and renders the stats, partial
// when the pass stopped early.
func (e *env) deduplicate(ctx context.Context, out io.Writer, cfg dedup.Config) error {
	d, err := e.newDeduplicator(cfg)
	if err != nil {
		return err
	}

	stats, err := d.Deduplicate(ctx)
	if err == nil {
		e.logger.Info("Deduplication finished",
			zap.Int("groups", stats.Groups),
			zap.Int("merged", stats.Merged),
			zap.Int("skipped", stats.Skipped),
			zap.Bool("dry_run", stats.DryRun),
		)
	}
	return renderResult(out, dedupFormat, stats, func(w io.Writer) { printDedup(w, stats) }, err)
}

func printDedup(w io.Writer, s dedup.Stats) {
	title := "Deduplication"
	if s.DryRun {
		title += " (dry run)"
	}
	printf(w, "%s\n", title)
	printf(w, "  documents: %d  groups: %d  merged: %d  skipped: %d\n", s.Documents, s.Groups, s.Merged, s.Skipped)
	printf(w, "  deleted: %d  references rewritten: %d\n", s.Deleted, s.ReferencesRewritten)
	for _, r := range s.Results {
		if r.Error != "" {
			printf(w, "    ! %s: %s\n", r.Key, r.Error)
			continue
		}
		printf(w, "    %s -> %s (removed %s)\n", r.Key, r.Survivor, strings.Join(r.Deleted, ", "))
	}
	for _, warning := range s.Warnings {
		printf(w, "  warning: %s\n", warning)
	}
}
