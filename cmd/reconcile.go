package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"store-migrator/core/config"
	"store-migrator/core/reconcile"
	"store-migrator/core/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the reconcile command
	cleanupReconcile bool
	dryRunReconcile  bool
	yesConfirm       bool
	reconcileFormat  string
)

const maxListedFindings = 20

// reconcileCmd compares stored object URLs with the target bucket.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile stored object URLs against the target bucket",
	Long: `Builds the set of objects in the target bucket and the set of object URLs
stored in documents, then reports unused objects and dangling references.

Cleanup deletes unused objects and applies each dangling reference's policy
(delete the document or only the URL fields). Unrecognized URLs and URLs of
other buckets are reported but never acted on.

Examples:
  # Report only
  reconcile

  # Report as YAML
  reconcile --format yaml

  # Cleanup with interactive confirmation
  reconcile --cleanup

  # Cleanup with auto-confirm (non-interactive)
  reconcile --cleanup --yes

  # Show what cleanup would do
  reconcile --cleanup --dry-run`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&cleanupReconcile, "cleanup", false, "Delete unused objects and fix dangling references")
	reconcileCmd.Flags().BoolVar(&dryRunReconcile, "dry-run", false, "Force dry-run (no mutations even with --yes)")
	reconcileCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")
	addFormatFlag(reconcileCmd, &reconcileFormat)

	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, e, err := setup(cmd.Context(), "reconcile", config.Needs{Target: true, TargetStorage: true})
	if err != nil {
		return err
	}
	defer e.close()

	engine, err := e.newReconciler()
	if err != nil {
		return err
	}

	// Step 1: Analyze (always runs)
	e.logger.Info("Analyzing references...")
	report, err := engine.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("failed to analyze: %w", err)
	}

	// Step 2: Print report
	out := cmd.OutOrStdout()
	if err := render(out, reconcileFormat, report, func(w io.Writer) { printReconcileReport(w, report) }); err != nil {
		return err
	}

	// Step 3: Check if actions are requested
	if !cleanupReconcile {
		e.logger.Info("No actions requested. Use --cleanup to delete unused objects and fix dangling references.")
		return nil
	}
	if len(report.Unused) == 0 && len(report.Dangling) == 0 {
		e.logger.Info("No actions required.")
		return nil
	}

	opts := reconcile.CleanupOptions{
		DryRun:        dryRunReconcile,
		DeleteObjects: true,
		FixReferences: true,
	}

	// Step 4: Apply (if confirmed)
	if !dryRunReconcile {
		if !confirmDestructiveAction() {
			e.logger.Warn("Operation cancelled by user. No changes were made.")
			return nil
		}
		opts.Confirmed = true
	}

	stats, err := engine.ApplyCleanup(ctx, report, opts)
	if err != nil {
		return fmt.Errorf("failed to apply cleanup: %w", err)
	}

	e.logger.Info("Cleanup finished",
		zap.Bool("dry_run", stats.DryRun),
		zap.Int("objects_removed", stats.ObjectsRemoved),
		zap.String("bytes_removed", utils.FormatBytes(stats.BytesRemoved)),
		zap.Int("object_failures", len(stats.ObjectFailures)),
		zap.Int("references_fixed", stats.ReferencesFixed),
		zap.Int("references_skipped", stats.ReferencesSkipped),
	)
	return nil
}

// printReconcileReport prints a human-readable report. Long lists are cut
// after maxListedFindings entries.
func printReconcileReport(w io.Writer, r *reconcile.Report) {
	printf(w, "Reconciliation of bucket %s\n", r.Bucket)
	printf(w, "  objects: %d (%s)  references: %d\n", r.Objects, utils.FormatBytes(r.ObjectBytes), r.References)
	printf(w, "  unused: %d (%s)  dangling: %d  unrecognized: %d\n",
		len(r.Unused), utils.FormatBytes(r.UnusedBytes), len(r.Dangling), len(r.Unrecognized))

	if len(r.ByCategory) > 0 {
		printf(w, "\n  By category\n")
		for _, c := range r.ByCategory {
			printf(w, "    %-16s %6d objects %10s  unused %d (%s)\n",
				c.Category, c.Objects, utils.FormatBytes(c.Bytes), c.Unused, utils.FormatBytes(c.UnusedBytes))
		}
	}
	if len(r.ByCollection) > 0 {
		printf(w, "\n  By collection\n")
		for _, c := range r.ByCollection {
			printf(w, "    %-24s %6d references  dangling %d  unrecognized %d\n",
				c.Source, c.References, c.Dangling, c.Unrecognized)
		}
	}

	if len(r.Unused) > 0 {
		printf(w, "\n  Unused objects\n")
		for i, o := range r.Unused {
			if i == maxListedFindings {
				printf(w, "    ... %d more\n", len(r.Unused)-i)
				break
			}
			printf(w, "    %s (%s)\n", o.Name, utils.FormatBytes(o.Size))
		}
	}
	if len(r.Dangling) > 0 {
		printf(w, "\n  Dangling references\n")
		for i, ref := range r.Dangling {
			if i == maxListedFindings {
				printf(w, "    ... %d more\n", len(r.Dangling)-i)
				break
			}
			printf(w, "    %s/%s.%s -> %s [%s]\n", ref.Collection, ref.DocID, ref.Field, ref.Object, ref.OnDangling)
		}
	}
	for _, warning := range r.Warnings {
		printf(w, "  warning: %s\n", warning)
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Fprintln(os.Stderr, "\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Fprint(os.Stderr, "\n⚠️  Type 'yes' to confirm destructive actions: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
