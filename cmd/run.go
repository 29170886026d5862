package cmd

import (
	"io"
	"slices"

	"store-migrator/core/config"
	"store-migrator/core/errs"
	"store-migrator/feature/pipeline"

	"github.com/spf13/cobra"
)

var (
	runSkip   []string
	runFormat string
)

var allStages = []string{
	pipeline.StageMigrate,
	pipeline.StageValidate,
	pipeline.StageAssets,
	pipeline.StageDedup,
	pipeline.StageReconcile,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline: migrate, validate, assets, dedup, reconcile",
	Long: `Runs every stage in order under one run id and stops at the first failing
stage. The reconcile stage only reports; use the reconcile command to clean up.

Examples:
  # Everything
  store-migrator run

  # Skip the asset copy
  store-migrator run --skip assets`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil, "Stages to skip (repeatable)")
	addFormatFlag(runCmd, &runFormat)
	RootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	for _, s := range runSkip {
		if !slices.Contains(allStages, s) {
			return errs.Validationf("run", "unknown stage %q", s)
		}
	}
	skip := func(stage string) bool { return slices.Contains(runSkip, stage) }

	// Loaded once up front so disabled features do not open their stores.
	probe, err := config.LoadConfig(".")
	if err != nil {
		return err
	}
	doMigrate := !skip(pipeline.StageMigrate)
	doValidate := !skip(pipeline.StageValidate) && probe.Validation.Enabled
	doAssets := !skip(pipeline.StageAssets) && probe.Assets.Enabled
	doDedup := !skip(pipeline.StageDedup) && probe.Dedup.Collection != ""
	doReconcile := !skip(pipeline.StageReconcile) && probe.Reconcile.Enabled

	needs := config.Needs{
		Source:        doMigrate || doValidate,
		Target:        doMigrate || doValidate || doDedup || doReconcile,
		SourceStorage: doAssets,
		TargetStorage: doAssets || doReconcile,
	}
	ctx, e, err := setup(cmd.Context(), "pipeline", needs)
	if err != nil {
		return err
	}
	defer e.close()

	var stages pipeline.Stages
	transformer := e.newTransformer()
	if doMigrate {
		stages.Migrator = e.newMigrator(transformer)
		stages.Rules = e.cfg.Migration.Rules
	}
	if doValidate {
		stages.Validator = e.newValidator(transformer)
	}
	if doAssets {
		stages.Copier = e.newCopier()
		stages.CopyOptions = e.cfg.Assets.Options()
	}
	if doDedup {
		if stages.Deduplicator, err = e.newDeduplicator(e.cfg.Dedup); err != nil {
			return err
		}
	}
	if doReconcile {
		if stages.Reconciler, err = e.newReconciler(); err != nil {
			return err
		}
	}

	summary, err := pipeline.New(stages, e.logger).Run(ctx)
	return renderResult(cmd.OutOrStdout(), runFormat, summary, func(w io.Writer) { printSummary(w, summary) }, err)
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	printf(w, "Run %s\n\n", s.RunID)
	if s.Migration != nil {
		printMigration(w, *s.Migration)
	}
	if s.Validation != nil {
		printValidation(w, s.Validation)
	}
	if s.Assets != nil {
		printAssets(w, *s.Assets)
	}
	if s.Dedup != nil {
		printDedup(w, *s.Dedup)
	}
	if s.Reconcile != nil {
		printReconcileReport(w, s.Reconcile)
	}
	if s.Failed != "" {
		printf(w, "\nFailed at stage %s after %s\n", s.Failed, s.Duration)
		return
	}
	printf(w, "\nCompleted %v in %s\n", s.Completed, s.Duration)
}
