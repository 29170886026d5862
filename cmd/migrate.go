package cmd

import (
	"context"
	"io"
	"slices"

	"store-migrator/core/config"
	"store-migrator/core/errs"
	"store-migrator/feature/migrate"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	migrateCollections []string
	migrateFormat      string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy tree collections into the document store",
	Long: `Reads every configured collection from the source tree, transforms each
child into a document and writes them through the rate-limited batcher.

Examples:
  # Migrate every configured collection
  store-migrator migrate

  # Only users and posts, as JSON
  store-migrator migrate --collection users --collection posts --format json`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringSliceVar(&migrateCollections, "collection", nil, "Limit the run to these collections (repeatable)")
	addFormatFlag(migrateCmd, &migrateFormat)
	RootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, e, err := setup(cmd.Context(), "migrate", config.Needs{Source: true, Target: true})
	if err != nil {
		return err
	}
	defer e.close()

	rules, err := selectRules(e.cfg.Migration.Rules, migrateCollections)
	if err != nil {
		return err
	}

	return e.migrate(ctx, cmd.OutOrStdout(), rules)
}

// migrate runs the rules and renders the result, partial when the run
// stopped early.
func (e *env) migrate(ctx context.Context, out io.Writer, rules []migrate.Rule) error {
	res, err := e.newMigrator(e.newTransformer()).Run(ctx, rules)
	if err == nil {
		e.logger.Info("Migration finished",
			zap.Int("collections", len(res.Collections)),
			zap.Int("operations", res.Batches.Operations()),
			zap.Duration("took", res.Duration),
		)
	}
	return renderResult(out, migrateFormat, res, func(w io.Writer) { printMigration(w, res) }, err)
}

// selectRules keeps the rules named in only, in configured order.
func selectRules(rules []migrate.Rule, only []string) ([]migrate.Rule, error) {
	if len(only) == 0 {
		return rules, nil
	}
	var out []migrate.Rule
	for _, r := range rules {
		if slices.Contains(only, r.Collection) {
			out = append(out, r)
		}
	}
	if len(out) != len(only) {
		return nil, errs.FatalConfigf("migrate", "unknown collection in %v", only)
	}
	return out, nil
}

func printMigration(w io.Writer, res migrate.Result) {
	printf(w, "Migration\n")
	for _, c := range res.Collections {
		printf(w, "  %-20s %6d documents  %d failed\n", c.Collection, c.Documents, c.Failed)
		for _, msg := range c.Errors {
			printf(w, "    ! %s\n", msg)
		}
	}
	printf(w, "  batches: %d  upserts: %d  retries: %d  took: %s\n",
		res.Batches.Batches, res.Batches.Upserts, res.Batches.Retries, res.Duration)
}
