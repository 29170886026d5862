package cmd

import (
	"context"
	"io"

	"store-migrator/core/config"
	"store-migrator/core/utils"
	"store-migrator/feature/assets"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	assetsPrefix string
	assetsDryRun bool
	assetsFormat string
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Copy media objects from the source bucket to the target bucket",
	Long: `Lists the source bucket and copies every object the target does not hold yet,
in paced windows of bounded concurrency. Objects already present are skipped.`,
	RunE: runAssets,
}

func init() {
	assetsCmd.Flags().StringVar(&assetsPrefix, "prefix", "", "Only copy objects under this prefix (overrides assets.prefix)")
	assetsCmd.Flags().BoolVar(&assetsDryRun, "dry-run", false, "List and check objects without copying")
	addFormatFlag(assetsCmd, &assetsFormat)
	RootCmd.AddCommand(assetsCmd)
}

func runAssets(cmd *cobra.Command, args []string) error {
	ctx, e, err := setup(cmd.Context(), "assets", config.Needs{SourceStorage: true, TargetStorage: true})
	if err != nil {
		return err
	}
	defer e.close()

	opts := e.cfg.Assets.Options()
	if cmd.Flags().Changed("prefix") {
		opts.Prefix = assetsPrefix
	}
	if assetsDryRun {
		opts.DryRun = true
	}

	return e.copyAssets(ctx, cmd.OutOrStdout(), opts)
}

// copyAssets copies the objects and renders the stats, partial when the copy
// stopped early.
func (e *env) copyAssets(ctx context.Context, out io.Writer, opts assets.CopyOptions) error {
	stats, err := e.newCopier().CopyAll(ctx, opts)
	if err == nil {
		e.logger.Info("Asset copy finished",
			zap.Int("copied", stats.Copied),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)
	}
	return renderResult(out, assetsFormat, stats, func(w io.Writer) { printAssets(w, stats) }, err)
}

func printAssets(w io.Writer, s assets.CopyStats) {
	printf(w, "Assets\n")
	printf(w, "  listed: %d  copied: %d (%s)  skipped: %d  failed: %d\n",
		s.Listed, s.Copied, utils.FormatBytes(s.BytesCopied), s.Skipped, s.Failed)
	for _, oe := range s.Errors {
		printf(w, "    ! %s: %s\n", oe.Name, oe.Error)
	}
	printf(w, "  windows: %d  took: %s\n", s.Windows, s.Duration)
}
