package cmd

import (
	"fmt"
	"os"

	"store-migrator/core/errs"
	"store-migrator/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "store-migrator",
	Short: "Store Migration & Reconciliation Engine",
	Long: `store-migrator moves a realtime JSON tree into a document store,
copies media between object stores, merges duplicate entities and reconciles
stored object URLs against the target bucket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Configuration problems exit with status 2,
// everything else with 1.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console encoding at debug level gives ISO8601 timestamps for CLI output.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err), zap.String("kind", string(errs.KindOf(err))))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		if errs.IsFatalConfig(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
