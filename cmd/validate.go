package cmd

import (
	"errors"
	"io"
	"strings"

	"store-migrator/core/config"
	"store-migrator/feature/validate"

	"github.com/spf13/cobra"
)

// errValidationFailed makes the process exit non-zero on a failed report.
var errValidationFailed = errors.New("validation failed")

var validateFormat string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compare the source tree with the migrated documents",
	Long: `Checks document counts per collection, diffs a sample of documents against
their freshly transformed source and, for SQL targets, checks the table schema.
Exits with a non-zero status when any check fails.`,
	RunE: runValidate,
}

func init() {
	addFormatFlag(validateCmd, &validateFormat)
	RootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, e, err := setup(cmd.Context(), "validate", config.Needs{Source: true, Target: true})
	if err != nil {
		return err
	}
	defer e.close()

	report, err := e.newValidator(e.newTransformer()).Validate(ctx)
	if err != nil {
		return err
	}
	if err := render(cmd.OutOrStdout(), validateFormat, report, func(w io.Writer) { printValidation(w, report) }); err != nil {
		return err
	}
	if !report.Passed {
		return errValidationFailed
	}
	return nil
}

func printValidation(w io.Writer, r *validate.Report) {
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	printf(w, "Validation %s\n", status)
	if len(r.SchemaMissing) > 0 {
		printf(w, "  missing columns: %s\n", strings.Join(r.SchemaMissing, ", "))
	}
	for _, c := range r.Collections {
		mark := "ok"
		if !c.Match {
			mark = "MISMATCH"
		}
		printf(w, "  %-20s source %6d  target %6d  %s\n", c.Collection, c.SourceCount, c.TargetCount, mark)
		if c.Error != "" {
			printf(w, "    ! %s\n", c.Error)
		}
		if len(c.Missing) > 0 {
			printf(w, "    missing: %s\n", strings.Join(c.Missing, ", "))
		}
		if c.Diff != "" {
			printf(w, "%s\n", c.Diff)
		}
	}
}
