package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"store-migrator/core/errs"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func addFormatFlag(c *cobra.Command, target *string) {
	c.Flags().StringVar(target, "format", formatText, "Report format: text, json or yaml")
}

// renderResult renders v even when the run behind it stopped early, so the
// partial counts are not lost, and then returns runErr.
func renderResult(w io.Writer, format string, v any, text func(io.Writer), runErr error) error {
	return errors.Join(runErr, render(w, format, v, text))
}

// render writes v in the requested format. text delegates to the command's
// own printer.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "", formatText:
		text(w)
		return nil
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errs.Validationf("render", "unknown format %q", format)
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
