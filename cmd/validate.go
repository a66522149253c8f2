package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/docfeat/internal/config"
	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Check the configuration and the provider manifest",
	Long: `Check the configuration and the provider manifest and report every
problem found. Warnings point out settings that work but are probably
unintended.

Examples:
  docfeat validate                  # Config plus the configured manifest
  docfeat validate providers.yml    # Another manifest
  docfeat validate -f json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var validateFlags *OutputFlags

func init() {
	rootCmd.AddCommand(validateCmd)
	validateFlags = AddOutputFlags(validateCmd, "text", "json")
}

// ValidationReport is the result of docfeat validate.
type ValidationReport struct {
	Config   *config.ValidationResult `json:"config"`
	Manifest *ManifestReport          `json:"manifest,omitempty"`
}

// ManifestReport describes the manifest that was checked.
type ManifestReport struct {
	Path      string   `json:"path"`
	Providers int      `json:"providers"`
	Errors    []string `json:"errors,omitempty"`
}

// Valid reports whether nothing failed.
func (r *ValidationReport) Valid() bool {
	return r.Config.Valid && (r.Manifest == nil || len(r.Manifest.Errors) == 0)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadUnvalidated()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(args) == 1 {
		cfg.Manifest.Path = args[0]
	}

	report := buildValidationReport(cfg)

	if !validateFlags.Quiet {
		if err := writeValidationReport(cmd.OutOrStdout(), validateFlags.Format, report); err != nil {
			return err
		}
	}
	if !report.Valid() {
		return errors.New("validation failed")
	}
	return nil
}

func buildValidationReport(cfg *config.Config) *ValidationReport {
	report := &ValidationReport{Config: config.ValidateConfigWithDetails(cfg)}

	if cfg.Manifest.Path == "" {
		return report
	}
	mr := &ManifestReport{Path: cfg.Manifest.Path}
	report.Manifest = mr

	if _, err := os.Stat(cfg.Manifest.Path); errors.Is(err, os.ErrNotExist) {
		// already a config warning
		return report
	}

	m, err := manifest.Load(cfg.Manifest.Path)
	if err != nil {
		mr.Errors = manifestErrors(err)
		return report
	}
	mr.Providers = len(m.Providers)
	return report
}

// manifestErrors flattens a manifest error into one line per problem.
func manifestErrors(err error) []string {
	var vec *docerrors.ValidationErrorCollection
	if errors.As(err, &vec) && vec.HasErrors() {
		lines := make([]string, 0, len(vec.Errors))
		for _, f := range vec.Errors {
			lines = append(lines, f.Error())
		}
		return lines
	}
	return []string{err.Error()}
}

func writeValidationReport(w io.Writer, format string, report *ValidationReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if report.Config.HasErrors() || report.Config.HasWarnings() {
		fmt.Fprint(w, report.Config.String())
	} else {
		fmt.Fprintln(w, "Configuration OK")
	}

	if mr := report.Manifest; mr != nil {
		switch {
		case len(mr.Errors) > 0:
			fmt.Fprintf(w, "Manifest %s is invalid:\n", mr.Path)
			for _, e := range mr.Errors {
				fmt.Fprintf(w, "  • %s\n", e)
			}
		case mr.Providers > 0:
			fmt.Fprintf(w, "Manifest %s OK (%d providers)\n", mr.Path, mr.Providers)
		}
	}
	return nil
}
