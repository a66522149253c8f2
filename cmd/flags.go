package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// OutputFlags are shared by commands that print structured results.
type OutputFlags struct {
	Format string
	Quiet  bool
}

// AddOutputFlags registers --format/-f, restricted to formats, and --quiet/-q.
func AddOutputFlags(cmd *cobra.Command, formats ...string) *OutputFlags {
	flags := &OutputFlags{}
	cmd.Flags().StringVarP(&flags.Format, "format", "f", formats[0],
		fmt.Sprintf("Output format (%s)", strings.Join(formats, "|")))
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress output except errors")

	AddFlagValidation(cmd, "format", func(format string) error {
		return ValidateFormat(format, formats)
	})
	return flags
}

// ValidateFormat rejects formats not in supported.
func ValidateFormat(format string, supported []string) error {
	if slices.Contains(supported, format) {
		return nil
	}
	return fmt.Errorf("unsupported format %q (supported: %s)", format, strings.Join(supported, ", "))
}

// AddFlagValidation runs validator whenever the flag is set.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if err := v.validator(val); err != nil {
		return err
	}
	return v.Value.Set(val)
}
