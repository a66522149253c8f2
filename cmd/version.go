package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docfeat/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time, Go version and platform of this
docfeat binary.

Examples:
  docfeat version              # Version and commit
  docfeat version --detailed   # Every build fact
  docfeat version -f json      # Machine readable`,
	RunE: runVersion,
}

var (
	versionFlags    *OutputFlags
	versionDetailed bool
)

func init() {
	rootCmd.AddCommand(versionCmd)

	versionFlags = AddOutputFlags(versionCmd, "text", "json", "yaml")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersion(cmd *cobra.Command, args []string) error {
	return writeVersion(cmd.OutOrStdout(), versionFlags.Format, versionDetailed)
}

func writeVersion(w io.Writer, format string, detailed bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(version.GetBuildInfo())
	case "yaml":
		return yaml.NewEncoder(w).Encode(version.GetBuildInfo())
	}

	if detailed {
		_, err := fmt.Fprintln(w, version.GetDetailedVersion())
		return err
	}
	_, err := fmt.Fprintf(w, "docfeat %s\n", version.GetShortVersion())
	return err
}
