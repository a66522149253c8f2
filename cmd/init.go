package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/docfeat/internal/config"
	"github.com/conneroisu/docfeat/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a starter configuration and provider manifest",
	Long: `Write .docfeat.yml and a starter provider manifest, docfeat.yml, into dir
(default: the current directory). Existing files are left alone unless
--force is given.

Examples:
  docfeat init
  docfeat init ./editor-support
  docfeat init --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

const starterConfig = `# docfeat configuration. Every key can be overridden with a
# DOCFEAT_<SECTION>_<KEY> environment variable.
server:
  host: %s
  port: %d
  read_timeout: %s
  write_timeout: %s
  shutdown_timeout: %s

manifest:
  path: %s
  watch: true
  debounce: %s

transport:
  request_timeout: %s
  # Browser origins allowed to connect extension hosts, e.g. "localhost:*".
  origin_patterns: []

log:
  level: info
  format: text
`

const starterManifest = `# Static providers. Extension hosts can add more at runtime over /ws.
providers:
  - id: go-hover
    feature: hover
    selector: [{language: go}]
    hover: "**Go** source file"

  - id: todo-diagnostics
    feature: diagnostics
    selector:
      - {language: markdown}
      - {pattern: "**/*.txt"}
    diagnostics:
      - match: TODO
        severity: warning
        message: unresolved TODO

  - id: readme-definition
    feature: definition
    selector: [markdown]
    definition: {uri: "file:///README.md", line: 0}
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	// Catch a broken template here rather than at first serve.
	if _, err := manifest.Parse([]byte(starterManifest)); err != nil {
		return fmt.Errorf("starter manifest: %w", err)
	}

	d := config.Default()
	files := []struct {
		name    string
		content string
	}{
		{".docfeat.yml", fmt.Sprintf(starterConfig,
			d.Server.Host, d.Server.Port, d.Server.ReadTimeout, d.Server.WriteTimeout, d.Server.ShutdownTimeout,
			config.DefaultManifestPath, d.Manifest.Debounce, d.Transport.RequestTimeout)},
		{config.DefaultManifestPath, starterManifest},
	}

	out := cmd.OutOrStdout()
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		written, err := writeFileUnlessExists(path, []byte(f.content), initForce)
		if err != nil {
			return err
		}
		if written {
			fmt.Fprintf(out, "Created %s\n", path)
		} else {
			fmt.Fprintf(out, "Skipped %s (exists, use --force to overwrite)\n", path)
		}
	}

	fmt.Fprintln(out, "\nNext: docfeat validate && docfeat serve")
	return nil
}

func writeFileUnlessExists(path string, data []byte, force bool) (bool, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, f.Close()
}
