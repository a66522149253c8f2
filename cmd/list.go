package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docfeat/internal/document"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/manifest"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List registered providers",
	Long: `List the providers declared in the manifest, or, with --server, the
providers currently registered in a running server, including those
contributed by extension hosts.

Examples:
  docfeat list                                # Providers in the manifest
  docfeat list -m providers.yml -f yaml       # Another manifest, as YAML
  docfeat list --server http://localhost:7777 # A running server
  docfeat list --feature hover -f json`,
	RunE: runList,
}

var (
	listFlags    *OutputFlags
	listManifest string
	listServer   string
	listFeature  string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddOutputFlags(listCmd, "table", "json", "yaml")
	listCmd.Flags().StringVarP(&listManifest, "manifest", "m", "", "Manifest to read (default from config)")
	listCmd.Flags().StringVar(&listServer, "server", "", "Base URL of a running server to query instead")
	listCmd.Flags().StringVar(&listFeature, "feature", "", "Only list providers of this feature")
}

type providerRow struct {
	ID       string                    `json:"id" yaml:"id"`
	Feature  features.Feature          `json:"feature" yaml:"feature"`
	Selector document.DocumentSelector `json:"selector" yaml:"selector"`
	Source   string                    `json:"source,omitempty" yaml:"source,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	if listFeature != "" && !features.Feature(listFeature).Valid() {
		return fmt.Errorf("unknown feature %q", listFeature)
	}

	var (
		rows []providerRow
		err  error
	)
	if listServer != "" {
		rows, err = serverProviders(cmd.Context(), listServer)
	} else {
		rows, err = manifestProviders(listManifest)
	}
	if err != nil {
		return err
	}

	if listFeature != "" {
		filtered := rows[:0]
		for _, r := range rows {
			if string(r.Feature) == listFeature {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	if listFlags.Quiet {
		return nil
	}
	return writeProviders(cmd.OutOrStdout(), listFlags.Format, rows)
}

func manifestProviders(path string) ([]providerRow, error) {
	if path == "" {
		cfg, _, err := loadConfig(io.Discard)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		path = cfg.Manifest.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no manifest configured; pass --manifest or --server")
	}

	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}

	rows := make([]providerRow, 0, len(m.Providers))
	for _, p := range m.Providers {
		rows = append(rows, providerRow{ID: p.ID, Feature: p.Feature, Selector: p.Selector, Source: path})
	}
	return rows, nil
}

func serverProviders(ctx context.Context, base string) ([]providerRow, error) {
	endpoint, err := url.JoinPath(base, "/api/providers")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("querying %s: %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}

	var all map[features.Feature][]features.RegistrationOptions
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("decoding providers: %w", err)
	}

	var rows []providerRow
	for _, feature := range features.Features() {
		for _, opts := range all[feature] {
			rows = append(rows, providerRow{ID: opts.ID, Feature: feature, Selector: opts.DocumentSelector, Source: opts.Source})
		}
	}
	return rows, nil
}

func writeProviders(w io.Writer, format string, rows []providerRow) error {
	if rows == nil {
		rows = []providerRow{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(rows)
	default:
		return writeProvidersTable(w, rows)
	}
}

func writeProvidersTable(w io.Writer, rows []providerRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No providers registered.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFEATURE\tSELECTOR\tSOURCE")
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, r.Feature, r.Selector, r.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nTotal: %d providers\n", len(rows))
	return err
}
