//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/docfeat/internal/document"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/server"
	"github.com/conneroisu/docfeat/internal/testutils"
	"github.com/conneroisu/docfeat/internal/transport"
)

const baseManifest = `
providers:
  - id: go-hover
    feature: hover
    selector: [{language: go}]
    hover: "manifest hover"
  - id: todo
    feature: diagnostics
    selector: [{pattern: "**/*.md"}]
    diagnostics:
      - match: TODO
        severity: warning
        message: unresolved TODO
`

var goDoc = features.HoverParams{TextDocument: document.TextDocument{URI: "file:///src/main.go", LanguageID: "go"}}

func hoverValues(h *features.Hover) []string {
	if h == nil {
		return nil
	}
	out := make([]string, 0, len(h.Contents))
	for _, c := range h.Contents {
		out = append(out, c.Value)
	}
	return out
}

func TestE2E_ManifestAndExtensionHost(t *testing.T) {
	path := testutils.WriteManifest(t, t.TempDir(), baseManifest)
	srv := testutils.StartServer(t, testutils.TestConfig(path))

	require.Eventually(t, func() bool { return srv.Registries().Hover.Len() == 1 }, 3*time.Second, 20*time.Millisecond)

	hover := testutils.PostJSON[*features.Hover](t, srv.BaseURL+"/api/hover", goDoc)
	assert.Equal(t, []string{"manifest hover"}, hoverValues(hover))

	diags := testutils.PostJSON[[]features.Diagnostic](t, srv.BaseURL+"/api/diagnostics", features.DiagnosticsParams{
		TextDocument: document.TextDocument{URI: "file:///README.md", LanguageID: "markdown", Text: "intro\nTODO: write\n"},
	})
	require.Len(t, diags, 1)
	assert.Equal(t, 1, diags[0].Range.Start.Line)
	assert.Equal(t, features.SeverityWarning, diags[0].Severity)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := transport.Dial(ctx, srv.WSURL, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Register(ctx, "ext-hover", features.FeatureHover,
		document.TextDocumentRegistrationOptions{DocumentSelector: document.DocumentSelector{{Scheme: "file"}}},
		features.HoverProviderFunc(func(_ context.Context, p features.HoverParams) (*features.Hover, error) {
			return &features.Hover{Contents: []features.MarkupContent{{Kind: "plaintext", Value: "extension sees " + p.TextDocument.URI}}}, nil
		})))
	require.NoError(t, client.Register(ctx, "ext-def", features.FeatureDefinition,
		document.TextDocumentRegistrationOptions{DocumentSelector: document.DocumentSelector{{Language: "go"}}},
		features.DefinitionProviderFunc(func(context.Context, features.DefinitionParams) ([]document.Location, error) {
			return []document.Location{{URI: "file:///src/lib.go"}}, nil
		})))

	hover = testutils.PostJSON[*features.Hover](t, srv.BaseURL+"/api/hover", goDoc)
	assert.ElementsMatch(t, []string{"manifest hover", "extension sees file:///src/main.go"}, hoverValues(hover))

	locs := testutils.PostJSON[[]document.Location](t, srv.BaseURL+"/api/definition", goDoc)
	require.Len(t, locs, 1)
	assert.Equal(t, "file:///src/lib.go", locs[0].URI)

	listed := testutils.GetJSON[map[features.Feature][]features.RegistrationOptions](t, srv.BaseURL+"/api/providers")
	assert.Len(t, listed[features.FeatureHover], 2)
	assert.Len(t, listed[features.FeatureDefinition], 1)
	assert.Len(t, listed[features.FeatureDiagnostics], 1)

	// disconnecting drops everything the extension host registered
	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		return srv.Registries().Hover.Len() == 1 && srv.Registries().Definition.Len() == 0
	}, 3*time.Second, 20*time.Millisecond)

	hover = testutils.PostJSON[*features.Hover](t, srv.BaseURL+"/api/hover", goDoc)
	assert.Equal(t, []string{"manifest hover"}, hoverValues(hover))
}

func TestE2E_ManifestReload(t *testing.T) {
	path := testutils.WriteManifest(t, t.TempDir(), baseManifest)
	srv := testutils.StartServer(t, testutils.TestConfig(path))

	require.Eventually(t, func() bool { return srv.Registries().Hover.Len() == 1 }, 3*time.Second, 20*time.Millisecond)

	updated := `
providers:
  - id: go-hover
    feature: hover
    selector: [{language: go}]
    hover: "reloaded hover"
  - id: go-def
    feature: definition
    selector: [{language: go}]
    definition: {uri: "file:///src/types.go", line: 3}
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		return srv.Registries().Definition.Len() == 1 && srv.Registries().Diagnostics.Len() == 0
	}, 5*time.Second, 20*time.Millisecond)

	hover := testutils.PostJSON[*features.Hover](t, srv.BaseURL+"/api/hover", goDoc)
	assert.Equal(t, []string{"reloaded hover"}, hoverValues(hover))

	health := testutils.GetJSON[server.HealthStatus](t, srv.BaseURL+"/healthz")
	require.NotNil(t, health.Manifest)
	assert.True(t, health.Manifest.Loaded)
	assert.GreaterOrEqual(t, health.Manifest.Reloads, 2)
	assert.Equal(t, 2, health.Manifest.Providers)

	// a broken manifest keeps the previous providers registered
	require.NoError(t, os.WriteFile(path, []byte("providers: [{id: x, feature: nope}]"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, srv.Registries().Hover.Len())
	assert.Equal(t, 1, srv.Registries().Definition.Len())
}

func TestE2E_ManifestCreatedAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docfeat.yml")
	srv := testutils.StartServer(t, testutils.TestConfig(path))

	health := testutils.GetJSON[server.HealthStatus](t, srv.BaseURL+"/healthz")
	require.NotNil(t, health.Manifest)
	assert.False(t, health.Manifest.Loaded)
	assert.Equal(t, 0, srv.Registries().Hover.Len())

	testutils.WriteManifest(t, dir, baseManifest)
	require.Eventually(t, func() bool { return srv.Registries().Hover.Len() == 1 }, 5*time.Second, 20*time.Millisecond)

	hover := testutils.PostJSON[*features.Hover](t, srv.BaseURL+"/api/hover", goDoc)
	assert.Equal(t, []string{"manifest hover"}, hoverValues(hover))

	health = testutils.GetJSON[server.HealthStatus](t, srv.BaseURL+"/healthz")
	assert.True(t, health.Manifest.Loaded)
}
