package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/features"
)

const oneHover = `
providers:
  - {id: a, feature: hover, selector: [go], hover: "first"}
`

const twoHovers = `
providers:
  - {id: a, feature: hover, selector: [go], hover: "first"}
  - {id: b, feature: hover, selector: [go], hover: "second"}
`

func writeManifest(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestManifestReloader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yml")
	writeManifest(t, path, oneHover)

	regs := features.NewRegistries()
	r, err := NewManifestReloader(path, regs, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Reload())
	assert.Equal(t, 1, regs.Hover.Len())
	first := r.Session()

	writeManifest(t, path, twoHovers)
	require.NoError(t, r.Reload())
	assert.Equal(t, 2, regs.Hover.Len())
	assert.True(t, first.Closed())
	assert.Equal(t, 2, r.Reloads())

	writeManifest(t, path, "providers: [")
	err = r.Reload()
	require.Error(t, err)
	assert.True(t, docerrors.HasCode(err, docerrors.ErrCodeManifestInvalid))
	assert.Equal(t, 2, regs.Hover.Len())

	require.NoError(t, r.Close())
	assert.Equal(t, 0, regs.Hover.Len())
}

func TestManifestReloader_ReloadMissingFile(t *testing.T) {
	r, err := NewManifestReloader(filepath.Join(t.TempDir(), "missing.yml"), features.NewRegistries(), time.Millisecond, nil)
	require.NoError(t, err)
	defer r.Close()

	err = r.Reload()
	assert.True(t, docerrors.HasCode(err, docerrors.ErrCodeFileNotFound))
}

func TestManifestReloader_RunMissingDirectory(t *testing.T) {
	r, err := NewManifestReloader(filepath.Join(t.TempDir(), "nope", "providers.yml"), features.NewRegistries(), time.Millisecond, nil)
	require.NoError(t, err)

	assert.Error(t, r.Run(context.Background()))
}

func TestManifestReloader_RunLoadsManifestWrittenLater(t *testing.T) {
	tests := []struct {
		name    string
		initial string // empty: no file at start
	}{
		{"missing at start", ""},
		{"invalid at start", "providers: [{id: x, feature: nope}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "providers.yml")
			if tt.initial != "" {
				writeManifest(t, path, tt.initial)
			}

			regs := features.NewRegistries()
			r, err := NewManifestReloader(path, regs, 20*time.Millisecond, nil)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- r.Run(ctx) }()

			// give Run time to attempt the initial load
			time.Sleep(100 * time.Millisecond)
			assert.Nil(t, r.Session())

			writeManifest(t, path, oneHover)
			require.Eventually(t, func() bool { return regs.Hover.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

			cancel()
			require.NoError(t, <-done)
			assert.Equal(t, 0, regs.Hover.Len())
		})
	}
}

func TestManifestReloader_RunWatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yml")
	writeManifest(t, path, oneHover)

	regs := features.NewRegistries()
	r, err := NewManifestReloader(path, regs, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return regs.Hover.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	writeManifest(t, path, twoHovers)
	require.Eventually(t, func() bool { return regs.Hover.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, regs.Hover.Len())
}
