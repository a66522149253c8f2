package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/logging"
	"github.com/conneroisu/docfeat/internal/manifest"
	"github.com/conneroisu/docfeat/internal/session"
)

// ManifestReloader keeps the providers of a manifest file registered,
// replacing them whenever the file changes.
type ManifestReloader struct {
	path    string
	regs    *features.Registries
	logger  logging.Logger
	watcher *FileWatcher

	mu      sync.Mutex
	current *session.Session
	reloads int
}

// NewManifestReloader creates a reloader for the manifest at path.
func NewManifestReloader(path string, regs *features.Registries, debounce time.Duration, logger logging.Logger) (*ManifestReloader, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	fw, err := NewFileWatcher(debounce, logger)
	if err != nil {
		return nil, err
	}

	r := &ManifestReloader{
		path:    filepath.Clean(path),
		regs:    regs,
		logger:  logger.WithComponent("manifest-reloader").With("path", path),
		watcher: fw,
	}

	// Editors often replace files by renaming, so watch the directory.
	fw.AddFilter(BaseNameFilter(filepath.Base(r.path)))
	fw.AddHandler(func([]ChangeEvent) error { return r.Reload() })
	return r, nil
}

// Reload loads the manifest into a fresh session and swaps it in. The new
// providers are registered before the old ones are disposed. On error the
// previously loaded providers stay registered.
func (r *ManifestReloader) Reload() error {
	op := logging.StartOperation(r.logger, "manifest_reload")
	ctx := context.Background()

	m, err := manifest.Load(r.path)
	if err != nil {
		op.EndWithError(ctx, err)
		return fmt.Errorf("reloading manifest: %w", err)
	}

	next := session.New(r.regs, "manifest", r.logger)
	if err := m.Apply(next); err != nil {
		next.Close()
		op.EndWithError(ctx, err)
		return fmt.Errorf("reloading manifest: %w", err)
	}

	r.mu.Lock()
	previous := r.current
	r.current = next
	r.reloads++
	r.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	r.logger.Info(ctx, "Manifest loaded", "providers", next.Len())
	op.End(ctx)
	return nil
}

// Run loads the manifest, then watches it until ctx is done. A manifest
// that is missing or invalid at first is logged and picked up once it is
// written. Run fails only when the manifest's directory cannot be watched.
// The loaded providers are disposed when Run returns.
func (r *ManifestReloader) Run(ctx context.Context) error {
	// Watch first so no change between the initial load and Start is lost.
	if err := r.watcher.AddPath(filepath.Dir(r.path)); err != nil {
		_ = r.watcher.Stop()
		return err
	}
	defer r.Close()

	if err := r.Reload(); err != nil {
		r.logger.Warn(ctx, err, "Manifest not loaded, waiting for it to change")
	}

	r.watcher.Start(ctx)

	<-ctx.Done()
	return nil
}

// Session returns the session holding the current manifest's providers.
func (r *ManifestReloader) Session() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Reloads returns how many times a manifest was successfully loaded.
func (r *ManifestReloader) Reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}

// Close stops watching and disposes the loaded providers.
func (r *ManifestReloader) Close() error {
	err := r.watcher.Stop()

	r.mu.Lock()
	current := r.current
	r.current = nil
	r.mu.Unlock()

	if current != nil {
		current.Close()
	}
	return err
}
