// Package server exposes the feature registries over HTTP.
//
// Editors query merged hover, definition and diagnostics results through a
// small JSON API; extension hosts contribute providers over the WebSocket
// endpoint; providers declared in the manifest file are kept registered and
// reloaded when the file changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/docfeat/internal/config"
	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/logging"
	"github.com/conneroisu/docfeat/internal/metrics"
	"github.com/conneroisu/docfeat/internal/transport"
	"github.com/conneroisu/docfeat/internal/watcher"
)

// Server serves the provider registries.
type Server struct {
	config    *config.Config
	logger    logging.Logger
	errors    *docerrors.ErrorHandler
	regs      *features.Registries
	merger    *features.Merger
	transport *transport.Handler
	reloader  *watcher.ManifestReloader
	handler   http.Handler
	started   time.Time

	mu   sync.Mutex
	addr net.Addr
}

// New creates a server for cfg. Nothing is started until Run.
func New(cfg *config.Config, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	regs := features.NewRegistries()
	s := &Server{
		config: cfg,
		logger: logger.WithComponent("server"),
		errors: docerrors.NewErrorHandler(logger.WithComponent("server")),
		regs:   regs,
		transport: transport.NewHandler(regs, logger, transport.Options{
			RequestTimeout: cfg.Transport.RequestTimeout,
			OriginPatterns: cfg.Transport.OriginPatterns,
			ReadLimit:      cfg.Transport.ReadLimit,
		}),
		started: time.Now(),
	}
	s.merger = features.NewMerger(regs, features.WithErrorFunc(s.providerFailed))

	if cfg.Manifest.Path != "" {
		r, err := watcher.NewManifestReloader(cfg.Manifest.Path, regs, cfg.Manifest.Debounce, logger)
		if err != nil {
			return nil, fmt.Errorf("creating manifest reloader: %w", err)
		}
		s.reloader = r
	}

	s.handler = s.routes()
	return s, nil
}

// Registries returns the registries the server answers from.
func (s *Server) Registries() *features.Registries {
	return s.regs
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the address the server listens on, or nil before Run has
// bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until ctx is done, then shuts down within the configured
// shutdown timeout. Extension-host connections are closed and manifest
// providers disposed before Run returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.Addr(), err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	instrumented := metrics.InstrumentRegistries(s.regs)
	defer instrumented.Unsubscribe()

	// No WriteTimeout: it would also cut hijacked WebSocket connections.
	// API handlers get their own timeout in routes.
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.Server.ReadTimeout,
		IdleTimeout:       2 * s.config.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info(gctx, "Server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	if s.reloader != nil {
		g.Go(func() error {
			return s.runManifest(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info(context.Background(), "Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		s.transport.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// runManifest keeps the manifest providers registered until ctx is done. A
// manifest that cannot be loaded is logged, not fatal: remote providers still
// work without it, and a watched manifest is loaded once it is fixed.
func (s *Server) runManifest(ctx context.Context) error {
	if !s.config.Manifest.Watch {
		if err := s.reloader.Reload(); err != nil {
			s.errors.Handle(ctx, err)
		}
		<-ctx.Done()
		return s.reloader.Close()
	}

	if err := s.reloader.Run(ctx); err != nil {
		s.logger.Warn(ctx, err, "Manifest not watched, serving remote providers only")
	}
	return nil
}

func (s *Server) providerFailed(ctx context.Context, feature features.Feature, opts features.RegistrationOptions, err error) {
	metrics.ProviderError(feature)

	var de *docerrors.DocfeatError
	if !errors.As(err, &de) {
		de = docerrors.NewProviderError(string(feature), err)
	}
	s.errors.Handle(ctx, de.WithContext("provider_id", opts.ID).WithContext("source", opts.Source))
}
