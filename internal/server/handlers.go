package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/conneroisu/docfeat/internal/document"
	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/metrics"
	"github.com/conneroisu/docfeat/internal/version"
)

const maxRequestBody = 1 << 20

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.Handle("POST /api/hover", s.withTimeout(s.handleHover))
	mux.Handle("POST /api/definition", s.withTimeout(s.handleDefinition))
	mux.Handle("POST /api/diagnostics", s.withTimeout(s.handleDiagnostics))
	mux.Handle("GET /ws", s.transport)

	return securityHeaders(s.requestLogger(metrics.Middleware(mux)))
}

// withTimeout bounds a query by server.write_timeout. The handler sees the
// deadline through its request context and answers 504 itself.
func (s *Server) withTimeout(h http.HandlerFunc) http.Handler {
	timeout := s.config.Server.WriteTimeout
	if timeout <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	})
}

// HealthStatus is the body of GET /healthz.
type HealthStatus struct {
	Status      string                   `json:"status"`
	Version     string                   `json:"version"`
	Uptime      string                   `json:"uptime"`
	Providers   map[features.Feature]int `json:"providers"`
	Connections int                      `json:"connections"`
	Manifest    *ManifestStatus          `json:"manifest,omitempty"`
}

// ManifestStatus reports the manifest reloader.
type ManifestStatus struct {
	Path      string `json:"path"`
	Loaded    bool   `json:"loaded"`
	Reloads   int    `json:"reloads"`
	Providers int    `json:"providers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:      "healthy",
		Version:     version.GetShortVersion(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Providers:   s.regs.Counts(),
		Connections: s.transport.Connections(),
	}

	if s.reloader != nil {
		ms := &ManifestStatus{Path: s.config.Manifest.Path, Reloads: s.reloader.Reloads()}
		if sess := s.reloader.Session(); sess != nil {
			ms.Loaded = true
			ms.Providers = sess.Len()
		}
		health.Manifest = ms
	}

	s.writeJSON(w, r, http.StatusOK, health)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	all := s.regs.Options()

	if name := r.URL.Query().Get("feature"); name != "" {
		feature := features.Feature(name)
		if !feature.Valid() {
			s.writeError(w, r, http.StatusBadRequest,
				docerrors.NewValidationError(docerrors.ErrCodeUnknownFeature, fmt.Sprintf("unknown feature %q", name)))
			return
		}
		all = map[features.Feature][]features.RegistrationOptions{feature: all[feature]}
	}

	s.writeJSON(w, r, http.StatusOK, all)
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var params features.HoverParams
	if !s.decodeParams(w, r, &params) {
		return
	}

	hover, err := s.merger.Hover(r.Context(), params)
	if err != nil {
		s.writeContextError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, hover)
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	var params features.DefinitionParams
	if !s.decodeParams(w, r, &params) {
		return
	}

	locations, err := s.merger.Definition(r.Context(), params)
	if err != nil {
		s.writeContextError(w, r, err)
		return
	}
	if locations == nil {
		locations = []document.Location{}
	}
	s.writeJSON(w, r, http.StatusOK, locations)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	var params features.DiagnosticsParams
	if !s.decodeParams(w, r, &params) {
		return
	}

	diagnostics, err := s.merger.Diagnostics(r.Context(), params)
	if err != nil {
		s.writeContextError(w, r, err)
		return
	}
	if diagnostics == nil {
		diagnostics = []features.Diagnostic{}
	}
	s.writeJSON(w, r, http.StatusOK, diagnostics)
}

// decodeParams reads the JSON body into params. Every query needs a document
// URI.
func (s *Server) decodeParams(w http.ResponseWriter, r *http.Request, params any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(params); err != nil {
		s.writeError(w, r, http.StatusBadRequest,
			docerrors.NewValidationError(docerrors.ErrCodeValidationFailed, "invalid request body").WithCause(err))
		return false
	}

	if doc, ok := textDocumentOf(params); ok && doc.URI == "" {
		s.writeError(w, r, http.StatusBadRequest,
			docerrors.NewValidationError(docerrors.ErrCodeValidationFailed, "textDocument.uri is required"))
		return false
	}
	return true
}

func textDocumentOf(params any) (document.TextDocument, bool) {
	switch p := params.(type) {
	case *document.PositionParams:
		return p.TextDocument, true
	case *features.DiagnosticsParams:
		return p.TextDocument, true
	}
	return document.TextDocument{}, false
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var de *docerrors.DocfeatError
	if errors.As(err, &de) {
		resp.Code = de.Code
	}
	s.writeJSON(w, r, status, resp)
}

// writeContextError answers a query whose context ended before the merge
// finished.
func (s *Server) writeContextError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, r, http.StatusGatewayTimeout,
			docerrors.NewNetworkError(docerrors.ErrCodeRequestTimeout, "query timed out", err))
		return
	}
	// The client is gone; nobody reads this.
	s.logger.Debug(r.Context(), "Query abandoned", "path", r.URL.Path, "error", err.Error())
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}
