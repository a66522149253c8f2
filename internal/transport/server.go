package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/conneroisu/docfeat/internal/document"
	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/logging"
	"github.com/conneroisu/docfeat/internal/metrics"
	"github.com/conneroisu/docfeat/internal/session"
)

// Options configures a Handler.
type Options struct {
	// RequestTimeout bounds every request to a remote provider. Zero means
	// no timeout beyond the caller's context.
	RequestTimeout time.Duration
	// OriginPatterns lists the cross-origin hosts allowed to connect. Same
	// origin is always allowed.
	OriginPatterns []string
	// ReadLimit caps the size of a single message. Zero keeps the library
	// default.
	ReadLimit int64
}

// Handler accepts extension-host connections.
type Handler struct {
	regs   *features.Registries
	logger logging.Logger
	opts   Options

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// NewHandler creates a handler registering remote providers into regs.
func NewHandler(regs *features.Registries, logger logging.Logger, opts Options) *Handler {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Handler{
		regs:   regs,
		logger: logger.WithComponent("transport"),
		opts:   opts,
		conns:  make(map[*conn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until it ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote_addr", r.RemoteAddr)
		return
	}
	if h.opts.ReadLimit > 0 {
		ws.SetReadLimit(h.opts.ReadLimit)
	}

	c := newConn(ws, h.regs, h.logger, h.opts.RequestTimeout, r.RemoteAddr)
	if !h.track(c) {
		ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.untrack(c)

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	c.logger.Info(r.Context(), "Extension host connected")
	if err := c.serve(r.Context()); err != nil {
		c.logger.Warn(r.Context(), err, "Extension host connection failed")
	} else {
		c.logger.Info(r.Context(), "Extension host disconnected")
	}
}

func (h *Handler) track(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Handler) untrack(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Connections returns the number of connected extension hosts.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close rejects new connections and closes the open ones, which disposes
// their providers.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// conn is one extension-host connection and the session of providers it
// registered.
type conn struct {
	ws      *websocket.Conn
	session *session.Session
	logger  logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool
}

func newConn(ws *websocket.Conn, regs *features.Registries, logger logging.Logger, timeout time.Duration, remote string) *conn {
	s := session.New(regs, "ws:"+remote, logger)
	return &conn{
		ws:      ws,
		session: s,
		logger:  logger.With("session_id", s.ID(), "remote_addr", remote),
		timeout: timeout,
		pending: make(map[string]chan Message),
	}
}

func (c *conn) serve(ctx context.Context) error {
	defer c.session.Close()
	defer c.failPending()

	for {
		var msg Message
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return docerrors.NewNetworkError(docerrors.ErrCodeConnectionClosed, "reading message", err).
				WithComponent("transport")
		}

		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
}

// handle processes one message. Only write failures end the connection.
func (c *conn) handle(ctx context.Context, msg Message) error {
	switch msg.Type {
	case TypeRegister:
		var opts features.RegistrationOptions
		if msg.Options != nil {
			opts.TextDocumentRegistrationOptions = *msg.Options
		}
		provider := &remoteProvider{conn: c, id: msg.ID}
		err := c.session.Register(msg.ID, msg.Feature, opts, provider)
		return c.reply(ctx, msg.ID, err)

	case TypeUnregister:
		var err error
		if !c.session.Unregister(msg.ID) {
			err = docerrors.NewValidationError(docerrors.ErrCodeUnknownRegistration, fmt.Sprintf("no registration %q", msg.ID))
		}
		return c.reply(ctx, msg.ID, err)

	case TypeResponse:
		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		} else {
			c.logger.Debug(ctx, "Dropping response to unknown request", "request_id", msg.RequestID)
		}
		return nil

	default:
		err := docerrors.NewValidationError(docerrors.ErrCodeProtocol, fmt.Sprintf("unexpected message type %q", msg.Type))
		return c.reply(ctx, msg.ID, err)
	}
}

func (c *conn) reply(ctx context.Context, id string, err error) error {
	msg := Message{Type: TypeAck, ID: id}
	if err != nil {
		msg = Message{Type: TypeError, ID: id, Error: err.Error()}
		c.logger.Debug(ctx, "Rejected message", "registration_id", id, "error", err.Error())
	}
	return c.write(ctx, msg)
}

func (c *conn) write(ctx context.Context, msg Message) error {
	if err := wsjson.Write(ctx, c.ws, msg); err != nil {
		return docerrors.NewNetworkError(docerrors.ErrCodeConnectionClosed, "writing message", err).
			WithComponent("transport")
	}
	return nil
}

func (c *conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// request sends a request for registration id and waits for its response.
func (c *conn) request(ctx context.Context, id string, feature features.Feature, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	requestID := uuid.New().String()
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		metrics.TransportRequest(feature, "closed")
		return nil, docerrors.NewNetworkError(docerrors.ErrCodeConnectionClosed, "extension host disconnected", nil)
	}
	c.pending[requestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	msg := Message{Type: TypeRequest, RequestID: requestID, ID: id, Feature: feature, Params: raw}
	if err := c.write(ctx, msg); err != nil {
		metrics.TransportRequest(feature, "error")
		return nil, err
	}

	select {
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.TransportRequest(feature, "closed")
			return nil, ctx.Err()
		}
		metrics.TransportRequest(feature, "timeout")
		return nil, docerrors.NewNetworkError(docerrors.ErrCodeRequestTimeout, "waiting for extension host", ctx.Err()).
			WithFeature(string(feature))
	case resp, ok := <-ch:
		if !ok {
			metrics.TransportRequest(feature, "closed")
			return nil, docerrors.NewNetworkError(docerrors.ErrCodeConnectionClosed, "extension host disconnected", nil).
				WithFeature(string(feature))
		}
		if resp.Error != "" {
			metrics.TransportRequest(feature, "error")
			return nil, docerrors.NewProviderError(string(feature), errors.New(resp.Error))
		}
		metrics.TransportRequest(feature, "ok")
		return resp.Result, nil
	}
}

// remoteProvider forwards calls to the extension host that registered it. It
// implements the provider interface of every feature; the session only ever
// registers it for the advertised one.
type remoteProvider struct {
	conn *conn
	id   string
}

func decodeResult[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, docerrors.NewNetworkError(docerrors.ErrCodeProtocol, "decoding result", err)
	}
	return out, nil
}

func (p *remoteProvider) ProvideHover(ctx context.Context, params features.HoverParams) (*features.Hover, error) {
	raw, err := p.conn.request(ctx, p.id, features.FeatureHover, params)
	if err != nil {
		return nil, err
	}
	return decodeResult[*features.Hover](raw)
}

func (p *remoteProvider) ProvideDefinition(ctx context.Context, params features.DefinitionParams) ([]document.Location, error) {
	raw, err := p.conn.request(ctx, p.id, features.FeatureDefinition, params)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]document.Location](raw)
}

func (p *remoteProvider) ProvideDiagnostics(ctx context.Context, params features.DiagnosticsParams) ([]features.Diagnostic, error) {
	raw, err := p.conn.request(ctx, p.id, features.FeatureDiagnostics, params)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]features.Diagnostic](raw)
}
