package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/conneroisu/docfeat/internal/document"
	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/logging"
)

// Client is the extension-host side of the protocol: it advertises local
// providers to a docfeat server and answers the server's requests.
type Client struct {
	ws     *websocket.Conn
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	providers map[string]*localProvider
	acks      map[string]chan error
	err       error
	done      chan struct{}
}

type localProvider struct {
	feature  features.Feature
	provider any
}

// Dial connects to the server's WebSocket endpoint at url.
func Dial(ctx context.Context, url string, logger logging.Logger) (*Client, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, docerrors.NewNetworkError(docerrors.ErrCodeConnectionClosed, "dialing "+url, err).
			WithComponent("transport")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ws:        ws,
		logger:    logger.WithComponent("transport-client"),
		ctx:       cctx,
		cancel:    cancel,
		providers: make(map[string]*localProvider),
		acks:      make(map[string]chan error),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Register advertises provider for feature under id and waits for the
// server to accept it.
func (c *Client) Register(ctx context.Context, id string, feature features.Feature, opts document.TextDocumentRegistrationOptions, provider any) error {
	if !implements(feature, provider) {
		return docerrors.NewValidationError(docerrors.ErrCodeValidationFailed,
			fmt.Sprintf("provider %T cannot serve feature %q", provider, feature))
	}

	// Registered before the round trip: the server may send requests for id
	// as soon as it has accepted it.
	lp := &localProvider{feature: feature, provider: provider}
	c.mu.Lock()
	if _, exists := c.providers[id]; exists {
		c.mu.Unlock()
		return docerrors.NewValidationError(docerrors.ErrCodeDuplicateRegistration,
			fmt.Sprintf("provider %q is already registered", id))
	}
	c.providers[id] = lp
	c.mu.Unlock()

	err := c.roundTrip(ctx, Message{Type: TypeRegister, ID: id, Feature: feature, Options: &opts})
	if err != nil {
		c.mu.Lock()
		if c.providers[id] == lp {
			delete(c.providers, id)
		}
		c.mu.Unlock()
	}
	return err
}

// Unregister revokes the registration with the given id.
func (c *Client) Unregister(ctx context.Context, id string) error {
	err := c.roundTrip(ctx, Message{Type: TypeUnregister, ID: id})

	c.mu.Lock()
	delete(c.providers, id)
	c.mu.Unlock()
	return err
}

// roundTrip sends msg and waits for the ack or error carrying its id. Only
// one (un)registration per id may be in flight.
func (c *Client) roundTrip(ctx context.Context, msg Message) error {
	ch := make(chan error, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.acks[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.acks, msg.ID)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.ws, msg); err != nil {
		return docerrors.NewNetworkError(docerrors.ErrCodeConnectionClosed, "writing message", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.Err()
	case err := <-ch:
		return err
	}
}

// Close closes the connection. The server disposes every provider this
// client registered.
func (c *Client) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "")
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open or after a
// normal close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(c.err, errClientClosed) {
		return nil
	}
	return c.err
}

var errClientClosed = errors.New("client closed")

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.cancel()

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.ws, &msg); err != nil {
			c.mu.Lock()
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure:
				c.err = errClientClosed
			default:
				c.err = docerrors.NewNetworkError(docerrors.ErrCodeConnectionClosed, "connection ended", err)
			}
			c.mu.Unlock()
			return
		}

		switch msg.Type {
		case TypeAck, TypeError:
			c.mu.Lock()
			ch, ok := c.acks[msg.ID]
			c.mu.Unlock()
			if !ok {
				continue
			}
			var ackErr error
			if msg.Type == TypeError {
				ackErr = errors.New(msg.Error)
			}
			select {
			case ch <- ackErr:
			default:
			}
		case TypeRequest:
			go c.serveRequest(msg)
		default:
			c.logger.Debug(c.ctx, "Ignoring message", "type", msg.Type)
		}
	}
}

func (c *Client) serveRequest(msg Message) {
	resp := Message{Type: TypeResponse, RequestID: msg.RequestID}

	c.mu.Lock()
	lp, ok := c.providers[msg.ID]
	c.mu.Unlock()

	if !ok {
		resp.Error = fmt.Sprintf("no provider registered as %q", msg.ID)
	} else if result, err := invoke(c.ctx, lp.feature, lp.provider, msg.Params); err != nil {
		resp.Error = err.Error()
	} else if raw, err := json.Marshal(result); err != nil {
		resp.Error = fmt.Sprintf("encoding result: %v", err)
	} else {
		resp.Result = raw
	}

	if err := wsjson.Write(c.ctx, c.ws, resp); err != nil {
		c.logger.Debug(c.ctx, "Dropping response", "request_id", msg.RequestID, "error", err.Error())
	}
}
