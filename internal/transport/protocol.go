// Package transport connects remote extension hosts to the provider
// registries over WebSocket.
//
// An extension host advertises capabilities with register messages; every
// advertisement becomes a provider whose calls are forwarded to the host as
// request messages. When the connection ends, all of the host's providers are
// disposed.
//
// Messages are JSON objects:
//
//	host   -> server  {"type":"register","id":"h1","feature":"hover","options":{"documentSelector":["go"]}}
//	server -> host    {"type":"ack","id":"h1"}
//	server -> host    {"type":"request","requestId":"...","id":"h1","feature":"hover","params":{...}}
//	host   -> server  {"type":"response","requestId":"...","result":{...}}
//	host   -> server  {"type":"unregister","id":"h1"}
//
// Failures are reported with {"type":"error","id":...,"error":"..."} for
// (un)registrations and a response carrying "error" for requests.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conneroisu/docfeat/internal/document"
	"github.com/conneroisu/docfeat/internal/features"
)

// Message types.
const (
	TypeRegister   = "register"
	TypeUnregister = "unregister"
	TypeAck        = "ack"
	TypeError      = "error"
	TypeRequest    = "request"
	TypeResponse   = "response"
)

// Message is the single envelope used in both directions.
type Message struct {
	Type      string                                    `json:"type"`
	ID        string                                    `json:"id,omitempty"`
	Feature   features.Feature                          `json:"feature,omitempty"`
	Options   *document.TextDocumentRegistrationOptions `json:"options,omitempty"`
	RequestID string                                    `json:"requestId,omitempty"`
	Params    json.RawMessage                           `json:"params,omitempty"`
	Result    json.RawMessage                           `json:"result,omitempty"`
	Error     string                                    `json:"error,omitempty"`
}

// implements reports whether provider can serve feature.
func implements(feature features.Feature, provider any) bool {
	switch feature {
	case features.FeatureHover:
		_, ok := provider.(features.HoverProvider)
		return ok
	case features.FeatureDefinition:
		_, ok := provider.(features.DefinitionProvider)
		return ok
	case features.FeatureDiagnostics:
		_, ok := provider.(features.DiagnosticsProvider)
		return ok
	}
	return false
}

// invoke decodes params for feature, calls provider and returns the result
// to encode.
func invoke(ctx context.Context, feature features.Feature, provider any, params json.RawMessage) (any, error) {
	switch feature {
	case features.FeatureHover:
		var p features.HoverParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding hover params: %w", err)
		}
		return provider.(features.HoverProvider).ProvideHover(ctx, p)
	case features.FeatureDefinition:
		var p features.DefinitionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding definition params: %w", err)
		}
		return provider.(features.DefinitionProvider).ProvideDefinition(ctx, p)
	case features.FeatureDiagnostics:
		var p features.DiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding diagnostics params: %w", err)
		}
		return provider.(features.DiagnosticsProvider).ProvideDiagnostics(ctx, p)
	}
	return nil, fmt.Errorf("unknown feature %q", feature)
}
