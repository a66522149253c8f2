// Package features instantiates the generic provider registry for the text
// document features docfeat supports and merges the answers of every
// provider that applies to a document.
package features

import (
	"context"
	"fmt"
	"sort"

	"github.com/conneroisu/docfeat/internal/document"
	"github.com/conneroisu/docfeat/internal/registry"
)

// Feature names a kind of text document feature.
type Feature string

const (
	FeatureHover       Feature = "hover"
	FeatureDefinition  Feature = "definition"
	FeatureDiagnostics Feature = "diagnostics"
)

// Features returns every supported feature in a stable order.
func Features() []Feature {
	return []Feature{FeatureHover, FeatureDefinition, FeatureDiagnostics}
}

// Valid reports whether f is a supported feature.
func (f Feature) Valid() bool {
	switch f {
	case FeatureHover, FeatureDefinition, FeatureDiagnostics:
		return true
	}
	return false
}

// RegistrationOptions are the options every feature provider registers with.
type RegistrationOptions struct {
	document.TextDocumentRegistrationOptions `yaml:",inline"`

	// ID is chosen by whoever registered the provider and is only used for
	// display.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// Source describes where the provider came from, e.g. "manifest" or a
	// transport session id.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// HoverParams asks for hover information at a position.
type HoverParams = document.PositionParams

// MarkupContent is a piece of hover content.
type MarkupContent struct {
	Kind  string `json:"kind"` // "plaintext" or "markdown"
	Value string `json:"value"`
}

// Hover is the result of a hover request.
type Hover struct {
	Contents []MarkupContent `json:"contents"`
	Range    *document.Range `json:"range,omitempty"`
}

// HoverProvider answers hover requests.
type HoverProvider interface {
	ProvideHover(ctx context.Context, params HoverParams) (*Hover, error)
}

// HoverProviderFunc adapts a function to HoverProvider.
type HoverProviderFunc func(ctx context.Context, params HoverParams) (*Hover, error)

// ProvideHover calls f.
func (f HoverProviderFunc) ProvideHover(ctx context.Context, params HoverParams) (*Hover, error) {
	return f(ctx, params)
}

// DefinitionParams asks for the definition of the symbol at a position.
type DefinitionParams = document.PositionParams

// DefinitionProvider answers definition requests.
type DefinitionProvider interface {
	ProvideDefinition(ctx context.Context, params DefinitionParams) ([]document.Location, error)
}

// DefinitionProviderFunc adapts a function to DefinitionProvider.
type DefinitionProviderFunc func(ctx context.Context, params DefinitionParams) ([]document.Location, error)

// ProvideDefinition calls f.
func (f DefinitionProviderFunc) ProvideDefinition(ctx context.Context, params DefinitionParams) ([]document.Location, error) {
	return f(ctx, params)
}

// DiagnosticSeverity follows the usual error/warning/information/hint scale.
type DiagnosticSeverity int

const (
	SeverityError DiagnosticSeverity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// ParseSeverity parses the String form of a severity.
func ParseSeverity(s string) (DiagnosticSeverity, error) {
	for _, sev := range []DiagnosticSeverity{SeverityError, SeverityWarning, SeverityInformation, SeverityHint} {
		if sev.String() == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// Diagnostic is a problem reported for a range of a document.
type Diagnostic struct {
	Range    document.Range     `json:"range"`
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`
	Source   string             `json:"source,omitempty"`
}

// DiagnosticsParams asks for the diagnostics of a whole document.
type DiagnosticsParams struct {
	TextDocument document.TextDocument `json:"textDocument"`
}

// DiagnosticsProvider computes diagnostics for a document.
type DiagnosticsProvider interface {
	ProvideDiagnostics(ctx context.Context, params DiagnosticsParams) ([]Diagnostic, error)
}

// DiagnosticsProviderFunc adapts a function to DiagnosticsProvider.
type DiagnosticsProviderFunc func(ctx context.Context, params DiagnosticsParams) ([]Diagnostic, error)

// ProvideDiagnostics calls f.
func (f DiagnosticsProviderFunc) ProvideDiagnostics(ctx context.Context, params DiagnosticsParams) ([]Diagnostic, error) {
	return f(ctx, params)
}

type (
	HoverRegistry       = registry.ProviderRegistry[RegistrationOptions, HoverProvider]
	DefinitionRegistry  = registry.ProviderRegistry[RegistrationOptions, DefinitionProvider]
	DiagnosticsRegistry = registry.ProviderRegistry[RegistrationOptions, DiagnosticsProvider]
)

// Registries bundles one registry per feature.
type Registries struct {
	Hover       *HoverRegistry
	Definition  *DefinitionRegistry
	Diagnostics *DiagnosticsRegistry
}

// NewRegistries creates empty registries for every feature.
func NewRegistries() *Registries {
	return &Registries{
		Hover:       registry.New[RegistrationOptions, HoverProvider](),
		Definition:  registry.New[RegistrationOptions, DefinitionProvider](),
		Diagnostics: registry.New[RegistrationOptions, DiagnosticsProvider](),
	}
}

// Register adds provider to the registry of feature. provider must implement
// the interface of that feature.
func (r *Registries) Register(feature Feature, opts RegistrationOptions, provider any) (registry.Disposer, error) {
	switch feature {
	case FeatureHover:
		p, ok := provider.(HoverProvider)
		if !ok {
			return nil, fmt.Errorf("provider %T does not implement HoverProvider", provider)
		}
		return r.Hover.Register(opts, p), nil
	case FeatureDefinition:
		p, ok := provider.(DefinitionProvider)
		if !ok {
			return nil, fmt.Errorf("provider %T does not implement DefinitionProvider", provider)
		}
		return r.Definition.Register(opts, p), nil
	case FeatureDiagnostics:
		p, ok := provider.(DiagnosticsProvider)
		if !ok {
			return nil, fmt.Errorf("provider %T does not implement DiagnosticsProvider", provider)
		}
		return r.Diagnostics.Register(opts, p), nil
	default:
		return nil, fmt.Errorf("unknown feature %q", feature)
	}
}

// Options returns, per feature, the options of every registered provider in
// registration order.
func (r *Registries) Options() map[Feature][]RegistrationOptions {
	return map[Feature][]RegistrationOptions{
		FeatureHover:       optionsOf(r.Hover.Entries()),
		FeatureDefinition:  optionsOf(r.Definition.Entries()),
		FeatureDiagnostics: optionsOf(r.Diagnostics.Entries()),
	}
}

// Counts returns the number of registered providers per feature.
func (r *Registries) Counts() map[Feature]int {
	return map[Feature]int{
		FeatureHover:       r.Hover.Len(),
		FeatureDefinition:  r.Definition.Len(),
		FeatureDiagnostics: r.Diagnostics.Len(),
	}
}

// SubscribeCounts calls fn with the provider count of a feature whenever that
// feature's provider set changes, starting with the current counts.
func (r *Registries) SubscribeCounts(fn func(Feature, int)) registry.Subscription {
	subs := []registry.Subscription{
		registry.Map(r.Hover.Providers(), lenOf[HoverProvider]).
			Subscribe(func(n int) { fn(FeatureHover, n) }),
		registry.Map(r.Definition.Providers(), lenOf[DefinitionProvider]).
			Subscribe(func(n int) { fn(FeatureDefinition, n) }),
		registry.Map(r.Diagnostics.Providers(), lenOf[DiagnosticsProvider]).
			Subscribe(func(n int) { fn(FeatureDiagnostics, n) }),
	}
	return registry.SubscriptionFunc(func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	})
}

func lenOf[P any](providers []P) int { return len(providers) }

func optionsOf[P any](entries []registry.Entry[RegistrationOptions, P]) []RegistrationOptions {
	opts := make([]RegistrationOptions, len(entries))
	for i, e := range entries {
		opts[i] = e.RegistrationOptions
	}
	return opts
}

// applicable returns the entries whose selector matches doc, most specific
// first. Entries with equal scores keep registration order.
func applicable[P any](entries []registry.Entry[RegistrationOptions, P], doc document.TextDocument) []registry.Entry[RegistrationOptions, P] {
	type scored struct {
		entry registry.Entry[RegistrationOptions, P]
		score int
	}
	var matches []scored
	for _, e := range entries {
		if s := document.Score(e.RegistrationOptions.DocumentSelector, doc); s > 0 {
			matches = append(matches, scored{entry: e, score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]registry.Entry[RegistrationOptions, P], len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out
}
