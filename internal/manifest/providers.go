package manifest

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/docfeat/internal/document"
	"github.com/conneroisu/docfeat/internal/features"
)

// Provider returns the static provider p declares. The result
// implements the provider interface of p.Feature.
func (p ProviderSpec) Provider() any {
	switch p.Feature {
	case features.FeatureHover:
		return staticHover{text: p.Hover}
	case features.FeatureDefinition:
		if p.Definition == nil {
			return nil
		}
		return staticDefinition{spec: *p.Definition}
	case features.FeatureDiagnostics:
		return ruleDiagnostics{source: p.ID, rules: p.Diagnostics}
	}
	return nil
}

type staticHover struct {
	text string
}

func (h staticHover) ProvideHover(context.Context, features.HoverParams) (*features.Hover, error) {
	return &features.Hover{Contents: []features.MarkupContent{{Kind: "markdown", Value: h.text}}}, nil
}

type staticDefinition struct {
	spec DefinitionSpec
}

func (d staticDefinition) ProvideDefinition(context.Context, features.DefinitionParams) ([]document.Location, error) {
	pos := document.Position{Line: d.spec.Line, Character: d.spec.Character}
	return []document.Location{{URI: d.spec.URI, Range: document.Range{Start: pos, End: pos}}}, nil
}

type ruleDiagnostics struct {
	source string
	rules  []DiagnosticRule
}

// ProvideDiagnostics reports one diagnostic per occurrence of each rule's
// match. Characters are counted in runes. Rules with an empty match never
// fire.
func (r ruleDiagnostics) ProvideDiagnostics(ctx context.Context, params features.DiagnosticsParams) ([]features.Diagnostic, error) {
	var out []features.Diagnostic
	for lineNo, line := range params.TextDocument.Lines() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, rule := range r.rules {
			if rule.Match == "" {
				continue
			}
			severity, err := features.ParseSeverity(rule.Severity)
			if err != nil {
				return nil, err
			}
			for offset := 0; ; {
				idx := strings.Index(line[offset:], rule.Match)
				if idx < 0 {
					break
				}
				start := utf8.RuneCountInString(line[:offset+idx])
				end := start + utf8.RuneCountInString(rule.Match)
				out = append(out, features.Diagnostic{
					Range: document.Range{
						Start: document.Position{Line: lineNo, Character: start},
						End:   document.Position{Line: lineNo, Character: end},
					},
					Severity: severity,
					Message:  rule.Message,
					Source:   r.source,
				})
				offset += idx + len(rule.Match)
			}
		}
	}
	return out, nil
}
