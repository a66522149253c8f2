// Package manifest loads static feature providers from a YAML file.
//
// A manifest looks like:
//
//	providers:
//	  - id: go-hover
//	    feature: hover
//	    selector: [{language: go}]
//	    hover: "Go source file"
//	  - id: todo-diagnostics
//	    feature: diagnostics
//	    selector: [{pattern: "**/*.md"}]
//	    diagnostics:
//	      - match: TODO
//	        severity: warning
//	        message: unresolved TODO
//	  - id: readme
//	    feature: definition
//	    selector: [markdown]
//	    definition: {uri: "file:///README.md", line: 0}
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docfeat/internal/document"
	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/session"
)

// Manifest is the parsed contents of a manifest file.
type Manifest struct {
	Providers []ProviderSpec `yaml:"providers"`
}

// ProviderSpec declares one static provider. Exactly the body field matching
// Feature must be set.
type ProviderSpec struct {
	ID          string                    `yaml:"id"`
	Feature     features.Feature          `yaml:"feature"`
	Selector    document.DocumentSelector `yaml:"selector"`
	Hover       string                    `yaml:"hover,omitempty"`
	Definition  *DefinitionSpec           `yaml:"definition,omitempty"`
	Diagnostics []DiagnosticRule          `yaml:"diagnostics,omitempty"`
}

// DefinitionSpec is the fixed location a static definition provider returns.
type DefinitionSpec struct {
	URI       string `yaml:"uri"`
	Line      int    `yaml:"line"`
	Character int    `yaml:"character"`
}

// DiagnosticRule reports a diagnostic on every occurrence of Match.
type DiagnosticRule struct {
	Match    string `yaml:"match"`
	Severity string `yaml:"severity"`
	Message  string `yaml:"message"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := docerrors.ErrCodeManifestInvalid
		if os.IsNotExist(err) {
			code = docerrors.ErrCodeFileNotFound
		}
		return nil, docerrors.NewIOError(code, "cannot read manifest", err).
			WithComponent("manifest").
			WithContext("path", path)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse parses and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, docerrors.NewValidationError(docerrors.ErrCodeManifestInvalid, "malformed manifest").
			WithComponent("manifest").
			WithCause(err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every provider spec and reports all problems at once.
func (m *Manifest) Validate() error {
	var vec docerrors.ValidationErrorCollection
	seen := make(map[string]bool)

	for i, p := range m.Providers {
		field := func(name string) string { return fmt.Sprintf("providers[%d].%s", i, name) }

		if p.ID == "" {
			vec.AddField(field("id"), p.ID, "must not be empty")
		} else if seen[p.ID] {
			vec.AddField(field("id"), p.ID, "duplicate id")
		}
		seen[p.ID] = true

		if !p.Feature.Valid() {
			vec.AddField(field("feature"), p.Feature, "unknown feature")
		}
		if err := p.Selector.Validate(); err != nil {
			vec.AddField(field("selector"), p.Selector.String(), err.Error())
		}

		switch p.Feature {
		case features.FeatureHover:
			if p.Hover == "" {
				vec.AddField(field("hover"), p.Hover, "hover provider needs hover text")
			}
		case features.FeatureDefinition:
			if p.Definition == nil || p.Definition.URI == "" {
				vec.AddField(field("definition"), p.Definition, "definition provider needs a uri")
			}
		case features.FeatureDiagnostics:
			if len(p.Diagnostics) == 0 {
				vec.AddField(field("diagnostics"), nil, "diagnostics provider needs at least one rule")
			}
			for j, rule := range p.Diagnostics {
				if rule.Match == "" {
					vec.AddField(field(fmt.Sprintf("diagnostics[%d].match", j)), rule.Match, "must not be empty")
				}
				if _, err := features.ParseSeverity(rule.Severity); err != nil {
					vec.AddField(field(fmt.Sprintf("diagnostics[%d].severity", j)), rule.Severity, err.Error())
				}
			}
		}

		if p.Feature.Valid() {
			notAllowed := fmt.Sprintf("not allowed for a %s provider", p.Feature)
			if p.Feature != features.FeatureHover && p.Hover != "" {
				vec.AddField(field("hover"), p.Hover, notAllowed)
			}
			if p.Feature != features.FeatureDefinition && p.Definition != nil {
				vec.AddField(field("definition"), p.Definition, notAllowed)
			}
			if p.Feature != features.FeatureDiagnostics && len(p.Diagnostics) > 0 {
				vec.AddField(field("diagnostics"), nil, notAllowed)
			}
		}
	}

	return vec.Err(docerrors.ErrCodeManifestInvalid, "invalid manifest")
}

// Apply registers every provider of the manifest into s. It stops at the
// first failure; registrations made before it stay in the session.
func (m *Manifest) Apply(s *session.Session) error {
	for _, p := range m.Providers {
		opts := features.RegistrationOptions{
			TextDocumentRegistrationOptions: document.TextDocumentRegistrationOptions{DocumentSelector: p.Selector},
		}
		if err := s.Register(p.ID, p.Feature, opts, p.Provider()); err != nil {
			return fmt.Errorf("register %q: %w", p.ID, err)
		}
	}
	return nil
}
