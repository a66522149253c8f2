package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// DocumentFilter narrows the documents a provider applies to. Unset fields do
// not constrain the match; "*" matches anything but scores lower than an
// exact value.
type DocumentFilter struct {
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Scheme   string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Pattern  string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// IsZero reports whether no field of the filter is set.
func (f DocumentFilter) IsZero() bool {
	return f.Language == "" && f.Scheme == "" && f.Pattern == ""
}

// Validate checks that the filter constrains something and that its pattern
// compiles.
func (f DocumentFilter) Validate() error {
	if f.IsZero() {
		return fmt.Errorf("document filter must set at least one of language, scheme or pattern")
	}
	if f.Pattern != "" {
		if _, err := compilePattern(f.Pattern); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", f.Pattern, err)
		}
	}
	return nil
}

// UnmarshalJSON accepts either a filter object or a bare language id.
func (f *DocumentFilter) UnmarshalJSON(data []byte) error {
	var language string
	if err := json.Unmarshal(data, &language); err == nil {
		*f = DocumentFilter{Language: language}
		return nil
	}

	type plain DocumentFilter
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = DocumentFilter(p)
	return nil
}

// UnmarshalYAML accepts either a filter mapping or a bare language id.
func (f *DocumentFilter) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*f = DocumentFilter{Language: node.Value}
		return nil
	}

	type plain DocumentFilter
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = DocumentFilter(p)
	return nil
}

// DocumentSelector is a set of filters; a document matches if any filter does.
type DocumentSelector []DocumentFilter

// Validate validates every filter of the selector.
func (s DocumentSelector) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("document selector is empty")
	}
	for i, f := range s {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return nil
}

func (s DocumentSelector) String() string {
	parts := make([]string, 0, len(s))
	for _, f := range s {
		var fields []string
		if f.Language != "" {
			fields = append(fields, "language="+f.Language)
		}
		if f.Scheme != "" {
			fields = append(fields, "scheme="+f.Scheme)
		}
		if f.Pattern != "" {
			fields = append(fields, "pattern="+f.Pattern)
		}
		parts = append(parts, "{"+strings.Join(fields, ",")+"}")
	}
	return strings.Join(parts, " ")
}

// TextDocumentRegistrationOptions is the registration metadata shared by all
// text document features.
type TextDocumentRegistrationOptions struct {
	// DocumentSelector lists the documents the provider applies to. A nil
	// selector matches nothing.
	DocumentSelector DocumentSelector `json:"documentSelector" yaml:"documentSelector"`
}

// Applies reports whether a provider registered with these options applies
// to doc.
func (o TextDocumentRegistrationOptions) Applies(doc TextDocument) bool {
	return Match(o.DocumentSelector, doc)
}

const (
	scoreExact    = 10
	scoreWildcard = 5
)

// Score rates how well selector matches doc. Zero means no match; higher
// scores mean a more specific match. The score of a selector is the highest
// score among its filters.
func Score(selector DocumentSelector, doc TextDocument) int {
	best := 0
	for _, f := range selector {
		if s := scoreFilter(f, doc); s > best {
			best = s
		}
	}
	return best
}

// Match reports whether any filter of selector matches doc.
func Match(selector DocumentSelector, doc TextDocument) bool {
	return Score(selector, doc) > 0
}

func scoreFilter(f DocumentFilter, doc TextDocument) int {
	if f.IsZero() {
		return 0
	}

	score := 0
	if f.Language != "" {
		switch {
		case f.Language == "*":
			score = max(score, scoreWildcard)
		case foldLanguage(f.Language) == foldLanguage(doc.LanguageID):
			score = scoreExact
		default:
			return 0
		}
	}

	if f.Scheme != "" {
		switch {
		case f.Scheme == "*":
			score = max(score, scoreWildcard)
		case strings.EqualFold(f.Scheme, doc.Scheme()):
			score = scoreExact
		default:
			return 0
		}
	}

	if f.Pattern != "" {
		g, err := compilePattern(f.Pattern)
		if err != nil || !g.Match(doc.Path()) {
			return 0
		}
		score = scoreExact
	}

	return score
}

// foldLanguage case-folds a language id. Casers are stateful, so one is
// created per call.
func foldLanguage(id string) string {
	return cases.Fold().String(id)
}

var (
	patternsMu sync.RWMutex
	patterns   = map[string]glob.Glob{}
)

// compilePattern compiles and caches a glob pattern. "/" is the separator so
// "*" stays within one path segment and "**" crosses segments.
func compilePattern(pattern string) (glob.Glob, error) {
	patternsMu.RLock()
	g, ok := patterns[pattern]
	patternsMu.RUnlock()
	if ok {
		return g, nil
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}

	patternsMu.Lock()
	patterns[pattern] = g
	patternsMu.Unlock()
	return g, nil
}
