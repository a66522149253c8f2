// Package document models the text documents that feature providers answer
// queries about, and the document selectors providers use to declare where
// they apply.
package document

import (
	"fmt"
	"net/url"
	"strings"
)

// TextDocument is an open document as seen by feature providers.
type TextDocument struct {
	URI        string `json:"uri" yaml:"uri"`
	LanguageID string `json:"languageId" yaml:"languageId"`
	Text       string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Scheme returns the URI scheme of the document, or "" if the URI has none.
func (d TextDocument) Scheme() string {
	u, err := url.Parse(d.URI)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// Path returns the path component of the document URI. Documents whose URI
// does not parse are matched against the raw URI.
func (d TextDocument) Path() string {
	u, err := url.Parse(d.URI)
	if err != nil || u.Path == "" {
		return d.URI
	}
	return u.Path
}

// Lines splits the document text into lines without their terminators.
func (d TextDocument) Lines() []string {
	text := strings.ReplaceAll(d.Text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// Position is a zero-based line and character offset.
type Position struct {
	Line      int `json:"line" yaml:"line"`
	Character int `json:"character" yaml:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Before reports whether p comes strictly before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// Range is a half-open span [Start, End) within a document.
type Range struct {
	Start Position `json:"start" yaml:"start"`
	End   Position `json:"end" yaml:"end"`
}

// Contains reports whether pos lies inside the range.
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && pos.Before(r.End)
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Location is a range inside a specific document.
type Location struct {
	URI   string `json:"uri" yaml:"uri"`
	Range Range  `json:"range" yaml:"range"`
}

// PositionParams identifies a position inside a document.
type PositionParams struct {
	TextDocument TextDocument `json:"textDocument"`
	Position     Position     `json:"position"`
}
