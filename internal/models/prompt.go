// internal/models/prompt.go
package models

// SizeHint classifies the requested model footprint.
type SizeHint string

const (
	SizeSmall       SizeHint = "small"
	SizeMedium      SizeHint = "medium"
	SizeLarge       SizeHint = "large"
	SizeUnspecified SizeHint = "unspecified"
)

// Complexity classifies how much interpretation a prompt needs.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// Prompt is the analyzed form of a free-text model request. Text is the
// original input verbatim; the derived fields drive strategy selection.
type Prompt struct {
	Text            string     `json:"text"`
	Themes          []string   `json:"themes,omitempty"`
	Colors          []string   `json:"colors,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	Constraints     []string   `json:"constraints,omitempty"`
	RelatedConcepts []string   `json:"relatedConcepts,omitempty"`
	SearchHints     []string   `json:"searchHints,omitempty"`
	SizeHint        SizeHint   `json:"sizeHint"`
	Complexity      Complexity `json:"complexity"`
}

// PrimaryTheme returns the most specific detected theme, or "general" when
// nothing in the theme lexicon matched.
func (p *Prompt) PrimaryTheme() string {
	if len(p.Themes) == 0 {
		return "general"
	}
	return p.Themes[0]
}

// QueryKind tags the strategy that produced a search query.
type QueryKind string

const (
	QueryDirect   QueryKind = "direct"
	QuerySemantic QueryKind = "semantic"
	QueryRefined  QueryKind = "refined"
)

// SearchQuery is one executable query variant derived from a Prompt.
type SearchQuery struct {
	Terms    []string  `json:"terms"`
	Kind     QueryKind `json:"kind"`
	Strategy string    `json:"strategy,omitempty"`
}
