// internal/search/strategies.go
package search

import (
	"strings"

	"brickkit/internal/analyzer"
	"brickkit/internal/models"
)

// Strategies are expressed as models.SearchQuery values. Attempts run in
// order and the first one with an acceptable result set wins.

// themeSpecificTerms are the hand-tuned queries for the most common themes.
var themeSpecificTerms = map[string][]string{
	"batmobile":   {"batmobile", "batman"},
	"race_car":    {"race", "car", "racing", "formula"},
	"sports_car":  {"sports", "car", "supercar"},
	"regular_car": {"car", "automobile", "vehicle"},
	"train":       {"train", "locomotive", "railway"},
}

// coreConceptStopWords additionally drops size and color words so the core
// concept is what remains after all constraints are stripped.
var coreConceptStopWords = map[string]bool{
	"build": true, "make": true, "create": true,
	"small": true, "large": true, "big": true, "tiny": true, "mini": true,
	"micro": true, "huge": true,
	"red": true, "blue": true, "green": true, "yellow": true, "black": true,
	"white": true, "gray": true, "grey": true, "orange": true, "purple": true,
	"pink": true, "brown": true, "tan": true, "lime": true, "cyan": true,
	"magenta": true,
}

// generateStrategies builds the ordered attempt list for a prompt. The exact
// prompt always goes first; the rest depends on whether the prompt was
// classified simple or complex.
func generateStrategies(prompt *models.Prompt) []models.SearchQuery {
	strategies := []models.SearchQuery{
		{Strategy: "exact_prompt", Terms: strings.Fields(strings.ToLower(prompt.Text)), Kind: models.QueryDirect},
	}

	theme := prompt.PrimaryTheme()
	if prompt.Complexity == models.ComplexitySimple {
		if terms, ok := themeSpecificTerms[theme]; ok {
			strategies = append(strategies, models.SearchQuery{
				Strategy: theme + "_specific",
				Terms:    terms,
				Kind:     models.QueryDirect,
			})
		}
	}

	if core := coreConcept(prompt.Text); len(core) > 0 {
		strategies = append(strategies, models.SearchQuery{
			Strategy: "core_concept",
			Terms:    core,
			Kind:     kindFor(prompt),
		})
	}

	if broader := analyzer.BroaderCategory(theme); broader != "general" && broader != theme {
		strategies = append(strategies, models.SearchQuery{
			Strategy: "broader_category",
			Terms:    []string{broader},
			Kind:     kindFor(prompt),
		})
	}

	if len(prompt.Keywords) > 0 {
		main := prompt.Keywords
		if len(main) > 3 {
			main = main[:3]
		}
		strategies = append(strategies, models.SearchQuery{
			Strategy: "enhanced_keywords",
			Terms:    main,
			Kind:     kindFor(prompt),
		})
	}

	return strategies
}

func kindFor(prompt *models.Prompt) models.QueryKind {
	if prompt.Complexity == models.ComplexityComplex {
		return models.QuerySemantic
	}
	return models.QueryDirect
}

// coreConcept strips constraint and color words and keeps up to three of
// the remaining meaningful terms.
func coreConcept(text string) []string {
	var words []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(word) <= 2 {
			continue
		}
		if coreConceptStopWords[word] {
			continue
		}
		switch word {
		case "the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by", "lego":
			continue
		}
		words = append(words, word)
		if len(words) == 3 {
			break
		}
	}
	return words
}

// relaxed returns a copy of the prompt with one constraint class removed.
// Step names follow the configured relaxation order: color, size, theme.
func relaxed(prompt *models.Prompt, step string) *models.Prompt {
	relaxed := *prompt
	switch step {
	case "color":
		relaxed.Colors = nil
	case "size":
		relaxed.SizeHint = models.SizeUnspecified
		relaxed.Constraints = nil
	case "theme":
		if broader := analyzer.BroaderCategory(prompt.PrimaryTheme()); broader != "general" {
			relaxed.Themes = []string{broader}
		} else {
			relaxed.Themes = nil
		}
	}
	return &relaxed
}

// relaxedTerms builds the query terms for a relaxed prompt: theme words plus
// whatever constraints survived the relaxation.
func relaxedTerms(prompt *models.Prompt) []string {
	var terms []string
	if theme := prompt.PrimaryTheme(); theme != "general" {
		terms = append(terms, strings.ReplaceAll(theme, "_", " "))
	}
	terms = append(terms, prompt.Colors...)
	if prompt.SizeHint == models.SizeSmall || prompt.SizeHint == models.SizeLarge {
		terms = append(terms, string(prompt.SizeHint))
	}
	if len(terms) == 0 {
		terms = prompt.Keywords
		if len(terms) > 3 {
			terms = terms[:3]
		}
	}
	return terms
}
