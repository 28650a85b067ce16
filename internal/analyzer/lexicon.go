// internal/analyzer/lexicon.go
package analyzer

import "strings"

// themeCategories maps a theme to the phrases that identify it. More
// keywords means a more specific theme; the most specific match wins.
var themeCategories = map[string][]string{
	"batmobile":   {"batmobile", "bat mobile", "batman car"},
	"race_car":    {"race car", "racing car", "formula", "f1", "nascar", "speed"},
	"sports_car":  {"sports car", "supercar", "ferrari", "lamborghini", "porsche"},
	"regular_car": {"car", "automobile", "vehicle", "sedan", "coupe"},
	"truck":       {"truck", "pickup", "lorry"},
	"bus":         {"bus", "coach"},
	"motorcycle":  {"motorcycle", "bike", "motorbike"},
	"train":       {"train", "locomotive", "railway", "railroad"},
	"fighter_jet": {"fighter", "jet", "f-16", "f-22"},
	"airplane":    {"plane", "aircraft", "airplane", "airliner"},
	"helicopter":  {"helicopter", "chopper"},
	"spaceship":   {"spaceship", "spacecraft", "rocket", "shuttle"},
	"house":       {"house", "home", "residence"},
	"castle":      {"castle", "fortress", "palace"},
	"building":    {"building", "tower", "skyscraper"},
	"robot":       {"robot", "android", "cyborg"},
	"ship":        {"ship", "boat", "yacht", "cruise"},
	"tank":        {"tank", "armored"},
}

// themeOrder fixes the tie-break between equally specific themes.
var themeOrder = []string{
	"batmobile", "race_car", "sports_car", "regular_car", "truck", "bus",
	"motorcycle", "train", "fighter_jet", "airplane", "helicopter",
	"spaceship", "house", "castle", "building", "robot", "ship", "tank",
}

var colorLexicon = []string{
	"red", "blue", "green", "yellow", "black", "white", "gray", "grey",
	"orange", "purple", "pink", "brown", "tan", "lime", "cyan", "magenta",
}

var constraintLexicon = []string{
	"small", "large", "big", "tiny", "mini", "micro", "huge",
	"simple", "complex", "detailed", "basic", "advanced",
}

// complexConcepts force a prompt onto the semantic path regardless of length.
var complexConcepts = []string{
	"futuristic", "steampunk", "cyberpunk", "medieval", "ancient", "modern", "vintage",
	"flying", "hovering", "levitating", "transforming", "modular", "custom",
	"battle", "war", "combat", "military", "space", "alien", "fantasy", "sci-fi",
}

// conceptMappings expands abstract concepts into searchable neighbors. Used
// by the rule-based fallback when the language service is unavailable.
var conceptMappings = map[string][]string{
	"futuristic":   {"space", "sci-fi", "cyber", "neon", "tech"},
	"steampunk":    {"vintage", "brass", "gear", "steam", "industrial"},
	"cyberpunk":    {"neon", "tech", "cyber", "digital", "matrix"},
	"flying":       {"aircraft", "plane", "helicopter", "jet", "wing"},
	"hovering":     {"hover", "levitate", "float", "air cushion"},
	"transforming": {"transform", "convert", "change", "modular"},
	"medieval":     {"castle", "knight", "dragon", "fortress", "ancient"},
	"modern":       {"contemporary", "sleek", "minimalist", "tech"},
	"vintage":      {"classic", "retro", "old", "traditional"},
	"battle":       {"war", "combat", "military", "tank", "fighter"},
	"space":        {"astronaut", "rocket", "shuttle", "alien", "planet"},
	"fantasy":      {"magic", "dragon", "wizard", "mythical", "enchanted"},
}

// broaderCategories maps a specific theme to the category tried when
// progressive refinement broadens the search.
var broaderCategories = map[string]string{
	"race_car":    "vehicle",
	"sports_car":  "vehicle",
	"regular_car": "vehicle",
	"truck":       "vehicle",
	"bus":         "vehicle",
	"motorcycle":  "vehicle",
	"train":       "vehicle",
	"fighter_jet": "aircraft",
	"airplane":    "aircraft",
	"helicopter":  "aircraft",
	"spaceship":   "space",
	"house":       "building",
	"castle":      "building",
	"building":    "building",
	"robot":       "mechanical",
	"ship":        "watercraft",
	"tank":        "military",
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "lego": true,
}

var buildWords = map[string]bool{
	"build": true, "make": true, "create": true,
}

// detectTheme returns the most specific matching theme, or "general".
func detectTheme(promptLower string) string {
	found := "general"
	priority := 0
	for _, theme := range themeOrder {
		keywords := themeCategories[theme]
		for _, keyword := range keywords {
			if strings.Contains(promptLower, keyword) {
				if len(keywords) > priority {
					found = theme
					priority = len(keywords)
				}
				break
			}
		}
	}
	return found
}

func extractColors(promptLower string) []string {
	var found []string
	for _, color := range colorLexicon {
		if strings.Contains(promptLower, color) {
			found = append(found, color)
		}
	}
	return found
}

func extractConstraints(promptLower string) []string {
	var found []string
	for _, constraint := range constraintLexicon {
		if strings.Contains(promptLower, constraint) {
			found = append(found, constraint)
		}
	}
	return found
}

// meaningfulWords drops stop words and anything under three characters.
func meaningfulWords(promptLower string) []string {
	var words []string
	for _, word := range strings.Fields(promptLower) {
		if len(word) > 2 && !stopWords[word] {
			words = append(words, word)
		}
	}
	return words
}

func hasComplexConcept(promptLower string) bool {
	for _, concept := range complexConcepts {
		if strings.Contains(promptLower, concept) {
			return true
		}
	}
	return false
}

// BroaderCategory maps a theme to its umbrella category, or "general".
func BroaderCategory(theme string) string {
	if broader, ok := broaderCategories[theme]; ok {
		return broader
	}
	return "general"
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	var out []string
	for _, word := range words {
		if !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
	}
	return out
}
