// internal/search/score.go
package search

import (
	"strings"

	"brickkit/internal/models"
)

var raceWords = []string{"race", "racing", "formula", "f1", "nascar", "speed"}
var trainWords = []string{"train", "railroad", "railway", "locomotive"}
var sportsWords = []string{"sports", "supercar", "ferrari", "lamborghini", "porsche"}

// irrelevantPatterns marks results that clearly contradict the requested
// theme, e.g. a locomotive when the user asked for a race car.
var irrelevantPatterns = map[string][]string{
	"race_car": {"train", "railroad", "railway", "locomotive", "house", "building", "castle"},
	"train":    {"race", "racing", "sports car", "ferrari", "lamborghini"},
	"aircraft": {"car", "truck", "ship", "boat", "house", "building"},
	"space":    {"car", "truck", "house", "building", "train"},
	"building": {"car", "truck", "aircraft", "spaceship", "train"},
}

// Relevance scores a candidate against the analyzed prompt. Simple prompts
// use direct lexical matching; prompts that carry semantic expansion use the
// concept-aware variant. The result is clamped to [0, 1].
func Relevance(prompt *models.Prompt, candidate *models.CandidateModel) float64 {
	nameLower := strings.ToLower(candidate.Name)
	themeLower := strings.ToLower(candidate.Theme)

	var score float64
	if len(prompt.RelatedConcepts) == 0 {
		score = directScore(prompt, nameLower, themeLower)
	} else {
		score = semanticScore(prompt, nameLower, themeLower)
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func directScore(prompt *models.Prompt, nameLower, themeLower string) float64 {
	score := 0.0
	theme := prompt.PrimaryTheme()

	switch theme {
	case "race_car":
		switch {
		case containsAny(nameLower, raceWords):
			score += 0.8
		case containsAny(nameLower, trainWords):
			score -= 0.5
		case strings.Contains(nameLower, "car"):
			score += 0.3
		}
	case "regular_car":
		if containsAny(nameLower, []string{"car", "automobile", "vehicle"}) {
			if containsAny(nameLower, trainWords) {
				score -= 0.3
			} else {
				score += 0.6
			}
		}
	case "train":
		if containsAny(nameLower, trainWords) {
			score += 0.8
		} else if strings.Contains(nameLower, "car") && !containsAny(nameLower, []string{"race", "racing", "sports"}) {
			score += 0.4
		}
	case "sports_car":
		if containsAny(nameLower, sportsWords) {
			score += 0.8
		} else if strings.Contains(nameLower, "car") {
			score += 0.4
		}
	default:
		if strings.Contains(nameLower, theme) || strings.Contains(themeLower, theme) {
			score += 0.5
		}
	}

	for _, color := range prompt.Colors {
		if strings.Contains(nameLower, strings.ToLower(color)) {
			score += 0.3
		}
	}
	for _, constraint := range prompt.Constraints {
		if strings.Contains(nameLower, strings.ToLower(constraint)) {
			score += 0.2
		}
	}
	for _, keyword := range prompt.Keywords {
		if strings.Contains(nameLower, strings.ToLower(keyword)) {
			score += 0.1
		}
	}

	// Exact phrase bonus
	if theme == "race_car" && strings.Contains(nameLower, "race car") {
		score += 0.2
	} else if theme == "sports_car" && strings.Contains(nameLower, "sports car") {
		score += 0.2
	}

	return score
}

func semanticScore(prompt *models.Prompt, nameLower, themeLower string) float64 {
	score := 0.0
	theme := prompt.PrimaryTheme()

	if theme != "general" && strings.Contains(nameLower, theme) {
		score += 0.4
	}

	for _, color := range prompt.Colors {
		if strings.Contains(nameLower, strings.ToLower(color)) {
			score += 0.3
		}
	}
	for _, constraint := range prompt.Constraints {
		if strings.Contains(nameLower, strings.ToLower(constraint)) {
			score += 0.2
		}
	}

	keywordMatches := 0
	for _, keyword := range prompt.Keywords {
		if strings.Contains(nameLower, strings.ToLower(keyword)) {
			keywordMatches++
			score += 0.15
		}
	}
	if keywordMatches >= 2 {
		score += 0.1
	}

	conceptMatches := 0
	for _, concept := range prompt.RelatedConcepts {
		if strings.Contains(nameLower, strings.ToLower(concept)) {
			conceptMatches++
			score += 0.2
		}
	}
	if conceptMatches >= 2 {
		score += 0.15
	}

	hintMatches := 0
	for _, hint := range prompt.SearchHints {
		if strings.Contains(nameLower, strings.ToLower(hint)) {
			hintMatches++
			score += 0.1
		}
	}
	if hintMatches >= 3 {
		score += 0.1
	}

	if isIrrelevantMatch(theme, nameLower) {
		score -= 0.3
	}

	return score
}

func isIrrelevantMatch(theme, nameLower string) bool {
	patterns, ok := irrelevantPatterns[theme]
	if !ok {
		return false
	}
	return containsAny(nameLower, patterns)
}

func containsAny(s string, words []string) bool {
	for _, word := range words {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}
