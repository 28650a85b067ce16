package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"brickkit/internal/models"
)

func racePrompt() *models.Prompt {
	return &models.Prompt{
		Text:       "red race car",
		Themes:     []string{"race_car"},
		Colors:     []string{"red"},
		Keywords:   []string{"red", "race", "car"},
		Complexity: models.ComplexitySimple,
	}
}

func TestRelevanceDirect(t *testing.T) {
	tests := []struct {
		name      string
		candidate models.CandidateModel
		min       float64
		max       float64
	}{
		{
			name:      "red race car scores near top",
			candidate: models.CandidateModel{SetNumber: "8147-1", Name: "Red Race Car", Theme: "Racers"},
			min:       0.9,
			max:       1.0,
		},
		{
			name:      "train car penalized",
			candidate: models.CandidateModel{SetNumber: "10015-1", Name: "Railway Passenger Car", Theme: "Trains"},
			min:       0.0,
			max:       0.1,
		},
		{
			name:      "plain car gets middling score",
			candidate: models.CandidateModel{SetNumber: "3177-1", Name: "Small Car", Theme: "City"},
			min:       0.3,
			max:       0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Relevance(racePrompt(), &tt.candidate)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestRelevanceClampedToUnitInterval(t *testing.T) {
	prompt := racePrompt()
	prompt.Constraints = []string{"detailed", "advanced"}

	best := models.CandidateModel{Name: "Red Detailed Advanced Race Car Racing"}
	assert.Equal(t, 1.0, Relevance(prompt, &best))

	worst := models.CandidateModel{Name: "Locomotive"}
	assert.Equal(t, 0.0, Relevance(prompt, &worst))
}

func TestRelevanceSemantic(t *testing.T) {
	prompt := &models.Prompt{
		Text:            "futuristic flying car",
		Keywords:        []string{"futuristic", "flying", "car"},
		RelatedConcepts: []string{"space", "sci-fi", "aircraft"},
		SearchHints:     []string{"hover car"},
		Complexity:      models.ComplexityComplex,
	}

	spacecraft := models.CandidateModel{Name: "Space Aircraft Carrier"}
	high := Relevance(prompt, &spacecraft)

	unrelated := models.CandidateModel{Name: "Flower Shop"}
	low := Relevance(prompt, &unrelated)

	assert.Greater(t, high, low)
	assert.Greater(t, high, 0.3)
}

func TestIsIrrelevantMatch(t *testing.T) {
	assert.True(t, isIrrelevantMatch("race_car", "cargo train set"))
	assert.False(t, isIrrelevantMatch("race_car", "speed champions racer"))
	assert.False(t, isIrrelevantMatch("unknown_theme", "anything"))
}
