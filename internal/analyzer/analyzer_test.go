package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brickkit/internal/common/config"
	"brickkit/internal/common/database"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		CacheTTL:   time.Minute,
	}
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	a := New(testConfig(""), nil, logger.NewNoOpLogger())

	for _, input := range []string{"", "   ", "\t\n"} {
		_, err := a.Analyze(context.Background(), input)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, stderrors.ErrCodeInvalidInput, stderrors.CodeOf(err))
		assert.False(t, stderrors.IsRetryable(err))
	}
}

func TestAnalyzeSimplePrompt(t *testing.T) {
	a := New(testConfig(""), nil, logger.NewNoOpLogger())

	prompt, err := a.Analyze(context.Background(), "red race car")
	require.NoError(t, err)
	assert.Equal(t, models.ComplexitySimple, prompt.Complexity)
	assert.Equal(t, "race_car", prompt.PrimaryTheme())
	assert.Equal(t, []string{"red"}, prompt.Colors)
	assert.Contains(t, prompt.Keywords, "race")
	assert.Equal(t, models.SizeUnspecified, prompt.SizeHint)
}

func TestDetectTheme(t *testing.T) {
	tests := []struct {
		prompt string
		theme  string
	}{
		{"red race car", "race_car"},
		{"batmobile", "batmobile"},
		{"a small blue train", "train"},
		{"ferrari supercar", "sports_car"},
		{"medieval castle", "castle"},
		{"fighter jet", "fighter_jet"},
		{"something abstract", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.theme, detectTheme(tt.prompt))
		})
	}
}

func TestIsSimple(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		simple bool
	}{
		{"short with theme", "red race car", true},
		{"no theme", "something beautiful", false},
		{"complex concept", "futuristic car", false},
		{"too many words", "a very long detailed red racing car description", false},
		{"short train", "blue train", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct := analyzeDirect(tt.prompt)
			assert.Equal(t, tt.simple, isSimple(tt.prompt, direct))
		})
	}
}

func TestAnalyzeComplexPromptUsesLanguageService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/analyze-prompt", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "futuristic flying car", body["prompt"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"theme":            "spaceship",
			"keywords":         []string{"futuristic", "flying", "car", "hover"},
			"related_concepts": []string{"space", "sci-fi", "aircraft"},
			"search_hints":     []string{"hover car", "space vehicle"},
		})
	}))
	defer server.Close()

	a := New(testConfig(server.URL), nil, logger.NewNoOpLogger())
	prompt, err := a.Analyze(context.Background(), "futuristic flying car")
	require.NoError(t, err)
	assert.Equal(t, models.ComplexityComplex, prompt.Complexity)
	assert.Equal(t, "spaceship", prompt.PrimaryTheme())
	assert.Contains(t, prompt.RelatedConcepts, "sci-fi")
}

func TestAnalyzeFallsBackToRuleBasedExpansion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := New(testConfig(server.URL), nil, logger.NewNoOpLogger())
	prompt, err := a.Analyze(context.Background(), "futuristic flying car")
	require.NoError(t, err)
	assert.Equal(t, models.ComplexityComplex, prompt.Complexity)
	assert.Contains(t, prompt.RelatedConcepts, "sci-fi")
	assert.Contains(t, prompt.RelatedConcepts, "aircraft")
	assert.Contains(t, prompt.Keywords, "neon")
}

func TestAnalyzeCachesByExactText(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := database.NewRedis(config.RedisConfig{Enabled: true, Address: mr.Addr()})
	require.NoError(t, err)
	defer cache.Close()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{"theme": "spaceship"})
	}))
	defer server.Close()

	a := New(testConfig(server.URL), cache, logger.NewNoOpLogger())

	first, err := a.Analyze(context.Background(), "futuristic flying car")
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), "futuristic flying car")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.PrimaryTheme(), second.PrimaryTheme())
}

func TestSizeHintFrom(t *testing.T) {
	assert.Equal(t, models.SizeSmall, sizeHintFrom("tiny house"))
	assert.Equal(t, models.SizeLarge, sizeHintFrom("huge castle"))
	assert.Equal(t, models.SizeUnspecified, sizeHintFrom("race car"))
}
