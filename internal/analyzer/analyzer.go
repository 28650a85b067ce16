// Package analyzer turns a free-text model request into a structured prompt
// analysis. Simple prompts are resolved from the built-in lexicons; complex
// prompts go to the external language service with a rule-based fallback
// that always succeeds.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"brickkit/internal/common/config"
	"brickkit/internal/common/database"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/httpx"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

var (
	ErrInvalidInput   = errors.New("INVALID_INPUT")
	ErrAnalysisFailed = errors.New("ANALYSIS_FAILED")
)

const cacheKeyPrefix = "analyzer:prompt:"

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration
}

func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		BaseURL:    cfg.Analyzer.BaseURL,
		APIKey:     cfg.Analyzer.APIKey,
		Timeout:    config.GetDuration(cfg.Analyzer.Timeout),
		MaxRetries: cfg.Analyzer.MaxRetries,
		CacheTTL:   config.GetDuration(cfg.Analyzer.CacheTTL),
	}
}

type Analyzer struct {
	config *Config
	http   *httpx.Client
	cache  *database.RedisClient // nil when caching is disabled
	logger logger.Logger
}

func New(config *Config, cache *database.RedisClient, log logger.Logger) *Analyzer {
	return &Analyzer{
		config: config,
		http:   httpx.NewClient(config.Timeout, config.MaxRetries),
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"component": "analyzer"}),
	}
}

// Analyze validates and classifies a prompt. The returned analysis is
// cached by exact prompt text so identical input yields the identical
// strategy choice within a run.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*models.Prompt, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, stderrors.NewInvalidInputError("prompt text is empty"))
	}

	if cached := a.fromCache(ctx, trimmed); cached != nil {
		return cached, nil
	}

	direct := analyzeDirect(trimmed)

	var result *models.Prompt
	if isSimple(trimmed, direct) {
		direct.Complexity = models.ComplexitySimple
		result = direct
	} else {
		direct.Complexity = models.ComplexityComplex
		enhanced, err := a.analyzeSemantic(ctx, trimmed, direct)
		if err != nil {
			a.logger.Warn("semantic analysis failed, using rule-based expansion", map[string]interface{}{
				"error": err.Error(),
			})
			enhanced = enhance(trimmed, direct)
		}
		result = enhanced
	}

	a.toCache(ctx, trimmed, result)
	return result, nil
}

// analyzeDirect runs pure lexicon matching. It never fails.
func analyzeDirect(text string) *models.Prompt {
	lower := strings.ToLower(text)

	prompt := &models.Prompt{
		Text:        text,
		Colors:      extractColors(lower),
		Constraints: extractConstraints(lower),
		Keywords:    meaningfulWords(lower),
		SizeHint:    sizeHintFrom(lower),
	}
	if theme := detectTheme(lower); theme != "general" {
		prompt.Themes = []string{theme}
	}
	return prompt
}

// isSimple reports whether the prompt can skip semantic analysis: three or
// fewer meaningful words, a known theme, and no complex concept.
func isSimple(text string, direct *models.Prompt) bool {
	lower := strings.ToLower(text)
	return len(meaningfulWords(lower)) <= 3 &&
		direct.PrimaryTheme() != "general" &&
		!hasComplexConcept(lower)
}

type semanticResponse struct {
	Theme           string   `json:"theme"`
	Colors          []string `json:"colors"`
	Constraints     []string `json:"constraints"`
	Keywords        []string `json:"keywords"`
	RelatedConcepts []string `json:"related_concepts"`
	SearchHints     []string `json:"search_hints"`
}

// analyzeSemantic asks the language service to interpret the prompt. Any
// transport or decode failure is returned for the caller to fall back on.
func (a *Analyzer) analyzeSemantic(ctx context.Context, text string, direct *models.Prompt) (*models.Prompt, error) {
	requestBody := map[string]interface{}{
		"prompt":      text,
		"theme":       direct.PrimaryTheme(),
		"colors":      direct.Colors,
		"constraints": direct.Constraints,
	}
	body, _ := json.Marshal(requestBody)

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.http.DoWithRetry(ctx, http.MethodPost, a.config.BaseURL+"/api/ai/analyze-prompt", body, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()

	var parsed semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrAnalysisFailed, err)
	}

	result := &models.Prompt{
		Text:            text,
		Colors:          direct.Colors,
		Constraints:     direct.Constraints,
		Keywords:        direct.Keywords,
		RelatedConcepts: parsed.RelatedConcepts,
		SearchHints:     parsed.SearchHints,
		SizeHint:        direct.SizeHint,
		Complexity:      models.ComplexityComplex,
	}
	if len(parsed.Colors) > 0 {
		result.Colors = parsed.Colors
	}
	if len(parsed.Constraints) > 0 {
		result.Constraints = parsed.Constraints
	}
	if len(parsed.Keywords) > 0 {
		result.Keywords = dedupe(parsed.Keywords)
	}
	theme := parsed.Theme
	if theme == "" {
		theme = direct.PrimaryTheme()
	}
	if theme != "general" {
		result.Themes = []string{theme}
	}
	return result, nil
}

// enhance is the rule-based expansion used when the language service is
// unreachable. It expands known concepts into their searchable neighbors.
func enhance(text string, direct *models.Prompt) *models.Prompt {
	lower := strings.ToLower(text)

	var related []string
	for _, concept := range complexConcepts {
		if expansion, ok := conceptMappings[concept]; ok && strings.Contains(lower, concept) {
			related = append(related, expansion...)
		}
	}

	keywords := append([]string{}, direct.Keywords...)
	keywords = append(keywords, related...)
	var filtered []string
	for _, word := range keywords {
		if len(word) > 2 && !stopWords[word] && !buildWords[word] {
			filtered = append(filtered, word)
		}
	}

	return &models.Prompt{
		Text:            text,
		Themes:          direct.Themes,
		Colors:          direct.Colors,
		Constraints:     direct.Constraints,
		Keywords:        dedupe(filtered),
		RelatedConcepts: related,
		SearchHints:     related,
		SizeHint:        direct.SizeHint,
		Complexity:      models.ComplexityComplex,
	}
}

func sizeHintFrom(lower string) models.SizeHint {
	for _, word := range []string{"small", "tiny", "mini", "micro"} {
		if strings.Contains(lower, word) {
			return models.SizeSmall
		}
	}
	for _, word := range []string{"large", "big", "huge"} {
		if strings.Contains(lower, word) {
			return models.SizeLarge
		}
	}
	if strings.Contains(lower, "medium") {
		return models.SizeMedium
	}
	return models.SizeUnspecified
}

func (a *Analyzer) fromCache(ctx context.Context, text string) *models.Prompt {
	if a.cache == nil {
		return nil
	}
	raw, err := a.cache.Get(ctx, cacheKeyPrefix+text)
	if err != nil || raw == "" {
		return nil
	}
	var prompt models.Prompt
	if err := json.Unmarshal([]byte(raw), &prompt); err != nil {
		return nil
	}
	return &prompt
}

func (a *Analyzer) toCache(ctx context.Context, text string, prompt *models.Prompt) {
	if a.cache == nil {
		return
	}
	raw, err := json.Marshal(prompt)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, cacheKeyPrefix+text, string(raw), a.config.CacheTTL); err != nil {
		a.logger.Warn("failed to cache prompt analysis", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
