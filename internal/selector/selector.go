// Package selector picks one candidate model using the external reasoning
// service. The service's answer is untrusted until it passes schema
// validation and a membership check against the candidate list; anything
// short of that falls back to the top-ranked candidate.
package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"brickkit/internal/common/config"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/httpx"
	"brickkit/internal/common/logger"
	"brickkit/internal/common/validation"
	"brickkit/internal/models"
)

var (
	ErrNoCandidates    = errors.New("NO_CANDIDATES")
	ErrSelectorFailed  = errors.New("SELECTOR_FAILED")
	ErrSelectorTimeout = errors.New("SELECTOR_TIMEOUT")
)

type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxCandidates int
}

func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		BaseURL:       cfg.Selector.BaseURL,
		APIKey:        cfg.Selector.APIKey,
		Timeout:       config.GetDuration(cfg.Selector.Timeout),
		MaxRetries:    cfg.Selector.MaxRetries,
		MaxCandidates: cfg.Selector.MaxCandidates,
	}
}

type Selector struct {
	config *Config
	http   *httpx.Client
	logger logger.Logger
}

func New(config *Config, log logger.Logger) *Selector {
	return &Selector{
		config: config,
		http:   httpx.NewClient(config.Timeout, config.MaxRetries),
		logger: log.WithFields(map[string]interface{}{"component": "selector"}),
	}
}

// Select chooses the best candidate for the prompt. It never returns a set
// number outside the candidate list, and never fails while candidates exist:
// a broken reasoning service degrades to the top-ranked fallback.
func (s *Selector) Select(ctx context.Context, prompt *models.Prompt, candidates []models.CandidateModel) (*models.SelectionResult, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoCandidates, stderrors.NewNoCandidatesError(prompt.Text))
	}

	limited := candidates
	if s.config.MaxCandidates > 0 && len(limited) > s.config.MaxCandidates {
		limited = limited[:s.config.MaxCandidates]
	}

	chosen, rationale, confidence, err := s.ask(ctx, prompt, limited)
	if err != nil {
		s.logger.Warn("reasoning service selection failed, using top-ranked fallback", map[string]interface{}{
			"error":      err.Error(),
			"candidates": len(limited),
		})
		return &models.SelectionResult{
			Candidate:    limited[0],
			Rationale:    "top-ranked fallback",
			Confidence:   limited[0].Score,
			FallbackUsed: true,
		}, nil
	}

	return &models.SelectionResult{
		Candidate:  *chosen,
		Rationale:  rationale,
		Confidence: confidence,
	}, nil
}

type selectionResponse struct {
	SetNumber  string  `json:"set_number"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

func (s *Selector) ask(ctx context.Context, prompt *models.Prompt, candidates []models.CandidateModel) (*models.CandidateModel, string, float64, error) {
	summaries := make([]map[string]interface{}, len(candidates))
	for i, c := range candidates {
		summaries[i] = map[string]interface{}{
			"position":   i + 1,
			"set_number": c.SetNumber,
			"name":       c.Name,
			"theme":      c.Theme,
			"year":       c.Year,
			"score":      c.Score,
		}
	}
	requestBody := map[string]interface{}{
		"prompt":     prompt.Text,
		"candidates": summaries,
	}
	body, _ := json.Marshal(requestBody)

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.http.DoWithRetry(ctx, http.MethodPost, s.config.BaseURL+"/api/ai/select-model", body, header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", 0, fmt.Errorf("%w: %w", ErrSelectorTimeout, stderrors.NewSelectorTimeoutError())
		}
		return nil, "", 0, fmt.Errorf("%w: %w", ErrSelectorFailed, stderrors.NewSelectorFailedError(err))
	}
	defer resp.Body.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, "", 0, fmt.Errorf("%w: decode error: %v", ErrSelectorFailed, err)
	}

	if err := validation.ValidateAgainstSchema(raw, validation.SelectionResponseSchema); err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrSelectorFailed, err)
	}

	var parsed selectionResponse
	rawBytes, _ := json.Marshal(raw)
	if err := json.Unmarshal(rawBytes, &parsed); err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrSelectorFailed, err)
	}

	chosen := findCandidate(candidates, parsed.SetNumber)
	if chosen == nil {
		return nil, "", 0, fmt.Errorf("%w: chose set %q outside the candidate list", ErrSelectorFailed, parsed.SetNumber)
	}
	return chosen, parsed.Rationale, parsed.Confidence, nil
}

func findCandidate(candidates []models.CandidateModel, setNumber string) *models.CandidateModel {
	target := strings.TrimSpace(setNumber)
	for i := range candidates {
		if candidates[i].SetNumber == target {
			return &candidates[i]
		}
	}
	return nil
}
