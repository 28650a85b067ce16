// Package search chooses and executes retrieval strategies against the
// model catalog: direct keyword queries for simple prompts, semantic index
// queries for complex ones, and progressive constraint relaxation when
// nothing acceptable comes back.
package search

import (
	"context"
	"sort"

	"brickkit/internal/common/config"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

// Backend runs direct keyword queries, normally the catalog HTTP client.
type Backend interface {
	Search(ctx context.Context, terms []string) ([]models.CandidateModel, error)
}

// SemanticBackend runs expanded queries against the catalog index. Optional;
// the engine degrades to the direct backend when none is configured.
type SemanticBackend interface {
	SemanticSearch(ctx context.Context, terms []string, size int) ([]models.CandidateModel, error)
}

const acceptScoreThreshold = 0.3

type Config struct {
	MinResults      int
	MaxRelaxations  int
	RelaxationOrder []string
	MaxCandidates   int
}

func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		MinResults:      cfg.Search.MinResults,
		MaxRelaxations:  cfg.Search.MaxRelaxations,
		RelaxationOrder: cfg.Search.RelaxationOrder,
		MaxCandidates:   cfg.Search.MaxCandidates,
	}
}

type Engine struct {
	config   *Config
	backend  Backend
	semantic SemanticBackend // nil when no index is configured
	logger   logger.Logger
}

func NewEngine(config *Config, backend Backend, semantic SemanticBackend, log logger.Logger) *Engine {
	return &Engine{
		config:   config,
		backend:  backend,
		semantic: semantic,
		logger:   log.WithFields(map[string]interface{}{"component": "search"}),
	}
}

// Search runs the strategy ladder for an analyzed prompt and returns scored,
// deduplicated candidates, best first. An empty result is a valid outcome,
// not an error.
func (e *Engine) Search(ctx context.Context, prompt *models.Prompt) ([]models.CandidateModel, error) {
	strategies := generateStrategies(prompt)

	var lastAttempt []models.CandidateModel
	var queryErr error

	for _, s := range strategies {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		results, err := e.run(ctx, s, prompt)
		if err != nil {
			queryErr = err
			e.logger.Warn("search strategy failed", map[string]interface{}{
				"strategy": s.Strategy,
				"error":    err.Error(),
			})
			continue
		}
		if len(results) == 0 {
			continue
		}
		lastAttempt = results

		if e.acceptable(s.Strategy, results) {
			e.logger.Info("search strategy accepted", map[string]interface{}{
				"strategy": s.Strategy,
				"results":  len(results),
			})
			return e.finalize(results), nil
		}
	}

	// No strategy was ideal; a thin last attempt still beats relaxing away
	// the user's constraints.
	if len(lastAttempt) > 0 {
		return e.finalize(lastAttempt), nil
	}

	results, err := e.relax(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && queryErr != nil {
		return nil, queryErr
	}
	return e.finalize(results), nil
}

func (e *Engine) run(ctx context.Context, s models.SearchQuery, prompt *models.Prompt) ([]models.CandidateModel, error) {
	var results []models.CandidateModel
	var err error

	if s.Kind == models.QuerySemantic && e.semantic != nil {
		results, err = e.semantic.SemanticSearch(ctx, s.Terms, e.config.MaxCandidates)
	} else {
		results, err = e.backend.Search(ctx, s.Terms)
	}
	if err != nil {
		return nil, err
	}

	scored := make([]models.CandidateModel, 0, len(results))
	for _, c := range results {
		c.Score = Relevance(prompt, &c)
		c.Strategy = s.Strategy
		scored = append(scored, c)
	}
	return scored, nil
}

// acceptable applies the per-strategy quality gate. The exact prompt is
// trusted with any hit; every other strategy needs volume or a strong score.
func (e *Engine) acceptable(strategyName string, results []models.CandidateModel) bool {
	if strategyName == "exact_prompt" {
		return len(results) > 0
	}
	if len(results) >= e.config.MinResults {
		return true
	}
	for _, r := range results {
		if r.Score > acceptScoreThreshold {
			return true
		}
	}
	return false
}

// relax drops one constraint class at a time in the configured order and
// stops at the first non-empty result set.
func (e *Engine) relax(ctx context.Context, prompt *models.Prompt) ([]models.CandidateModel, error) {
	current := prompt
	steps := e.config.RelaxationOrder
	if len(steps) > e.config.MaxRelaxations {
		steps = steps[:e.config.MaxRelaxations]
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		current = relaxed(current, step)
		terms := relaxedTerms(current)
		if len(terms) == 0 {
			continue
		}

		e.logger.Info("relaxing search constraints", map[string]interface{}{
			"step":  step,
			"terms": terms,
		})

		results, err := e.run(ctx, models.SearchQuery{Strategy: "relaxed_" + step, Terms: terms, Kind: models.QueryRefined}, current)
		if err != nil {
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, nil
}

// finalize merges duplicates, sorts by score and truncates to the candidate
// budget. Duplicate set numbers keep the highest score; on a tie the earlier
// strategy wins (direct before semantic before refined).
func (e *Engine) finalize(results []models.CandidateModel) []models.CandidateModel {
	byNumber := make(map[string]models.CandidateModel, len(results))
	order := make([]string, 0, len(results))

	for _, c := range results {
		existing, seen := byNumber[c.SetNumber]
		if !seen {
			byNumber[c.SetNumber] = c
			order = append(order, c.SetNumber)
			continue
		}
		if c.Score > existing.Score {
			byNumber[c.SetNumber] = c
		}
	}

	merged := make([]models.CandidateModel, 0, len(order))
	for _, number := range order {
		merged = append(merged, byNumber[number])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if e.config.MaxCandidates > 0 && len(merged) > e.config.MaxCandidates {
		merged = merged[:e.config.MaxCandidates]
	}
	return merged
}
