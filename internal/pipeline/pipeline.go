// Package pipeline sequences one request end to end: prompt analysis,
// catalog search, candidate selection, model download, instruction
// generation and document assembly. Every run produces a structured
// PipelineResult; stage failures map to the statuses no_match, partial and
// failed rather than bare errors.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"brickkit/internal/analyzer"
	"brickkit/internal/catalog"
	"brickkit/internal/common/config"
	"brickkit/internal/common/database"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/common/metrics"
	"brickkit/internal/common/observability"
	"brickkit/internal/document"
	"brickkit/internal/instructions"
	"brickkit/internal/modelcache"
	"brickkit/internal/models"
	"brickkit/internal/selector"
)

// progressChannel is the Redis pub/sub channel progress events mirror to.
const progressChannel = "brickkit:progress"

type Analyzer interface {
	Analyze(ctx context.Context, text string) (*models.Prompt, error)
}

type Searcher interface {
	Search(ctx context.Context, prompt *models.Prompt) ([]models.CandidateModel, error)
}

type Chooser interface {
	Select(ctx context.Context, prompt *models.Prompt, candidates []models.CandidateModel) (*models.SelectionResult, error)
}

type ModelCache interface {
	Acquire(ctx context.Context, candidate *models.CandidateModel) (*models.CachedModel, error)
	Release(fingerprint string)
}

type InstructionBuilder interface {
	Build(ctx context.Context, cached *models.CachedModel) (*models.InstructionSet, error)
}

type DocumentAssembler interface {
	Assemble(set *models.InstructionSet, info *models.CandidateModel) (*models.Document, error)
}

type ResultSink interface {
	Save(ctx context.Context, result *models.PipelineResult) error
}

type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, result *models.PipelineResult) error
}

type Config struct {
	ProgressBuffer      int
	RequireInstructions bool
}

func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		ProgressBuffer:      cfg.Pipeline.ProgressBuffer,
		RequireInstructions: cfg.Pipeline.RequireInstructions,
	}
}

// Deps carries the stage components. Store, Notifier, Observability and
// Redis are optional; a nil value disables that concern.
type Deps struct {
	Analyzer      Analyzer
	Search        Searcher
	Selector      Chooser
	Cache         ModelCache
	Instructions  InstructionBuilder
	Documents     DocumentAssembler
	Store         ResultSink
	Notifier      CompletionNotifier
	Observability *observability.Observability
	Redis         *database.RedisClient
}

type Pipeline struct {
	config   Config
	deps     Deps
	logger   logger.Logger
	progress chan models.ProgressEvent
}

func New(cfg Config, deps Deps, log logger.Logger) *Pipeline {
	if cfg.ProgressBuffer <= 0 {
		cfg.ProgressBuffer = 64
	}
	return &Pipeline{
		config:   cfg,
		deps:     deps,
		logger:   log.WithFields(map[string]interface{}{"component": "pipeline"}),
		progress: make(chan models.ProgressEvent, cfg.ProgressBuffer),
	}
}

// Progress exposes the advisory event stream. The stream is shared by the
// whole Pipeline, not scoped to one request: events from concurrent Run
// calls interleave and must be demultiplexed by RequestID. Events are
// dropped oldest first when no observer keeps up; Run never blocks on
// this channel.
func (p *Pipeline) Progress() <-chan models.ProgressEvent {
	return p.progress
}

// Request is one pipeline invocation. ModelOnly stops after the model is
// cached and skips the instruction and document stages.
type Request struct {
	Prompt    string
	ModelOnly bool
}

// Run executes one request. The returned result is never nil; err is
// non-nil only for hard failures (result.Status == failed).
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.PipelineResult, error) {
	result := &models.PipelineResult{
		RequestID: uuid.New().String(),
		Prompt:    req.Prompt,
		StartedAt: time.Now().UTC(),
	}
	log := p.logger.WithFields(map[string]interface{}{"requestId": result.RequestID})
	log.Info("pipeline started", map[string]interface{}{"prompt": req.Prompt})

	prompt, err := p.analyze(ctx, req.Prompt)
	if err != nil {
		return p.fail(ctx, result, err)
	}
	p.emit(result.RequestID, models.StageAnalyzed, map[string]interface{}{
		"theme":      prompt.PrimaryTheme(),
		"complexity": string(prompt.Complexity),
	})

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, result, err)
	}

	candidates, err := p.searchCatalog(ctx, prompt)
	if err != nil {
		return p.fail(ctx, result, err)
	}
	p.emit(result.RequestID, models.StageSearched, map[string]interface{}{
		"candidates": len(candidates),
	})
	if len(candidates) == 0 {
		log.Info("no candidates found", map[string]interface{}{"prompt": req.Prompt})
		result.Status = models.StatusNoMatch
		p.finish(result)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, result, err)
	}

	selection, err := p.choose(ctx, prompt, candidates)
	if err != nil {
		return p.fail(ctx, result, err)
	}
	result.Selection = selection
	p.emit(result.RequestID, models.StageSelected, map[string]interface{}{
		"setNumber": selection.Candidate.SetNumber,
		"fallback":  selection.FallbackUsed,
	})

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, result, err)
	}

	cached, err := p.acquire(ctx, &selection.Candidate)
	if err != nil {
		return p.fail(ctx, result, err)
	}
	defer p.deps.Cache.Release(cached.Fingerprint)
	result.Model = cached
	p.emit(result.RequestID, models.StageDownloaded, map[string]interface{}{
		"fingerprint": cached.Fingerprint,
		"bytes":       cached.Size,
	})

	if req.ModelOnly {
		result.Status = models.StatusCompleted
		p.finish(result)
		log.Info("pipeline completed", map[string]interface{}{
			"setNumber": selection.Candidate.SetNumber,
			"modelPath": cached.Path,
		})
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, result, err)
	}

	set, err := p.buildInstructions(ctx, cached)
	if err != nil {
		if p.config.RequireInstructions {
			return p.fail(ctx, result, err)
		}
		log.Warn("instruction generation failed, returning model only", map[string]interface{}{
			"error": err.Error(),
		})
		result.Status = models.StatusPartial
		result.ErrorDetail = err.Error()
		p.finish(result)
		return result, nil
	}
	result.Instructions = set
	p.emit(result.RequestID, models.StageInstructionsBuilt, map[string]interface{}{
		"steps": len(set.Steps),
		"parts": len(set.BOM),
	})

	doc, err := p.assemble(set, &selection.Candidate)
	if err != nil {
		if p.config.RequireInstructions {
			return p.fail(ctx, result, err)
		}
		log.Warn("document assembly failed, returning instructions only", map[string]interface{}{
			"error": err.Error(),
		})
		result.Status = models.StatusPartial
		result.ErrorDetail = err.Error()
		p.finish(result)
		return result, nil
	}
	result.Document = doc
	p.emit(result.RequestID, models.StageDocumentAssembled, map[string]interface{}{
		"path":  doc.Path,
		"pages": doc.PageCount,
	})

	result.Status = models.StatusCompleted
	p.finish(result)
	log.Info("pipeline completed", map[string]interface{}{
		"setNumber": selection.Candidate.SetNumber,
		"document":  doc.Path,
	})
	return result, nil
}

func (p *Pipeline) analyze(ctx context.Context, text string) (*models.Prompt, error) {
	start := time.Now()
	prompt, err := p.deps.Analyzer.Analyze(ctx, text)
	p.observeStage(ctx, "analyze", start, err)
	return prompt, err
}

func (p *Pipeline) searchCatalog(ctx context.Context, prompt *models.Prompt) ([]models.CandidateModel, error) {
	start := time.Now()
	candidates, err := p.deps.Search.Search(ctx, prompt)
	p.observeStage(ctx, "search", start, err)
	return candidates, err
}

func (p *Pipeline) choose(ctx context.Context, prompt *models.Prompt, candidates []models.CandidateModel) (*models.SelectionResult, error) {
	start := time.Now()
	selection, err := p.deps.Selector.Select(ctx, prompt, candidates)
	p.observeStage(ctx, "select", start, err)
	return selection, err
}

func (p *Pipeline) acquire(ctx context.Context, candidate *models.CandidateModel) (*models.CachedModel, error) {
	start := time.Now()
	cached, err := p.deps.Cache.Acquire(ctx, candidate)
	p.observeStage(ctx, "download", start, err)
	return cached, err
}

func (p *Pipeline) buildInstructions(ctx context.Context, cached *models.CachedModel) (*models.InstructionSet, error) {
	start := time.Now()
	set, err := p.deps.Instructions.Build(ctx, cached)
	p.observeStage(ctx, "instructions", start, err)
	return set, err
}

func (p *Pipeline) assemble(set *models.InstructionSet, info *models.CandidateModel) (*models.Document, error) {
	start := time.Now()
	doc, err := p.deps.Documents.Assemble(set, info)
	p.observeStage(context.Background(), "document", start, err)
	return doc, err
}

func (p *Pipeline) fail(ctx context.Context, result *models.PipelineResult, err error) (*models.PipelineResult, error) {
	result.Status = models.StatusFailed
	result.ErrorDetail = err.Error()
	p.finish(result)
	p.logger.Error("pipeline failed", map[string]interface{}{
		"requestId": result.RequestID,
		"errorCode": errorCode(err),
		"retryable": stderrors.IsRetryable(err),
		"error":     err.Error(),
	})
	return result, err
}

// finish stamps the terminal timestamp and best-effort persists and
// notifies. Run outcomes never depend on either side effect.
func (p *Pipeline) finish(result *models.PipelineResult) {
	result.FinishedAt = time.Now().UTC()

	// Detached from the request context so a canceled run still records
	// its terminal state.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if p.deps.Store != nil {
		if err := p.deps.Store.Save(ctx, result); err != nil {
			p.logger.Error("result persistence failed", map[string]interface{}{
				"requestId": result.RequestID,
				"error":     err.Error(),
			})
		}
	}
	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.NotifyCompletion(ctx, result); err != nil {
			p.logger.Warn("completion notification failed", map[string]interface{}{
				"requestId": result.RequestID,
				"error":     err.Error(),
			})
		}
	}
}

func (p *Pipeline) observeStage(ctx context.Context, stage string, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())

	status := "success"
	if err != nil {
		status = "error"
		metrics.PipelineStagesFailed.WithLabelValues(stage, errorCode(err)).Inc()
	} else {
		metrics.PipelineStagesCompleted.WithLabelValues(stage).Inc()
	}
	if p.deps.Observability != nil {
		p.deps.Observability.RecordStageProcessed(ctx, stage, status)
		p.deps.Observability.RecordStageDuration(ctx, stage, elapsed, status)
	}
}

// emit publishes a progress event without ever blocking Run. When the
// buffer is full the oldest event is dropped first.
func (p *Pipeline) emit(requestID, stage string, meta map[string]interface{}) {
	ev := models.ProgressEvent{
		RequestID: requestID,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
		Meta:      meta,
	}

	select {
	case p.progress <- ev:
	default:
		select {
		case <-p.progress:
		default:
		}
		select {
		case p.progress <- ev:
		default:
		}
	}

	if p.deps.Redis != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.deps.Redis.GetClient().Publish(ctx, progressChannel, payload).Err(); err != nil {
			p.logger.Debug("progress publish failed", map[string]interface{}{
				"stage": stage,
				"error": err.Error(),
			})
		}
	}
}

// errorCode maps component errors onto stable metric labels. Structured
// errors carry their own code; plain sentinel errors are mapped here.
func errorCode(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELED"
	}
	if code := stderrors.CodeOf(err); code != "UNKNOWN_ERROR" {
		return string(code)
	}
	switch {
	case errors.Is(err, analyzer.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, selector.ErrNoCandidates):
		return "NO_CANDIDATES"
	case errors.Is(err, modelcache.ErrDownloadCorrupt):
		return "DOWNLOAD_CORRUPT"
	case errors.Is(err, modelcache.ErrDownloadFailed):
		return "DOWNLOAD_FAILED"
	case errors.Is(err, modelcache.ErrNoVariants):
		return "NO_VARIANTS"
	case errors.Is(err, instructions.ErrGenerationFailed):
		return "INSTRUCTION_GENERATION_FAILED"
	case errors.Is(err, document.ErrEmptyDocument):
		return "EMPTY_DOCUMENT"
	case errors.Is(err, catalog.ErrSearchTimeout):
		return "SEARCH_TIMEOUT"
	case errors.Is(err, catalog.ErrSearchQueryFailed):
		return "SEARCH_QUERY_FAILED"
	default:
		return "UNKNOWN_ERROR"
	}
}
