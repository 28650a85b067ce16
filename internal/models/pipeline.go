// internal/models/pipeline.go
package models

import "time"

// StepImage is one rendered build step. Index starts at 1 and is the sole
// ordering key for the instruction document.
type StepImage struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// BOMEntry is an aggregated parts line. Quantities are pre-summed per
// (part, color) pair and never negative.
type BOMEntry struct {
	Part     string `json:"part"`
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

// InstructionSet holds the generated build artifacts for one model.
// Steps may be empty for models without step markers; the BOM is always set.
type InstructionSet struct {
	SetNumber string      `json:"setNumber"`
	Steps     []StepImage `json:"steps"`
	BOM       []BOMEntry  `json:"bom"`
	StepCount int         `json:"stepCount"`
}

// Document references an assembled instruction PDF.
type Document struct {
	Path      string `json:"path"`
	PageCount int    `json:"pageCount"`
}

// PipelineStatus is the terminal state of one pipeline request.
type PipelineStatus string

const (
	StatusCompleted PipelineStatus = "completed"
	StatusNoMatch   PipelineStatus = "no_match"
	StatusPartial   PipelineStatus = "partial"
	StatusFailed    PipelineStatus = "failed"
)

// PipelineResult is the structured outcome of a request. Instructions and
// Document are nil when their stages were skipped or failed best-effort.
type PipelineResult struct {
	RequestID    string           `json:"requestId"`
	Prompt       string           `json:"prompt"`
	Status       PipelineStatus   `json:"status"`
	Selection    *SelectionResult `json:"selection,omitempty"`
	Model        *CachedModel     `json:"model,omitempty"`
	Instructions *InstructionSet  `json:"instructions,omitempty"`
	Document     *Document        `json:"document,omitempty"`
	ErrorDetail  string           `json:"errorDetail,omitempty"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// ProgressEvent is an advisory notification emitted as stages complete.
type ProgressEvent struct {
	RequestID string                 `json:"requestId"`
	Stage     string                 `json:"stage"`
	Timestamp time.Time              `json:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Progress stage names in emission order.
const (
	StageAnalyzed          = "analyzed"
	StageSearched          = "searched"
	StageSelected          = "selected"
	StageDownloaded        = "downloaded"
	StageInstructionsBuilt = "instructions_built"
	StageDocumentAssembled = "document_assembled"
)
