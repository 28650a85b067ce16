// internal/models/catalog.go
package models

import "time"

// CandidateModel is one catalog entry returned by a search.
type CandidateModel struct {
	SetNumber string  `json:"setNumber"`
	Name      string  `json:"name"`
	Theme     string  `json:"theme,omitempty"`
	URL       string  `json:"url"`
	Year      int     `json:"year,omitempty"`
	Score     float64 `json:"score"`
	Strategy  string  `json:"strategy,omitempty"`
}

// ModelVariant is one downloadable file variant of a catalog set. The
// catalog typically exposes a main file plus small/large/alternate builds.
type ModelVariant struct {
	Name        string  `json:"name"`
	DownloadURL string  `json:"downloadUrl"`
	FileType    string  `json:"fileType"`
	Score       float64 `json:"score"`
}

// SelectionResult records which candidate was chosen and how.
type SelectionResult struct {
	Candidate    CandidateModel `json:"candidate"`
	Rationale    string         `json:"rationale,omitempty"`
	Confidence   float64        `json:"confidence"`
	FallbackUsed bool           `json:"fallbackUsed"`
}

// CachedModel is a committed cache entry for a downloaded model file.
type CachedModel struct {
	Fingerprint string    `json:"fingerprint"`
	SetNumber   string    `json:"setNumber"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	FetchedAt   time.Time `json:"fetchedAt"`
	LastAccess  time.Time `json:"lastAccess"`
}
