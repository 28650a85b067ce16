// Package catalog talks to the external model repository: keyword search and
// variant listing over its HTTP API, semantic search over a local
// Elasticsearch index of the same entries.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/httpx"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

var (
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout     = errors.New("SEARCH_TIMEOUT")
	ErrVariantListFailed = errors.New("VARIANT_LIST_FAILED")
	ErrDownloadFailed    = errors.New("DOWNLOAD_FAILED")
)

// variantScores orders downloadable file variants by preference.
var variantScores = map[string]float64{
	"main":      1.0,
	"small":     0.8,
	"large":     0.7,
	"default":   0.6,
	"alternate": 0.5,
}

type Client struct {
	config *Config
	http   *httpx.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		http:   httpx.NewClient(config.Timeout, config.MaxRetries),
		logger: log.WithFields(map[string]interface{}{"component": "catalog"}),
	}
}

type searchEntry struct {
	SetNumber string  `json:"set_number"`
	Name      string  `json:"name"`
	Theme     string  `json:"theme"`
	Year      int     `json:"year"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
}

// Search runs a keyword query against the repository HTTP API. No ordering
// is assumed from the remote side; callers score and sort the result.
func (c *Client) Search(ctx context.Context, terms []string) ([]models.CandidateModel, error) {
	query := strings.Join(terms, " ")
	endpoint := fmt.Sprintf("%s/search?query=%s", c.config.BaseURL, url.QueryEscape(query))

	resp, err := c.http.DoWithRetry(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrSearchTimeout, stderrors.NewSearchTimeoutError("keyword"))
		}
		return nil, fmt.Errorf("%w: %w", ErrSearchQueryFailed, stderrors.NewSearchQueryFailedError("keyword", err))
	}
	defer resp.Body.Close()

	var entries []searchEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrSearchQueryFailed, err)
	}

	candidates := make([]models.CandidateModel, 0, len(entries))
	for _, e := range entries {
		if e.SetNumber == "" {
			continue
		}
		candidates = append(candidates, models.CandidateModel{
			SetNumber: e.SetNumber,
			Name:      e.Name,
			Theme:     e.Theme,
			Year:      e.Year,
			URL:       e.URL,
			Score:     e.Score,
		})
	}

	c.logger.Debug("catalog search completed", map[string]interface{}{
		"query":   query,
		"results": len(candidates),
	})
	return candidates, nil
}

type variantEntry struct {
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
	FileType    string `json:"file_type"`
}

// Variants lists the downloadable file variants of a set, best first.
func (c *Client) Variants(ctx context.Context, setNumber string) ([]models.ModelVariant, error) {
	endpoint := fmt.Sprintf("%s/sets/%s/files", c.config.BaseURL, url.PathEscape(setNumber))

	resp, err := c.http.DoWithRetry(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVariantListFailed, err)
	}
	defer resp.Body.Close()

	var entries []variantEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrVariantListFailed, err)
	}

	variants := make([]models.ModelVariant, 0, len(entries))
	for _, e := range entries {
		if e.DownloadURL == "" {
			continue
		}
		variants = append(variants, models.ModelVariant{
			Name:        e.Name,
			DownloadURL: e.DownloadURL,
			FileType:    e.FileType,
			Score:       scoreVariant(e.Name),
		})
	}
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Score > variants[j].Score
	})
	return variants, nil
}

// Download fetches raw model bytes from a variant URL. Validation of the
// payload is the caller's responsibility.
func (c *Client) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	resp, err := c.http.DoWithRetry(ctx, http.MethodGet, downloadURL, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownloadFailed, err)
	}
	return data, nil
}

func scoreVariant(name string) float64 {
	lower := strings.ToLower(name)
	for _, key := range []string{"main", "small", "large", "alternate"} {
		if strings.Contains(lower, key) {
			return variantScores[key]
		}
	}
	return variantScores["default"]
}
