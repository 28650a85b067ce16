// internal/catalog/index.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

var (
	ErrIndexNotFound    = errors.New("INDEX_NOT_FOUND")
	ErrIndexQueryFailed = errors.New("INDEX_QUERY_FAILED")
)

// Index serves enhanced queries against a local Elasticsearch index of the
// catalog entries. It is optional; the search engine falls back to the HTTP
// client when no index is configured.
type Index struct {
	client    *elasticsearch.Client
	indexName string
	logger    logger.Logger
}

func NewIndex(client *elasticsearch.Client, indexName string, log logger.Logger) *Index {
	return &Index{
		client:    client,
		indexName: indexName,
		logger:    log.WithFields(map[string]interface{}{"component": "catalog-index"}),
	}
}

// SemanticSearch runs a multi_match query over name, theme and keywords.
// Name matches weigh heaviest; theme matches carry more than raw keywords.
func (x *Index) SemanticSearch(ctx context.Context, terms []string, size int) ([]models.CandidateModel, error) {
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  strings.Join(terms, " "),
				"fields": []string{"name^3", "theme^2", "keywords"},
				"type":   "best_fields",
			},
		},
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{x.indexName},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexQueryFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, fmt.Errorf("%w: %w", ErrIndexNotFound, stderrors.NewIndexNotFoundError(x.indexName))
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrIndexQueryFailed, res.StatusCode)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					SetNumber string `json:"set_number"`
					Name      string `json:"name"`
					Theme     string `json:"theme"`
					Year      int    `json:"year"`
					URL       string `json:"url"`
				} `json:"_source"`
			} `json:"hits"`
			MaxScore float64 `json:"max_score"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrIndexQueryFailed, err)
	}

	candidates := make([]models.CandidateModel, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		score := 0.0
		if parsed.Hits.MaxScore > 0 {
			score = hit.Score / parsed.Hits.MaxScore
		}
		candidates = append(candidates, models.CandidateModel{
			SetNumber: hit.Source.SetNumber,
			Name:      hit.Source.Name,
			Theme:     hit.Source.Theme,
			Year:      hit.Source.Year,
			URL:       hit.Source.URL,
			Score:     score,
		})
	}

	x.logger.Debug("semantic search completed", map[string]interface{}{
		"terms":   terms,
		"results": len(candidates),
	})
	return candidates, nil
}
