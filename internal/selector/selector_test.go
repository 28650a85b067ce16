package selector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		MaxRetries:    1,
		MaxCandidates: 5,
	}
}

func testCandidates() []models.CandidateModel {
	return []models.CandidateModel{
		{SetNumber: "8147-1", Name: "Bullet Run", Theme: "Racers", Score: 0.9},
		{SetNumber: "8362-1", Name: "Tuner Garage", Theme: "Racers", Score: 0.6},
		{SetNumber: "10015-1", Name: "Passenger Wagon", Theme: "Trains", Score: 0.2},
	}
}

func racePrompt() *models.Prompt {
	return &models.Prompt{Text: "red race car", Themes: []string{"race_car"}}
}

func TestSelectEmptyCandidates(t *testing.T) {
	s := New(testConfig(""), logger.NewNoOpLogger())

	_, err := s.Select(context.Background(), racePrompt(), nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Equal(t, stderrors.ErrCodeNoCandidates, stderrors.CodeOf(err))
	assert.False(t, stderrors.IsRetryable(err))
}

func TestSelectUsesReasoningService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/select-model", r.URL.Path)

		var body struct {
			Prompt     string                   `json:"prompt"`
			Candidates []map[string]interface{} `json:"candidates"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "red race car", body.Prompt)
		assert.Len(t, body.Candidates, 3)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"set_number": "8362-1",
			"rationale":  "closest thematic match",
			"confidence": 0.85,
		})
	}))
	defer server.Close()

	s := New(testConfig(server.URL), logger.NewNoOpLogger())
	result, err := s.Select(context.Background(), racePrompt(), testCandidates())
	require.NoError(t, err)
	assert.Equal(t, "8362-1", result.Candidate.SetNumber)
	assert.Equal(t, "closest thematic match", result.Rationale)
	assert.Equal(t, 0.85, result.Confidence)
	assert.False(t, result.FallbackUsed)
}

func TestSelectFallsBackWhenServiceDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := New(testConfig(server.URL), logger.NewNoOpLogger())
	result, err := s.Select(context.Background(), racePrompt(), testCandidates())
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "8147-1", result.Candidate.SetNumber)
}

func TestSelectFallsBackOnMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "pick the first one"},
		{"missing set number", `{"rationale": "because"}`},
		{"wrong type", `{"set_number": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s := New(testConfig(server.URL), logger.NewNoOpLogger())
			result, err := s.Select(context.Background(), racePrompt(), testCandidates())
			require.NoError(t, err)
			assert.True(t, result.FallbackUsed)
			assert.Equal(t, "8147-1", result.Candidate.SetNumber)
		})
	}
}

func TestSelectRejectsChoiceOutsideCandidateList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"set_number": "99999-1"})
	}))
	defer server.Close()

	s := New(testConfig(server.URL), logger.NewNoOpLogger())
	result, err := s.Select(context.Background(), racePrompt(), testCandidates())
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "8147-1", result.Candidate.SetNumber)
}

func TestSelectLimitsCandidatesSentToService(t *testing.T) {
	var sent int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Candidates []map[string]interface{} `json:"candidates"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		sent = len(body.Candidates)
		json.NewEncoder(w).Encode(map[string]interface{}{"set_number": "8147-1"})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxCandidates = 2
	s := New(cfg, logger.NewNoOpLogger())

	result, err := s.Select(context.Background(), racePrompt(), testCandidates())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, "8147-1", result.Candidate.SetNumber)
}
