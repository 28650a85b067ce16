// Package results persists terminal pipeline outcomes to PostgreSQL so
// completed requests stay queryable after the process exits.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

var ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")

type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "results"}),
	}
}

// Save writes one terminal result row. The selection, instruction and
// document payloads are serialized to JSONB; nil stages store NULL.
func (s *Store) Save(ctx context.Context, result *models.PipelineResult) error {
	selectionJSON, err := marshalNullable(result.Selection)
	if err != nil {
		return fmt.Errorf("%w: marshal selection: %v", ErrDatabaseInsertFailed, err)
	}
	instructionsJSON, err := marshalNullable(result.Instructions)
	if err != nil {
		return fmt.Errorf("%w: marshal instructions: %v", ErrDatabaseInsertFailed, err)
	}

	var documentPath sql.NullString
	if result.Document != nil {
		documentPath = sql.NullString{String: result.Document.Path, Valid: true}
	}
	var modelPath sql.NullString
	if result.Model != nil {
		modelPath = sql.NullString{String: result.Model.Path, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_results (
			request_id, prompt, status, selection, model_path,
			instructions, document_path, error_detail, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		result.RequestID,
		result.Prompt,
		string(result.Status),
		selectionJSON,
		modelPath,
		instructionsJSON,
		documentPath,
		result.ErrorDetail,
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseInsertFailed, stderrors.NewDatabaseInsertFailedError(err))
	}

	s.logger.Info("pipeline result persisted", map[string]interface{}{
		"requestId": result.RequestID,
		"status":    string(result.Status),
	})
	return nil
}

func marshalNullable(v interface{}) (interface{}, error) {
	switch value := v.(type) {
	case *models.SelectionResult:
		if value == nil {
			return nil, nil
		}
	case *models.InstructionSet:
		if value == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
