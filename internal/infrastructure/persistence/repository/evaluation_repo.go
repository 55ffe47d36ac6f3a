package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

const evaluationColumns = `id, audit_id, section_id, state, result, score, automatic_score,
	manual_score, assigned_auditor_id, requires_site_visit, pending_clarification,
	clarification_reason, provider_response, observations, started_at, completed_at,
	version, created_at, updated_at`

// EvaluationRepository implements port.EvaluationRepository
type EvaluationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(db *sql.DB, logger *zap.Logger) *EvaluationRepository {
	return &EvaluationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts the evaluations, leaving existing (audit, section)
// rows untouched. IDs of skipped rows are filled from the stored row.
func (r *EvaluationRepository) CreateBatch(ctx context.Context, evals []*entity.SectionEvaluation) error {
	insert := `
		INSERT OR IGNORE INTO section_evaluations (
			audit_id, section_id, state, result, score, automatic_score, manual_score,
			assigned_auditor_id, requires_site_visit, pending_clarification,
			clarification_reason, provider_response, observations, started_at,
			completed_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	lookup := `SELECT id FROM section_evaluations WHERE audit_id = ? AND section_id = ?`

	conn := sqlite.Conn(ctx, r.db)
	for _, e := range evals {
		_, err := conn.ExecContext(ctx, insert,
			e.AuditID,
			string(e.SectionID),
			string(e.State),
			string(e.Result),
			nullFloat(e.Score),
			nullFloat(e.AutomaticScore),
			nullFloat(e.ManualScore),
			e.AssignedAuditorID,
			e.RequiresSiteVisit,
			e.PendingClarification,
			e.ClarificationReason,
			e.ProviderResponse,
			e.Observations,
			nullTime(e.StartedAt),
			nullTime(e.CompletedAt),
			e.Version,
			e.CreatedAt.UTC(),
			e.UpdatedAt.UTC(),
		)
		if err != nil {
			r.logger.Error("Failed to insert evaluation",
				zap.Int64("audit_id", e.AuditID),
				zap.String("section_id", string(e.SectionID)),
				zap.Error(err))
			return storageErr("insert evaluation", err)
		}
		if err := conn.QueryRowContext(ctx, lookup, e.AuditID, string(e.SectionID)).Scan(&e.ID); err != nil {
			return storageErr("lookup evaluation id", err)
		}
	}
	return nil
}

func scanEvaluation(row rowScanner) (*entity.SectionEvaluation, error) {
	var e entity.SectionEvaluation
	var sectionID, state, result string
	var score, automatic, manual sql.NullFloat64
	var started, completed sql.NullTime

	err := row.Scan(
		&e.ID,
		&e.AuditID,
		&sectionID,
		&state,
		&result,
		&score,
		&automatic,
		&manual,
		&e.AssignedAuditorID,
		&e.RequiresSiteVisit,
		&e.PendingClarification,
		&e.ClarificationReason,
		&e.ProviderResponse,
		&e.Observations,
		&started,
		&completed,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.SectionID = entity.SectionID(sectionID)
	e.State = entity.EvaluationState(state)
	e.Result = entity.EvaluationResult(result)
	e.Score = floatPtr(score)
	e.AutomaticScore = floatPtr(automatic)
	e.ManualScore = floatPtr(manual)
	e.StartedAt = timePtr(started)
	e.CompletedAt = timePtr(completed)
	return &e, nil
}

// Get retrieves the evaluation of one section
func (r *EvaluationRepository) Get(ctx context.Context, auditID int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM section_evaluations WHERE audit_id = ? AND section_id = ?`
	e, err := scanEvaluation(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, auditID, string(sectionID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.NewNotFoundError("evaluation", fmt.Sprintf("%d/%s", auditID, sectionID))
	}
	if err != nil {
		r.logger.Error("Failed to get evaluation", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("get evaluation", err)
	}
	return e, nil
}

// ListByAudit returns the evaluations in creation order
func (r *EvaluationRepository) ListByAudit(ctx context.Context, auditID int64) ([]*entity.SectionEvaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM section_evaluations WHERE audit_id = ? ORDER BY id ASC`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, auditID)
	if err != nil {
		r.logger.Error("Failed to list evaluations", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("list evaluations", err)
	}
	defer rows.Close()

	var evals []*entity.SectionEvaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, storageErr("scan evaluation", err)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// Update writes every mutable column guarded by the version
func (r *EvaluationRepository) Update(ctx context.Context, e *entity.SectionEvaluation) error {
	query := `
		UPDATE section_evaluations
		SET state = ?, result = ?, score = ?, automatic_score = ?, manual_score = ?,
			assigned_auditor_id = ?, requires_site_visit = ?, pending_clarification = ?,
			clarification_reason = ?, provider_response = ?, observations = ?,
			started_at = ?, completed_at = ?, updated_at = ?, version = version + 1
		WHERE audit_id = ? AND section_id = ? AND version = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		string(e.State),
		string(e.Result),
		nullFloat(e.Score),
		nullFloat(e.AutomaticScore),
		nullFloat(e.ManualScore),
		e.AssignedAuditorID,
		e.RequiresSiteVisit,
		e.PendingClarification,
		e.ClarificationReason,
		e.ProviderResponse,
		e.Observations,
		nullTime(e.StartedAt),
		nullTime(e.CompletedAt),
		e.UpdatedAt.UTC(),
		e.AuditID,
		string(e.SectionID),
		e.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update evaluation",
			zap.Int64("audit_id", e.AuditID),
			zap.String("section_id", string(e.SectionID)),
			zap.Error(err))
		return storageErr("update evaluation", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, e.AuditID, e.SectionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: evaluation %s expected version %d", entity.ErrConcurrency, e.SectionID, e.Version)
	}
	e.Version++
	return nil
}

// Verify interface compliance
var _ port.EvaluationRepository = (*EvaluationRepository)(nil)
