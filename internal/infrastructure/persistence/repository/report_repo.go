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

const reportColumns = `id, audit_id, total_score, section_scores, tier, conclusion,
	findings_summary, visits_summary, inventory, content_hash, approval_state,
	reviewed_by, approved_by, approved_at, delivered_at, provider_response,
	provider_responded_at, generated_at, updated_at`

// ReportRepository implements port.ReportRepository. There is at most one
// report per audit.
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

type reportJSON struct {
	sections  string
	findings  string
	visits    string
	inventory sql.NullString
}

func encodeReport(rep *entity.Report) (*reportJSON, error) {
	var out reportJSON
	for _, c := range []struct {
		dst *string
		v   any
	}{
		{&out.sections, rep.SectionScores},
		{&out.findings, rep.Findings},
		{&out.visits, rep.Visits},
	} {
		col, err := jsonColumn(c.v)
		if err != nil {
			return nil, err
		}
		*c.dst = col.String
		if !col.Valid {
			*c.dst = "{}"
		}
	}
	inv, err := jsonColumn(rep.Inventory)
	if err != nil {
		return nil, err
	}
	out.inventory = inv
	return &out, nil
}

// Create inserts the report; a second report for the audit yields entity.ErrConflict
func (r *ReportRepository) Create(ctx context.Context, rep *entity.Report) error {
	enc, err := encodeReport(rep)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reports (
			audit_id, total_score, section_scores, tier, conclusion, findings_summary,
			visits_summary, inventory, content_hash, approval_state, reviewed_by,
			approved_by, approved_at, delivered_at, provider_response,
			provider_responded_at, generated_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rep.AuditID,
		rep.TotalScore,
		enc.sections,
		string(rep.Tier),
		string(rep.Conclusion),
		enc.findings,
		enc.visits,
		enc.inventory,
		rep.ContentHash,
		string(rep.ApprovalState),
		rep.ReviewedBy,
		rep.ApprovedBy,
		nullTime(rep.ApprovedAt),
		nullTime(rep.DeliveredAt),
		rep.ProviderResponse,
		nullTime(rep.ProviderRespondedAt),
		rep.GeneratedAt.UTC(),
		rep.UpdatedAt.UTC(),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: report for audit %d", entity.ErrConflict, rep.AuditID)
		}
		r.logger.Error("Failed to create report", zap.Int64("audit_id", rep.AuditID), zap.Error(err))
		return storageErr("create report", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("last insert id", err)
	}
	rep.ID = id
	return nil
}

// GetByAuditID retrieves the report of an audit
func (r *ReportRepository) GetByAuditID(ctx context.Context, auditID int64) (*entity.Report, error) {
	var rep entity.Report
	var tier, conclusion, approval string
	var sections, findings, visits, inventory sql.NullString
	var approvedAt, deliveredAt, respondedAt sql.NullTime

	query := `SELECT ` + reportColumns + ` FROM reports WHERE audit_id = ?`
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, auditID).Scan(
		&rep.ID,
		&rep.AuditID,
		&rep.TotalScore,
		&sections,
		&tier,
		&conclusion,
		&findings,
		&visits,
		&inventory,
		&rep.ContentHash,
		&approval,
		&rep.ReviewedBy,
		&rep.ApprovedBy,
		&approvedAt,
		&deliveredAt,
		&rep.ProviderResponse,
		&respondedAt,
		&rep.GeneratedAt,
		&rep.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.NewNotFoundError("report", auditID)
	}
	if err != nil {
		r.logger.Error("Failed to get report", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("get report", err)
	}

	rep.Tier = entity.ComplianceTier(tier)
	rep.Conclusion = entity.Conclusion(conclusion)
	rep.ApprovalState = entity.ApprovalState(approval)
	rep.ApprovedAt = timePtr(approvedAt)
	rep.DeliveredAt = timePtr(deliveredAt)
	rep.ProviderRespondedAt = timePtr(respondedAt)
	if err := decodeJSON(sections, &rep.SectionScores); err != nil {
		return nil, err
	}
	if err := decodeJSON(findings, &rep.Findings); err != nil {
		return nil, err
	}
	if err := decodeJSON(visits, &rep.Visits); err != nil {
		return nil, err
	}
	if err := decodeJSON(inventory, &rep.Inventory); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Update overwrites the report of rep.AuditID
func (r *ReportRepository) Update(ctx context.Context, rep *entity.Report) error {
	enc, err := encodeReport(rep)
	if err != nil {
		return err
	}

	query := `
		UPDATE reports
		SET total_score = ?, section_scores = ?, tier = ?, conclusion = ?,
			findings_summary = ?, visits_summary = ?, inventory = ?, content_hash = ?,
			approval_state = ?, reviewed_by = ?, approved_by = ?, approved_at = ?,
			delivered_at = ?, provider_response = ?, provider_responded_at = ?,
			generated_at = ?, updated_at = ?
		WHERE audit_id = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rep.TotalScore,
		enc.sections,
		string(rep.Tier),
		string(rep.Conclusion),
		enc.findings,
		enc.visits,
		enc.inventory,
		rep.ContentHash,
		string(rep.ApprovalState),
		rep.ReviewedBy,
		rep.ApprovedBy,
		nullTime(rep.ApprovedAt),
		nullTime(rep.DeliveredAt),
		rep.ProviderResponse,
		nullTime(rep.ProviderRespondedAt),
		rep.GeneratedAt.UTC(),
		rep.UpdatedAt.UTC(),
		rep.AuditID,
	)
	if err != nil {
		r.logger.Error("Failed to update report", zap.Int64("audit_id", rep.AuditID), zap.Error(err))
		return storageErr("update report", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return entity.NewNotFoundError("report", rep.AuditID)
	}
	return nil
}

// Verify interface compliance
var _ port.ReportRepository = (*ReportRepository)(nil)
