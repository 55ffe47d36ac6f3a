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

const findingColumns = `id, audit_id, visit_id, code, type, severity, section_id, title,
	description, timeframe, remediation_deadline, tracking, deduction_points,
	provider_acknowledged, provider_response, acknowledged_at, correction_evidence,
	verification_result, verification_notes, verified_by, verified_at, closed_at,
	defer_reason, version, created_at, updated_at`

// FindingRepository implements port.FindingRepository
type FindingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFindingRepository creates a new finding repository
func NewFindingRepository(db *sql.DB, logger *zap.Logger) *FindingRepository {
	return &FindingRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a finding; a duplicate code yields entity.ErrConflict
func (r *FindingRepository) Create(ctx context.Context, f *entity.Finding) error {
	query := `
		INSERT INTO findings (
			audit_id, visit_id, code, type, severity, section_id, title, description,
			timeframe, remediation_deadline, tracking, deduction_points,
			provider_acknowledged, provider_response, acknowledged_at, correction_evidence,
			verification_result, verification_notes, verified_by, verified_at, closed_at,
			defer_reason, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		f.AuditID,
		f.VisitID,
		f.Code,
		string(f.Type),
		string(f.Severity),
		string(f.SectionID),
		f.Title,
		f.Description,
		string(f.Tracking),
		f.DeductionPoints,
		f.ProviderAcknowledged,
		f.ProviderResponse,
		nullTime(f.AcknowledgedAt),
		f.CorrectionEvidence,
		string(f.VerificationResult),
		f.VerificationNotes,
		f.VerifiedBy,
		nullTime(f.VerifiedAt),
		nullTime(f.ClosedAt),
		f.DeferReason,
		f.Version,
		f.CreatedAt.UTC(),
		f.UpdatedAt.UTC(),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: finding code %s", entity.ErrConflict, f.Code)
		}
		r.logger.Error("Failed to create finding", zap.String("code", f.Code), zap.Error(err))
		return storageErr("create finding", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("last insert id", err)
	}
	f.ID = id
	return nil
}

func scanFinding(row rowScanner) (*entity.Finding, error) {
	var f entity.Finding
	var typ, severity, sectionID, timeframe, tracking, verification string
	var deadline, acknowledged, verified, closed sql.NullTime

	err := row.Scan(
		&f.ID,
		&f.AuditID,
		&f.VisitID,
		&f.Code,
		&typ,
		&severity,
		&sectionID,
		&f.Title,
		&f.Description,
		&timeframe,
		&deadline,
		&tracking,
		&f.DeductionPoints,
		&f.ProviderAcknowledged,
		&f.ProviderResponse,
		&acknowledged,
		&f.CorrectionEvidence,
		&verification,
		&f.VerificationNotes,
		&f.VerifiedBy,
		&verified,
		&closed,
		&f.DeferReason,
		&f.Version,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Type = entity.FindingType(typ)
	f.Severity = entity.Severity(severity)
	f.SectionID = entity.SectionID(sectionID)
	f.Timeframe = entity.Timeframe(timeframe)
	f.Tracking = entity.TrackingState(tracking)
	f.VerificationResult = entity.RemediationResult(verification).Normalize()
	f.RemediationDeadline = timePtr(deadline)
	f.AcknowledgedAt = timePtr(acknowledged)
	f.VerifiedAt = timePtr(verified)
	f.ClosedAt = timePtr(closed)
	return &f, nil
}

// GetByID retrieves a finding by ID
func (r *FindingRepository) GetByID(ctx context.Context, id int64) (*entity.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE id = ?`
	f, err := scanFinding(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.NewNotFoundError("finding", id)
	}
	if err != nil {
		r.logger.Error("Failed to get finding", zap.Int64("id", id), zap.Error(err))
		return nil, storageErr("get finding", err)
	}
	return f, nil
}

// ListByAudit returns the audit's findings in registration order
func (r *FindingRepository) ListByAudit(ctx context.Context, auditID int64) ([]*entity.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE audit_id = ? ORDER BY id ASC`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, auditID)
	if err != nil {
		r.logger.Error("Failed to list findings", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("list findings", err)
	}
	defer rows.Close()

	var findings []*entity.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, storageErr("scan finding", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// CountByAudit feeds the finding code sequence
func (r *FindingRepository) CountByAudit(ctx context.Context, auditID int64) (int, error) {
	var n int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM findings WHERE audit_id = ?`, auditID).Scan(&n)
	if err != nil {
		r.logger.Error("Failed to count findings", zap.Int64("audit_id", auditID), zap.Error(err))
		return 0, storageErr("count findings", err)
	}
	return n, nil
}

// Update writes the tracking columns guarded by the version. Timeframe and
// remediation deadline are fixed at Create.
func (r *FindingRepository) Update(ctx context.Context, f *entity.Finding) error {
	query := `
		UPDATE findings
		SET severity = ?, title = ?, description = ?,
			tracking = ?, deduction_points = ?, provider_acknowledged = ?, provider_response = ?,
			acknowledged_at = ?, correction_evidence = ?, verification_result = ?,
			verification_notes = ?, verified_by = ?, verified_at = ?, closed_at = ?,
			defer_reason = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		string(f.Severity),
		f.Title,
		f.Description,
		string(f.Tracking),
		f.DeductionPoints,
		f.ProviderAcknowledged,
		f.ProviderResponse,
		nullTime(f.AcknowledgedAt),
		f.CorrectionEvidence,
		string(f.VerificationResult),
		f.VerificationNotes,
		f.VerifiedBy,
		nullTime(f.VerifiedAt),
		nullTime(f.ClosedAt),
		f.DeferReason,
		f.UpdatedAt.UTC(),
		f.ID,
		f.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update finding", zap.String("code", f.Code), zap.Error(err))
		return storageErr("update finding", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, f.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: finding %s expected version %d", entity.ErrConcurrency, f.Code, f.Version)
	}
	f.Version++
	return nil
}

// Verify interface compliance
var _ port.FindingRepository = (*FindingRepository)(nil)
