package repository

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

const validationColumns = `id, audit_id, document_id, section_id, type, result, score,
	critical_errors, warnings, executor, executed_by, notes, created_at`

// ValidationRepository implements port.ValidationRecordRepository.
// Rows are never updated or deleted.
type ValidationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewValidationRepository creates a new validation log repository
func NewValidationRepository(db *sql.DB, logger *zap.Logger) *ValidationRepository {
	return &ValidationRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores record and returns its ID
func (r *ValidationRepository) Append(ctx context.Context, record *entity.ValidationRecord) (int64, error) {
	critical, err := jsonColumn(record.CriticalErrors)
	if err != nil {
		return 0, err
	}
	warnings, err := jsonColumn(record.Warnings)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO validation_records (
			audit_id, document_id, section_id, type, result, score,
			critical_errors, warnings, executor, executed_by, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		record.AuditID,
		record.DocumentID,
		string(record.SectionID),
		string(record.Type),
		string(record.Result),
		nullFloat(record.Score),
		critical,
		warnings,
		string(record.Executor),
		record.ExecutedBy,
		record.Notes,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append validation record",
			zap.Int64("audit_id", record.AuditID),
			zap.String("type", string(record.Type)),
			zap.Error(err))
		return 0, storageErr("append validation", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr("last insert id", err)
	}
	record.ID = id
	return id, nil
}

func scanValidation(row rowScanner) (*entity.ValidationRecord, error) {
	var rec entity.ValidationRecord
	var sectionID, typ, result, executor string
	var score sql.NullFloat64
	var critical, warnings sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.AuditID,
		&rec.DocumentID,
		&sectionID,
		&typ,
		&result,
		&score,
		&critical,
		&warnings,
		&executor,
		&rec.ExecutedBy,
		&rec.Notes,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.SectionID = entity.SectionID(sectionID)
	rec.Type = entity.ValidationType(typ)
	rec.Result = entity.ValidationResult(result)
	rec.Executor = entity.Executor(executor)
	rec.Score = floatPtr(score)
	if err := decodeJSON(critical, &rec.CriticalErrors); err != nil {
		return nil, err
	}
	if err := decodeJSON(warnings, &rec.Warnings); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Latest returns the most recent matching record, or nil, nil
func (r *ValidationRepository) Latest(ctx context.Context, auditID int64, filter port.ValidationFilter) (*entity.ValidationRecord, error) {
	query := `SELECT ` + validationColumns + ` FROM validation_records WHERE audit_id = ?`
	args := []any{auditID}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.SectionID != "" {
		query += " AND section_id = ?"
		args = append(args, string(filter.SectionID))
	}
	query += " ORDER BY id DESC LIMIT 1"

	rec, err := scanValidation(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest validation", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("latest validation", err)
	}
	return rec, nil
}

// ListByAudit returns the log in append order
func (r *ValidationRepository) ListByAudit(ctx context.Context, auditID int64) ([]*entity.ValidationRecord, error) {
	query := `SELECT ` + validationColumns + ` FROM validation_records WHERE audit_id = ? ORDER BY id ASC`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, auditID)
	if err != nil {
		r.logger.Error("Failed to list validations", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("list validations", err)
	}
	defer rows.Close()

	records := []*entity.ValidationRecord{}
	for rows.Next() {
		rec, err := scanValidation(rows)
		if err != nil {
			return nil, storageErr("scan validation", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Verify interface compliance
var _ port.ValidationRecordRepository = (*ValidationRepository)(nil)
