package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

const auditColumns = `id, code, stage, provider_id, primary_auditor_id, secondary_auditor_id,
	scheduled_date, deadline, stage_config, notification_sent_at, status_reason,
	archived, version, created_at, updated_at`

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts the audit; a taken code yields entity.ErrConflict
func (r *AuditRepository) Create(ctx context.Context, audit *entity.Audit) error {
	stageConfig, err := jsonColumn(audit.StageConfig)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audits (
			code, stage, provider_id, primary_auditor_id, secondary_auditor_id,
			scheduled_date, deadline, stage_config, notification_sent_at, status_reason,
			archived, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		audit.Code,
		int(audit.Stage),
		audit.ProviderID,
		audit.PrimaryAuditorID,
		audit.SecondaryAuditorID,
		audit.ScheduledDate.UTC(),
		audit.Deadline.UTC(),
		stageConfig,
		nullTime(audit.NotificationSentAt),
		audit.StatusReason,
		audit.Archived,
		audit.Version,
		audit.CreatedAt.UTC(),
		audit.UpdatedAt.UTC(),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("%w: audit code %s", entity.ErrConflict, audit.Code)
		}
		r.logger.Error("Failed to create audit", zap.String("code", audit.Code), zap.Error(err))
		return storageErr("create audit", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("last insert id", err)
	}
	audit.ID = id
	return nil
}

func (r *AuditRepository) scan(row rowScanner) (*entity.Audit, error) {
	var a entity.Audit
	var stage int
	var stageConfig sql.NullString
	var notified sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.Code,
		&stage,
		&a.ProviderID,
		&a.PrimaryAuditorID,
		&a.SecondaryAuditorID,
		&a.ScheduledDate,
		&a.Deadline,
		&stageConfig,
		&notified,
		&a.StatusReason,
		&a.Archived,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Stage = entity.Stage(stage)
	a.NotificationSentAt = timePtr(notified)
	if err := decodeJSON(stageConfig, &a.StageConfig); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuditRepository) getOne(ctx context.Context, key any, where string, arg any) (*entity.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE ` + where
	a, err := r.scan(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.NewNotFoundError("audit", key)
	}
	if err != nil {
		r.logger.Error("Failed to get audit", zap.Any("key", key), zap.Error(err))
		return nil, storageErr("get audit", err)
	}
	return a, nil
}

// GetByID retrieves an audit by ID
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*entity.Audit, error) {
	return r.getOne(ctx, id, "id = ?", id)
}

// GetByCode retrieves an audit by its AUD-YYYYMM-XXXXXX code
func (r *AuditRepository) GetByCode(ctx context.Context, code string) (*entity.Audit, error) {
	return r.getOne(ctx, code, "code = ?", code)
}

// List returns the newest audits first
func (r *AuditRepository) List(ctx context.Context, filter port.AuditFilter) ([]*entity.Audit, error) {
	var where []string
	var args []any
	if filter.Stage != 0 {
		where = append(where, "stage = ?")
		args = append(args, int(filter.Stage))
	}
	if filter.ProviderID != "" {
		where = append(where, "provider_id = ?")
		args = append(args, filter.ProviderID)
	}
	if !filter.IncludeArchived {
		where = append(where, "archived = 0")
	}

	query := `SELECT ` + auditColumns + ` FROM audits`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list audits", zap.Error(err))
		return nil, storageErr("list audits", err)
	}
	defer rows.Close()

	audits := []*entity.Audit{}
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, storageErr("scan audit", err)
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// UpdateStage is a compare-and-swap on the version column
func (r *AuditRepository) UpdateStage(ctx context.Context, id, expectedVersion int64, stage entity.Stage, reason string) error {
	query := `
		UPDATE audits
		SET stage = ?, status_reason = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, int(stage), reason, r.now(), id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update audit stage", zap.Int64("id", id), zap.Error(err))
		return storageErr("update audit stage", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: audit %d is no longer at version %d", entity.ErrConcurrency, id, expectedVersion)
	}
	return nil
}

func (r *AuditRepository) touch(ctx context.Context, id int64, set string, arg any) error {
	query := `UPDATE audits SET ` + set + `, version = version + 1, updated_at = ? WHERE id = ?`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, arg, r.now(), id)
	if err != nil {
		r.logger.Error("Failed to update audit", zap.Int64("id", id), zap.Error(err))
		return storageErr("update audit", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return entity.NewNotFoundError("audit", id)
	}
	return nil
}

// MarkNotificationSent records when the provider was notified
func (r *AuditRepository) MarkNotificationSent(ctx context.Context, id int64, at time.Time) error {
	return r.touch(ctx, id, "notification_sent_at = ?", at.UTC())
}

// SetArchived flags or unflags the audit as archived
func (r *AuditRepository) SetArchived(ctx context.Context, id int64, archived bool) error {
	return r.touch(ctx, id, "archived = ?", archived)
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
