package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.StageHistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.StageHistory) error {
	query := `
		INSERT INTO stage_history (
			audit_id, from_stage, to_stage, trigger_name, actor_id, reason, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		history.AuditID,
		int(history.FromStage),
		int(history.ToStage),
		history.Trigger,
		history.ActorID,
		history.Reason,
		history.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Int64("audit_id", history.AuditID), zap.Error(err))
		return storageErr("create history", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageErr("last insert id", err)
	}

	history.ID = id
	return nil
}

// GetByAuditID retrieves all history records for an audit, oldest first
func (r *HistoryRepository) GetByAuditID(ctx context.Context, auditID int64) ([]*entity.StageHistory, error) {
	query := `
		SELECT id, audit_id, from_stage, to_stage, trigger_name, actor_id, reason, timestamp
		FROM stage_history
		WHERE audit_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, auditID)
	if err != nil {
		r.logger.Error("Failed to get history by audit ID", zap.Int64("audit_id", auditID), zap.Error(err))
		return nil, storageErr("get history", err)
	}
	defer rows.Close()

	records := []*entity.StageHistory{}
	for rows.Next() {
		var record entity.StageHistory
		var from, to int
		err := rows.Scan(
			&record.ID,
			&record.AuditID,
			&from,
			&to,
			&record.Trigger,
			&record.ActorID,
			&record.Reason,
			&record.Timestamp,
		)
		if err != nil {
			return nil, storageErr("scan history record", err)
		}
		record.FromStage = entity.Stage(from)
		record.ToStage = entity.Stage(to)
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.StageHistoryRepository = (*HistoryRepository)(nil)
