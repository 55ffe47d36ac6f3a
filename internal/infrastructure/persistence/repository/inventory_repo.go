package repository

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

// InventoryRepository implements port.InventoryIndex. Each audit keeps
// only its latest ingestion result.
type InventoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *sql.DB, logger *zap.Logger) *InventoryRepository {
	return &InventoryRepository{
		db:     db,
		logger: logger,
	}
}

// Save upserts the ingestion result of an audit
func (r *InventoryRepository) Save(ctx context.Context, result *port.InventoryResult) error {
	query := `
		INSERT INTO inventory_results (
			audit_id, processed, conformant_count, non_conformant_count, score, processed_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(audit_id) DO UPDATE SET
			processed = excluded.processed,
			conformant_count = excluded.conformant_count,
			non_conformant_count = excluded.non_conformant_count,
			score = excluded.score,
			processed_at = excluded.processed_at
	`
	var processedAt sql.NullTime
	if !result.ProcessedAt.IsZero() {
		processedAt = sql.NullTime{Time: result.ProcessedAt.UTC(), Valid: true}
	}
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		result.AuditID,
		result.Processed,
		result.ConformantCount,
		result.NonConformantCount,
		result.Score,
		processedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save inventory result", zap.Int64("audit_id", result.AuditID), zap.Error(err))
		return storageErr("save inventory", err)
	}
	return nil
}

// GetInventoryResult returns nil, nil when nothing was ingested yet
func (r *InventoryRepository) GetInventoryResult(ctx context.Context, auditID int64) (*port.InventoryResult, error) {
	query := `
		SELECT audit_id, processed, conformant_count, non_conformant_count, score, processed_at
		FROM inventory_results
		WHERE audit_id = ?
	`
	var res port.InventoryResult
	var processedAt sql.NullTime
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, auditID).Scan(
		&res.AuditID,
		&res.Processed,
		&res.ConformantCount,
		&res.NonConformantCount,
		&res.Score,
		&processedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get inventory", err)
	}
	if processedAt.Valid {
		res.ProcessedAt = processedAt.Time.UTC()
	}
	return &res, nil
}

// Verify interface compliance
var _ port.InventoryIndex = (*InventoryRepository)(nil)
