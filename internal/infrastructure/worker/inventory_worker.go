package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// InventoryRecorder turns a processed ETL result into a validation record
type InventoryRecorder interface {
	Latest(ctx context.Context, auditID int64, filter port.ValidationFilter) (*entity.ValidationRecord, error)
	RecordInventoryResult(ctx context.Context, auditID int64, actor service.Actor) (*entity.ValidationRecord, error)
}

// InventoryWorker logs the ETL's inventory result for audits in automatic
// validation that do not have an inventory_conformance record yet
type InventoryWorker struct {
	*poller
	config    SweepConfig
	audits    AuditLister
	inventory port.InventoryIngestion
	recorder  InventoryRecorder
	logger    *zap.Logger
}

// NewInventoryWorker creates a new inventory worker
func NewInventoryWorker(config SweepConfig, audits AuditLister, inventory port.InventoryIngestion, recorder InventoryRecorder, logger *zap.Logger) *InventoryWorker {
	w := &InventoryWorker{
		config:    config,
		audits:    audits,
		inventory: inventory,
		recorder:  recorder,
		logger:    logger,
	}
	w.poller = &poller{
		name:     "InventoryWorker",
		interval: config.PollInterval,
		sweep:    w.sweep,
		logger:   logger,
	}
	return w
}

func (w *InventoryWorker) sweep(ctx context.Context) (processed, failed int, err error) {
	audits, err := w.audits.List(ctx, port.AuditFilter{Stage: entity.StageAutomaticValidation, Limit: w.config.BatchSize})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list audits in automatic validation: %w", err)
	}

	for _, audit := range audits {
		recorded, err := w.record(ctx, audit)
		switch {
		case err != nil:
			failed++
			w.logger.Warn("Failed to record inventory result",
				zap.Int64("audit_id", audit.ID),
				zap.Error(err))
		case recorded:
			processed++
		}
	}
	return processed, failed, nil
}

func (w *InventoryWorker) record(ctx context.Context, audit *entity.Audit) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	result, err := w.inventory.GetInventoryResult(opCtx, audit.ID)
	if err != nil {
		return false, err
	}
	if result == nil || !result.Processed {
		return false, nil
	}

	existing, err := w.recorder.Latest(opCtx, audit.ID, port.ValidationFilter{Type: entity.ValidationInventoryConformance})
	if err != nil {
		return false, err
	}
	if existing != nil && !existing.CreatedAt.Before(result.ProcessedAt) {
		return false, nil
	}

	if _, err := w.recorder.RecordInventoryResult(opCtx, audit.ID, service.Actor{ID: string(entity.ExecutorETL)}); err != nil {
		return false, err
	}
	w.logger.Info("Inventory result recorded",
		zap.Int64("audit_id", audit.ID),
		zap.Float64("score", result.Score))
	return true, nil
}
