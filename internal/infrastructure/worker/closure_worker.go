package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/application/workflow"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// AuditLister lists audits by stage
type AuditLister interface {
	List(ctx context.Context, filter port.AuditFilter) ([]*entity.Audit, error)
}

// StageAdvancer moves an audit to its next stage
type StageAdvancer interface {
	Advance(ctx context.Context, req workflow.TransitionRequest) (*entity.Audit, error)
}

// SweepConfig holds configuration shared by the sweeping workers
type SweepConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Timeout      time.Duration
}

// DefaultSweepConfig returns default configuration
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
		Timeout:      30 * time.Second,
	}
}

// ClosureWorker completes audits sitting at closure whose report has been
// delivered. It backs up the report.delivered subscription, which can miss
// an audit when the asynchronous handler fails.
type ClosureWorker struct {
	*poller
	config   SweepConfig
	audits   AuditLister
	advancer StageAdvancer
	logger   *zap.Logger
}

// NewClosureWorker creates a new closure worker
func NewClosureWorker(config SweepConfig, audits AuditLister, advancer StageAdvancer, logger *zap.Logger) *ClosureWorker {
	w := &ClosureWorker{
		config:   config,
		audits:   audits,
		advancer: advancer,
		logger:   logger,
	}
	w.poller = &poller{
		name:     "ClosureWorker",
		interval: config.PollInterval,
		sweep:    w.sweep,
		logger:   logger,
	}
	return w
}

func (w *ClosureWorker) sweep(ctx context.Context) (processed, failed int, err error) {
	audits, err := w.audits.List(ctx, port.AuditFilter{Stage: entity.StageClosure, Limit: w.config.BatchSize})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list audits at closure: %w", err)
	}

	for _, audit := range audits {
		closed, err := w.close(ctx, audit)
		switch {
		case err != nil:
			failed++
			w.logger.Warn("Failed to close audit",
				zap.Int64("audit_id", audit.ID),
				zap.String("code", audit.Code),
				zap.Error(err))
		case closed:
			processed++
		}
	}
	return processed, failed, nil
}

// close advances one audit; an undelivered report is not a failure
func (w *ClosureWorker) close(ctx context.Context, audit *entity.Audit) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	_, err := w.advancer.Advance(opCtx, workflow.TransitionRequest{
		AuditID:       audit.ID,
		ExpectedStage: entity.StageClosure,
		ActorID:       string(entity.ExecutorSystem),
		Reason:        "cierre automático",
	})
	switch {
	case err == nil:
		w.logger.Info("Audit completed by closure sweep",
			zap.Int64("audit_id", audit.ID),
			zap.String("code", audit.Code))
		return true, nil
	case errors.Is(err, entity.ErrPreconditionNotMet), errors.Is(err, entity.ErrConcurrency):
		return false, nil
	default:
		return false, err
	}
}
