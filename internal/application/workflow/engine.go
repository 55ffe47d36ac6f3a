package workflow

import (
	"context"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
)

// TransitionRequest asks the controller to move an audit one stage forward.
// ExpectedStage is the stage the caller last saw; a stale value is rejected
// with entity.ErrConcurrency.
type TransitionRequest struct {
	AuditID       int64        `json:"-" validate:"required"`
	ExpectedStage entity.Stage `json:"expected_stage" validate:"required"`
	// TargetStage defaults to the stage after ExpectedStage
	TargetStage entity.Stage `json:"target_stage"`
	ActorID     string       `json:"-"`
	Reason      string       `json:"reason"`
}

// GateReport is the dry-run result of the next forward transition
type GateReport struct {
	From    entity.Stage            `json:"from"`
	To      entity.Stage            `json:"to"`
	Passed  bool                    `json:"passed"`
	Kind    entity.PreconditionKind `json:"kind,omitempty"`
	Reason  string                  `json:"reason,omitempty"`
	Missing []string                `json:"missing,omitempty"`
}

// StageController is the only component that changes an audit's stage
type StageController interface {
	// Advance runs the gate of the current stage and moves to the next one
	Advance(ctx context.Context, req TransitionRequest) (*entity.Audit, error)

	// Suspend and Cancel end the audit from any non-terminal stage without gating
	Suspend(ctx context.Context, auditID int64, reason, actorID string) (*entity.Audit, error)
	Cancel(ctx context.Context, auditID int64, reason, actorID string) (*entity.Audit, error)

	// CurrentStage returns the stage without taking the audit lock
	CurrentStage(ctx context.Context, auditID int64) (entity.Stage, error)

	// CheckAdvance evaluates the next gate and rolls back whatever it wrote
	CheckAdvance(ctx context.Context, auditID int64) (*GateReport, error)

	// HandleEvent closes delivered audits when auto-close is enabled
	HandleEvent(ctx context.Context, evt *event.Event) error
}
