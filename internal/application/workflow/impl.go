package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	domainwf "github.com/garyjia/site-audit/internal/domain/workflow"
	"github.com/garyjia/site-audit/pkg/utils"
)

// Transition results reported to metrics
const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultConflict = "conflict"
	resultError    = "error"
)

var errDryRun = errors.New("dry run")

// Collaborators are the components whose answers gate stage changes
type Collaborators struct {
	Completeness service.CompletenessGate
	Evaluations  service.EvaluationService
	Aggregation  service.AggregationService
}

// controllerImpl is the concrete implementation of StageController
type controllerImpl struct {
	deps      service.Deps
	collab    Collaborators
	autoClose bool
}

// ControllerOption configures the stage controller
type ControllerOption func(*controllerImpl)

// WithAutoClose completes audits at closure as soon as their report is delivered
func WithAutoClose(enabled bool) ControllerOption {
	return func(c *controllerImpl) {
		c.autoClose = enabled
	}
}

// NewStageController creates a new stage controller
func NewStageController(deps service.Deps, collab Collaborators, opts ...ControllerOption) StageController {
	c := &controllerImpl{
		deps:   deps.WithDefaults(),
		collab: collab,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// transitionOutcome carries what the transaction produced to the post-commit phase
type transitionOutcome struct {
	audit  *entity.Audit
	from   entity.Stage
	report *entity.Report
}

// gates binds the stage guards to one audit inside the running transaction
func (c *controllerImpl) gates(audit *entity.Audit, out *transitionOutcome) Gates {
	return Gates{
		entity.StageNotification: func(context.Context) error {
			if audit.NotificationSentAt == nil {
				return entity.NewPreconditionError(audit.Stage, "provider notification has not been sent")
			}
			return nil
		},
		entity.StageDocumentIntake: func(ctx context.Context) error {
			return c.collab.Completeness.RequireObligatoryEvidence(ctx, audit.ID)
		},
		entity.StageAutomaticValidation: func(ctx context.Context) error {
			return c.requireValidations(ctx, audit)
		},
		entity.StageAuditorEvaluation: func(ctx context.Context) error {
			return c.requireEvaluations(ctx, audit)
		},
		entity.StageSiteVisit: func(ctx context.Context) error {
			return c.requireVisitsClosed(ctx, audit)
		},
		entity.StageConsolidation: func(ctx context.Context) error {
			report, changed, err := c.collab.Aggregation.FinalizeLocked(ctx, audit)
			if err != nil {
				return err
			}
			if changed {
				out.report = report
			}
			return nil
		},
		entity.StageFinalReport: func(ctx context.Context) error {
			return c.requireReport(ctx, audit, entity.ApprovalState.IsApproved, "report has not been approved")
		},
		entity.StageClosure: func(ctx context.Context) error {
			return c.requireReport(ctx, audit, entity.ApprovalState.IsDelivered, "report has not been delivered")
		},
	}
}

func (c *controllerImpl) requireValidations(ctx context.Context, audit *entity.Audit) error {
	records, err := c.deps.Repos.Validations.ListByAudit(ctx, audit.ID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return entity.NewPreconditionError(audit.Stage, "no validation has been recorded")
	}
	failing := service.UnresolvedFailures(records, c.deps.Registry.ListObligatory())
	if len(failing) == 0 {
		return nil
	}
	missing := make([]string, len(failing))
	for i, id := range failing {
		missing[i] = string(id)
	}
	return entity.NewPreconditionError(audit.Stage, "obligatory sections failed automatic validation without a manual override", missing...)
}

// requireEvaluations passes when every obligatory section is completed and no
// evaluation is in review or waiting for a clarification
func (c *controllerImpl) requireEvaluations(ctx context.Context, audit *entity.Audit) error {
	evals, err := c.deps.Repos.Evaluations.ListByAudit(ctx, audit.ID)
	if err != nil {
		return err
	}
	byID := make(map[entity.SectionID]*entity.SectionEvaluation, len(evals))
	for _, e := range evals {
		byID[e.SectionID] = e
	}

	var missing []string
	for _, def := range c.deps.Registry.ListAll() {
		e, ok := byID[def.ID]
		switch {
		case !ok:
			if def.Obligatory {
				missing = append(missing, string(def.ID))
			}
		case e.PendingClarification,
			e.State == entity.EvaluationInReview,
			e.State == entity.EvaluationClarification,
			def.Obligatory && !e.IsResolved():
			missing = append(missing, string(def.ID))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &entity.PreconditionError{
		Stage:   audit.Stage,
		Kind:    entity.PreconditionIncompleteEval,
		Reason:  "section evaluations are not finished",
		Missing: missing,
	}
}

// requireVisitsClosed ignores cancelled visits; an audit without visits passes
func (c *controllerImpl) requireVisitsClosed(ctx context.Context, audit *entity.Audit) error {
	visits, err := c.deps.Repos.Visits.ListByAudit(ctx, audit.ID)
	if err != nil {
		return err
	}
	var open []string
	for _, v := range visits {
		if v.State.IsOpen() {
			open = append(open, fmt.Sprintf("visit:%d", v.ID))
		}
	}
	if len(open) == 0 {
		return nil
	}
	return &entity.PreconditionError{
		Stage:   audit.Stage,
		Kind:    entity.PreconditionPendingVisit,
		Reason:  "scheduled visits are not completed",
		Missing: open,
	}
}

func (c *controllerImpl) requireReport(ctx context.Context, audit *entity.Audit, ok func(entity.ApprovalState) bool, reason string) error {
	report, err := c.deps.Repos.Reports.GetByAuditID(ctx, audit.ID)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.NewPreconditionError(audit.Stage, "report has not been finalized")
	}
	if err != nil {
		return err
	}
	if !ok(report.ApprovalState) {
		return entity.NewPreconditionError(audit.Stage, reason, string(report.ApprovalState))
	}
	return nil
}

// fire runs trigger against the machine and returns the domain error for a refusal
func fire(ctx context.Context, m domainwf.StateMachine[entity.Stage, domainwf.StageTrigger], trigger domainwf.StageTrigger) error {
	from := m.State()
	err := m.Fire(ctx, trigger)
	if err == nil {
		return nil
	}
	if errors.Is(err, domainwf.ErrInvalidTransition) {
		return entity.NewStageTransitionError(from, trigger.String())
	}
	var pe *entity.PreconditionError
	if errors.As(err, &pe) {
		return pe
	}
	var ge *domainwf.GuardError
	if errors.As(err, &ge) {
		return ge.Cause
	}
	return err
}

// apply moves the audit to the machine's new stage and records history. The
// caller holds the lock and the transaction.
func (c *controllerImpl) apply(ctx context.Context, audit *entity.Audit, to entity.Stage, trigger domainwf.StageTrigger, actorID, reason string) error {
	if err := c.deps.Repos.Audits.UpdateStage(ctx, audit.ID, audit.Version, to, reason); err != nil {
		return err
	}
	if err := c.deps.Repos.History.Create(ctx, &entity.StageHistory{
		AuditID:   audit.ID,
		FromStage: audit.Stage,
		ToStage:   to,
		Trigger:   trigger.String(),
		ActorID:   actorID,
		Reason:    reason,
		Timestamp: c.deps.Now(),
	}); err != nil {
		return err
	}
	if to == entity.StageAutomaticValidation && c.collab.Evaluations != nil {
		if err := c.collab.Evaluations.InitializeForAudit(ctx, audit.ID); err != nil {
			return err
		}
	}

	audit.Stage = to
	audit.StatusReason = reason
	audit.Version++
	return nil
}

// Advance moves the audit exactly one stage forward
func (c *controllerImpl) Advance(ctx context.Context, req TransitionRequest) (*entity.Audit, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	out := &transitionOutcome{from: req.ExpectedStage}
	err := service.WithAuditLock(ctx, c.deps.Locker, req.AuditID, func() error {
		return c.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
			audit, err := c.deps.Repos.Audits.GetByID(txCtx, req.AuditID)
			if err != nil {
				return err
			}
			if audit.Stage != req.ExpectedStage {
				return fmt.Errorf("%w: audit %d is at stage %s, expected %s",
					entity.ErrConcurrency, audit.ID, audit.Stage, req.ExpectedStage)
			}
			if audit.Stage.IsTerminal() {
				return entity.NewStageTransitionError(audit.Stage, domainwf.StageAdvance.String())
			}
			next, _ := nextStage(audit.Stage)
			if req.TargetStage != 0 && req.TargetStage != next {
				return fmt.Errorf("%w: %s to %s, the next stage is %s",
					entity.ErrInvalidTransition, audit.Stage, req.TargetStage, next)
			}

			machine := BuildStageMachine(audit.Stage, c.gates(audit, out))
			if err := fire(txCtx, machine, domainwf.StageAdvance); err != nil {
				return err
			}
			if err := c.apply(txCtx, audit, machine.State(), domainwf.StageAdvance, req.ActorID, req.Reason); err != nil {
				return err
			}
			out.audit = audit
			return nil
		})
	})
	if err != nil {
		target := req.TargetStage
		if target == 0 {
			target, _ = nextStage(req.ExpectedStage)
		}
		c.deps.Metrics.StageTransition(req.ExpectedStage, target, classify(err))
		c.deps.Logger.Info("Stage advance rejected", "audit_id", req.AuditID, "from", req.ExpectedStage, "error", err)
		return nil, err
	}

	audit := out.audit
	c.deps.Metrics.StageTransition(out.from, audit.Stage, resultSuccess)
	c.deps.Logger.Info("Audit stage advanced", "audit_id", audit.ID, "from", out.from, "to", audit.Stage, "actor", req.ActorID)

	if c.deps.Dispatcher != nil {
		c.deps.Dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeStageAdvanced, audit.ID, audit.Code, map[string]any{
			"from_stage": int(out.from),
			"to_stage":   int(audit.Stage),
			"from_name":  out.from.String(),
			"to_name":    audit.Stage.String(),
			"reason":     req.Reason,
		}).WithActor(req.ActorID))
		if out.report != nil {
			c.deps.Dispatcher.DispatchAsync(ctx, service.ReportFinalizedEvent(audit, out.report).WithActor(req.ActorID))
		}
	}
	return audit, nil
}

func (c *controllerImpl) Suspend(ctx context.Context, auditID int64, reason, actorID string) (*entity.Audit, error) {
	return c.terminate(ctx, auditID, domainwf.StageSuspend, event.TypeAuditSuspended, reason, actorID)
}

func (c *controllerImpl) Cancel(ctx context.Context, auditID int64, reason, actorID string) (*entity.Audit, error) {
	return c.terminate(ctx, auditID, domainwf.StageCancel, event.TypeAuditCancelled, reason, actorID)
}

func (c *controllerImpl) terminate(ctx context.Context, auditID int64, trigger domainwf.StageTrigger, evtType event.Type, reason, actorID string) (*entity.Audit, error) {
	if reason == "" {
		return nil, entity.ValidationErrorf("a reason is required to %s an audit", trigger)
	}

	var audit *entity.Audit
	var from entity.Stage
	err := service.WithAuditLock(ctx, c.deps.Locker, auditID, func() error {
		return c.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := c.deps.Repos.Audits.GetByID(txCtx, auditID)
			if err != nil {
				return err
			}
			from = a.Stage
			machine := BuildStageMachine(a.Stage, nil)
			if err := fire(txCtx, machine, trigger); err != nil {
				return err
			}
			if err := c.apply(txCtx, a, machine.State(), trigger, actorID, reason); err != nil {
				return err
			}
			audit = a
			return nil
		})
	})
	if err != nil {
		target := entity.StageSuspended
		if trigger == domainwf.StageCancel {
			target = entity.StageCancelled
		}
		c.deps.Metrics.StageTransition(from, target, classify(err))
		return nil, err
	}

	c.deps.Metrics.StageTransition(from, audit.Stage, resultSuccess)
	c.deps.Logger.Info("Audit terminated", "audit_id", auditID, "from", from, "to", audit.Stage, "reason", reason, "actor", actorID)
	if c.deps.Dispatcher != nil {
		c.deps.Dispatcher.DispatchAsync(ctx, event.NewEvent(evtType, audit.ID, audit.Code, map[string]any{
			"from_stage": int(from),
			"from_name":  from.String(),
			"reason":     reason,
		}).WithActor(actorID))
	}
	return audit, nil
}

func (c *controllerImpl) CurrentStage(ctx context.Context, auditID int64) (entity.Stage, error) {
	audit, err := c.deps.Repos.Audits.GetByID(ctx, auditID)
	if err != nil {
		return 0, err
	}
	return audit.Stage, nil
}

// CheckAdvance holds the lock so the rolled back writes never race a real mutation
func (c *controllerImpl) CheckAdvance(ctx context.Context, auditID int64) (*GateReport, error) {
	var report *GateReport
	err := service.WithAuditLock(ctx, c.deps.Locker, auditID, func() error {
		return c.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
			audit, err := c.deps.Repos.Audits.GetByID(txCtx, auditID)
			if err != nil {
				return err
			}
			if audit.Stage.IsTerminal() {
				return entity.NewStageTransitionError(audit.Stage, domainwf.StageAdvance.String())
			}
			next, _ := nextStage(audit.Stage)
			report = &GateReport{From: audit.Stage, To: next}

			machine := BuildStageMachine(audit.Stage, c.gates(audit, &transitionOutcome{}))
			err = fire(txCtx, machine, domainwf.StageAdvance)
			var pe *entity.PreconditionError
			switch {
			case err == nil:
				report.Passed = true
			case errors.As(err, &pe):
				report.Kind = pe.Kind
				report.Reason = pe.Reason
				report.Missing = pe.Missing
			default:
				return err
			}
			return errDryRun
		})
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}
	return report, nil
}

// HandleEvent closes an audit whose report was delivered. Gate failures are
// logged and swallowed; the audit simply stays at closure.
func (c *controllerImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if !c.autoClose || evt.Type != event.TypeReportDelivered {
		return nil
	}

	_, err := c.Advance(ctx, TransitionRequest{
		AuditID:       evt.AuditID,
		ExpectedStage: entity.StageClosure,
		TargetStage:   entity.StageCompleted,
		ActorID:       string(entity.ExecutorSystem),
		Reason:        "informe entregado",
	})
	if err != nil && (errors.Is(err, entity.ErrPreconditionNotMet) || errors.Is(err, entity.ErrConcurrency)) {
		c.deps.Logger.Info("Auto-close skipped", "audit_id", evt.AuditID, "error", err)
		return nil
	}
	return err
}

func classify(err error) string {
	switch {
	case errors.Is(err, entity.ErrConcurrency):
		return resultConflict
	case errors.Is(err, entity.ErrPreconditionNotMet),
		errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrInvalidStateTransition),
		errors.Is(err, entity.ErrValidation):
		return resultRejected
	default:
		return resultError
	}
}

var _ StageController = (*controllerImpl)(nil)
