package service

import (
	"context"
	"fmt"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/scoring"
	"github.com/garyjia/site-audit/internal/domain/workflow"
)

// SubmitEvaluationInput is an auditor's verdict on a section
type SubmitEvaluationInput struct {
	AuditID      int64                   `json:"-"`
	SectionID    entity.SectionID        `json:"-"`
	Result       entity.EvaluationResult `json:"result" validate:"required"`
	ManualScore  *float64                `json:"manual_score" validate:"omitempty,gte=0,lte=100"`
	Observations string                  `json:"observations"`
}

// EvaluationProgress counts evaluations per state
type EvaluationProgress struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	InReview      int     `json:"in_review"`
	Completed     int     `json:"completed"`
	Clarification int     `json:"clarification"`
	Percent       float64 `json:"percent"`
}

// EvaluationService runs the per-section evaluation lifecycle
type EvaluationService interface {
	// InitializeForAudit creates one pending evaluation per registered section.
	// Existing rows are kept. The caller must hold the audit lock.
	InitializeForAudit(ctx context.Context, auditID int64) error
	Get(ctx context.Context, auditID int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error)
	List(ctx context.Context, auditID int64) ([]*entity.SectionEvaluation, error)
	Progress(ctx context.Context, auditID int64) (*EvaluationProgress, error)
	Assign(ctx context.Context, auditID int64, sectionID entity.SectionID, auditorID string) (*entity.SectionEvaluation, error)
	Submit(ctx context.Context, in SubmitEvaluationInput, actor Actor) (*entity.SectionEvaluation, error)
	RequestClarification(ctx context.Context, auditID int64, sectionID entity.SectionID, reason string, actor Actor) (*entity.SectionEvaluation, error)
	ProvideClarification(ctx context.Context, auditID int64, sectionID entity.SectionID, response string, actor Actor) (*entity.SectionEvaluation, error)
	FlagSiteVisit(ctx context.Context, auditID int64, sectionID entity.SectionID, required bool) (*entity.SectionEvaluation, error)
	// RecomputeAutomatic refreshes the automatic score of an unresolved
	// evaluation from the validation log
	RecomputeAutomatic(ctx context.Context, auditID int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error)
}

type evaluationServiceImpl struct {
	deps   Deps
	policy scoring.Policy
}

// NewEvaluationService creates a new EvaluationService
func NewEvaluationService(deps Deps, policy scoring.Policy) EvaluationService {
	return &evaluationServiceImpl{deps: deps.WithDefaults(), policy: policy}
}

// InitializeForAudit is idempotent
func (s *evaluationServiceImpl) InitializeForAudit(ctx context.Context, auditID int64) error {
	now := s.deps.Now()
	defs := s.deps.Registry.ListAll()
	evals := make([]*entity.SectionEvaluation, 0, len(defs))
	for _, def := range defs {
		evals = append(evals, &entity.SectionEvaluation{
			AuditID:   auditID,
			SectionID: def.ID,
			State:     entity.EvaluationPending,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := s.deps.Repos.Evaluations.CreateBatch(ctx, evals); err != nil {
		return fmt.Errorf("create evaluations: %w", err)
	}
	return nil
}

func (s *evaluationServiceImpl) Get(ctx context.Context, auditID int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error) {
	if _, err := s.deps.Registry.Get(sectionID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Evaluations.Get(ctx, auditID, sectionID)
}

func (s *evaluationServiceImpl) List(ctx context.Context, auditID int64) ([]*entity.SectionEvaluation, error) {
	if _, err := s.deps.Repos.Audits.GetByID(ctx, auditID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Evaluations.ListByAudit(ctx, auditID)
}

// Progress is a lock-free read and may be momentarily stale
func (s *evaluationServiceImpl) Progress(ctx context.Context, auditID int64) (*EvaluationProgress, error) {
	evals, err := s.List(ctx, auditID)
	if err != nil {
		return nil, err
	}
	p := &EvaluationProgress{Total: len(evals)}
	for _, e := range evals {
		switch e.State {
		case entity.EvaluationPending:
			p.Pending++
		case entity.EvaluationInReview:
			p.InReview++
		case entity.EvaluationCompleted:
			p.Completed++
		case entity.EvaluationClarification:
			p.Clarification++
		}
	}
	if p.Total > 0 {
		p.Percent = scoring.Round2(float64(p.Completed) * 100 / float64(p.Total))
	}
	return p, nil
}

// update loads the evaluation under the audit lock, applies fn and persists it
func (s *evaluationServiceImpl) update(ctx context.Context, auditID int64, sectionID entity.SectionID, fn func(txCtx context.Context, audit *entity.Audit, eval *entity.SectionEvaluation) error) (*entity.SectionEvaluation, *entity.Audit, error) {
	if _, err := s.deps.Registry.Get(sectionID); err != nil {
		return nil, nil, err
	}

	var eval *entity.SectionEvaluation
	var audit *entity.Audit
	err := s.deps.mutate(ctx, auditID, func(txCtx context.Context) error {
		a, err := s.deps.loadMutableAudit(txCtx, auditID)
		if err != nil {
			return err
		}
		if err := requireStage(a, entity.StageAutomaticValidation, entity.StageConsolidation, "evaluate"); err != nil {
			return err
		}
		e, err := s.deps.Repos.Evaluations.Get(txCtx, auditID, sectionID)
		if err != nil {
			return err
		}
		if err := fn(txCtx, a, e); err != nil {
			return err
		}
		e.UpdatedAt = s.deps.Now()
		if err := s.deps.Repos.Evaluations.Update(txCtx, e); err != nil {
			return err
		}
		eval, audit = e, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return eval, audit, nil
}

// Assign moves a pending evaluation into review
func (s *evaluationServiceImpl) Assign(ctx context.Context, auditID int64, sectionID entity.SectionID, auditorID string) (*entity.SectionEvaluation, error) {
	if auditorID == "" {
		return nil, entity.ValidationErrorf("auditor id is required")
	}
	eval, _, err := s.update(ctx, auditID, sectionID, func(txCtx context.Context, _ *entity.Audit, e *entity.SectionEvaluation) error {
		if err := Fire(txCtx, workflow.NewEvaluationMachine(e.State), workflow.EvaluationAssign, "section evaluation"); err != nil {
			return err
		}
		e.State = entity.EvaluationInReview
		e.AssignedAuditorID = auditorID
		e.StartedAt = timePtr(s.deps.Now())

		auto, err := s.automaticInput(txCtx, auditID, sectionID)
		if err != nil {
			return err
		}
		e.AutomaticScore = auto
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Evaluation assigned", "audit_id", auditID, "section", sectionID, "auditor", auditorID)
	return eval, nil
}

// Submit resolves an evaluation. A manual score or an automatic score must
// be available; the automatic one takes precedence as the scoring input.
func (s *evaluationServiceImpl) Submit(ctx context.Context, in SubmitEvaluationInput, actor Actor) (*entity.SectionEvaluation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !in.Result.IsValid() {
		return nil, entity.ValidationErrorf("unknown evaluation result %q", in.Result)
	}

	eval, audit, err := s.update(ctx, in.AuditID, in.SectionID, func(txCtx context.Context, _ *entity.Audit, e *entity.SectionEvaluation) error {
		m := workflow.NewEvaluationMachine(e.State)
		if !m.CanFire(workflow.EvaluationSubmit) {
			return &entity.TransitionError{Entity: "section evaluation", From: e.State.String(), Trigger: workflow.EvaluationSubmit.String()}
		}

		auto, err := s.automaticInput(txCtx, in.AuditID, in.SectionID)
		if err != nil {
			return err
		}
		if auto == nil && in.ManualScore == nil {
			return entity.ValidationErrorf("section %s has no automatic score; a manual score is required", in.SectionID)
		}

		if err := Fire(txCtx, m, workflow.EvaluationSubmit, "section evaluation"); err != nil {
			return err
		}

		input := auto
		if input == nil {
			input = in.ManualScore
		}
		e.State = entity.EvaluationCompleted
		e.Result = in.Result
		e.AutomaticScore = auto
		e.ManualScore = in.ManualScore
		e.Score = s.policy.SectionScore(in.Result, input)
		e.Observations = in.Observations
		e.PendingClarification = false
		e.CompletedAt = timePtr(s.deps.Now())
		if in.Result == entity.ResultPendienteVisita {
			e.RequiresSiteVisit = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"section_id": string(eval.SectionID), "result": string(eval.Result)}
	if eval.Score != nil {
		payload["score"] = *eval.Score
	}
	s.deps.Logger.Info("Evaluation submitted", "audit_id", in.AuditID, "section", in.SectionID, "result", in.Result)
	s.deps.publish(ctx, event.NewEvent(event.TypeSectionResolved, audit.ID, audit.Code, payload).WithActor(actor.ID))
	return eval, nil
}

// RequestClarification asks the provider for missing information
func (s *evaluationServiceImpl) RequestClarification(ctx context.Context, auditID int64, sectionID entity.SectionID, reason string, actor Actor) (*entity.SectionEvaluation, error) {
	if reason == "" {
		return nil, entity.ValidationErrorf("clarification reason is required")
	}
	eval, _, err := s.update(ctx, auditID, sectionID, func(txCtx context.Context, _ *entity.Audit, e *entity.SectionEvaluation) error {
		if err := Fire(txCtx, workflow.NewEvaluationMachine(e.State), workflow.EvaluationRequestClarification, "section evaluation"); err != nil {
			return err
		}
		e.State = entity.EvaluationClarification
		e.PendingClarification = true
		e.ClarificationReason = reason
		e.ProviderResponse = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Clarification requested", "audit_id", auditID, "section", sectionID, "actor", actor.ID)
	return eval, nil
}

// ProvideClarification records the provider's answer and returns the section to review
func (s *evaluationServiceImpl) ProvideClarification(ctx context.Context, auditID int64, sectionID entity.SectionID, response string, actor Actor) (*entity.SectionEvaluation, error) {
	if response == "" {
		return nil, entity.ValidationErrorf("clarification response is required")
	}
	eval, _, err := s.update(ctx, auditID, sectionID, func(txCtx context.Context, _ *entity.Audit, e *entity.SectionEvaluation) error {
		if err := Fire(txCtx, workflow.NewEvaluationMachine(e.State), workflow.EvaluationProvideClarification, "section evaluation"); err != nil {
			return err
		}
		e.State = entity.EvaluationInReview
		e.PendingClarification = false
		e.ProviderResponse = response
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Clarification provided", "audit_id", auditID, "section", sectionID, "actor", actor.ID)
	return eval, nil
}

// FlagSiteVisit marks whether the section needs on-site confirmation
func (s *evaluationServiceImpl) FlagSiteVisit(ctx context.Context, auditID int64, sectionID entity.SectionID, required bool) (*entity.SectionEvaluation, error) {
	eval, _, err := s.update(ctx, auditID, sectionID, func(_ context.Context, _ *entity.Audit, e *entity.SectionEvaluation) error {
		e.RequiresSiteVisit = required
		return nil
	})
	return eval, err
}

// RecomputeAutomatic leaves resolved evaluations untouched
func (s *evaluationServiceImpl) RecomputeAutomatic(ctx context.Context, auditID int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error) {
	eval, _, err := s.update(ctx, auditID, sectionID, func(txCtx context.Context, _ *entity.Audit, e *entity.SectionEvaluation) error {
		if e.IsResolved() {
			return nil
		}
		auto, err := s.automaticInput(txCtx, auditID, sectionID)
		if err != nil {
			return err
		}
		e.AutomaticScore = auto
		return nil
	})
	return eval, err
}

// automaticInput returns the score of the latest scoring or inventory
// record for the section, or nil when the log has none
func (s *evaluationServiceImpl) automaticInput(ctx context.Context, auditID int64, sectionID entity.SectionID) (*float64, error) {
	return LatestAutomaticScore(ctx, s.deps.Repos.Validations, auditID, sectionID)
}

var _ EvaluationService = (*evaluationServiceImpl)(nil)
