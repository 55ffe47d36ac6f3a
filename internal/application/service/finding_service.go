package service

import (
	"context"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/workflow"
)

// RegisterFindingInput describes something observed during a visit
type RegisterFindingInput struct {
	VisitID         int64              `json:"-"`
	Type            entity.FindingType `json:"type" validate:"required"`
	Severity        entity.Severity    `json:"severity" validate:"required"`
	SectionID       entity.SectionID   `json:"section_id"`
	Title           string             `json:"title" validate:"required,max=200"`
	Description     string             `json:"description"`
	Timeframe       entity.Timeframe   `json:"timeframe"`
	DeductionPoints float64            `json:"deduction_points" validate:"gte=0,lte=100"`
}

// VerifyRemediationInput is the auditor's verdict on a provider correction
type VerifyRemediationInput struct {
	FindingID int64                    `json:"-"`
	Result    entity.RemediationResult `json:"result" validate:"required"`
	Notes     string                   `json:"notes"`
}

// FindingService tracks findings from registration to closure
type FindingService interface {
	Register(ctx context.Context, in RegisterFindingInput, actor Actor) (*entity.Finding, error)
	Get(ctx context.Context, findingID int64) (*entity.Finding, error)
	List(ctx context.Context, auditID int64) ([]*entity.Finding, error)
	AcknowledgeByProvider(ctx context.Context, findingID int64, response string, actor Actor) (*entity.Finding, error)
	MarkCorrected(ctx context.Context, findingID int64, evidence string, actor Actor) (*entity.Finding, error)
	// VerifyRemediation closes the finding only when the correction is satisfactory;
	// any other result reopens it
	VerifyRemediation(ctx context.Context, in VerifyRemediationInput, actor Actor) (*entity.Finding, error)
	Defer(ctx context.Context, findingID int64, reason string, actor Actor) (*entity.Finding, error)
}

type findingServiceImpl struct {
	deps Deps
}

// NewFindingService creates a new FindingService
func NewFindingService(deps Deps) FindingService {
	return &findingServiceImpl{deps: deps.WithDefaults()}
}

func (s *findingServiceImpl) Register(ctx context.Context, in RegisterFindingInput, actor Actor) (*entity.Finding, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !in.Type.IsValid() {
		return nil, entity.ValidationErrorf("unknown finding type %q", in.Type)
	}
	if !in.Severity.IsValid() {
		return nil, entity.ValidationErrorf("unknown severity %q", in.Severity)
	}
	if in.Timeframe != "" && !in.Timeframe.IsValid() {
		return nil, entity.ValidationErrorf("unknown timeframe %q", in.Timeframe)
	}
	if in.SectionID != "" && !s.deps.Registry.Has(in.SectionID) {
		return nil, entity.NewNotFoundError("section", in.SectionID)
	}

	visit, err := s.deps.Repos.Visits.GetByID(ctx, in.VisitID)
	if err != nil {
		return nil, err
	}

	var finding *entity.Finding
	var audit *entity.Audit
	err = s.deps.mutate(ctx, visit.AuditID, func(txCtx context.Context) error {
		a, err := s.deps.loadMutableAudit(txCtx, visit.AuditID)
		if err != nil {
			return err
		}
		if err := requireStage(a, entity.StageSiteVisit, entity.StageConsolidation, "register_finding"); err != nil {
			return err
		}
		v, err := s.deps.Repos.Visits.GetByID(txCtx, in.VisitID)
		if err != nil {
			return err
		}
		if v.State != entity.VisitInProgress && v.State != entity.VisitCompleted {
			return &entity.TransitionError{Entity: "visit", From: v.State.String(), Trigger: "register_finding"}
		}

		count, err := s.deps.Repos.Findings.CountByAudit(txCtx, a.ID)
		if err != nil {
			return err
		}

		now := s.deps.Now()
		f := &entity.Finding{
			AuditID:         a.ID,
			VisitID:         v.ID,
			Code:            entity.FormatFindingCode(a.CodeSuffix(), count+1),
			Type:            in.Type,
			Severity:        in.Severity,
			SectionID:       in.SectionID,
			Title:           in.Title,
			Description:     in.Description,
			Timeframe:       in.Timeframe,
			Tracking:        entity.TrackingOpen,
			DeductionPoints: in.DeductionPoints,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if in.Timeframe != "" {
			f.RemediationDeadline = timePtr(in.Timeframe.Deadline(now))
		}
		if err := s.deps.Repos.Findings.Create(txCtx, f); err != nil {
			return err
		}
		finding, audit = f, a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("Finding registered", "audit_id", audit.ID, "code", finding.Code, "severity", finding.Severity, "actor", actor.ID)
	s.deps.publish(ctx, event.NewEvent(event.TypeFindingRegistered, audit.ID, audit.Code, map[string]any{
		"finding_id": finding.ID,
		"code":       finding.Code,
		"type":       string(finding.Type),
		"severity":   string(finding.Severity),
		"visit_id":   finding.VisitID,
	}).WithActor(actor.ID))
	return finding, nil
}

func (s *findingServiceImpl) Get(ctx context.Context, findingID int64) (*entity.Finding, error) {
	return s.deps.Repos.Findings.GetByID(ctx, findingID)
}

func (s *findingServiceImpl) List(ctx context.Context, auditID int64) ([]*entity.Finding, error) {
	if _, err := s.deps.Repos.Audits.GetByID(ctx, auditID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Findings.ListByAudit(ctx, auditID)
}

// track fires triggers in order against the finding under its audit lock
func (s *findingServiceImpl) track(ctx context.Context, findingID int64, triggers []workflow.FindingTrigger, apply func(f *entity.Finding)) (*entity.Finding, error) {
	peek, err := s.deps.Repos.Findings.GetByID(ctx, findingID)
	if err != nil {
		return nil, err
	}

	var finding *entity.Finding
	err = s.deps.mutate(ctx, peek.AuditID, func(txCtx context.Context) error {
		if _, err := s.deps.loadMutableAudit(txCtx, peek.AuditID); err != nil {
			return err
		}
		f, err := s.deps.Repos.Findings.GetByID(txCtx, findingID)
		if err != nil {
			return err
		}
		m := workflow.NewFindingMachine(f.Tracking)
		for _, trigger := range triggers {
			if err := Fire(txCtx, m, trigger, "finding"); err != nil {
				return err
			}
		}
		f.Tracking = m.State()
		if apply != nil {
			apply(f)
		}
		f.UpdatedAt = s.deps.Now()
		if err := s.deps.Repos.Findings.Update(txCtx, f); err != nil {
			return err
		}
		finding = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finding, nil
}

func (s *findingServiceImpl) AcknowledgeByProvider(ctx context.Context, findingID int64, response string, actor Actor) (*entity.Finding, error) {
	f, err := s.track(ctx, findingID, []workflow.FindingTrigger{workflow.FindingAcknowledge}, func(f *entity.Finding) {
		f.ProviderAcknowledged = true
		f.ProviderResponse = response
		f.AcknowledgedAt = timePtr(s.deps.Now())
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Finding acknowledged", "code", f.Code, "actor", actor.ID)
	return f, nil
}

func (s *findingServiceImpl) MarkCorrected(ctx context.Context, findingID int64, evidence string, actor Actor) (*entity.Finding, error) {
	if evidence == "" {
		return nil, entity.ValidationErrorf("correction evidence is required")
	}
	f, err := s.track(ctx, findingID, []workflow.FindingTrigger{workflow.FindingMarkCorrected}, func(f *entity.Finding) {
		f.CorrectionEvidence = evidence
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Finding marked corrected", "code", f.Code, "actor", actor.ID)
	return f, nil
}

func (s *findingServiceImpl) VerifyRemediation(ctx context.Context, in VerifyRemediationInput, actor Actor) (*entity.Finding, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	result := in.Result.Normalize()
	if !result.IsValid() {
		return nil, entity.ValidationErrorf("unknown remediation result %q", in.Result)
	}

	triggers := []workflow.FindingTrigger{workflow.FindingReopen}
	if result == entity.RemediationSatisfactory {
		triggers = []workflow.FindingTrigger{workflow.FindingVerify, workflow.FindingClose}
	}

	f, err := s.track(ctx, in.FindingID, triggers, func(f *entity.Finding) {
		now := s.deps.Now()
		f.VerificationResult = result
		f.VerificationNotes = in.Notes
		f.VerifiedBy = actor.ID
		f.VerifiedAt = timePtr(now)
		if f.Tracking == entity.TrackingClosed {
			f.ClosedAt = timePtr(now)
		}
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Finding remediation verified", "code", f.Code, "result", result, "tracking", f.Tracking, "actor", actor.ID)
	return f, nil
}

func (s *findingServiceImpl) Defer(ctx context.Context, findingID int64, reason string, actor Actor) (*entity.Finding, error) {
	if reason == "" {
		return nil, entity.ValidationErrorf("defer reason is required")
	}
	f, err := s.track(ctx, findingID, []workflow.FindingTrigger{workflow.FindingDefer}, func(f *entity.Finding) {
		f.DeferReason = reason
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Finding deferred", "code", f.Code, "actor", actor.ID)
	return f, nil
}

var _ FindingService = (*findingServiceImpl)(nil)
