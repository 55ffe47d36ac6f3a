package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/workflow"
)

// ReportService drives the approval and delivery of the final report
type ReportService interface {
	Get(ctx context.Context, auditID int64) (*entity.Report, error)
	SubmitForReview(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error)
	Approve(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error)
	ReturnToDraft(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error)
	Deliver(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error)
	ProviderAccept(ctx context.Context, auditID int64, comment string, actor Actor) (*entity.Report, error)
	ProviderContest(ctx context.Context, auditID int64, comment string, actor Actor) (*entity.Report, error)
	// Export renders the report with everything it was built from and
	// returns where it was written
	Export(ctx context.Context, auditID int64) (string, error)
}

var (
	reviewStages   = []entity.Stage{entity.StageFinalReport}
	deliveryStages = []entity.Stage{entity.StageClosure}
	// the provider may still answer after the audit was closed
	responseStages = []entity.Stage{entity.StageClosure, entity.StageCompleted}
)

type reportServiceImpl struct {
	deps     Deps
	exporter port.ReportExporter
}

// NewReportService creates a new ReportService. exporter may be nil when
// export is disabled.
func NewReportService(deps Deps, exporter port.ReportExporter) ReportService {
	return &reportServiceImpl{deps: deps.WithDefaults(), exporter: exporter}
}

func (s *reportServiceImpl) Get(ctx context.Context, auditID int64) (*entity.Report, error) {
	if _, err := s.deps.Repos.Audits.GetByID(ctx, auditID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Reports.GetByAuditID(ctx, auditID)
}

// transition fires trigger on the report when the audit sits in one of stages
func (s *reportServiceImpl) transition(ctx context.Context, auditID int64, trigger workflow.ReportTrigger, stages []entity.Stage, apply func(r *entity.Report)) (*entity.Report, *entity.Audit, error) {
	var report *entity.Report
	var audit *entity.Audit
	err := s.deps.mutate(ctx, auditID, func(txCtx context.Context) error {
		a, err := s.deps.Repos.Audits.GetByID(txCtx, auditID)
		if err != nil {
			return err
		}
		if !slices.Contains(stages, a.Stage) {
			return &entity.TransitionError{Entity: "audit", From: a.Stage.String(), Trigger: "report_" + trigger.String()}
		}
		r, err := s.deps.Repos.Reports.GetByAuditID(txCtx, auditID)
		if err != nil {
			return err
		}
		m := workflow.NewReportMachine(r.ApprovalState)
		if err := Fire(txCtx, m, trigger, "report"); err != nil {
			return err
		}
		r.ApprovalState = m.State()
		if apply != nil {
			apply(r)
		}
		r.UpdatedAt = s.deps.Now()
		if err := s.deps.Repos.Reports.Update(txCtx, r); err != nil {
			return err
		}
		report, audit = r, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return report, audit, nil
}

func (s *reportServiceImpl) SubmitForReview(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error) {
	r, _, err := s.transition(ctx, auditID, workflow.ReportSubmitForReview, reviewStages, func(r *entity.Report) {
		r.ReviewedBy = actor.ID
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Report submitted for review", "audit_id", auditID, "actor", actor.ID)
	return r, nil
}

func (s *reportServiceImpl) Approve(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error) {
	r, _, err := s.transition(ctx, auditID, workflow.ReportApprove, reviewStages, func(r *entity.Report) {
		r.ApprovedBy = actor.ID
		r.ApprovedAt = timePtr(s.deps.Now())
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Report approved", "audit_id", auditID, "actor", actor.ID)
	return r, nil
}

func (s *reportServiceImpl) ReturnToDraft(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error) {
	r, _, err := s.transition(ctx, auditID, workflow.ReportReturnToDraft, reviewStages, nil)
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Report returned to draft", "audit_id", auditID, "actor", actor.ID)
	return r, nil
}

// Deliver happens during closure, after the audit left the final report stage
func (s *reportServiceImpl) Deliver(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error) {
	r, audit, err := s.transition(ctx, auditID, workflow.ReportDeliver, deliveryStages, func(r *entity.Report) {
		r.DeliveredAt = timePtr(s.deps.Now())
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Report delivered", "audit_id", auditID, "actor", actor.ID)
	s.deps.publish(ctx, event.NewEvent(event.TypeReportDelivered, audit.ID, audit.Code, map[string]any{
		"report_id":   r.ID,
		"total_score": r.TotalScore,
		"tier":        string(r.Tier),
	}).WithActor(actor.ID))
	return r, nil
}

func (s *reportServiceImpl) ProviderAccept(ctx context.Context, auditID int64, comment string, actor Actor) (*entity.Report, error) {
	return s.respond(ctx, auditID, workflow.ReportAccept, comment, actor)
}

func (s *reportServiceImpl) ProviderContest(ctx context.Context, auditID int64, comment string, actor Actor) (*entity.Report, error) {
	if comment == "" {
		return nil, entity.ValidationErrorf("a contested report needs a comment")
	}
	return s.respond(ctx, auditID, workflow.ReportContest, comment, actor)
}

func (s *reportServiceImpl) respond(ctx context.Context, auditID int64, trigger workflow.ReportTrigger, comment string, actor Actor) (*entity.Report, error) {
	r, _, err := s.transition(ctx, auditID, trigger, responseStages, func(r *entity.Report) {
		r.ProviderResponse = comment
		r.ProviderRespondedAt = timePtr(s.deps.Now())
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Provider responded to report", "audit_id", auditID, "response", r.ApprovalState, "actor", actor.ID)
	return r, nil
}

func (s *reportServiceImpl) Export(ctx context.Context, auditID int64) (string, error) {
	if s.exporter == nil {
		return "", fmt.Errorf("report export is not configured")
	}
	audit, err := s.deps.Repos.Audits.GetByID(ctx, auditID)
	if err != nil {
		return "", err
	}
	report, err := s.deps.Repos.Reports.GetByAuditID(ctx, auditID)
	if err != nil {
		return "", err
	}
	evals, err := s.deps.Repos.Evaluations.ListByAudit(ctx, auditID)
	if err != nil {
		return "", err
	}
	visits, err := s.deps.Repos.Visits.ListByAudit(ctx, auditID)
	if err != nil {
		return "", err
	}
	findings, err := s.deps.Repos.Findings.ListByAudit(ctx, auditID)
	if err != nil {
		return "", err
	}

	path, err := s.exporter.Export(ctx, &port.ReportBundle{
		Audit:       audit,
		Report:      report,
		Sections:    s.deps.Registry.ListAll(),
		Evaluations: evals,
		Visits:      visits,
		Findings:    findings,
	})
	if err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}
	s.deps.Logger.Info("Report exported", "audit_id", auditID, "path", path)
	return path, nil
}

var _ ReportService = (*reportServiceImpl)(nil)
