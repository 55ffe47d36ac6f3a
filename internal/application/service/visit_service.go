package service

import (
	"context"
	"time"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/geo"
	"github.com/garyjia/site-audit/internal/domain/workflow"
)

// ScheduleVisitInput describes a planned on-site visit
type ScheduleVisitInput struct {
	AuditID     int64              `json:"-"`
	SiteName    string             `json:"site_name" validate:"required"`
	SiteAddress string             `json:"site_address"`
	Reference   *geo.Point         `json:"reference"`
	ScheduledAt time.Time          `json:"scheduled_at" validate:"required"`
	Sections    []entity.SectionID `json:"sections"`
	AuditorID   string             `json:"auditor_id"`
}

// EndVisitInput closes an in-progress visit
type EndVisitInput struct {
	VisitID   int64      `json:"-"`
	Departure *geo.Point `json:"departure"`
	Score     *float64   `json:"score" validate:"omitempty,gte=0,lte=100"`
	Notes     string     `json:"notes"`
}

// VisitService manages site visits and their GPS verification
type VisitService interface {
	Schedule(ctx context.Context, in ScheduleVisitInput, actor Actor) (*entity.Visit, error)
	Get(ctx context.Context, visitID int64) (*entity.Visit, error)
	List(ctx context.Context, auditID int64) ([]*entity.Visit, error)
	Confirm(ctx context.Context, visitID int64, actor Actor) (*entity.Visit, error)
	Reschedule(ctx context.Context, visitID int64, at time.Time, actor Actor) (*entity.Visit, error)
	Cancel(ctx context.Context, visitID int64, reason string, actor Actor) (*entity.Visit, error)
	Start(ctx context.Context, visitID int64, arrival *geo.Point, actor Actor) (*entity.Visit, error)
	End(ctx context.Context, in EndVisitInput, actor Actor) (*entity.Visit, error)
	// RecomputeVerification reclassifies a completed visit, optionally against
	// corrected reference coordinates
	RecomputeVerification(ctx context.Context, visitID int64, reference *geo.Point, actor Actor) (*entity.Visit, error)
}

type visitServiceImpl struct {
	deps       Deps
	thresholds geo.Thresholds
}

// NewVisitService creates a new VisitService
func NewVisitService(deps Deps, thresholds geo.Thresholds) VisitService {
	return &visitServiceImpl{deps: deps.WithDefaults(), thresholds: thresholds}
}

func validatePoint(p *geo.Point) error {
	if p == nil {
		return nil
	}
	if err := p.Validate(); err != nil {
		return entity.ValidationErrorf("%v", err)
	}
	return nil
}

// Schedule is allowed while auditors evaluate and during the visit stage
func (s *visitServiceImpl) Schedule(ctx context.Context, in ScheduleVisitInput, actor Actor) (*entity.Visit, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := validatePoint(in.Reference); err != nil {
		return nil, err
	}
	for _, id := range in.Sections {
		if !s.deps.Registry.Has(id) {
			return nil, entity.NewNotFoundError("section", id)
		}
	}

	now := s.deps.Now()
	visit := &entity.Visit{
		AuditID:     in.AuditID,
		SiteName:    in.SiteName,
		SiteAddress: in.SiteAddress,
		Reference:   in.Reference,
		ScheduledAt: in.ScheduledAt.UTC(),
		State:       entity.VisitScheduled,
		Sections:    in.Sections,
		AuditorID:   in.AuditorID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.deps.mutate(ctx, in.AuditID, func(txCtx context.Context) error {
		audit, err := s.deps.loadMutableAudit(txCtx, in.AuditID)
		if err != nil {
			return err
		}
		if err := requireStage(audit, entity.StageAuditorEvaluation, entity.StageSiteVisit, "schedule_visit"); err != nil {
			return err
		}
		return s.deps.Repos.Visits.Create(txCtx, visit)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("Visit scheduled", "audit_id", in.AuditID, "visit_id", visit.ID, "site", in.SiteName, "actor", actor.ID)
	return visit, nil
}

func (s *visitServiceImpl) Get(ctx context.Context, visitID int64) (*entity.Visit, error) {
	return s.deps.Repos.Visits.GetByID(ctx, visitID)
}

func (s *visitServiceImpl) List(ctx context.Context, auditID int64) ([]*entity.Visit, error) {
	if _, err := s.deps.Repos.Audits.GetByID(ctx, auditID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Visits.ListByAudit(ctx, auditID)
}

// transition applies trigger to the visit under its audit's lock. stageFrom
// and stageTo bound the audit stage the trigger is accepted in.
func (s *visitServiceImpl) transition(ctx context.Context, visitID int64, trigger workflow.VisitTrigger, stageFrom, stageTo entity.Stage, apply func(audit *entity.Audit, v *entity.Visit) error) (*entity.Visit, *entity.Audit, error) {
	peek, err := s.deps.Repos.Visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, nil, err
	}

	var visit *entity.Visit
	var audit *entity.Audit
	err = s.deps.mutate(ctx, peek.AuditID, func(txCtx context.Context) error {
		a, err := s.deps.loadMutableAudit(txCtx, peek.AuditID)
		if err != nil {
			return err
		}
		if err := requireStage(a, stageFrom, stageTo, "visit_"+trigger.String()); err != nil {
			return err
		}
		v, err := s.deps.Repos.Visits.GetByID(txCtx, visitID)
		if err != nil {
			return err
		}
		m := workflow.NewVisitMachine(v.State)
		if err := Fire(txCtx, m, trigger, "visit"); err != nil {
			return err
		}
		v.State = m.State()
		if apply != nil {
			if err := apply(a, v); err != nil {
				return err
			}
		}
		v.UpdatedAt = s.deps.Now()
		if err := s.deps.Repos.Visits.Update(txCtx, v); err != nil {
			return err
		}
		visit, audit = v, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return visit, audit, nil
}

func (s *visitServiceImpl) Confirm(ctx context.Context, visitID int64, actor Actor) (*entity.Visit, error) {
	v, _, err := s.transition(ctx, visitID, workflow.VisitConfirm, entity.StageAuditorEvaluation, entity.StageSiteVisit, nil)
	if err == nil {
		s.deps.Logger.Info("Visit confirmed", "visit_id", visitID, "actor", actor.ID)
	}
	return v, err
}

func (s *visitServiceImpl) Reschedule(ctx context.Context, visitID int64, at time.Time, actor Actor) (*entity.Visit, error) {
	if at.IsZero() {
		return nil, entity.ValidationErrorf("new visit time is required")
	}
	v, _, err := s.transition(ctx, visitID, workflow.VisitReschedule, entity.StageAuditorEvaluation, entity.StageSiteVisit, func(_ *entity.Audit, v *entity.Visit) error {
		v.ScheduledAt = at.UTC()
		return nil
	})
	if err == nil {
		s.deps.Logger.Info("Visit rescheduled", "visit_id", visitID, "at", at, "actor", actor.ID)
	}
	return v, err
}

func (s *visitServiceImpl) Cancel(ctx context.Context, visitID int64, reason string, actor Actor) (*entity.Visit, error) {
	if reason == "" {
		return nil, entity.ValidationErrorf("cancel reason is required")
	}
	v, _, err := s.transition(ctx, visitID, workflow.VisitCancel, entity.StageAuditorEvaluation, entity.StageSiteVisit, func(_ *entity.Audit, v *entity.Visit) error {
		v.CancelReason = reason
		return nil
	})
	if err == nil {
		s.deps.Logger.Info("Visit cancelled", "visit_id", visitID, "reason", reason, "actor", actor.ID)
	}
	return v, err
}

// Start records the arrival coordinates; missing coordinates are accepted
// and later classify the visit as unverifiable
func (s *visitServiceImpl) Start(ctx context.Context, visitID int64, arrival *geo.Point, actor Actor) (*entity.Visit, error) {
	if err := validatePoint(arrival); err != nil {
		return nil, err
	}
	v, _, err := s.transition(ctx, visitID, workflow.VisitStart, entity.StageSiteVisit, entity.StageSiteVisit, func(_ *entity.Audit, v *entity.Visit) error {
		v.ArrivalAt = timePtr(s.deps.Now())
		v.Arrival = arrival
		if v.AuditorID == "" {
			v.AuditorID = actor.ID
		}
		return nil
	})
	if err == nil {
		s.deps.Logger.Info("Visit started", "visit_id", visitID, "has_gps", arrival != nil, "actor", actor.ID)
	}
	return v, err
}

// End completes the visit and verifies the arrival position
func (s *visitServiceImpl) End(ctx context.Context, in EndVisitInput, actor Actor) (*entity.Visit, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := validatePoint(in.Departure); err != nil {
		return nil, err
	}
	v, audit, err := s.transition(ctx, in.VisitID, workflow.VisitEnd, entity.StageSiteVisit, entity.StageSiteVisit, func(_ *entity.Audit, v *entity.Visit) error {
		v.DepartureAt = timePtr(s.deps.Now())
		v.Departure = in.Departure
		v.Score = in.Score
		v.Notes = in.Notes
		v.Verification, v.DistanceMeters = geo.Classify(v.Arrival, v.Reference, s.thresholds)
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"visit_id": v.ID, "site": v.SiteName, "verification": string(v.Verification)}
	if v.DistanceMeters != nil {
		payload["distance_meters"] = *v.DistanceMeters
	}
	s.deps.Logger.Info("Visit completed", "visit_id", v.ID, "verification", v.Verification, "actor", actor.ID)
	s.deps.publish(ctx, event.NewEvent(event.TypeVisitCompleted, audit.ID, audit.Code, payload).WithActor(actor.ID))
	return v, nil
}

func (s *visitServiceImpl) RecomputeVerification(ctx context.Context, visitID int64, reference *geo.Point, actor Actor) (*entity.Visit, error) {
	if err := validatePoint(reference); err != nil {
		return nil, err
	}
	peek, err := s.deps.Repos.Visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	var visit *entity.Visit
	err = s.deps.mutate(ctx, peek.AuditID, func(txCtx context.Context) error {
		if _, err := s.deps.loadMutableAudit(txCtx, peek.AuditID); err != nil {
			return err
		}
		v, err := s.deps.Repos.Visits.GetByID(txCtx, visitID)
		if err != nil {
			return err
		}
		if v.State != entity.VisitCompleted {
			return &entity.TransitionError{Entity: "visit", From: v.State.String(), Trigger: "recompute_verification"}
		}
		if reference != nil {
			v.Reference = reference
		}
		v.Verification, v.DistanceMeters = geo.Classify(v.Arrival, v.Reference, s.thresholds)
		v.UpdatedAt = s.deps.Now()
		if err := s.deps.Repos.Visits.Update(txCtx, v); err != nil {
			return err
		}
		visit = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Visit verification recomputed", "visit_id", visitID, "verification", visit.Verification, "actor", actor.ID)
	return visit, nil
}

var _ VisitService = (*visitServiceImpl)(nil)
