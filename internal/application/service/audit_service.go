package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/google/uuid"
)

const maxCodeAttempts = 5

// ScheduleAuditInput carries the data needed to open an audit
type ScheduleAuditInput struct {
	ProviderID         string             `json:"provider_id" validate:"required"`
	PrimaryAuditorID   string             `json:"primary_auditor_id" validate:"required"`
	SecondaryAuditorID string             `json:"secondary_auditor_id" validate:"omitempty,nefield=PrimaryAuditorID"`
	ScheduledDate      time.Time          `json:"scheduled_date" validate:"required"`
	Deadline           time.Time          `json:"deadline" validate:"required,gtfield=ScheduledDate"`
	StageConfig        entity.StageConfig `json:"stage_config"`
}

// AuditService manages the audit aggregate outside of stage changes
type AuditService interface {
	Schedule(ctx context.Context, in ScheduleAuditInput, actor Actor) (*entity.Audit, error)
	Get(ctx context.Context, id int64) (*entity.Audit, error)
	GetByCode(ctx context.Context, code string) (*entity.Audit, error)
	List(ctx context.Context, filter port.AuditFilter) ([]*entity.Audit, error)
	MarkNotificationSent(ctx context.Context, id int64, actor Actor) (*entity.Audit, error)
	Archive(ctx context.Context, id int64, actor Actor) (*entity.Audit, error)
	History(ctx context.Context, id int64) ([]*entity.StageHistory, error)
}

type auditServiceImpl struct {
	deps    Deps
	newCode func(at time.Time) string
}

// NewAuditService creates a new AuditService
func NewAuditService(deps Deps) AuditService {
	return &auditServiceImpl{deps: deps.WithDefaults(), newCode: randomAuditCode}
}

func randomAuditCode(at time.Time) string {
	id := uuid.New()
	return entity.FormatAuditCode(at, fmt.Sprintf("%x", id[:3]))
}

// Schedule creates the audit at stage 1 and assigns its immutable code
func (s *auditServiceImpl) Schedule(ctx context.Context, in ScheduleAuditInput, actor Actor) (*entity.Audit, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	for stage := range in.StageConfig {
		if !stage.IsValid() || stage.IsTerminal() {
			return nil, entity.ValidationErrorf("stage config references unknown stage %d", stage)
		}
	}

	now := s.deps.Now()
	audit := &entity.Audit{
		Stage:              entity.StageNotification,
		ProviderID:         strings.TrimSpace(in.ProviderID),
		PrimaryAuditorID:   in.PrimaryAuditorID,
		SecondaryAuditorID: in.SecondaryAuditorID,
		ScheduledDate:      in.ScheduledDate.UTC(),
		Deadline:           in.Deadline.UTC(),
		StageConfig:        in.StageConfig,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		audit.Code = s.newCode(now)
		err = s.deps.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.deps.Repos.Audits.Create(txCtx, audit); err != nil {
				return err
			}
			return s.deps.Repos.History.Create(txCtx, &entity.StageHistory{
				AuditID:   audit.ID,
				ToStage:   entity.StageNotification,
				Trigger:   "schedule",
				ActorID:   actor.ID,
				Timestamp: now,
			})
		})
		if !errors.Is(err, entity.ErrConflict) {
			break
		}
		s.deps.Logger.Info("Audit code collision, retrying", "code", audit.Code, "attempt", attempt+1)
	}
	if err != nil {
		s.deps.Logger.Error("Failed to schedule audit", "provider_id", in.ProviderID, "error", err)
		return nil, fmt.Errorf("schedule audit: %w", err)
	}

	s.deps.Logger.Info("Audit scheduled", "audit_id", audit.ID, "code", audit.Code, "provider_id", audit.ProviderID)
	s.deps.publish(ctx, event.NewEvent(event.TypeAuditScheduled, audit.ID, audit.Code, map[string]any{
		"provider_id":    audit.ProviderID,
		"scheduled_date": audit.ScheduledDate.Format(time.RFC3339),
	}).WithActor(actor.ID))
	return audit, nil
}

// Get retrieves an audit by ID
func (s *auditServiceImpl) Get(ctx context.Context, id int64) (*entity.Audit, error) {
	return s.deps.Repos.Audits.GetByID(ctx, id)
}

// GetByCode retrieves an audit by its AUD- code
func (s *auditServiceImpl) GetByCode(ctx context.Context, code string) (*entity.Audit, error) {
	return s.deps.Repos.Audits.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// List returns audits matching filter
func (s *auditServiceImpl) List(ctx context.Context, filter port.AuditFilter) ([]*entity.Audit, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.deps.Repos.Audits.List(ctx, filter)
}

// MarkNotificationSent records that the provider was notified. It is
// idempotent and only meaningful while the audit is at stage 1.
func (s *auditServiceImpl) MarkNotificationSent(ctx context.Context, id int64, actor Actor) (*entity.Audit, error) {
	var audit *entity.Audit
	err := s.deps.mutate(ctx, id, func(txCtx context.Context) error {
		a, err := s.deps.loadMutableAudit(txCtx, id)
		if err != nil {
			return err
		}
		if err := requireStage(a, entity.StageNotification, entity.StageNotification, "mark_notification_sent"); err != nil {
			return err
		}
		if a.NotificationSentAt == nil {
			now := s.deps.Now()
			if err := s.deps.Repos.Audits.MarkNotificationSent(txCtx, id, now); err != nil {
				return err
			}
			a.NotificationSentAt = &now
		}
		audit = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("Audit notification recorded", "audit_id", id, "actor", actor.ID)
	return audit, nil
}

// Archive soft-archives an audit that reached a terminal stage
func (s *auditServiceImpl) Archive(ctx context.Context, id int64, actor Actor) (*entity.Audit, error) {
	var audit *entity.Audit
	err := s.deps.mutate(ctx, id, func(txCtx context.Context) error {
		a, err := s.deps.Repos.Audits.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if !a.Stage.IsTerminal() {
			return &entity.TransitionError{Entity: "audit", From: a.Stage.String(), Trigger: "archive"}
		}
		if !a.Archived {
			if err := s.deps.Repos.Audits.SetArchived(txCtx, id, true); err != nil {
				return err
			}
			a.Archived = true
		}
		audit = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("Audit archived", "audit_id", id, "actor", actor.ID)
	return audit, nil
}

// History lists the stage changes of an audit, oldest first
func (s *auditServiceImpl) History(ctx context.Context, id int64) ([]*entity.StageHistory, error) {
	if _, err := s.deps.Repos.Audits.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.deps.Repos.History.GetByAuditID(ctx, id)
}

var _ AuditService = (*auditServiceImpl)(nil)
