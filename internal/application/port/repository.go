package port

import (
	"context"
	"time"

	"github.com/garyjia/site-audit/internal/domain/entity"
)

// AuditRepository defines persistence operations for Audit.
// Lookups return *entity.NotFoundError when the row does not exist.
type AuditRepository interface {
	Create(ctx context.Context, audit *entity.Audit) error
	GetByID(ctx context.Context, id int64) (*entity.Audit, error)
	GetByCode(ctx context.Context, code string) (*entity.Audit, error)
	List(ctx context.Context, filter AuditFilter) ([]*entity.Audit, error)
	// UpdateStage moves the audit to stage if its version still equals
	// expectedVersion; otherwise it returns entity.ErrConcurrency.
	UpdateStage(ctx context.Context, id, expectedVersion int64, stage entity.Stage, reason string) error
	MarkNotificationSent(ctx context.Context, id int64, at time.Time) error
	SetArchived(ctx context.Context, id int64, archived bool) error
}

// AuditFilter narrows List results
type AuditFilter struct {
	Stage           entity.Stage
	ProviderID      string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// StageHistoryRepository defines persistence operations for StageHistory
type StageHistoryRepository interface {
	Create(ctx context.Context, history *entity.StageHistory) error
	GetByAuditID(ctx context.Context, auditID int64) ([]*entity.StageHistory, error)
}

// EvaluationRepository defines persistence operations for SectionEvaluation
type EvaluationRepository interface {
	// CreateBatch inserts evaluations, skipping (audit, section) pairs that already exist
	CreateBatch(ctx context.Context, evals []*entity.SectionEvaluation) error
	Get(ctx context.Context, auditID int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error)
	ListByAudit(ctx context.Context, auditID int64) ([]*entity.SectionEvaluation, error)
	// Update writes eval if its stored version equals eval.Version and bumps it
	Update(ctx context.Context, eval *entity.SectionEvaluation) error
}

// ValidationFilter selects records for Latest. Zero fields match anything.
type ValidationFilter struct {
	Type      entity.ValidationType
	SectionID entity.SectionID
}

// ValidationRecordRepository is the append-only validation log
type ValidationRecordRepository interface {
	Append(ctx context.Context, record *entity.ValidationRecord) (int64, error)
	// Latest returns nil, nil when no record matches
	Latest(ctx context.Context, auditID int64, filter ValidationFilter) (*entity.ValidationRecord, error)
	ListByAudit(ctx context.Context, auditID int64) ([]*entity.ValidationRecord, error)
}

// VisitRepository defines persistence operations for Visit
type VisitRepository interface {
	Create(ctx context.Context, visit *entity.Visit) error
	GetByID(ctx context.Context, id int64) (*entity.Visit, error)
	ListByAudit(ctx context.Context, auditID int64) ([]*entity.Visit, error)
	Update(ctx context.Context, visit *entity.Visit) error
}

// FindingRepository defines persistence operations for Finding
type FindingRepository interface {
	Create(ctx context.Context, finding *entity.Finding) error
	GetByID(ctx context.Context, id int64) (*entity.Finding, error)
	ListByAudit(ctx context.Context, auditID int64) ([]*entity.Finding, error)
	CountByAudit(ctx context.Context, auditID int64) (int, error)
	Update(ctx context.Context, finding *entity.Finding) error
}

// ReportRepository defines persistence operations for Report
type ReportRepository interface {
	Create(ctx context.Context, report *entity.Report) error
	GetByAuditID(ctx context.Context, auditID int64) (*entity.Report, error)
	Update(ctx context.Context, report *entity.Report) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories bundles every repository the services depend on
type Repositories struct {
	Audits      AuditRepository
	History     StageHistoryRepository
	Evaluations EvaluationRepository
	Validations ValidationRecordRepository
	Visits      VisitRepository
	Findings    FindingRepository
	Reports     ReportRepository
	Documents   DocumentIndex
	Inventory   InventoryIndex
}
