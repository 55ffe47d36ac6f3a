package port

import (
	"context"
	"time"

	"github.com/garyjia/site-audit/internal/domain/entity"
)

// DocumentMeta describes an uploaded evidence document
type DocumentMeta struct {
	AuditID    int64            `json:"audit_id"`
	SectionID  entity.SectionID `json:"section_id"`
	FileID     string           `json:"file_id"`
	FileName   string           `json:"file_name,omitempty"`
	UploadedAt time.Time        `json:"uploaded_at"`
}

// DocumentStore answers whether evidence exists for a section
type DocumentStore interface {
	HasDocument(ctx context.Context, auditID int64, sectionID entity.SectionID) (bool, error)
	// GetDocumentMeta returns the most recent upload, or nil, nil when none
	GetDocumentMeta(ctx context.Context, auditID int64, sectionID entity.SectionID) (*DocumentMeta, error)
}

// DocumentIndex is the writable side of the document store used by the intake API
type DocumentIndex interface {
	DocumentStore
	Register(ctx context.Context, meta *DocumentMeta) error
}

// InventoryResult is the output of the equipment-inventory ingestion
type InventoryResult struct {
	AuditID            int64     `json:"audit_id"`
	Processed          bool      `json:"processed"`
	ConformantCount    int       `json:"conformant_count"`
	NonConformantCount int       `json:"non_conformant_count"`
	Score              float64   `json:"score"`
	ProcessedAt        time.Time `json:"processed_at"`
}

// InventoryIngestion exposes the processed inventory of an audit
type InventoryIngestion interface {
	// GetInventoryResult returns nil, nil when nothing was ingested yet
	GetInventoryResult(ctx context.Context, auditID int64) (*InventoryResult, error)
}

// InventoryIndex is the writable side used when the ETL reports a result
type InventoryIndex interface {
	InventoryIngestion
	Save(ctx context.Context, result *InventoryResult) error
}

// SectionScoreRequest is the evidence handed to the IA scorer
type SectionScoreRequest struct {
	AuditCode   string
	SectionID   entity.SectionID
	SectionName string
	Evidence    string
}

// SectionScoreResult is the IA scorer verdict
type SectionScoreResult struct {
	Score          float64
	Result         entity.ValidationResult
	CriticalErrors []string
	Warnings       []string
	Reasoning      string
}

// SectionScorer produces IA-assisted section scores
type SectionScorer interface {
	ScoreSection(ctx context.Context, req *SectionScoreRequest) (*SectionScoreResult, error)
}

// AuditLocker serializes mutations of a single audit. Lock blocks for a
// bounded time and returns *entity.LockTimeoutError when it gives up; the
// returned release function must be called on every exit path.
type AuditLocker interface {
	Lock(ctx context.Context, auditID int64) (release func(), err error)
}

// MetricsRecorder receives business counters from the application layer
type MetricsRecorder interface {
	StageTransition(from, to entity.Stage, result string)
	ReportFinalized(result string)
	ValidationRecorded(typ entity.ValidationType, result entity.ValidationResult)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) StageTransition(entity.Stage, entity.Stage, string)                {}
func (NopMetrics) ReportFinalized(string)                                            {}
func (NopMetrics) ValidationRecorded(entity.ValidationType, entity.ValidationResult) {}
