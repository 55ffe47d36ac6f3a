package port

import (
	"context"

	"github.com/garyjia/site-audit/internal/domain/entity"
)

// ReportBundle is everything an exporter needs to render a report
type ReportBundle struct {
	Audit       *entity.Audit
	Report      *entity.Report
	Sections    []entity.SectionDefinition
	Evaluations []*entity.SectionEvaluation
	Visits      []*entity.Visit
	Findings    []*entity.Finding
}

// ReportExporter writes a report to durable storage and returns its path
type ReportExporter interface {
	Export(ctx context.Context, bundle *ReportBundle) (string, error)
}

// EvidenceStorage keeps uploaded evidence files. Save returns the file ID
// later recorded in DocumentMeta.
type EvidenceStorage interface {
	Save(ctx context.Context, auditCode string, sectionID entity.SectionID, fileName string, content []byte) (string, error)
}
