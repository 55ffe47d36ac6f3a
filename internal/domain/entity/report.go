package entity

import "time"

// ApprovalState is the lifecycle of a final report
type ApprovalState string

const (
	ReportDraft     ApprovalState = "borrador"
	ReportInReview  ApprovalState = "en_revision"
	ReportApproved  ApprovalState = "aprobado"
	ReportDelivered ApprovalState = "entregado"
	ReportAccepted  ApprovalState = "aceptado"
	ReportContested ApprovalState = "impugnado"
)

var validApprovalStates = map[ApprovalState]bool{
	ReportDraft:     true,
	ReportInReview:  true,
	ReportApproved:  true,
	ReportDelivered: true,
	ReportAccepted:  true,
	ReportContested: true,
}

func (s ApprovalState) IsValid() bool  { return validApprovalStates[s] }
func (s ApprovalState) String() string { return string(s) }

// IsApproved reports whether the report passed internal approval
func (s ApprovalState) IsApproved() bool {
	return s == ReportApproved || s.IsDelivered()
}

// IsDelivered reports whether the report reached the provider
func (s ApprovalState) IsDelivered() bool {
	return s == ReportDelivered || s == ReportAccepted || s == ReportContested
}

// ComplianceTier buckets the total score
type ComplianceTier string

const (
	TierExcellent    ComplianceTier = "excelente"
	TierSatisfactory ComplianceTier = "satisfactorio"
	TierAcceptable   ComplianceTier = "aceptable"
	TierDeficient    ComplianceTier = "deficiente"
	TierCritical     ComplianceTier = "critico"
)

// Conclusion is the overall verdict written into the report
type Conclusion string

const (
	ConclusionFull         Conclusion = "cumple_totalmente"
	ConclusionObservations Conclusion = "cumple_con_observaciones"
	ConclusionPartial      Conclusion = "cumple_parcialmente"
	ConclusionNonCompliant Conclusion = "no_cumple"
)

// VisitSummary consolidates the site visits of an audit
type VisitSummary struct {
	Total        int            `json:"total"`
	Completed    int            `json:"completed"`
	Cancelled    int            `json:"cancelled"`
	ByOutcome    map[string]int `json:"by_outcome"`
	AverageScore *float64       `json:"average_score,omitempty"`
}

// InventorySummary is the equipment-inventory conformance carried into the report
type InventorySummary struct {
	Processed          bool    `json:"processed"`
	ConformantCount    int     `json:"conformant_count"`
	NonConformantCount int     `json:"non_conformant_count"`
	Score              float64 `json:"score"`
}

// Report is the consolidated result of an audit
type Report struct {
	ID                  int64                 `json:"id"`
	AuditID             int64                 `json:"audit_id"`
	TotalScore          float64               `json:"total_score"`
	SectionScores       map[SectionID]float64 `json:"section_scores"`
	Tier                ComplianceTier        `json:"tier"`
	Conclusion          Conclusion            `json:"conclusion"`
	Findings            FindingSummary        `json:"findings"`
	Visits              VisitSummary          `json:"visits"`
	Inventory           *InventorySummary     `json:"inventory,omitempty"`
	ContentHash         string                `json:"content_hash"`
	ApprovalState       ApprovalState         `json:"approval_state"`
	ReviewedBy          string                `json:"reviewed_by,omitempty"`
	ApprovedBy          string                `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time            `json:"approved_at,omitempty"`
	DeliveredAt         *time.Time            `json:"delivered_at,omitempty"`
	ProviderResponse    string                `json:"provider_response,omitempty"`
	ProviderRespondedAt *time.Time            `json:"provider_responded_at,omitempty"`
	GeneratedAt         time.Time             `json:"generated_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}
