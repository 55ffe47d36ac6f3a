package entity

import (
	"fmt"
	"time"
)

// FindingType classifies what was observed on site
type FindingType string

const (
	FindingCompliance    FindingType = "cumplimiento"
	FindingNonCompliance FindingType = "no_conformidad"
	FindingObservation   FindingType = "observacion"
	FindingRisk          FindingType = "riesgo"
	FindingImprovement   FindingType = "oportunidad_mejora"
)

var validFindingTypes = map[FindingType]bool{
	FindingCompliance:    true,
	FindingNonCompliance: true,
	FindingObservation:   true,
	FindingRisk:          true,
	FindingImprovement:   true,
}

func (t FindingType) IsValid() bool { return validFindingTypes[t] }

// Severity of a finding
type Severity string

const (
	SeverityLow      Severity = "baja"
	SeverityMedium   Severity = "media"
	SeverityHigh     Severity = "alta"
	SeverityCritical Severity = "critica"
)

var validSeverities = map[Severity]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

func (s Severity) IsValid() bool { return validSeverities[s] }

// Timeframe is the remediation window granted for a finding
type Timeframe string

const (
	TimeframeImmediate Timeframe = "inmediato"
	Timeframe24Hours   Timeframe = "24_horas"
	Timeframe7Days     Timeframe = "7_dias"
	Timeframe30Days    Timeframe = "30_dias"
	Timeframe90Days    Timeframe = "90_dias"
	Timeframe180Days   Timeframe = "180_dias"
)

var timeframeOffsets = map[Timeframe]time.Duration{
	TimeframeImmediate: 0,
	Timeframe24Hours:   24 * time.Hour,
	Timeframe7Days:     7 * 24 * time.Hour,
	Timeframe30Days:    30 * 24 * time.Hour,
	Timeframe90Days:    90 * 24 * time.Hour,
	Timeframe180Days:   180 * 24 * time.Hour,
}

func (t Timeframe) IsValid() bool {
	_, ok := timeframeOffsets[t]
	return ok
}

// Deadline returns the remediation deadline counted from registration
func (t Timeframe) Deadline(registeredAt time.Time) time.Time {
	return registeredAt.Add(timeframeOffsets[t])
}

// TrackingState is the remediation lifecycle of a finding
type TrackingState string

const (
	TrackingOpen      TrackingState = "abierto"
	TrackingFollowUp  TrackingState = "en_seguimiento"
	TrackingCorrected TrackingState = "corregido"
	TrackingVerified  TrackingState = "verificado"
	TrackingClosed    TrackingState = "cerrado"
	TrackingDeferred  TrackingState = "diferido"
)

var validTrackingStates = map[TrackingState]bool{
	TrackingOpen:      true,
	TrackingFollowUp:  true,
	TrackingCorrected: true,
	TrackingVerified:  true,
	TrackingClosed:    true,
	TrackingDeferred:  true,
}

func (s TrackingState) IsValid() bool  { return validTrackingStates[s] }
func (s TrackingState) String() string { return string(s) }

// RemediationResult is the outcome of verifying a provider's correction
type RemediationResult string

const (
	RemediationSatisfactory RemediationResult = "corrected_satisfactorily"
	RemediationMoreWork     RemediationResult = "requires_more_work"
	RemediationNotCorrected RemediationResult = "not_corrected"
)

// Spanish labels used by the field forms.
var remediationAliases = map[RemediationResult]RemediationResult{
	"corregido_satisfactoriamente": RemediationSatisfactory,
	"requiere_mas_trabajo":         RemediationMoreWork,
	"no_corregido":                 RemediationNotCorrected,
}

// Normalize maps a Spanish label to its canonical value. Other values are
// returned unchanged.
func (r RemediationResult) Normalize() RemediationResult {
	if c, ok := remediationAliases[r]; ok {
		return c
	}
	return r
}

func (r RemediationResult) IsValid() bool {
	return r == RemediationSatisfactory || r == RemediationMoreWork || r == RemediationNotCorrected
}

// Finding is something observed during a site visit
type Finding struct {
	ID                   int64             `json:"id"`
	AuditID              int64             `json:"audit_id"`
	VisitID              int64             `json:"visit_id"`
	Code                 string            `json:"code"`
	Type                 FindingType       `json:"type"`
	Severity             Severity          `json:"severity"`
	SectionID            SectionID         `json:"section_id,omitempty"`
	Title                string            `json:"title"`
	Description          string            `json:"description,omitempty"`
	Timeframe            Timeframe         `json:"timeframe"`
	RemediationDeadline  *time.Time        `json:"remediation_deadline,omitempty"`
	Tracking             TrackingState     `json:"tracking"`
	DeductionPoints      float64           `json:"deduction_points"`
	ProviderAcknowledged bool              `json:"provider_acknowledged"`
	ProviderResponse     string            `json:"provider_response,omitempty"`
	AcknowledgedAt       *time.Time        `json:"acknowledged_at,omitempty"`
	CorrectionEvidence   string            `json:"correction_evidence,omitempty"`
	VerificationResult   RemediationResult `json:"verification_result,omitempty"`
	VerificationNotes    string            `json:"verification_notes,omitempty"`
	VerifiedBy           string            `json:"verified_by,omitempty"`
	VerifiedAt           *time.Time        `json:"verified_at,omitempty"`
	ClosedAt             *time.Time        `json:"closed_at,omitempty"`
	DeferReason          string            `json:"defer_reason,omitempty"`
	Version              int64             `json:"version"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// FormatFindingCode renders HAL-<audit suffix>-NNN
func FormatFindingCode(auditSuffix string, seq int) string {
	return fmt.Sprintf("HAL-%s-%03d", auditSuffix, seq)
}

// FindingSummary consolidates the findings of an audit
type FindingSummary struct {
	Total          int                   `json:"total"`
	Open           int                   `json:"open"`
	Closed         int                   `json:"closed"`
	BySeverity     map[Severity]int      `json:"by_severity"`
	ByType         map[FindingType]int   `json:"by_type"`
	ByTracking     map[TrackingState]int `json:"by_tracking"`
	TotalDeduction float64               `json:"total_deduction"`
}
