package entity

import "time"

// EvaluationState is the lifecycle of a section evaluation
type EvaluationState string

const (
	EvaluationPending       EvaluationState = "pendiente"
	EvaluationInReview      EvaluationState = "en_revision"
	EvaluationCompleted     EvaluationState = "completada"
	EvaluationClarification EvaluationState = "requiere_aclaracion"
)

var validEvaluationStates = map[EvaluationState]bool{
	EvaluationPending:       true,
	EvaluationInReview:      true,
	EvaluationCompleted:     true,
	EvaluationClarification: true,
}

func (s EvaluationState) IsValid() bool  { return validEvaluationStates[s] }
func (s EvaluationState) String() string { return string(s) }

// EvaluationResult is the auditor's verdict for a section
type EvaluationResult string

const (
	ResultCumple                 EvaluationResult = "cumple"
	ResultNoCumple               EvaluationResult = "no_cumple"
	ResultCumpleConObservaciones EvaluationResult = "cumple_con_observaciones"
	ResultNoAplica               EvaluationResult = "no_aplica"
	ResultPendienteVisita        EvaluationResult = "pendiente_visita"
)

var validEvaluationResults = map[EvaluationResult]bool{
	ResultCumple:                 true,
	ResultNoCumple:               true,
	ResultCumpleConObservaciones: true,
	ResultNoAplica:               true,
	ResultPendienteVisita:        true,
}

func (r EvaluationResult) IsValid() bool  { return validEvaluationResults[r] }
func (r EvaluationResult) String() string { return string(r) }

// SectionEvaluation is the auditor's judgment on one section of one audit
type SectionEvaluation struct {
	ID                   int64            `json:"id"`
	AuditID              int64            `json:"audit_id"`
	SectionID            SectionID        `json:"section_id"`
	State                EvaluationState  `json:"state"`
	Result               EvaluationResult `json:"result,omitempty"`
	Score                *float64         `json:"score,omitempty"`
	AutomaticScore       *float64         `json:"automatic_score,omitempty"`
	ManualScore          *float64         `json:"manual_score,omitempty"`
	AssignedAuditorID    string           `json:"assigned_auditor_id,omitempty"`
	RequiresSiteVisit    bool             `json:"requires_site_visit"`
	PendingClarification bool             `json:"pending_clarification"`
	ClarificationReason  string           `json:"clarification_reason,omitempty"`
	ProviderResponse     string           `json:"provider_response,omitempty"`
	Observations         string           `json:"observations,omitempty"`
	StartedAt            *time.Time       `json:"started_at,omitempty"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	Version              int64            `json:"version"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// IsResolved reports whether the evaluation reached completada
func (e *SectionEvaluation) IsResolved() bool {
	return e.State == EvaluationCompleted
}
