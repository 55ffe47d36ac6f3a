package entity

import "time"

// ValidationType classifies a validation record
type ValidationType string

const (
	ValidationFormatCheck          ValidationType = "format_check"
	ValidationInventoryConformance ValidationType = "inventory_conformance"
	ValidationScoring              ValidationType = "scoring"
	ValidationManualOverride       ValidationType = "manual_override"
)

var validValidationTypes = map[ValidationType]bool{
	ValidationFormatCheck:          true,
	ValidationInventoryConformance: true,
	ValidationScoring:              true,
	ValidationManualOverride:       true,
}

func (t ValidationType) IsValid() bool { return validValidationTypes[t] }

// ValidationResult is the outcome of one validation
type ValidationResult string

const (
	ValidationSuccess      ValidationResult = "exitoso"
	ValidationWithWarnings ValidationResult = "con_advertencias"
	ValidationFailed       ValidationResult = "fallido"
	ValidationPending      ValidationResult = "pendiente"
)

var validValidationResults = map[ValidationResult]bool{
	ValidationSuccess:      true,
	ValidationWithWarnings: true,
	ValidationFailed:       true,
	ValidationPending:      true,
}

func (r ValidationResult) IsValid() bool { return validValidationResults[r] }

// Executor identifies who produced a validation record
type Executor string

const (
	ExecutorSystem Executor = "sistema"
	ExecutorUser   Executor = "usuario"
	ExecutorETL    Executor = "etl"
	ExecutorIA     Executor = "ia"
)

var validExecutors = map[Executor]bool{
	ExecutorSystem: true,
	ExecutorUser:   true,
	ExecutorETL:    true,
	ExecutorIA:     true,
}

func (e Executor) IsValid() bool { return validExecutors[e] }

// IsAutomatic reports whether the executor is a machine rather than a person
func (e Executor) IsAutomatic() bool {
	return e == ExecutorSystem || e == ExecutorETL || e == ExecutorIA
}

// ValidationRecord is an immutable entry of the per-audit validation log
type ValidationRecord struct {
	ID             int64            `json:"id"`
	AuditID        int64            `json:"audit_id"`
	DocumentID     string           `json:"document_id,omitempty"`
	SectionID      SectionID        `json:"section_id,omitempty"`
	Type           ValidationType   `json:"type"`
	Result         ValidationResult `json:"result"`
	Score          *float64         `json:"score,omitempty"`
	CriticalErrors []string         `json:"critical_errors,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	Executor       Executor         `json:"executor"`
	ExecutedBy     string           `json:"executed_by,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ValidationSummary aggregates the validation log of an audit
type ValidationSummary struct {
	Total        int     `json:"total"`
	Successful   int     `json:"successful"`
	WithWarnings int     `json:"with_warnings"`
	Failed       int     `json:"failed"`
	Pending      int     `json:"pending"`
	AverageScore float64 `json:"average_score"`
}
