package event

// Type identifies the type of domain event
type Type string

const (
	TypeAuditScheduled     Type = "audit.scheduled"
	TypeStageAdvanced      Type = "stage.advanced"
	TypeAuditSuspended     Type = "audit.suspended"
	TypeAuditCancelled     Type = "audit.cancelled"
	TypeSectionResolved    Type = "section.resolved"
	TypeValidationRecorded Type = "validation.recorded"
	TypeVisitCompleted     Type = "visit.completed"
	TypeFindingRegistered  Type = "finding.registered"
	TypeReportFinalized    Type = "report.finalized"
	TypeReportDelivered    Type = "report.delivered"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeAuditScheduled,
		TypeStageAdvanced,
		TypeAuditSuspended,
		TypeAuditCancelled,
		TypeSectionResolved,
		TypeValidationRecorded,
		TypeVisitCompleted,
		TypeFindingRegistered,
		TypeReportFinalized,
		TypeReportDelivered:
		return true
	default:
		return false
	}
}

// All returns every defined event type
func All() []Type {
	return []Type{
		TypeAuditScheduled,
		TypeStageAdvanced,
		TypeAuditSuspended,
		TypeAuditCancelled,
		TypeSectionResolved,
		TypeValidationRecorded,
		TypeVisitCompleted,
		TypeFindingRegistered,
		TypeReportFinalized,
		TypeReportDelivered,
	}
}
