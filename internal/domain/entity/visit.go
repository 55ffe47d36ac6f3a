package entity

import (
	"time"

	"github.com/garyjia/site-audit/internal/domain/geo"
)

// VisitState is the lifecycle of an on-site visit
type VisitState string

const (
	VisitScheduled   VisitState = "programada"
	VisitConfirmed   VisitState = "confirmada"
	VisitInProgress  VisitState = "en_curso"
	VisitCompleted   VisitState = "completada"
	VisitRescheduled VisitState = "reprogramada"
	VisitCancelled   VisitState = "cancelada"
)

var validVisitStates = map[VisitState]bool{
	VisitScheduled:   true,
	VisitConfirmed:   true,
	VisitInProgress:  true,
	VisitCompleted:   true,
	VisitRescheduled: true,
	VisitCancelled:   true,
}

func (s VisitState) IsValid() bool  { return validVisitStates[s] }
func (s VisitState) String() string { return string(s) }

// IsOpen reports whether the visit still blocks consolidation
func (s VisitState) IsOpen() bool {
	return s != VisitCompleted && s != VisitCancelled
}

// Visit is a scheduled on-site inspection
type Visit struct {
	ID             int64       `json:"id"`
	AuditID        int64       `json:"audit_id"`
	SiteName       string      `json:"site_name"`
	SiteAddress    string      `json:"site_address,omitempty"`
	Reference      *geo.Point  `json:"reference,omitempty"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	State          VisitState  `json:"state"`
	Sections       []SectionID `json:"sections,omitempty"`
	AuditorID      string      `json:"auditor_id,omitempty"`
	ArrivalAt      *time.Time  `json:"arrival_at,omitempty"`
	Arrival        *geo.Point  `json:"arrival,omitempty"`
	DepartureAt    *time.Time  `json:"departure_at,omitempty"`
	Departure      *geo.Point  `json:"departure,omitempty"`
	DistanceMeters *float64    `json:"distance_meters,omitempty"`
	Verification   geo.Outcome `json:"verification,omitempty"`
	Score          *float64    `json:"score,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	CancelReason   string      `json:"cancel_reason,omitempty"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Covers reports whether the visit inspected the section. A visit with no
// explicit section list covers the whole site.
func (v *Visit) Covers(id SectionID) bool {
	if len(v.Sections) == 0 {
		return true
	}
	for _, s := range v.Sections {
		if s == id {
			return true
		}
	}
	return false
}
