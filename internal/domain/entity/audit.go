package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stage is the lifecycle position of an audit: the eight working stages
// followed by the terminal outcomes.
type Stage int

const (
	StageNotification        Stage = 1
	StageDocumentIntake      Stage = 2
	StageAutomaticValidation Stage = 3
	StageAuditorEvaluation   Stage = 4
	StageSiteVisit           Stage = 5
	StageConsolidation       Stage = 6
	StageFinalReport         Stage = 7
	StageClosure             Stage = 8

	StageCompleted Stage = 90
	StageSuspended Stage = 91
	StageCancelled Stage = 92
)

var stageNames = map[Stage]string{
	StageNotification:        "notificacion",
	StageDocumentIntake:      "carga_documental",
	StageAutomaticValidation: "validacion_automatica",
	StageAuditorEvaluation:   "evaluacion_auditor",
	StageSiteVisit:           "visita_sitio",
	StageConsolidation:       "consolidacion",
	StageFinalReport:         "informe_final",
	StageClosure:             "cierre",
	StageCompleted:           "completada",
	StageSuspended:           "suspendida",
	StageCancelled:           "cancelada",
}

var terminalStages = map[Stage]bool{
	StageCompleted: true,
	StageSuspended: true,
	StageCancelled: true,
}

// IsValid reports whether s is a known stage
func (s Stage) IsValid() bool {
	_, ok := stageNames[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible
func (s Stage) IsTerminal() bool {
	return terminalStages[s]
}

// Next returns the stage that follows s, or false when s is 8 or terminal
func (s Stage) Next() (Stage, bool) {
	if s >= StageNotification && s < StageClosure {
		return s + 1, true
	}
	return 0, false
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "stage(" + strconv.Itoa(int(s)) + ")"
}

// ParseStage accepts either the numeric form ("3") or the stage name
func ParseStage(v string) (Stage, error) {
	if n, err := strconv.Atoi(v); err == nil {
		s := Stage(n)
		if s.IsValid() {
			return s, nil
		}
	}
	for s, name := range stageNames {
		if strings.EqualFold(name, v) {
			return s, nil
		}
	}
	return 0, ValidationErrorf("unknown stage %q", v)
}

// StageSettings carries per-stage configuration such as upload deadlines
type StageSettings struct {
	UploadDeadline *time.Time `json:"upload_deadline,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// StageConfig maps stages to their settings
type StageConfig map[Stage]StageSettings

// Audit is one compliance audit of a provider
type Audit struct {
	ID                 int64       `json:"id"`
	Code               string      `json:"code"`
	Stage              Stage       `json:"stage"`
	ProviderID         string      `json:"provider_id"`
	PrimaryAuditorID   string      `json:"primary_auditor_id"`
	SecondaryAuditorID string      `json:"secondary_auditor_id,omitempty"`
	ScheduledDate      time.Time   `json:"scheduled_date"`
	Deadline           time.Time   `json:"deadline"`
	StageConfig        StageConfig `json:"stage_config,omitempty"`
	NotificationSentAt *time.Time  `json:"notification_sent_at,omitempty"`
	StatusReason       string      `json:"status_reason,omitempty"`
	Archived           bool        `json:"archived"`
	Version            int64       `json:"version"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// CodeSuffix returns the trailing random block of the audit code, used to
// derive finding codes.
func (a *Audit) CodeSuffix() string {
	if i := strings.LastIndex(a.Code, "-"); i >= 0 {
		return a.Code[i+1:]
	}
	return a.Code
}

// FormatAuditCode renders AUD-YYYYMM-XXXXXX
func FormatAuditCode(at time.Time, suffix string) string {
	return fmt.Sprintf("AUD-%s-%s", at.Format("200601"), strings.ToUpper(suffix))
}

// StageHistory records one stage change of an audit
type StageHistory struct {
	ID        int64     `json:"id"`
	AuditID   int64     `json:"audit_id"`
	FromStage Stage     `json:"from_stage"`
	ToStage   Stage     `json:"to_stage"`
	Trigger   string    `json:"trigger"`
	ActorID   string    `json:"actor_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
