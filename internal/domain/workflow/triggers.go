package workflow

// EvaluationTrigger drives a section evaluation
type EvaluationTrigger string

const (
	EvaluationAssign               EvaluationTrigger = "assign"
	EvaluationSubmit               EvaluationTrigger = "submit"
	EvaluationRequestClarification EvaluationTrigger = "request_clarification"
	EvaluationProvideClarification EvaluationTrigger = "provide_clarification"
)

func (t EvaluationTrigger) String() string { return string(t) }

// VisitTrigger drives a site visit
type VisitTrigger string

const (
	VisitConfirm    VisitTrigger = "confirm"
	VisitReschedule VisitTrigger = "reschedule"
	VisitCancel     VisitTrigger = "cancel"
	VisitStart      VisitTrigger = "start"
	VisitEnd        VisitTrigger = "end"
)

func (t VisitTrigger) String() string { return string(t) }

// FindingTrigger drives the remediation tracking of a finding
type FindingTrigger string

const (
	FindingAcknowledge   FindingTrigger = "acknowledge"
	FindingMarkCorrected FindingTrigger = "mark_corrected"
	FindingVerify        FindingTrigger = "verify"
	FindingClose         FindingTrigger = "close"
	FindingReopen        FindingTrigger = "reopen"
	FindingDefer         FindingTrigger = "defer"
)

func (t FindingTrigger) String() string { return string(t) }

// ReportTrigger drives the approval of a final report
type ReportTrigger string

const (
	ReportSubmitForReview ReportTrigger = "submit_for_review"
	ReportApprove         ReportTrigger = "approve"
	ReportReturnToDraft   ReportTrigger = "return_to_draft"
	ReportDeliver         ReportTrigger = "deliver"
	ReportAccept          ReportTrigger = "accept"
	ReportContest         ReportTrigger = "contest"
)

func (t ReportTrigger) String() string { return string(t) }

// StageTrigger drives the audit stage controller
type StageTrigger string

const (
	StageAdvance StageTrigger = "advance"
	StageSuspend StageTrigger = "suspend"
	StageCancel  StageTrigger = "cancel"
)

func (t StageTrigger) String() string { return string(t) }
