package workflow

import "github.com/garyjia/site-audit/internal/domain/entity"

// NewEvaluationMachine returns the section evaluation lifecycle positioned at state
func NewEvaluationMachine(state entity.EvaluationState) StateMachine[entity.EvaluationState, EvaluationTrigger] {
	b := NewBuilder[entity.EvaluationState, EvaluationTrigger]()

	b.Configure(entity.EvaluationPending).
		Permit(EvaluationAssign, entity.EvaluationInReview)

	b.Configure(entity.EvaluationInReview).
		Permit(EvaluationSubmit, entity.EvaluationCompleted).
		Permit(EvaluationRequestClarification, entity.EvaluationClarification)

	b.Configure(entity.EvaluationClarification).
		Permit(EvaluationProvideClarification, entity.EvaluationInReview)

	return b.Build(state)
}

// NewVisitMachine returns the visit lifecycle positioned at state
func NewVisitMachine(state entity.VisitState) StateMachine[entity.VisitState, VisitTrigger] {
	b := NewBuilder[entity.VisitState, VisitTrigger]()

	for _, s := range []entity.VisitState{entity.VisitScheduled, entity.VisitRescheduled} {
		b.Configure(s).
			Permit(VisitConfirm, entity.VisitConfirmed).
			Permit(VisitReschedule, entity.VisitRescheduled).
			Permit(VisitCancel, entity.VisitCancelled)
	}

	b.Configure(entity.VisitConfirmed).
		Permit(VisitStart, entity.VisitInProgress).
		Permit(VisitReschedule, entity.VisitRescheduled).
		Permit(VisitCancel, entity.VisitCancelled)

	b.Configure(entity.VisitInProgress).
		Permit(VisitEnd, entity.VisitCompleted)

	return b.Build(state)
}

// NewFindingMachine returns the remediation tracking lifecycle positioned at state
func NewFindingMachine(state entity.TrackingState) StateMachine[entity.TrackingState, FindingTrigger] {
	b := NewBuilder[entity.TrackingState, FindingTrigger]()

	b.Configure(entity.TrackingOpen).
		Permit(FindingAcknowledge, entity.TrackingFollowUp).
		Permit(FindingDefer, entity.TrackingDeferred)

	b.Configure(entity.TrackingFollowUp).
		Permit(FindingMarkCorrected, entity.TrackingCorrected).
		Permit(FindingDefer, entity.TrackingDeferred)

	b.Configure(entity.TrackingDeferred).
		Permit(FindingAcknowledge, entity.TrackingFollowUp)

	b.Configure(entity.TrackingCorrected).
		Permit(FindingVerify, entity.TrackingVerified).
		Permit(FindingReopen, entity.TrackingOpen)

	b.Configure(entity.TrackingVerified).
		Permit(FindingClose, entity.TrackingClosed)

	return b.Build(state)
}

// NewReportMachine returns the report approval lifecycle positioned at state
func NewReportMachine(state entity.ApprovalState) StateMachine[entity.ApprovalState, ReportTrigger] {
	b := NewBuilder[entity.ApprovalState, ReportTrigger]()

	b.Configure(entity.ReportDraft).
		Permit(ReportSubmitForReview, entity.ReportInReview)

	b.Configure(entity.ReportInReview).
		Permit(ReportApprove, entity.ReportApproved).
		Permit(ReportReturnToDraft, entity.ReportDraft)

	b.Configure(entity.ReportApproved).
		Permit(ReportDeliver, entity.ReportDelivered)

	b.Configure(entity.ReportDelivered).
		Permit(ReportAccept, entity.ReportAccepted).
		Permit(ReportContest, entity.ReportContested)

	return b.Build(state)
}
