package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/site-audit/internal/domain/entity"
)

func TestEvaluationMachine(t *testing.T) {
	tests := []struct {
		name    string
		from    entity.EvaluationState
		trigger EvaluationTrigger
		to      entity.EvaluationState
		ok      bool
	}{
		{"assign", entity.EvaluationPending, EvaluationAssign, entity.EvaluationInReview, true},
		{"submit", entity.EvaluationInReview, EvaluationSubmit, entity.EvaluationCompleted, true},
		{"clarify", entity.EvaluationInReview, EvaluationRequestClarification, entity.EvaluationClarification, true},
		{"respond", entity.EvaluationClarification, EvaluationProvideClarification, entity.EvaluationInReview, true},
		{"submit while pending", entity.EvaluationPending, EvaluationSubmit, entity.EvaluationPending, false},
		{"reassign", entity.EvaluationInReview, EvaluationAssign, entity.EvaluationInReview, false},
		{"submit while clarifying", entity.EvaluationClarification, EvaluationSubmit, entity.EvaluationClarification, false},
		{"reopen completed", entity.EvaluationCompleted, EvaluationAssign, entity.EvaluationCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEvaluationMachine(tt.from)
			err := m.Fire(context.Background(), tt.trigger)
			if tt.ok && err != nil {
				t.Fatalf("Fire() failed: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Fire() error = %v, want %v", err, ErrInvalidTransition)
			}
			if m.State() != tt.to {
				t.Errorf("State() = %v, want %v", m.State(), tt.to)
			}
		})
	}
}

func TestVisitMachine_HappyPath(t *testing.T) {
	m := NewVisitMachine(entity.VisitScheduled)
	for _, trig := range []VisitTrigger{VisitReschedule, VisitConfirm, VisitStart, VisitEnd} {
		if err := m.Fire(context.Background(), trig); err != nil {
			t.Fatalf("Fire(%v) failed: %v", trig, err)
		}
	}
	if m.State() != entity.VisitCompleted {
		t.Errorf("State() = %v, want %v", m.State(), entity.VisitCompleted)
	}
}

func TestVisitMachine_NoCancelAfterStart(t *testing.T) {
	for _, s := range []entity.VisitState{entity.VisitInProgress, entity.VisitCompleted, entity.VisitCancelled} {
		m := NewVisitMachine(s)
		if m.CanFire(VisitCancel) || m.CanFire(VisitReschedule) {
			t.Errorf("%v should not allow cancel or reschedule", s)
		}
	}
	if NewVisitMachine(entity.VisitScheduled).CanFire(VisitStart) {
		t.Error("an unconfirmed visit should not start")
	}
}

func TestFindingMachine_OnlyVerifyCloses(t *testing.T) {
	closers := 0
	states := []entity.TrackingState{
		entity.TrackingOpen, entity.TrackingFollowUp, entity.TrackingCorrected,
		entity.TrackingVerified, entity.TrackingDeferred, entity.TrackingClosed,
	}
	for _, s := range states {
		m := NewFindingMachine(s)
		for _, trig := range m.PermittedTriggers() {
			fm := NewFindingMachine(s)
			if err := fm.Fire(context.Background(), trig); err != nil {
				t.Fatalf("Fire(%v) from %v failed: %v", trig, s, err)
			}
			if fm.State() == entity.TrackingClosed {
				closers++
				if s != entity.TrackingVerified {
					t.Errorf("finding closed from %v", s)
				}
			}
		}
	}
	if closers != 1 {
		t.Errorf("expected exactly one closing transition, got %d", closers)
	}
}

func TestReportMachine(t *testing.T) {
	m := NewReportMachine(entity.ReportDraft)
	steps := []ReportTrigger{ReportSubmitForReview, ReportApprove, ReportDeliver, ReportContest}
	for _, trig := range steps {
		if err := m.Fire(context.Background(), trig); err != nil {
			t.Fatalf("Fire(%v) failed: %v", trig, err)
		}
	}
	if m.State() != entity.ReportContested {
		t.Errorf("State() = %v, want %v", m.State(), entity.ReportContested)
	}
	if NewReportMachine(entity.ReportDraft).CanFire(ReportApprove) {
		t.Error("draft report should not be approvable before review")
	}
}
