package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/geo"
)

var siteRef = geo.Point{Latitude: 4.7110, Longitude: -74.0721}

// near returns a point the given meters north of siteRef
func near(meters float64) *geo.Point {
	return &geo.Point{Latitude: siteRef.Latitude + meters/111195.0, Longitude: siteRef.Longitude}
}

func (e *testEnv) scheduleVisit(t *testing.T, auditID int64, ref *geo.Point) *entity.Visit {
	t.Helper()
	v, err := e.visits.Schedule(context.Background(), ScheduleVisitInput{
		AuditID:     auditID,
		SiteName:    "Sede principal",
		Reference:   ref,
		ScheduledAt: testNow.Add(48 * time.Hour),
	}, auditor)
	require.NoError(t, err)
	return v
}

// runVisit confirms, starts and ends a visit at arrival
func (e *testEnv) runVisit(t *testing.T, visitID int64, arrival *geo.Point) *entity.Visit {
	t.Helper()
	ctx := context.Background()
	_, err := e.visits.Confirm(ctx, visitID, auditor)
	require.NoError(t, err)
	_, err = e.visits.Start(ctx, visitID, arrival, auditor)
	require.NoError(t, err)
	v, err := e.visits.End(ctx, EndVisitInput{VisitID: visitID, Departure: arrival, Score: ptr(85)}, auditor)
	require.NoError(t, err)
	return v
}

func TestVisitService_Lifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageSiteVisit)

	v := env.scheduleVisit(t, audit.ID, &siteRef)
	assert.Equal(t, entity.VisitScheduled, v.State)

	v, err := env.visits.Reschedule(ctx, v.ID, testNow.Add(72*time.Hour), auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.VisitRescheduled, v.State)
	assert.Equal(t, testNow.Add(72*time.Hour), v.ScheduledAt)

	// start straight from rescheduled skips confirmation
	_, err = env.visits.Start(ctx, v.ID, near(10), auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)

	v = env.runVisit(t, v.ID, near(10))
	assert.Equal(t, entity.VisitCompleted, v.State)
	assert.Equal(t, geo.OutcomeVerified, v.Verification)
	require.NotNil(t, v.DistanceMeters)
	assert.InDelta(t, 10, *v.DistanceMeters, 1)
	assert.Equal(t, testNow, *v.ArrivalAt)
	assert.Equal(t, 85.0, *v.Score)

	completed := env.events.ofType(event.TypeVisitCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, string(geo.OutcomeVerified), completed[0].Payload["verification"])

	_, err = env.visits.Cancel(ctx, v.ID, "late", auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
}

func TestVisitService_Classification(t *testing.T) {
	tests := []struct {
		name    string
		ref     *geo.Point
		arrival *geo.Point
		want    geo.Outcome
	}{
		{"verified", &siteRef, near(40), geo.OutcomeVerified},
		{"minor", &siteRef, near(150), geo.OutcomeMinorDiscrepancy},
		{"major", &siteRef, near(1000), geo.OutcomeMajorDiscrepancy},
		{"no arrival gps", &siteRef, nil, geo.OutcomeUnverifiable},
		{"no reference", nil, near(0), geo.OutcomeUnverifiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			audit := env.auditAt(t, entity.StageSiteVisit)
			v := env.scheduleVisit(t, audit.ID, tt.ref)

			v = env.runVisit(t, v.ID, tt.arrival)
			assert.Equal(t, tt.want, v.Verification)
			if tt.want == geo.OutcomeUnverifiable {
				assert.Nil(t, v.DistanceMeters)
			} else {
				assert.NotNil(t, v.DistanceMeters)
			}
		})
	}
}

func TestVisitService_StageWindows(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	early := env.auditAt(t, entity.StageDocumentIntake)
	_, err := env.visits.Schedule(ctx, ScheduleVisitInput{AuditID: early.ID, SiteName: "x", ScheduledAt: testNow}, auditor)
	var te *entity.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "schedule_visit", te.Trigger)

	// scheduling is allowed during evaluation but starting is not
	audit := env.auditAt(t, entity.StageAuditorEvaluation)
	v := env.scheduleVisit(t, audit.ID, &siteRef)
	_, err = env.visits.Confirm(ctx, v.ID, auditor)
	require.NoError(t, err)
	_, err = env.visits.Start(ctx, v.ID, near(0), auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)

	stored, err := env.visits.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.VisitConfirmed, stored.State)
}

func TestVisitService_ScheduleValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageSiteVisit)

	_, err := env.visits.Schedule(ctx, ScheduleVisitInput{AuditID: audit.ID, ScheduledAt: testNow}, auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.visits.Schedule(ctx, ScheduleVisitInput{
		AuditID: audit.ID, SiteName: "x", ScheduledAt: testNow,
		Reference: &geo.Point{Latitude: 91},
	}, auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.visits.Schedule(ctx, ScheduleVisitInput{
		AuditID: audit.ID, SiteName: "x", ScheduledAt: testNow,
		Sections: []entity.SectionID{"nope"},
	}, auditor)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = env.visits.Cancel(ctx, 1, "", auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestVisitService_CancelAndList(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageSiteVisit)

	first := env.scheduleVisit(t, audit.ID, &siteRef)
	env.scheduleVisit(t, audit.ID, &siteRef)

	cancelled, err := env.visits.Cancel(ctx, first.ID, "proveedor no disponible", auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.VisitCancelled, cancelled.State)
	assert.Equal(t, "proveedor no disponible", cancelled.CancelReason)

	visits, err := env.visits.List(ctx, audit.ID)
	require.NoError(t, err)
	assert.Len(t, visits, 2)

	_, err = env.visits.List(ctx, 999)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestVisitService_RecomputeVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageSiteVisit)

	v := env.scheduleVisit(t, audit.ID, nil)
	_, err := env.visits.RecomputeVerification(ctx, v.ID, &siteRef, auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)

	v = env.runVisit(t, v.ID, near(120))
	assert.Equal(t, geo.OutcomeUnverifiable, v.Verification)

	v, err = env.visits.RecomputeVerification(ctx, v.ID, &siteRef, auditor)
	require.NoError(t, err)
	assert.Equal(t, geo.OutcomeMinorDiscrepancy, v.Verification)
	assert.Equal(t, siteRef, *v.Reference)
}
