package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/geo"
)

func TestAggregationService_ComputeTotalScore(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageConsolidation)

	env.resolve(t, audit.ID, "red", entity.ResultNoAplica, 80)
	env.resolve(t, audit.ID, "extra", entity.ResultNoAplica, 40)

	b, err := env.aggregation.ComputeTotalScore(ctx, audit.ID)
	require.NoError(t, err)
	// obligatory sections weigh double: (80*2 + 40) / 3
	assert.Equal(t, 66.67, b.Total)
	assert.Equal(t, entity.TierDeficient, b.Tier)
	assert.Equal(t, entity.ConclusionNonCompliant, b.Conclusion)
	assert.Equal(t, map[entity.SectionID]float64{"red": 80, "extra": 40}, b.SectionScores)
}

func TestAggregationService_UnresolvedSectionsAreLeftOut(t *testing.T) {
	env := newTestEnv(t, twoSections())
	audit := env.auditAt(t, entity.StageConsolidation)
	env.resolve(t, audit.ID, "red", entity.ResultCumple, 95)

	b, err := env.aggregation.ComputeTotalScore(context.Background(), audit.ID)
	require.NoError(t, err)
	assert.Equal(t, 95.0, b.Total)
	assert.Equal(t, entity.TierExcellent, b.Tier)
	assert.NotContains(t, b.SectionScores, entity.SectionID("extra"))
}

func TestAggregationService_FinalizeRequiresObligatorySections(t *testing.T) {
	env := newTestEnv(t, twoSections())
	audit := env.auditAt(t, entity.StageConsolidation)
	env.resolve(t, audit.ID, "extra", entity.ResultCumple, 90)

	_, err := env.aggregation.Finalize(context.Background(), audit.ID, auditor)
	var pe *entity.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, entity.PreconditionIncompleteEval, pe.Kind)
	assert.Equal(t, []string{"red"}, pe.Missing)
	assert.ErrorIs(t, err, entity.ErrIncompleteEvaluation)
	assert.Equal(t, []string{finalizeRejected}, env.metrics.finalized)
}

func TestAggregationService_FinalizeRequiresCompletedVisit(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageSiteVisit)

	eval := env.resolve(t, audit.ID, "red", entity.ResultPendienteVisita, 80)
	require.True(t, eval.RequiresSiteVisit)

	env.forceStage(t, audit.ID, entity.StageConsolidation)
	_, err := env.aggregation.Finalize(ctx, audit.ID, auditor)
	var pe *entity.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, entity.PreconditionPendingVisit, pe.Kind)
	assert.Equal(t, []string{"red"}, pe.Missing)
	assert.ErrorIs(t, err, entity.ErrPendingVisit)

	// a visit covering the section lifts the block
	env.forceStage(t, audit.ID, entity.StageSiteVisit)
	v, err := env.visits.Schedule(ctx, ScheduleVisitInput{
		AuditID:     audit.ID,
		SiteName:    "Sede",
		Reference:   &siteRef,
		ScheduledAt: testNow,
		Sections:    []entity.SectionID{"red"},
	}, auditor)
	require.NoError(t, err)
	env.runVisit(t, v.ID, near(0))
	env.forceStage(t, audit.ID, entity.StageConsolidation)

	report, err := env.aggregation.Finalize(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.Equal(t, 80.0, report.TotalScore)
	assert.Equal(t, 1, report.Visits.Completed)
	assert.Equal(t, 1, report.Visits.ByOutcome[string(geo.OutcomeVerified)])
}

func TestAggregationService_FinalizeIsIdempotent(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageConsolidation)
	env.resolve(t, audit.ID, "red", entity.ResultNoAplica, 80)

	first, err := env.aggregation.Finalize(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportDraft, first.ApprovalState)
	assert.NotEmpty(t, first.ContentHash)

	second, err := env.aggregation.Finalize(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ContentHash, second.ContentHash)

	assert.Len(t, env.events.ofType(event.TypeReportFinalized), 1)
	assert.Equal(t, []string{finalizeCreated, finalizeUnchanged}, env.metrics.finalized)

	// new content on a draft replaces it in place
	env.resolve(t, audit.ID, "extra", entity.ResultNoAplica, 40)
	third, err := env.aggregation.Finalize(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.NotEqual(t, first.ContentHash, third.ContentHash)
	assert.Equal(t, 66.67, third.TotalScore)
	assert.Len(t, env.events.ofType(event.TypeReportFinalized), 2)
}

func TestAggregationService_FinalizeRejectsChangesAfterReview(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageConsolidation)
	env.resolve(t, audit.ID, "red", entity.ResultNoAplica, 80)

	report, err := env.aggregation.Finalize(ctx, audit.ID, auditor)
	require.NoError(t, err)
	report.ApprovalState = entity.ReportInReview
	require.NoError(t, env.deps.Repos.Reports.Update(ctx, report))

	// unchanged content is still returned as stored
	same, err := env.aggregation.Finalize(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportInReview, same.ApprovalState)

	env.resolve(t, audit.ID, "extra", entity.ResultNoAplica, 40)
	_, err = env.aggregation.Finalize(ctx, audit.ID, auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
}

func TestAggregationService_FinalizeStageWindow(t *testing.T) {
	env := newTestEnv(t, twoSections())
	audit := env.auditAt(t, entity.StageSiteVisit)

	_, err := env.aggregation.Finalize(context.Background(), audit.ID, auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
}

func TestSummarizeFindings(t *testing.T) {
	findings := []*entity.Finding{
		{Type: entity.FindingRisk, Severity: entity.SeverityHigh, Tracking: entity.TrackingOpen, DeductionPoints: 2.5},
		{Type: entity.FindingRisk, Severity: entity.SeverityLow, Tracking: entity.TrackingClosed, DeductionPoints: 1.1},
		{Type: entity.FindingObservation, Severity: entity.SeverityLow, Tracking: entity.TrackingDeferred, DeductionPoints: 0.2},
	}

	s := summarizeFindings(findings)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Open)
	assert.Equal(t, 1, s.Closed)
	assert.Equal(t, 2, s.ByType[entity.FindingRisk])
	assert.Equal(t, 2, s.BySeverity[entity.SeverityLow])
	assert.Equal(t, 1, s.ByTracking[entity.TrackingDeferred])
	assert.Equal(t, 3.8, s.TotalDeduction)
}

func TestSummarizeVisits(t *testing.T) {
	visits := []*entity.Visit{
		{State: entity.VisitCompleted, Verification: geo.OutcomeVerified, Score: ptr(90)},
		{State: entity.VisitCompleted, Score: ptr(71)},
		{State: entity.VisitCancelled},
		{State: entity.VisitScheduled},
	}

	s := summarizeVisits(visits)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, 1, s.ByOutcome[string(geo.OutcomeUnverifiable)])
	require.NotNil(t, s.AverageScore)
	assert.Equal(t, 80.5, *s.AverageScore)

	assert.Nil(t, summarizeVisits(nil).AverageScore)
}
