package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/section"
)

func TestEvaluationService_InitializeIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	require.NoError(t, env.evaluations.InitializeForAudit(ctx, audit.ID))
	require.NoError(t, env.evaluations.InitializeForAudit(ctx, audit.ID))

	evals, err := env.evaluations.List(ctx, audit.ID)
	require.NoError(t, err)
	assert.Len(t, evals, 12)
	for _, e := range evals {
		assert.Equal(t, entity.EvaluationPending, e.State)
	}
}

func TestEvaluationService_SubmitAppliesPolicy(t *testing.T) {
	tests := []struct {
		name   string
		result entity.EvaluationResult
		manual float64
		want   float64
	}{
		{"cumple raises to floor", entity.ResultCumple, 60, 85},
		{"cumple keeps higher score", entity.ResultCumple, 95, 95},
		{"observations scale", entity.ResultCumpleConObservaciones, 100, 80},
		{"observations floor", entity.ResultCumpleConObservaciones, 50, 70},
		{"no cumple ceiling", entity.ResultNoCumple, 90, 50},
		{"no aplica passes through", entity.ResultNoAplica, 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			audit := env.auditAt(t, entity.StageAuditorEvaluation)

			eval := env.resolve(t, audit.ID, section.Cooling, tt.result, tt.manual)
			require.NotNil(t, eval.Score)
			assert.Equal(t, tt.want, *eval.Score)
			assert.Equal(t, entity.EvaluationCompleted, eval.State)
			assert.NotNil(t, eval.CompletedAt)
		})
	}
}

func TestEvaluationService_AutomaticScoreTakesPrecedence(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageAuditorEvaluation)

	_, err := env.validations.Append(ctx, &entity.ValidationRecord{
		AuditID:   audit.ID,
		SectionID: section.Cooling,
		Type:      entity.ValidationScoring,
		Result:    entity.ValidationSuccess,
		Score:     ptr(92),
		Executor:  entity.ExecutorIA,
	})
	require.NoError(t, err)

	eval := env.resolve(t, audit.ID, section.Cooling, entity.ResultCumple, 10)
	require.NotNil(t, eval.AutomaticScore)
	assert.Equal(t, 92.0, *eval.AutomaticScore)
	assert.Equal(t, 92.0, *eval.Score)
	assert.Equal(t, 10.0, *eval.ManualScore)

	resolved := env.events.ofType(event.TypeSectionResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, string(section.Cooling), resolved[0].GetPayloadString("section_id"))
}

func TestEvaluationService_SubmitNeedsAScore(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageAuditorEvaluation)

	_, err := env.evaluations.Assign(ctx, audit.ID, section.Cooling, auditor.ID)
	require.NoError(t, err)

	_, err = env.evaluations.Submit(ctx, SubmitEvaluationInput{
		AuditID:   audit.ID,
		SectionID: section.Cooling,
		Result:    entity.ResultCumple,
	}, auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)

	eval, err := env.evaluations.Get(ctx, audit.ID, section.Cooling)
	require.NoError(t, err)
	assert.Equal(t, entity.EvaluationInReview, eval.State)
}

func TestEvaluationService_SubmitFromPendingIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	audit := env.auditAt(t, entity.StageAuditorEvaluation)

	_, err := env.evaluations.Submit(context.Background(), SubmitEvaluationInput{
		AuditID:     audit.ID,
		SectionID:   section.Cooling,
		Result:      entity.ResultCumple,
		ManualScore: ptr(90),
	}, auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
}

func TestEvaluationService_OutsideEvaluationStages(t *testing.T) {
	env := newTestEnv(t, nil)
	audit := env.auditAt(t, entity.StageDocumentIntake)

	_, err := env.evaluations.Assign(context.Background(), audit.ID, section.Cooling, auditor.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
}

func TestEvaluationService_ClarificationRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageAuditorEvaluation)

	_, err := env.evaluations.Assign(ctx, audit.ID, section.Cooling, auditor.ID)
	require.NoError(t, err)

	eval, err := env.evaluations.RequestClarification(ctx, audit.ID, section.Cooling, "missing photos", auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.EvaluationClarification, eval.State)
	assert.True(t, eval.PendingClarification)

	eval, err = env.evaluations.ProvideClarification(ctx, audit.ID, section.Cooling, "photos attached", Actor{ID: "prov-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.EvaluationInReview, eval.State)
	assert.False(t, eval.PendingClarification)
	assert.Equal(t, "photos attached", eval.ProviderResponse)

	_, err = env.evaluations.ProvideClarification(ctx, audit.ID, section.Cooling, "again", Actor{ID: "prov-1"})
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
}

func TestEvaluationService_PendingVisitFlagsSection(t *testing.T) {
	env := newTestEnv(t, nil)
	audit := env.auditAt(t, entity.StageAuditorEvaluation)

	eval := env.resolve(t, audit.ID, section.TechnicalRoom, entity.ResultPendienteVisita, 75)
	assert.True(t, eval.RequiresSiteVisit)
	require.NotNil(t, eval.Score)
	assert.Equal(t, 75.0, *eval.Score)
}

func TestEvaluationService_Progress(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageAuditorEvaluation)

	env.resolve(t, audit.ID, "red", entity.ResultCumple, 90)
	_, err := env.evaluations.Assign(ctx, audit.ID, "extra", auditor.ID)
	require.NoError(t, err)

	p, err := env.evaluations.Progress(ctx, audit.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.InReview)
	assert.Equal(t, 50.0, p.Percent)
}

func TestEvaluationService_RecomputeAutomaticSkipsResolved(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.auditAt(t, entity.StageAuditorEvaluation)

	env.resolve(t, audit.ID, "red", entity.ResultCumple, 90)
	_, err := env.evaluations.Assign(ctx, audit.ID, "extra", auditor.ID)
	require.NoError(t, err)

	for _, id := range []entity.SectionID{"red", "extra"} {
		_, err := env.validations.Append(ctx, &entity.ValidationRecord{
			AuditID: audit.ID, SectionID: id, Type: entity.ValidationScoring,
			Result: entity.ValidationSuccess, Score: ptr(40), Executor: entity.ExecutorSystem,
		})
		require.NoError(t, err)
	}

	red, err := env.evaluations.RecomputeAutomatic(ctx, audit.ID, "red")
	require.NoError(t, err)
	assert.Nil(t, red.AutomaticScore)
	assert.Equal(t, 90.0, *red.Score)

	extra, err := env.evaluations.RecomputeAutomatic(ctx, audit.ID, "extra")
	require.NoError(t, err)
	require.NotNil(t, extra.AutomaticScore)
	assert.Equal(t, 40.0, *extra.AutomaticScore)
}
