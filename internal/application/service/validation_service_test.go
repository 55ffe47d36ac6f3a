package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/section"
)

type stubScorer struct {
	result *port.SectionScoreResult
	err    error
	got    *port.SectionScoreRequest
}

func (s *stubScorer) ScoreSection(_ context.Context, req *port.SectionScoreRequest) (*port.SectionScoreResult, error) {
	s.got = req
	return s.result, s.err
}

func TestValidationService_AppendAndSummarize(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	records := []*entity.ValidationRecord{
		{AuditID: audit.ID, SectionID: section.Cooling, Type: entity.ValidationFormatCheck, Result: entity.ValidationSuccess, Score: ptr(90), Executor: entity.ExecutorSystem},
		{AuditID: audit.ID, SectionID: section.Cooling, Type: entity.ValidationScoring, Result: entity.ValidationWithWarnings, Score: ptr(70), Executor: entity.ExecutorIA},
		{AuditID: audit.ID, Type: entity.ValidationFormatCheck, Result: entity.ValidationFailed, Executor: entity.ExecutorSystem},
	}
	for _, r := range records {
		id, err := env.validations.Append(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, id, r.ID)
		assert.Equal(t, testNow, r.CreatedAt)
	}

	summary, err := env.validations.Summarize(ctx, audit.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.WithWarnings)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 80.0, summary.AverageScore)

	latest, err := env.validations.Latest(ctx, audit.ID, port.ValidationFilter{Type: entity.ValidationScoring})
	require.NoError(t, err)
	assert.Equal(t, entity.ExecutorIA, latest.Executor)

	assert.Len(t, env.events.ofType(event.TypeValidationRecorded), 3)
	assert.Equal(t, 3, env.metrics.validations)
}

func TestValidationService_AppendRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	_, err := env.validations.Append(ctx, &entity.ValidationRecord{AuditID: audit.ID, Type: "bogus", Result: entity.ValidationSuccess, Executor: entity.ExecutorSystem})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.validations.Append(ctx, &entity.ValidationRecord{AuditID: audit.ID, Type: entity.ValidationScoring, Result: entity.ValidationSuccess, Executor: entity.ExecutorSystem, Score: ptr(101)})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.validations.Append(ctx, &entity.ValidationRecord{AuditID: audit.ID, SectionID: "nope", Type: entity.ValidationScoring, Result: entity.ValidationSuccess, Executor: entity.ExecutorSystem})
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = env.validations.Append(ctx, &entity.ValidationRecord{AuditID: 999, Type: entity.ValidationScoring, Result: entity.ValidationSuccess, Executor: entity.ExecutorSystem})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestValidationService_RecordInventoryResult(t *testing.T) {
	tests := []struct {
		name          string
		score         float64
		nonConformant int
		want          entity.ValidationResult
	}{
		{"clean", 95, 0, entity.ValidationSuccess},
		{"some non conformant", 80, 3, entity.ValidationWithWarnings},
		{"low score", 30, 10, entity.ValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			ctx := context.Background()
			audit := env.schedule(t)

			require.NoError(t, env.deps.Repos.Inventory.Save(ctx, &port.InventoryResult{
				AuditID:            audit.ID,
				Processed:          true,
				ConformantCount:    20,
				NonConformantCount: tt.nonConformant,
				Score:              tt.score,
			}))

			rec, err := env.validations.RecordInventoryResult(ctx, audit.ID, Actor{ID: "etl"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Result)
			assert.Equal(t, section.EquipmentInventory, rec.SectionID)
			assert.Equal(t, entity.ExecutorETL, rec.Executor)
			assert.Equal(t, tt.score, *rec.Score)
		})
	}
}

func TestValidationService_RecordInventoryResultWithoutIngestion(t *testing.T) {
	env := newTestEnv(t, nil)
	audit := env.schedule(t)

	_, err := env.validations.RecordInventoryResult(context.Background(), audit.ID, Actor{ID: "etl"})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestValidationService_ScoreWithIA(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	scorer := &stubScorer{result: &port.SectionScoreResult{
		Score:     120,
		Result:    entity.ValidationSuccess,
		Warnings:  []string{"old UPS"},
		Reasoning: "looks fine",
	}}
	svc := NewValidationService(env.deps, scorer)

	rec, err := svc.ScoreWithIA(ctx, audit.ID, section.PowerBackup, "UPS photos", auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.ValidationScoring, rec.Type)
	assert.Equal(t, entity.ExecutorIA, rec.Executor)
	assert.Equal(t, 100.0, *rec.Score)
	assert.Equal(t, audit.Code, scorer.got.AuditCode)
	assert.Equal(t, "Respaldo de energía", scorer.got.SectionName)

	scorer.err = errors.New("upstream down")
	_, err = svc.ScoreWithIA(ctx, audit.ID, section.PowerBackup, "UPS photos", auditor)
	assert.Error(t, err)

	_, err = env.validations.ScoreWithIA(ctx, audit.ID, section.PowerBackup, "x", auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestUnresolvedFailures(t *testing.T) {
	obligatory := map[entity.SectionID]struct{}{"a": {}, "b": {}}
	records := []*entity.ValidationRecord{
		{SectionID: "a", Result: entity.ValidationFailed, Executor: entity.ExecutorSystem},
		{SectionID: "b", Result: entity.ValidationFailed, Executor: entity.ExecutorETL},
		{SectionID: "c", Result: entity.ValidationFailed, Executor: entity.ExecutorIA},
		{SectionID: "a", Result: entity.ValidationSuccess, Executor: entity.ExecutorUser},
	}
	assert.Equal(t, []entity.SectionID{"b"}, UnresolvedFailures(records, obligatory))

	// a later automatic failure reopens the section
	records = append(records, &entity.ValidationRecord{SectionID: "a", Result: entity.ValidationFailed, Executor: entity.ExecutorIA})
	assert.Equal(t, []entity.SectionID{"a", "b"}, UnresolvedFailures(records, obligatory))
}

func TestValidationService_RecordManualOverride(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	_, err := env.validations.Append(ctx, &entity.ValidationRecord{
		AuditID: audit.ID, SectionID: section.Cooling, Type: entity.ValidationFormatCheck,
		Result: entity.ValidationFailed, Executor: entity.ExecutorSystem,
	})
	require.NoError(t, err)

	_, err = env.validations.RecordManualOverride(ctx, audit.ID, section.Cooling, "", auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)

	rec, err := env.validations.RecordManualOverride(ctx, audit.ID, section.Cooling, "plano revisado en sitio", auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.ValidationManualOverride, rec.Type)
	assert.Equal(t, entity.ExecutorUser, rec.Executor)
	assert.Equal(t, auditor.ID, rec.ExecutedBy)

	records, err := env.validations.List(ctx, audit.ID)
	require.NoError(t, err)
	assert.Empty(t, UnresolvedFailures(records, env.deps.Registry.ListObligatory()))
}
