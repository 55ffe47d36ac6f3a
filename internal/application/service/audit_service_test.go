package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
)

func TestAuditService_Schedule(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	audit := env.schedule(t)

	assert.Regexp(t, `^AUD-202601-[0-9A-F]{6}$`, audit.Code)
	assert.Equal(t, entity.StageNotification, audit.Stage)
	assert.Equal(t, int64(1), audit.Version)

	history, err := env.audits.History(ctx, audit.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.Stage(0), history[0].FromStage)
	assert.Equal(t, entity.StageNotification, history[0].ToStage)
	assert.Equal(t, "schedule", history[0].Trigger)

	assert.Len(t, env.events.ofType(event.TypeAuditScheduled), 1)

	byCode, err := env.audits.GetByCode(ctx, " "+audit.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, audit.ID, byCode.ID)
}

func TestAuditService_ScheduleValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.audits.Schedule(context.Background(), ScheduleAuditInput{
		ProviderID:       "prov-1",
		PrimaryAuditorID: "a",
		ScheduledDate:    testNow,
		Deadline:         testNow.Add(-time.Hour),
	}, auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.audits.Schedule(context.Background(), ScheduleAuditInput{
		ProviderID:       "prov-1",
		PrimaryAuditorID: "a",
		ScheduledDate:    testNow,
		Deadline:         testNow.Add(time.Hour),
		StageConfig:      entity.StageConfig{entity.StageCancelled: {}},
	}, auditor)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestAuditService_MarkNotificationSent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	first, err := env.audits.MarkNotificationSent(ctx, audit.ID, auditor)
	require.NoError(t, err)
	require.NotNil(t, first.NotificationSentAt)

	second, err := env.audits.MarkNotificationSent(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.Equal(t, *first.NotificationSentAt, *second.NotificationSentAt)

	env.forceStage(t, audit.ID, entity.StageDocumentIntake)
	_, err = env.audits.MarkNotificationSent(ctx, audit.ID, auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)
}

func TestAuditService_Archive(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	_, err := env.audits.Archive(ctx, audit.ID, auditor)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)

	env.forceStage(t, audit.ID, entity.StageCancelled)
	archived, err := env.audits.Archive(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	list, err := env.audits.List(ctx, port.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = env.audits.List(ctx, port.AuditFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAuditService_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.audits.Get(context.Background(), 404)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	var nf *entity.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "audit", nf.Entity)
}
