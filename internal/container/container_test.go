package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/config"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Database.Path = filepath.Join(dir, "audit.db")
	cfg.Storage.EvidenceDir = filepath.Join(dir, "evidence")
	cfg.Storage.ExportDir = filepath.Join(dir, "exports")
	cfg.Workers.PollInterval = time.Hour
	return cfg
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewContainer(cfg, zap.NewNop(), WithPrometheus(reg, reg))
	require.NoError(t, err)
	return c
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Lock.Driver = "zookeeper"
	_, err = NewContainer(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestContainer_Lifecycle(t *testing.T) {
	c := newTestContainer(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx), "second start is rejected")

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["workers"].Healthy)
	assert.True(t, health.Components["worker.ClosureWorker"].Healthy)
	assert.Equal(t, 2, c.Workers().GetWorkerCount())

	services := c.Services()
	require.NotNil(t, services)
	assert.NotNil(t, services.Stages)
	assert.NotNil(t, services.Intake)

	handlers := c.Dispatcher().ListHandlers(event.TypeValidationRecorded)
	require.Len(t, handlers, 1)
	assert.Equal(t, "evaluation-recompute", handlers[0].Name)
	assert.Len(t, c.Dispatcher().ListHandlers(event.TypeReportDelivered), 1)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close is rejected")
	assert.Error(t, c.Start(ctx), "closed container cannot restart")
}

func TestContainer_WorkersDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.Enabled = false
	c := newTestContainer(t, cfg)

	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, 0, c.Workers().GetWorkerCount())
	health := c.Health(context.Background())
	assert.True(t, health.Overall)
	assert.Equal(t, "disabled", health.Components["workers"].Message)
}

func TestContainer_StartFailsOnMissingPrompts(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.Enabled = true
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.PromptsPath = filepath.Join(t.TempDir(), "missing.yaml")
	c := newTestContainer(t, cfg)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external clients")
	assert.False(t, c.Ready())
}

type recomputeEvals struct {
	service.EvaluationService
	calls []entity.SectionID
	err   error
}

func (e *recomputeEvals) RecomputeAutomatic(_ context.Context, _ int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error) {
	e.calls = append(e.calls, sectionID)
	return nil, e.err
}

func TestRecomputeHandler(t *testing.T) {
	recorded := func(payload map[string]any) *event.Event {
		return event.NewEvent(event.TypeValidationRecorded, 7, "AUD-7", payload)
	}

	tests := []struct {
		name      string
		payload   map[string]any
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "section record", payload: map[string]any{"section_id": "red"}, wantCalls: 1},
		{name: "audit level record", payload: map[string]any{"type": "inventory_conformance"}},
		{name: "evaluation not created yet", payload: map[string]any{"section_id": "red"}, err: entity.NewNotFoundError("evaluation", "red"), wantCalls: 1},
		{name: "audit moved on", payload: map[string]any{"section_id": "red"}, err: &entity.TransitionError{Entity: "audit", From: "informe_final", Trigger: "modify"}, wantCalls: 1},
		{name: "storage failure", payload: map[string]any{"section_id": "red"}, err: errors.New("disk full"), wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evals := &recomputeEvals{err: tt.err}
			err := createRecomputeHandler(evals, zap.NewNop())(context.Background(), recorded(tt.payload))

			assert.Len(t, evals.calls, tt.wantCalls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
