package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/application/dispatcher"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/geo"
	"github.com/garyjia/site-audit/internal/domain/scoring"
	"github.com/garyjia/site-audit/internal/domain/section"
	"github.com/garyjia/site-audit/internal/infrastructure/lock"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/memory"
)

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// recordingDispatcher delivers nothing and keeps every published event
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) Subscribe(event.Type, dispatcher.Handler)              {}
func (d *recordingDispatcher) SubscribeNamed(event.Type, string, dispatcher.Handler) {}
func (d *recordingDispatcher) SubscribeAll(string, dispatcher.Handler)               {}
func (d *recordingDispatcher) Unsubscribe(event.Type, string)                        {}
func (d *recordingDispatcher) ListHandlers(event.Type) []dispatcher.HandlerInfo      { return nil }
func (d *recordingDispatcher) Close() error                                          { return nil }

func (d *recordingDispatcher) Dispatch(_ context.Context, evt *event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	_ = d.Dispatch(ctx, evt)
}

func (d *recordingDispatcher) ofType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, e := range d.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	finalized   []string
	validations int
}

func (m *recordingMetrics) StageTransition(entity.Stage, entity.Stage, string) {}

func (m *recordingMetrics) ReportFinalized(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, result)
}

func (m *recordingMetrics) ValidationRecorded(entity.ValidationType, entity.ValidationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations++
}

type testEnv struct {
	store   *memory.Store
	deps    Deps
	events  *recordingDispatcher
	metrics *recordingMetrics

	audits      AuditService
	gate        CompletenessGate
	evaluations EvaluationService
	validations ValidationService
	visits      VisitService
	findings    FindingService
	aggregation AggregationService
	reports     ReportService
}

func newTestEnv(t *testing.T, registry *section.Registry) *testEnv {
	t.Helper()
	if registry == nil {
		registry = section.Default()
	}
	store := memory.NewStore()
	events := &recordingDispatcher{}
	metrics := &recordingMetrics{}
	deps := Deps{
		Repos:      store.Repositories(),
		TxManager:  store,
		Locker:     lock.NewLocalLocker(time.Second),
		Dispatcher: events,
		Metrics:    metrics,
		Registry:   registry,
		Clock:      func() time.Time { return testNow },
	}.WithDefaults()

	return &testEnv{
		store:       store,
		deps:        deps,
		events:      events,
		metrics:     metrics,
		audits:      NewAuditService(deps),
		gate:        NewCompletenessGate(deps.Repos.Documents, deps.Repos.Inventory, registry),
		evaluations: NewEvaluationService(deps, scoring.DefaultPolicy()),
		validations: NewValidationService(deps, nil),
		visits:      NewVisitService(deps, geo.DefaultThresholds()),
		findings:    NewFindingService(deps),
		aggregation: NewAggregationService(deps, scoring.DefaultTiers()),
		reports:     NewReportService(deps, nil),
	}
}

var auditor = Actor{ID: "auditor-1", Role: "auditor"}

func (e *testEnv) schedule(t *testing.T) *entity.Audit {
	t.Helper()
	audit, err := e.audits.Schedule(context.Background(), ScheduleAuditInput{
		ProviderID:       "prov-1",
		PrimaryAuditorID: auditor.ID,
		ScheduledDate:    testNow.Add(24 * time.Hour),
		Deadline:         testNow.Add(30 * 24 * time.Hour),
	}, auditor)
	require.NoError(t, err)
	return audit
}

// forceStage moves the audit directly through the repository
func (e *testEnv) forceStage(t *testing.T, auditID int64, stage entity.Stage) {
	t.Helper()
	ctx := context.Background()
	a, err := e.deps.Repos.Audits.GetByID(ctx, auditID)
	require.NoError(t, err)
	require.NoError(t, e.deps.Repos.Audits.UpdateStage(ctx, auditID, a.Version, stage, "test"))
}

// auditAt schedules an audit, initializes its evaluations and parks it at stage
func (e *testEnv) auditAt(t *testing.T, stage entity.Stage) *entity.Audit {
	t.Helper()
	audit := e.schedule(t)
	require.NoError(t, e.evaluations.InitializeForAudit(context.Background(), audit.ID))
	e.forceStage(t, audit.ID, stage)
	return audit
}

// resolve assigns and submits a section with a manual score
func (e *testEnv) resolve(t *testing.T, auditID int64, id entity.SectionID, result entity.EvaluationResult, score float64) *entity.SectionEvaluation {
	t.Helper()
	ctx := context.Background()
	_, err := e.evaluations.Assign(ctx, auditID, id, auditor.ID)
	require.NoError(t, err)
	eval, err := e.evaluations.Submit(ctx, SubmitEvaluationInput{
		AuditID:     auditID,
		SectionID:   id,
		Result:      result,
		ManualScore: &score,
	}, auditor)
	require.NoError(t, err)
	return eval
}

func ptr(v float64) *float64 { return &v }

// twoSections is a registry with one obligatory and one optional section
func twoSections() *section.Registry {
	return section.NewRegistry([]entity.SectionDefinition{
		{ID: "red", Name: "Red", Category: entity.CategorySite, Obligatory: true},
		{ID: "extra", Name: "Extra", Category: entity.CategorySite, Obligatory: false},
	})
}
