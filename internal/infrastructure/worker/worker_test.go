package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/application/workflow"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

var sweepNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeLister struct {
	mu      sync.Mutex
	audits  []*entity.Audit
	err     error
	filters []port.AuditFilter
}

func (f *fakeLister) List(_ context.Context, filter port.AuditFilter) ([]*entity.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.audits, f.err
}

type fakeAdvancer struct {
	mu       sync.Mutex
	errs     map[int64]error
	advanced []int64
}

func (f *fakeAdvancer) Advance(_ context.Context, req workflow.TransitionRequest) (*entity.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[req.AuditID]; err != nil {
		return nil, err
	}
	f.advanced = append(f.advanced, req.AuditID)
	return &entity.Audit{ID: req.AuditID, Stage: entity.StageCompleted}, nil
}

func TestClosureWorker_Sweep(t *testing.T) {
	lister := &fakeLister{audits: []*entity.Audit{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}}
	advancer := &fakeAdvancer{errs: map[int64]error{
		2: entity.NewPreconditionError(entity.StageClosure, "report has not been delivered"),
		3: errors.New("database is locked"),
		4: &entity.LockTimeoutError{AuditID: 4, Waited: time.Second},
	}}
	w := NewClosureWorker(SweepConfig{PollInterval: time.Hour, BatchSize: 10, Timeout: time.Second}, lister, advancer, zap.NewNop())

	processed, failed, err := w.sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []int64{1}, advancer.advanced)
	assert.Equal(t, entity.StageClosure, lister.filters[0].Stage)
	assert.Equal(t, 10, lister.filters[0].Limit)
}

func TestClosureWorker_ListFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("boom")}
	w := NewClosureWorker(DefaultSweepConfig(), lister, &fakeAdvancer{}, zap.NewNop())

	w.runOnce(context.Background())
	st := w.Status()
	assert.Equal(t, "ClosureWorker", st.Name)
	assert.Contains(t, st.LastError, "boom")
	assert.Zero(t, st.ProcessedCount)
}

type fakeInventory struct {
	results map[int64]*port.InventoryResult
}

func (f *fakeInventory) GetInventoryResult(_ context.Context, auditID int64) (*port.InventoryResult, error) {
	return f.results[auditID], nil
}

type fakeRecorder struct {
	latest   map[int64]*entity.ValidationRecord
	recorded []int64
	actors   []string
}

func (f *fakeRecorder) Latest(_ context.Context, auditID int64, filter port.ValidationFilter) (*entity.ValidationRecord, error) {
	if filter.Type != entity.ValidationInventoryConformance {
		return nil, errors.New("unexpected filter")
	}
	return f.latest[auditID], nil
}

func (f *fakeRecorder) RecordInventoryResult(_ context.Context, auditID int64, actor service.Actor) (*entity.ValidationRecord, error) {
	f.recorded = append(f.recorded, auditID)
	f.actors = append(f.actors, actor.ID)
	return &entity.ValidationRecord{AuditID: auditID}, nil
}

func TestInventoryWorker_Sweep(t *testing.T) {
	lister := &fakeLister{audits: []*entity.Audit{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}}
	inventory := &fakeInventory{results: map[int64]*port.InventoryResult{
		1: {AuditID: 1, Processed: true, Score: 90, ProcessedAt: sweepNow},
		2: {AuditID: 2, Processed: false},
		// 3 has no result
		4: {AuditID: 4, Processed: true, Score: 70, ProcessedAt: sweepNow},
		5: {AuditID: 5, Processed: true, Score: 80, ProcessedAt: sweepNow},
	}}
	recorder := &fakeRecorder{latest: map[int64]*entity.ValidationRecord{
		// already logged after the ETL ran
		4: {CreatedAt: sweepNow.Add(time.Minute)},
		// logged for an earlier ETL run
		5: {CreatedAt: sweepNow.Add(-time.Hour)},
	}}
	w := NewInventoryWorker(DefaultSweepConfig(), lister, inventory, recorder, zap.NewNop())

	processed, failed, err := w.sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Zero(t, failed)
	assert.Equal(t, []int64{1, 5}, recorder.recorded)
	assert.Equal(t, []string{"etl", "etl"}, recorder.actors)
	assert.Equal(t, entity.StageAutomaticValidation, lister.filters[0].Stage)
}

func TestWorkerManager_Lifecycle(t *testing.T) {
	lister := &fakeLister{audits: []*entity.Audit{{ID: 9}}}
	advancer := &fakeAdvancer{}
	w := NewClosureWorker(SweepConfig{PollInterval: 10 * time.Millisecond, BatchSize: 5, Timeout: time.Second}, lister, advancer, zap.NewNop())

	m := NewWorkerManager(zap.NewNop())
	m.Register(w)
	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	require.Eventually(t, func() bool {
		return w.Status().ProcessedCount > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())

	statuses := m.Statuses()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Running)
	assert.Equal(t, 1, m.GetWorkerCount())
}

func TestPoller_RejectsZeroInterval(t *testing.T) {
	w := NewClosureWorker(SweepConfig{}, &fakeLister{}, &fakeAdvancer{}, zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
}

type stubWorker struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (s *stubWorker) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *stubWorker) Stop() error {
	s.stopped = true
	return nil
}

func (s *stubWorker) Name() string { return s.name }

func TestWorkerManager_StartAllRollsBack(t *testing.T) {
	first := &stubWorker{name: "first"}
	broken := &stubWorker{name: "broken", startErr: errors.New("no interval")}
	never := &stubWorker{name: "never"}

	m := NewWorkerManager(zap.NewNop())
	m.Register(first)
	m.Register(broken)
	m.Register(never)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, first.stopped, "started workers are stopped again")
	assert.False(t, never.started)
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.StopAll(), "idle manager stops cleanly")
}
