package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/site-audit/internal/application/dispatcher"
	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/section"
	"github.com/garyjia/site-audit/internal/domain/workflow"
	"github.com/garyjia/site-audit/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Actor is the already-authenticated caller of an operation
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Deps bundles what every service needs. Dispatcher, Metrics, Registry,
// Logger and Clock are optional.
type Deps struct {
	Repos      port.Repositories
	TxManager  port.TransactionManager
	Locker     port.AuditLocker
	Dispatcher dispatcher.Dispatcher
	Metrics    port.MetricsRecorder
	Registry   *section.Registry
	Logger     Logger
	Clock      func() time.Time
}

// WithDefaults fills the optional fields
func (d Deps) WithDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = port.NopMetrics{}
	}
	if d.Registry == nil {
		d.Registry = section.Default()
	}
	if d.Logger == nil {
		d.Logger = nopLogger{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// Now returns the current time in UTC without a monotonic reading so values
// compare equal after a storage round trip.
func (d Deps) Now() time.Time {
	return d.Clock().UTC()
}

// WithAuditLock holds the per-audit lock while fn runs
func WithAuditLock(ctx context.Context, locker port.AuditLocker, auditID int64, fn func() error) error {
	release, err := locker.Lock(ctx, auditID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// mutate runs fn inside the audit lock and a transaction
func (d Deps) mutate(ctx context.Context, auditID int64, fn func(txCtx context.Context) error) error {
	return WithAuditLock(ctx, d.Locker, auditID, func() error {
		return d.TxManager.WithTransaction(ctx, fn)
	})
}

// publish emits evt after commit; delivery problems never reach the caller
func (d Deps) publish(ctx context.Context, evt *event.Event) {
	if d.Dispatcher == nil || evt == nil {
		return
	}
	d.Dispatcher.DispatchAsync(ctx, evt)
}

// Fire applies trigger to m and converts machine errors into domain errors
func Fire[S workflow.State, T workflow.Trigger](ctx context.Context, m workflow.StateMachine[S, T], trigger T, entityName string) error {
	from := m.State()
	err := m.Fire(ctx, trigger)
	if err == nil {
		return nil
	}
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return &entity.TransitionError{Entity: entityName, From: from.String(), Trigger: trigger.String()}
	}
	var pe *entity.PreconditionError
	if errors.As(err, &pe) {
		return pe
	}
	return err
}

// loadAudit fetches the audit and rejects terminal or archived ones for mutation
func (d Deps) loadMutableAudit(ctx context.Context, auditID int64) (*entity.Audit, error) {
	audit, err := d.Repos.Audits.GetByID(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if audit.Stage.IsTerminal() {
		return nil, &entity.TransitionError{Entity: "audit", From: audit.Stage.String(), Trigger: "modify"}
	}
	return audit, nil
}

// requireStage rejects operations outside [from, to]
func requireStage(audit *entity.Audit, from, to entity.Stage, op string) error {
	if audit.Stage < from || audit.Stage > to {
		return &entity.TransitionError{Entity: "audit", From: audit.Stage.String(), Trigger: op}
	}
	return nil
}

func validateInput(v interface{}) error {
	if err := utils.ValidateStruct(v); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	return nil
}

func validateScore(score *float64) error {
	if score == nil {
		return nil
	}
	if err := utils.ValidateScore(*score); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
