package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

const namespace = "audit"

// Recorder implements port.MetricsRecorder on Prometheus collectors
type Recorder struct {
	// stageTransitions counts advance/suspend/cancel attempts.
	// Labels: from, to (stage names), result (success, rejected, conflict, error)
	stageTransitions *prometheus.CounterVec

	// reportFinalizations counts finalize outcomes.
	// Labels: result (created, updated, unchanged, rejected)
	reportFinalizations *prometheus.CounterVec

	// validationRecords counts appends to the validation log.
	// Labels: type, result
	validationRecords *prometheus.CounterVec

	// lockWait measures how long callers waited for the per-audit lock
	lockWait prometheus.Histogram

	// lockTimeouts counts lock waits that gave up
	lockTimeouts prometheus.Counter
}

// NewRecorder registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		stageTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage transition attempts by source stage, target stage and result",
		}, []string{"from", "to", "result"}),
		reportFinalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_finalizations_total",
			Help:      "Report finalization outcomes",
		}, []string{"result"}),
		validationRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_records_total",
			Help:      "Validation records appended by type and result",
		}, []string{"type", "result"}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per-audit lock",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		lockTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "Per-audit lock waits that timed out",
		}),
	}
}

func (r *Recorder) StageTransition(from, to entity.Stage, result string) {
	r.stageTransitions.WithLabelValues(from.String(), to.String(), result).Inc()
}

func (r *Recorder) ReportFinalized(result string) {
	r.reportFinalizations.WithLabelValues(result).Inc()
}

func (r *Recorder) ValidationRecorded(typ entity.ValidationType, result entity.ValidationResult) {
	r.validationRecords.WithLabelValues(string(typ), string(result)).Inc()
}

// InstrumentLocker wraps l so every Lock call is timed
func (r *Recorder) InstrumentLocker(l port.AuditLocker) port.AuditLocker {
	return &instrumentedLocker{next: l, rec: r}
}

type instrumentedLocker struct {
	next port.AuditLocker
	rec  *Recorder
}

func (l *instrumentedLocker) Lock(ctx context.Context, auditID int64) (func(), error) {
	start := time.Now()
	release, err := l.next.Lock(ctx, auditID)
	l.rec.lockWait.Observe(time.Since(start).Seconds())
	if errors.Is(err, entity.ErrLockTimeout) {
		l.rec.lockTimeouts.Inc()
	}
	return release, err
}

// Verify interface compliance
var _ port.MetricsRecorder = (*Recorder)(nil)
