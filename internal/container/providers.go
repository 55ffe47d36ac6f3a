// Package container provides dependency injection and lifecycle management
// for the site audit service.
package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/dispatcher"
	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/application/workflow"
	"github.com/garyjia/site-audit/internal/config"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/infrastructure/export"
	infraLark "github.com/garyjia/site-audit/internal/infrastructure/external/lark"
	"github.com/garyjia/site-audit/internal/infrastructure/external/openai"
	"github.com/garyjia/site-audit/internal/infrastructure/lock"
	"github.com/garyjia/site-audit/internal/infrastructure/metrics"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/repository"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/site-audit/internal/infrastructure/storage"
	"github.com/garyjia/site-audit/internal/infrastructure/worker"
	"github.com/garyjia/site-audit/migrations"
	"github.com/garyjia/site-audit/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
	Repos          port.Repositories
}

// LockBundle holds the audit locker and, for the redis driver, its client.
type LockBundle struct {
	Locker port.AuditLocker
	Redis  redis.UniversalClient
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	Evidence *storage.EvidenceStore
	Folders  *storage.ExportFolders
	Exporter *export.XLSXExporter
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Audits       service.AuditService
	Stages       workflow.StageController
	Completeness service.CompletenessGate
	Evaluations  service.EvaluationService
	Validations  service.ValidationService
	Visits       service.VisitService
	Findings     service.FindingService
	Aggregation  service.AggregationService
	Reports      service.ReportService
	Intake       service.IntakeService
}

// ProvideDatabase opens the SQLite database, applies pending migrations when
// enabled and builds the repositories.
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(ctx, cfg.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.AutoMigrate {
		applied, err := database.NewMigrator(db, logger).Run(ctx, migrations.FS)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations checked", zap.Int("applied", applied))
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
		Repos:          repository.New(db.DB, logger),
	}, nil
}

// ProvideLocker builds the per-audit locker selected by lock.driver and
// instruments it with the wait histogram.
func ProvideLocker(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder, logger *zap.Logger) (*LockBundle, error) {
	bundle := &LockBundle{}

	switch cfg.Lock.Driver {
	case config.LockDriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		bundle.Redis = rdb
		bundle.Locker = lock.NewRedisLocker(rdb, lock.RedisConfig{
			Prefix:  cfg.Lock.Prefix,
			TTL:     cfg.Lock.TTL,
			Timeout: cfg.Lock.WaitTimeout,
			Retry:   cfg.Lock.RetryInterval,
		}, logger)
	default:
		bundle.Locker = lock.NewLocalLocker(cfg.Lock.WaitTimeout)
	}

	if recorder != nil {
		bundle.Locker = recorder.InstrumentLocker(bundle.Locker)
	}
	logger.Info("Audit locker ready", zap.String("driver", cfg.Lock.Driver))
	return bundle, nil
}

// ProvideScorer returns the IA section scorer, or nil when openai is disabled.
func ProvideScorer(cfg config.OpenAIConfig, logger *zap.Logger) (port.SectionScorer, error) {
	if !cfg.Enabled {
		logger.Info("OpenAI scorer disabled")
		return nil, nil
	}

	prompts, err := openai.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	logger.Info("OpenAI scorer initialized", zap.String("model", cfg.Model))
	return openai.NewScorer(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}, prompts, logger), nil
}

// ProvideNotifier returns the Lark chat notifier, or nil when lark is disabled.
func ProvideNotifier(cfg config.LarkConfig, logger *zap.Logger) *infraLark.Notifier {
	if !cfg.Enabled {
		logger.Info("Lark notifications disabled")
		return nil
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.BaseURL,
	}, logger)
	messenger := infraLark.NewMessenger(client, logger)

	logger.Info("Lark notifier initialized", zap.String("chat_id", cfg.ChatID))
	return infraLark.NewNotifier(messenger, cfg.ChatID, logger)
}

// ProvideStorage creates the evidence store and the report exporter.
func ProvideStorage(cfg config.StorageConfig, logger *zap.Logger) *StorageBundle {
	folders := storage.NewExportFolders(cfg.ExportDir, logger)
	return &StorageBundle{
		Evidence: storage.NewEvidenceStore(cfg.EvidenceDir, logger),
		Folders:  folders,
		Exporter: export.NewXLSXExporter(folders, logger),
	}
}

// ProvideMetrics registers the audit collectors on reg.
func ProvideMetrics(reg prometheus.Registerer) *metrics.Recorder {
	return metrics.NewRecorder(reg)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
	)
}

// ServiceDeps contains the collaborators needed to build services.
type ServiceDeps struct {
	Deps    service.Deps
	Config  *config.Config
	Scorer  port.SectionScorer
	Storage *StorageBundle
}

// ProvideServices creates every application service and the stage controller.
func ProvideServices(d *ServiceDeps) (*ServiceBundle, error) {
	if d == nil || d.Config == nil {
		return nil, fmt.Errorf("service deps are required")
	}
	deps := d.Deps.WithDefaults()
	if deps.Repos.Audits == nil || deps.TxManager == nil || deps.Locker == nil {
		return nil, fmt.Errorf("repositories, transaction manager and locker are required")
	}

	var exporter port.ReportExporter
	var evidence port.EvidenceStorage
	if d.Storage != nil {
		exporter = d.Storage.Exporter
		evidence = d.Storage.Evidence
	}

	b := &ServiceBundle{
		Audits:       service.NewAuditService(deps),
		Completeness: service.NewCompletenessGate(deps.Repos.Documents, deps.Repos.Inventory, deps.Registry),
		Evaluations:  service.NewEvaluationService(deps, d.Config.Scoring.Policy),
		Validations:  service.NewValidationService(deps, d.Scorer),
		Visits:       service.NewVisitService(deps, d.Config.GPS),
		Findings:     service.NewFindingService(deps),
		Aggregation:  service.NewAggregationService(deps, d.Config.Scoring.Tiers),
		Reports:      service.NewReportService(deps, exporter),
		Intake:       service.NewIntakeService(deps, evidence),
	}
	b.Stages = workflow.NewStageController(deps, workflow.Collaborators{
		Completeness: b.Completeness,
		Evaluations:  b.Evaluations,
		Aggregation:  b.Aggregation,
	}, workflow.WithAutoClose(d.Config.Scoring.AutoClose))

	return b, nil
}

// RegisterEventHandlers subscribes the in-process reactions to domain events.
// notifier may be nil.
func RegisterEventHandlers(d dispatcher.Dispatcher, services *ServiceBundle, notifier *infraLark.Notifier, logger *zap.Logger) {
	d.SubscribeNamed(event.TypeValidationRecorded, "evaluation-recompute",
		createRecomputeHandler(services.Evaluations, logger))
	d.SubscribeNamed(event.TypeReportDelivered, "stage-auto-close", services.Stages.HandleEvent)

	if notifier != nil {
		notifier.Register(d)
	}
}

// createRecomputeHandler refreshes the automatic score of the section named
// by a validation.recorded event. Sections not under evaluation yet, and
// audits that moved on, are skipped.
func createRecomputeHandler(evaluations service.EvaluationService, logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		raw, _ := evt.Payload["section_id"].(string)
		if raw == "" {
			return nil
		}

		_, err := evaluations.RecomputeAutomatic(ctx, evt.AuditID, entity.SectionID(raw))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, entity.ErrNotFound), errors.Is(err, entity.ErrInvalidStateTransition):
			logger.Debug("Automatic score not recomputed",
				zap.Int64("audit_id", evt.AuditID),
				zap.String("section_id", raw),
				zap.Error(err))
			return nil
		default:
			return fmt.Errorf("recompute automatic score: %w", err)
		}
	}
}

// ProvideWorkers creates the closure and inventory sweeps.
func ProvideWorkers(cfg config.WorkersConfig, repos port.Repositories, services *ServiceBundle, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger)
	if !cfg.Enabled {
		logger.Info("Background workers disabled")
		return manager
	}

	sweep := worker.DefaultSweepConfig()
	if cfg.PollInterval > 0 {
		sweep.PollInterval = cfg.PollInterval
	}
	if cfg.BatchSize > 0 {
		sweep.BatchSize = cfg.BatchSize
	}
	if cfg.Timeout > 0 {
		sweep.Timeout = cfg.Timeout
	}

	manager.Register(worker.NewClosureWorker(sweep, repos.Audits, services.Stages, logger))
	manager.Register(worker.NewInventoryWorker(sweep, repos.Audits, repos.Inventory, services.Validations, logger))
	return manager
}
