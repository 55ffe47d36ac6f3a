// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		MaxUploadSize: 20 << 20,
	}
}

// Services are the use cases exposed over HTTP
type Services struct {
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

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	gatherer   prometheus.Gatherer
	logger     Logger
}

// Option customizes a Server
type Option func(*Server)

// WithGatherer serves /metrics from g instead of the default registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = DefaultServerConfig().MaxUploadSize
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		gatherer: prometheus.DefaultGatherer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"user_id", c.GetHeader(HeaderUserID),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.config.MaxUploadSize, s.logger)

	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api/v1")
	api.Use(actorMiddleware())

	audits := api.Group("/audits")
	{
		audits.POST("", h.ScheduleAudit)
		audits.GET("", h.ListAudits)
		audits.GET("/:id", h.GetAudit)
		audits.POST("/:id/notification", h.MarkNotificationSent)
		audits.POST("/:id/archive", h.ArchiveAudit)
		audits.GET("/:id/history", h.AuditHistory)

		// stage lifecycle
		audits.GET("/:id/stage", h.CurrentStage)
		audits.GET("/:id/gate", h.CheckAdvance)
		audits.POST("/:id/advance", h.Advance)
		audits.POST("/:id/suspend", h.Suspend)
		audits.POST("/:id/cancel", h.Cancel)

		// evidence
		audits.GET("/:id/completion", h.Completion)
		audits.POST("/:id/documents", h.UploadDocument)
		audits.POST("/:id/inventory", h.ReportInventory)

		// evaluations
		audits.GET("/:id/evaluations", h.ListEvaluations)
		audits.GET("/:id/progress", h.EvaluationProgress)
		audits.GET("/:id/evaluations/:section", h.GetEvaluation)
		audits.POST("/:id/evaluations/:section/assign", h.AssignEvaluation)
		audits.POST("/:id/evaluations/:section/submit", h.SubmitEvaluation)
		audits.POST("/:id/evaluations/:section/clarification-request", h.RequestClarification)
		audits.POST("/:id/evaluations/:section/clarification", h.ProvideClarification)
		audits.POST("/:id/evaluations/:section/site-visit", h.FlagSiteVisit)
		audits.POST("/:id/evaluations/:section/recompute", h.RecomputeAutomatic)

		// validation log
		audits.GET("/:id/validations", h.ListValidations)
		audits.GET("/:id/validations/latest", h.LatestValidation)
		audits.GET("/:id/validations/summary", h.ValidationSummary)
		audits.POST("/:id/validations", h.AppendValidation)
		audits.POST("/:id/validations/inventory", h.RecordInventoryValidation)
		audits.POST("/:id/validations/override", h.RecordManualOverride)
		audits.POST("/:id/validations/ia", h.ScoreWithIA)

		// visits and findings
		audits.GET("/:id/visits", h.ListVisits)
		audits.POST("/:id/visits", h.ScheduleVisit)
		audits.GET("/:id/findings", h.ListFindings)

		// aggregation and report
		audits.GET("/:id/score", h.ComputeScore)
		audits.GET("/:id/report", h.GetReport)
		audits.GET("/:id/report/preview", h.PreviewReport)
		audits.POST("/:id/report", h.FinalizeReport)
		audits.POST("/:id/report/submit", h.SubmitReport)
		audits.POST("/:id/report/approve", h.ApproveReport)
		audits.POST("/:id/report/return", h.ReturnReport)
		audits.POST("/:id/report/deliver", h.DeliverReport)
		audits.POST("/:id/report/accept", h.AcceptReport)
		audits.POST("/:id/report/contest", h.ContestReport)
		audits.POST("/:id/report/export", h.ExportReport)
	}

	visits := api.Group("/visits")
	{
		visits.GET("/:id", h.GetVisit)
		visits.POST("/:id/confirm", h.ConfirmVisit)
		visits.POST("/:id/reschedule", h.RescheduleVisit)
		visits.POST("/:id/cancel", h.CancelVisit)
		visits.POST("/:id/start", h.StartVisit)
		visits.POST("/:id/end", h.EndVisit)
		visits.POST("/:id/verification", h.RecomputeVerification)
		visits.POST("/:id/findings", h.RegisterFinding)
	}

	findings := api.Group("/findings")
	{
		findings.GET("/:id", h.GetFinding)
		findings.POST("/:id/acknowledge", h.AcknowledgeFinding)
		findings.POST("/:id/correct", h.MarkFindingCorrected)
		findings.POST("/:id/verify", h.VerifyRemediation)
		findings.POST("/:id/defer", h.DeferFinding)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
