package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/application/workflow"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services      Services
	maxUploadSize int64
	logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, maxUploadSize int64, logger Logger) *Handlers {
	return &Handlers{
		services:      services,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Version is reported by /health; set at build time
var Version = "dev"

// StageResponse names a stage alongside its number
type StageResponse struct {
	Stage entity.Stage `json:"stage"`
	Name  string       `json:"name"`
}

// ReasonRequest is the body of operations that only carry a reason
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// AdvanceRequest is the body of POST /audits/:id/advance
type AdvanceRequest struct {
	ExpectedStage entity.Stage `json:"expected_stage"`
	TargetStage   entity.Stage `json:"target_stage"`
	Reason        string       `json:"reason"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
		},
	})
}

// ScheduleAudit handles POST /api/v1/audits
func (h *Handlers) ScheduleAudit(c *gin.Context) {
	var in service.ScheduleAuditInput
	if !bindJSON(c, &in) {
		return
	}
	audit, err := h.services.Audits.Schedule(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "schedule_audit", err)
		return
	}
	respondCreated(c, audit)
}

// ListAudits handles GET /api/v1/audits. ?code= looks a single audit up.
func (h *Handlers) ListAudits(c *gin.Context) {
	ctx := c.Request.Context()
	if code := c.Query("code"); code != "" {
		audit, err := h.services.Audits.GetByCode(ctx, code)
		if err != nil {
			h.fail(c, "get_audit_by_code", err)
			return
		}
		respondOK(c, []*entity.Audit{audit})
		return
	}

	filter := port.AuditFilter{
		ProviderID:      c.Query("provider_id"),
		IncludeArchived: c.Query("include_archived") == "true",
		Limit:           20,
	}
	if raw := c.Query("stage"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !entity.Stage(n).IsValid() {
			badRequest(c, "invalid stage: "+raw)
			return
		}
		filter.Stage = entity.Stage(n)
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			badRequest(c, "limit must be between 1 and 100")
			return
		}
		filter.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "invalid offset")
			return
		}
		filter.Offset = n
	}

	audits, err := h.services.Audits.List(ctx, filter)
	if err != nil {
		h.fail(c, "list_audits", err)
		return
	}
	if audits == nil {
		audits = []*entity.Audit{}
	}
	respondOK(c, audits)
}

// GetAudit handles GET /api/v1/audits/:id
func (h *Handlers) GetAudit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	audit, err := h.services.Audits.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get_audit", err)
		return
	}
	respondOK(c, audit)
}

// MarkNotificationSent handles POST /api/v1/audits/:id/notification
func (h *Handlers) MarkNotificationSent(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	audit, err := h.services.Audits.MarkNotificationSent(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.fail(c, "mark_notification_sent", err)
		return
	}
	respondOK(c, audit)
}

// ArchiveAudit handles POST /api/v1/audits/:id/archive
func (h *Handlers) ArchiveAudit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	audit, err := h.services.Audits.Archive(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.fail(c, "archive_audit", err)
		return
	}
	respondOK(c, audit)
}

// AuditHistory handles GET /api/v1/audits/:id/history
func (h *Handlers) AuditHistory(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	history, err := h.services.Audits.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "audit_history", err)
		return
	}
	respondOK(c, history)
}

// CurrentStage handles GET /api/v1/audits/:id/stage
func (h *Handlers) CurrentStage(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	stage, err := h.services.Stages.CurrentStage(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "current_stage", err)
		return
	}
	respondOK(c, StageResponse{Stage: stage, Name: stage.String()})
}

// CheckAdvance handles GET /api/v1/audits/:id/gate
func (h *Handlers) CheckAdvance(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	report, err := h.services.Stages.CheckAdvance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "check_advance", err)
		return
	}
	respondOK(c, report)
}

// Advance handles POST /api/v1/audits/:id/advance
func (h *Handlers) Advance(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req AdvanceRequest
	if !bindJSON(c, &req) {
		return
	}

	audit, err := h.services.Stages.Advance(c.Request.Context(), workflow.TransitionRequest{
		AuditID:       id,
		ExpectedStage: req.ExpectedStage,
		TargetStage:   req.TargetStage,
		ActorID:       actorFrom(c).ID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.fail(c, "advance", err)
		return
	}
	respondOK(c, audit)
}

// Suspend handles POST /api/v1/audits/:id/suspend
func (h *Handlers) Suspend(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	audit, err := h.services.Stages.Suspend(c.Request.Context(), id, req.Reason, actorFrom(c).ID)
	if err != nil {
		h.fail(c, "suspend", err)
		return
	}
	respondOK(c, audit)
}

// Cancel handles POST /api/v1/audits/:id/cancel
func (h *Handlers) Cancel(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	audit, err := h.services.Stages.Cancel(c.Request.Context(), id, req.Reason, actorFrom(c).ID)
	if err != nil {
		h.fail(c, "cancel", err)
		return
	}
	respondOK(c, audit)
}
