package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/domain/geo"
)

// RescheduleRequest moves a visit to a new time
type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// PositionRequest carries a GPS reading (arrival) or a corrected site reference
type PositionRequest struct {
	Arrival   *geo.Point `json:"arrival"`
	Reference *geo.Point `json:"reference"`
}

// FindingNoteRequest carries the provider's response or correction evidence
type FindingNoteRequest struct {
	Response string `json:"response"`
	Evidence string `json:"evidence"`
	Reason   string `json:"reason"`
}

// ScheduleVisit handles POST /api/v1/audits/:id/visits
func (h *Handlers) ScheduleVisit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var in service.ScheduleVisitInput
	if !bindJSON(c, &in) {
		return
	}
	in.AuditID = id

	visit, err := h.services.Visits.Schedule(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "schedule_visit", err)
		return
	}
	respondCreated(c, visit)
}

// ListVisits handles GET /api/v1/audits/:id/visits
func (h *Handlers) ListVisits(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	visits, err := h.services.Visits.List(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "list_visits", err)
		return
	}
	respondOK(c, visits)
}

// GetVisit handles GET /api/v1/visits/:id
func (h *Handlers) GetVisit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	visit, err := h.services.Visits.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get_visit", err)
		return
	}
	respondOK(c, visit)
}

// ConfirmVisit handles POST /api/v1/visits/:id/confirm
func (h *Handlers) ConfirmVisit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	visit, err := h.services.Visits.Confirm(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.fail(c, "confirm_visit", err)
		return
	}
	respondOK(c, visit)
}

// RescheduleVisit handles POST /api/v1/visits/:id/reschedule
func (h *Handlers) RescheduleVisit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req RescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	visit, err := h.services.Visits.Reschedule(c.Request.Context(), id, req.ScheduledAt, actorFrom(c))
	if err != nil {
		h.fail(c, "reschedule_visit", err)
		return
	}
	respondOK(c, visit)
}

// CancelVisit handles POST /api/v1/visits/:id/cancel
func (h *Handlers) CancelVisit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	visit, err := h.services.Visits.Cancel(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		h.fail(c, "cancel_visit", err)
		return
	}
	respondOK(c, visit)
}

// StartVisit handles POST /api/v1/visits/:id/start
func (h *Handlers) StartVisit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req PositionRequest
	if !bindJSON(c, &req) {
		return
	}
	visit, err := h.services.Visits.Start(c.Request.Context(), id, req.Arrival, actorFrom(c))
	if err != nil {
		h.fail(c, "start_visit", err)
		return
	}
	respondOK(c, visit)
}

// EndVisit handles POST /api/v1/visits/:id/end
func (h *Handlers) EndVisit(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var in service.EndVisitInput
	if !bindJSON(c, &in) {
		return
	}
	in.VisitID = id

	visit, err := h.services.Visits.End(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "end_visit", err)
		return
	}
	respondOK(c, visit)
}

// RecomputeVerification handles POST /api/v1/visits/:id/verification
func (h *Handlers) RecomputeVerification(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req PositionRequest
	if !bindJSON(c, &req) {
		return
	}
	visit, err := h.services.Visits.RecomputeVerification(c.Request.Context(), id, req.Reference, actorFrom(c))
	if err != nil {
		h.fail(c, "recompute_verification", err)
		return
	}
	respondOK(c, visit)
}

// RegisterFinding handles POST /api/v1/visits/:id/findings
func (h *Handlers) RegisterFinding(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var in service.RegisterFindingInput
	if !bindJSON(c, &in) {
		return
	}
	in.VisitID = id

	finding, err := h.services.Findings.Register(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "register_finding", err)
		return
	}
	respondCreated(c, finding)
}

// ListFindings handles GET /api/v1/audits/:id/findings
func (h *Handlers) ListFindings(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	findings, err := h.services.Findings.List(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "list_findings", err)
		return
	}
	respondOK(c, findings)
}

// GetFinding handles GET /api/v1/findings/:id
func (h *Handlers) GetFinding(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	finding, err := h.services.Findings.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get_finding", err)
		return
	}
	respondOK(c, finding)
}

// AcknowledgeFinding handles POST /api/v1/findings/:id/acknowledge
func (h *Handlers) AcknowledgeFinding(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req FindingNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	finding, err := h.services.Findings.AcknowledgeByProvider(c.Request.Context(), id, req.Response, actorFrom(c))
	if err != nil {
		h.fail(c, "acknowledge_finding", err)
		return
	}
	respondOK(c, finding)
}

// MarkFindingCorrected handles POST /api/v1/findings/:id/correct
func (h *Handlers) MarkFindingCorrected(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req FindingNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	finding, err := h.services.Findings.MarkCorrected(c.Request.Context(), id, req.Evidence, actorFrom(c))
	if err != nil {
		h.fail(c, "mark_corrected", err)
		return
	}
	respondOK(c, finding)
}

// VerifyRemediation handles POST /api/v1/findings/:id/verify
func (h *Handlers) VerifyRemediation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var in service.VerifyRemediationInput
	if !bindJSON(c, &in) {
		return
	}
	in.FindingID = id

	finding, err := h.services.Findings.VerifyRemediation(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "verify_remediation", err)
		return
	}
	respondOK(c, finding)
}

// DeferFinding handles POST /api/v1/findings/:id/defer
func (h *Handlers) DeferFinding(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req FindingNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	finding, err := h.services.Findings.Defer(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		h.fail(c, "defer_finding", err)
		return
	}
	respondOK(c, finding)
}
