package http

import (
	"github.com/gin-gonic/gin"

	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// AssignRequest is the body of the assign operation
type AssignRequest struct {
	AuditorID string `json:"auditor_id"`
}

// ClarificationRequest carries the auditor's question or the provider's answer
type ClarificationRequest struct {
	Reason   string `json:"reason"`
	Response string `json:"response"`
}

// SiteVisitFlagRequest sets or clears the site-visit requirement
type SiteVisitFlagRequest struct {
	Required bool `json:"required"`
}

// sectionPath reads :id and :section
func sectionPath(c *gin.Context) (int64, entity.SectionID, bool) {
	id, valid := pathID(c, "id")
	if !valid {
		return 0, "", false
	}
	return id, entity.SectionID(c.Param("section")), true
}

// ListEvaluations handles GET /api/v1/audits/:id/evaluations
func (h *Handlers) ListEvaluations(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	evals, err := h.services.Evaluations.List(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "list_evaluations", err)
		return
	}
	respondOK(c, evals)
}

// EvaluationProgress handles GET /api/v1/audits/:id/progress
func (h *Handlers) EvaluationProgress(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	progress, err := h.services.Evaluations.Progress(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "evaluation_progress", err)
		return
	}
	respondOK(c, progress)
}

// GetEvaluation handles GET /api/v1/audits/:id/evaluations/:section
func (h *Handlers) GetEvaluation(c *gin.Context) {
	id, sec, valid := sectionPath(c)
	if !valid {
		return
	}
	eval, err := h.services.Evaluations.Get(c.Request.Context(), id, sec)
	if err != nil {
		h.fail(c, "get_evaluation", err)
		return
	}
	respondOK(c, eval)
}

// AssignEvaluation handles POST .../evaluations/:section/assign. Without a
// body the caller assigns the section to themselves.
func (h *Handlers) AssignEvaluation(c *gin.Context) {
	id, sec, valid := sectionPath(c)
	if !valid {
		return
	}
	var req AssignRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.AuditorID == "" {
		req.AuditorID = actorFrom(c).ID
	}
	eval, err := h.services.Evaluations.Assign(c.Request.Context(), id, sec, req.AuditorID)
	if err != nil {
		h.fail(c, "assign_evaluation", err)
		return
	}
	respondOK(c, eval)
}

// SubmitEvaluation handles POST .../evaluations/:section/submit
func (h *Handlers) SubmitEvaluation(c *gin.Context) {
	id, sec, valid := sectionPath(c)
	if !valid {
		return
	}
	var in service.SubmitEvaluationInput
	if !bindJSON(c, &in) {
		return
	}
	in.AuditID, in.SectionID = id, sec

	eval, err := h.services.Evaluations.Submit(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "submit_evaluation", err)
		return
	}
	respondOK(c, eval)
}

// RequestClarification handles POST .../evaluations/:section/clarification-request
func (h *Handlers) RequestClarification(c *gin.Context) {
	id, sec, valid := sectionPath(c)
	if !valid {
		return
	}
	var req ClarificationRequest
	if !bindJSON(c, &req) {
		return
	}
	eval, err := h.services.Evaluations.RequestClarification(c.Request.Context(), id, sec, req.Reason, actorFrom(c))
	if err != nil {
		h.fail(c, "request_clarification", err)
		return
	}
	respondOK(c, eval)
}

// ProvideClarification handles POST .../evaluations/:section/clarification
func (h *Handlers) ProvideClarification(c *gin.Context) {
	id, sec, valid := sectionPath(c)
	if !valid {
		return
	}
	var req ClarificationRequest
	if !bindJSON(c, &req) {
		return
	}
	eval, err := h.services.Evaluations.ProvideClarification(c.Request.Context(), id, sec, req.Response, actorFrom(c))
	if err != nil {
		h.fail(c, "provide_clarification", err)
		return
	}
	respondOK(c, eval)
}

// FlagSiteVisit handles POST .../evaluations/:section/site-visit
func (h *Handlers) FlagSiteVisit(c *gin.Context) {
	id, sec, valid := sectionPath(c)
	if !valid {
		return
	}
	req := SiteVisitFlagRequest{Required: true}
	if !bindJSON(c, &req) {
		return
	}
	eval, err := h.services.Evaluations.FlagSiteVisit(c.Request.Context(), id, sec, req.Required)
	if err != nil {
		h.fail(c, "flag_site_visit", err)
		return
	}
	respondOK(c, eval)
}

// RecomputeAutomatic handles POST .../evaluations/:section/recompute
func (h *Handlers) RecomputeAutomatic(c *gin.Context) {
	id, sec, valid := sectionPath(c)
	if !valid {
		return
	}
	eval, err := h.services.Evaluations.RecomputeAutomatic(c.Request.Context(), id, sec)
	if err != nil {
		h.fail(c, "recompute_automatic", err)
		return
	}
	respondOK(c, eval)
}
