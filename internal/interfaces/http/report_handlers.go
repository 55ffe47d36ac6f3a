package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// ProviderCommentRequest is the provider's answer to a delivered report
type ProviderCommentRequest struct {
	Comment string `json:"comment"`
}

// ExportResponse points at the written workbook
type ExportResponse struct {
	Path string `json:"path"`
}

// ComputeScore handles GET /api/v1/audits/:id/score
func (h *Handlers) ComputeScore(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	breakdown, err := h.services.Aggregation.ComputeTotalScore(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "compute_score", err)
		return
	}
	respondOK(c, breakdown)
}

// GetReport handles GET /api/v1/audits/:id/report
func (h *Handlers) GetReport(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	report, err := h.services.Reports.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get_report", err)
		return
	}
	respondOK(c, report)
}

// PreviewReport handles GET /api/v1/audits/:id/report/preview; nothing is stored
func (h *Handlers) PreviewReport(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	report, err := h.services.Aggregation.BuildReport(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "preview_report", err)
		return
	}
	respondOK(c, report)
}

// FinalizeReport handles POST /api/v1/audits/:id/report
func (h *Handlers) FinalizeReport(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	report, err := h.services.Aggregation.Finalize(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.fail(c, "finalize_report", err)
		return
	}
	respondOK(c, report)
}

type reportAction func(ctx context.Context, auditID int64, actor service.Actor) (*entity.Report, error)

// reportStep runs one approval-flow action against the audit's report
func (h *Handlers) reportStep(c *gin.Context, op string, action reportAction) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	report, err := action(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.fail(c, op, err)
		return
	}
	respondOK(c, report)
}

// SubmitReport handles POST /api/v1/audits/:id/report/submit
func (h *Handlers) SubmitReport(c *gin.Context) {
	h.reportStep(c, "submit_report", h.services.Reports.SubmitForReview)
}

// ApproveReport handles POST /api/v1/audits/:id/report/approve
func (h *Handlers) ApproveReport(c *gin.Context) {
	h.reportStep(c, "approve_report", h.services.Reports.Approve)
}

// ReturnReport handles POST /api/v1/audits/:id/report/return
func (h *Handlers) ReturnReport(c *gin.Context) {
	h.reportStep(c, "return_report", h.services.Reports.ReturnToDraft)
}

// DeliverReport handles POST /api/v1/audits/:id/report/deliver
func (h *Handlers) DeliverReport(c *gin.Context) {
	h.reportStep(c, "deliver_report", h.services.Reports.Deliver)
}

// AcceptReport handles POST /api/v1/audits/:id/report/accept
func (h *Handlers) AcceptReport(c *gin.Context) {
	var req ProviderCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	h.reportStep(c, "accept_report", func(ctx context.Context, auditID int64, actor service.Actor) (*entity.Report, error) {
		return h.services.Reports.ProviderAccept(ctx, auditID, req.Comment, actor)
	})
}

// ContestReport handles POST /api/v1/audits/:id/report/contest
func (h *Handlers) ContestReport(c *gin.Context) {
	var req ProviderCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	h.reportStep(c, "contest_report", func(ctx context.Context, auditID int64, actor service.Actor) (*entity.Report, error) {
		return h.services.Reports.ProviderContest(ctx, auditID, req.Comment, actor)
	})
}

// ExportReport handles POST /api/v1/audits/:id/report/export
func (h *Handlers) ExportReport(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	path, err := h.services.Reports.Export(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "export_report", err)
		return
	}
	respondOK(c, ExportResponse{Path: path})
}
