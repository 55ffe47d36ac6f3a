package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/application/service"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// DocumentReference registers a file kept outside this service
type DocumentReference struct {
	SectionID entity.SectionID `json:"section_id"`
	FileName  string           `json:"file_name"`
	FileID    string           `json:"file_id"`
}

// AppendValidationRequest is a validation record reported by an external executor
type AppendValidationRequest struct {
	DocumentID     string                  `json:"document_id"`
	SectionID      entity.SectionID        `json:"section_id"`
	Type           entity.ValidationType   `json:"type"`
	Result         entity.ValidationResult `json:"result"`
	Score          *float64                `json:"score"`
	CriticalErrors []string                `json:"critical_errors"`
	Warnings       []string                `json:"warnings"`
	Executor       entity.Executor         `json:"executor"`
	Notes          string                  `json:"notes"`
}

// SectionNoteRequest names a section plus free text
type SectionNoteRequest struct {
	SectionID entity.SectionID `json:"section_id"`
	Notes     string           `json:"notes"`
	Evidence  string           `json:"evidence"`
}

// Completion handles GET /api/v1/audits/:id/completion
func (h *Handlers) Completion(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.services.Audits.Get(ctx, id); err != nil {
		h.fail(c, "completion", err)
		return
	}
	summary, err := h.services.Completeness.ComputeCompletion(ctx, id)
	if err != nil {
		h.fail(c, "completion", err)
		return
	}
	respondOK(c, summary)
}

// UploadDocument handles POST /api/v1/audits/:id/documents. A multipart
// upload stores the file; a JSON body registers an external reference.
func (h *Handlers) UploadDocument(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	in := service.RegisterDocumentInput{AuditID: id}
	if c.ContentType() == "application/json" {
		var ref DocumentReference
		if !bindJSON(c, &ref) {
			return
		}
		in.SectionID, in.FileName, in.FileID = ref.SectionID, ref.FileName, ref.FileID
	} else {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
		header, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "missing file: "+err.Error())
			return
		}
		content, err := readUpload(header)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		in.SectionID = entity.SectionID(c.PostForm("section_id"))
		in.FileName = header.Filename
		in.Content = content
	}

	meta, err := h.services.Intake.RegisterDocument(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "register_document", err)
		return
	}
	respondCreated(c, meta)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return content, nil
}

// ReportInventory handles POST /api/v1/audits/:id/inventory
func (h *Handlers) ReportInventory(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var in service.InventoryInput
	if !bindJSON(c, &in) {
		return
	}
	in.AuditID = id

	result, err := h.services.Intake.ReportInventory(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		h.fail(c, "report_inventory", err)
		return
	}
	respondCreated(c, result)
}

// ListValidations handles GET /api/v1/audits/:id/validations
func (h *Handlers) ListValidations(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	records, err := h.services.Validations.List(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "list_validations", err)
		return
	}
	respondOK(c, records)
}

// LatestValidation handles GET /api/v1/audits/:id/validations/latest?type=&section=
func (h *Handlers) LatestValidation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	filter := port.ValidationFilter{
		Type:      entity.ValidationType(c.Query("type")),
		SectionID: entity.SectionID(c.Query("section")),
	}
	record, err := h.services.Validations.Latest(c.Request.Context(), id, filter)
	if err != nil {
		h.fail(c, "latest_validation", err)
		return
	}
	if record == nil {
		h.fail(c, "latest_validation", entity.NewNotFoundError("validation record", id))
		return
	}
	respondOK(c, record)
}

// ValidationSummary handles GET /api/v1/audits/:id/validations/summary
func (h *Handlers) ValidationSummary(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	summary, err := h.services.Validations.Summarize(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "validation_summary", err)
		return
	}
	respondOK(c, summary)
}

// AppendValidation handles POST /api/v1/audits/:id/validations
func (h *Handlers) AppendValidation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req AppendValidationRequest
	if !bindJSON(c, &req) {
		return
	}

	record := &entity.ValidationRecord{
		AuditID:        id,
		DocumentID:     req.DocumentID,
		SectionID:      req.SectionID,
		Type:           req.Type,
		Result:         req.Result,
		Score:          req.Score,
		CriticalErrors: req.CriticalErrors,
		Warnings:       req.Warnings,
		Executor:       req.Executor,
		ExecutedBy:     actorFrom(c).ID,
		Notes:          req.Notes,
	}
	if _, err := h.services.Validations.Append(c.Request.Context(), record); err != nil {
		h.fail(c, "append_validation", err)
		return
	}
	respondCreated(c, record)
}

// RecordInventoryValidation handles POST /api/v1/audits/:id/validations/inventory
func (h *Handlers) RecordInventoryValidation(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	record, err := h.services.Validations.RecordInventoryResult(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.fail(c, "record_inventory_result", err)
		return
	}
	respondCreated(c, record)
}

// RecordManualOverride handles POST /api/v1/audits/:id/validations/override
func (h *Handlers) RecordManualOverride(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req SectionNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.services.Validations.RecordManualOverride(c.Request.Context(), id, req.SectionID, req.Notes, actorFrom(c))
	if err != nil {
		h.fail(c, "record_manual_override", err)
		return
	}
	respondCreated(c, record)
}

// ScoreWithIA handles POST /api/v1/audits/:id/validations/ia
func (h *Handlers) ScoreWithIA(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req SectionNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.services.Validations.ScoreWithIA(c.Request.Context(), id, req.SectionID, req.Evidence, actorFrom(c))
	if err != nil {
		h.fail(c, "score_with_ia", err)
		return
	}
	respondCreated(c, record)
}
