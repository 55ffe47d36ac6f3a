package service

import (
	"context"
	"fmt"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/section"
)

// Evidence sources reported per section
const (
	EvidenceDocument  = "documento"
	EvidenceInventory = "inventario"
)

// SectionCompletion is the evidence state of one section
type SectionCompletion struct {
	SectionID  entity.SectionID `json:"section_id"`
	Obligatory bool             `json:"obligatory"`
	Complete   bool             `json:"complete"`
	Source     string           `json:"source,omitempty"`
}

// CompletionSummary is the evidence state of a whole audit
type CompletionSummary struct {
	CompletedCount    int                 `json:"completed_count"`
	TotalCount        int                 `json:"total_count"`
	MissingObligatory []entity.SectionID  `json:"missing_obligatory"`
	Sections          []SectionCompletion `json:"sections"`
}

// CompletenessGate decides which sections have the evidence they need
type CompletenessGate interface {
	IsSectionComplete(ctx context.Context, auditID int64, sectionID entity.SectionID) (bool, error)
	ComputeCompletion(ctx context.Context, auditID int64) (*CompletionSummary, error)
	// RequireObligatoryEvidence returns a PreconditionError of kind
	// incomplete_evidence listing every obligatory section without evidence
	RequireObligatoryEvidence(ctx context.Context, auditID int64) error
}

type completenessGate struct {
	documents port.DocumentStore
	inventory port.InventoryIngestion
	registry  *section.Registry
}

// NewCompletenessGate creates a gate over the document and inventory collaborators
func NewCompletenessGate(documents port.DocumentStore, inventory port.InventoryIngestion, registry *section.Registry) CompletenessGate {
	if registry == nil {
		registry = section.Default()
	}
	return &completenessGate{documents: documents, inventory: inventory, registry: registry}
}

func (g *completenessGate) evidenceFor(ctx context.Context, auditID int64, def entity.SectionDefinition) (string, error) {
	has, err := g.documents.HasDocument(ctx, auditID, def.ID)
	if err != nil {
		return "", fmt.Errorf("check document for %s: %w", def.ID, err)
	}
	if has {
		return EvidenceDocument, nil
	}

	if def.IsInventory() && g.inventory != nil {
		res, err := g.inventory.GetInventoryResult(ctx, auditID)
		if err != nil {
			return "", fmt.Errorf("check inventory: %w", err)
		}
		if res != nil && res.Processed {
			return EvidenceInventory, nil
		}
	}
	return "", nil
}

// IsSectionComplete reports whether a document exists for the section or,
// for the equipment inventory, a processed ingestion result exists
func (g *completenessGate) IsSectionComplete(ctx context.Context, auditID int64, sectionID entity.SectionID) (bool, error) {
	def, err := g.registry.Get(sectionID)
	if err != nil {
		return false, err
	}
	source, err := g.evidenceFor(ctx, auditID, def)
	if err != nil {
		return false, err
	}
	return source != "", nil
}

// ComputeCompletion walks every registered section in catalog order
func (g *completenessGate) ComputeCompletion(ctx context.Context, auditID int64) (*CompletionSummary, error) {
	defs := g.registry.ListAll()
	summary := &CompletionSummary{
		TotalCount:        len(defs),
		MissingObligatory: []entity.SectionID{},
		Sections:          make([]SectionCompletion, 0, len(defs)),
	}

	for _, def := range defs {
		source, err := g.evidenceFor(ctx, auditID, def)
		if err != nil {
			return nil, err
		}
		complete := source != ""
		if complete {
			summary.CompletedCount++
		} else if def.Obligatory {
			summary.MissingObligatory = append(summary.MissingObligatory, def.ID)
		}
		summary.Sections = append(summary.Sections, SectionCompletion{
			SectionID:  def.ID,
			Obligatory: def.Obligatory,
			Complete:   complete,
			Source:     source,
		})
	}
	return summary, nil
}

// RequireObligatoryEvidence is the stage 2→3 gate
func (g *completenessGate) RequireObligatoryEvidence(ctx context.Context, auditID int64) error {
	summary, err := g.ComputeCompletion(ctx, auditID)
	if err != nil {
		return err
	}
	if len(summary.MissingObligatory) == 0 {
		return nil
	}

	missing := make([]string, len(summary.MissingObligatory))
	for i, id := range summary.MissingObligatory {
		missing[i] = string(id)
	}
	return &entity.PreconditionError{
		Stage:   entity.StageDocumentIntake,
		Kind:    entity.PreconditionIncompleteEvidence,
		Reason:  "obligatory sections without evidence",
		Missing: missing,
	}
}

var _ CompletenessGate = (*completenessGate)(nil)
