package service

import (
	"context"
	"fmt"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// RegisterDocumentInput describes one uploaded evidence file. Either Content
// is stored through the evidence storage or FileID references a file kept
// elsewhere.
type RegisterDocumentInput struct {
	AuditID   int64            `json:"audit_id" validate:"required"`
	SectionID entity.SectionID `json:"section_id" validate:"required"`
	FileName  string           `json:"file_name" validate:"required,max=255"`
	FileID    string           `json:"file_id,omitempty"`
	Content   []byte           `json:"-"`
}

// InventoryInput is the ETL's report for the equipment inventory
type InventoryInput struct {
	AuditID            int64   `json:"audit_id" validate:"required"`
	ConformantCount    int     `json:"conformant_count" validate:"gte=0"`
	NonConformantCount int     `json:"non_conformant_count" validate:"gte=0"`
	Score              float64 `json:"score" validate:"gte=0,lte=100"`
}

// IntakeService accepts evidence while an audit is still being assessed
type IntakeService interface {
	RegisterDocument(ctx context.Context, in RegisterDocumentInput, actor Actor) (*port.DocumentMeta, error)
	ReportInventory(ctx context.Context, in InventoryInput, actor Actor) (*port.InventoryResult, error)
}

type intakeServiceImpl struct {
	deps    Deps
	storage port.EvidenceStorage
}

// NewIntakeService creates the intake service. storage may be nil, in which
// case only external file references are accepted.
func NewIntakeService(deps Deps, storage port.EvidenceStorage) IntakeService {
	return &intakeServiceImpl{deps: deps.WithDefaults(), storage: storage}
}

// intakeAudit loads the audit and checks evidence is still accepted
func (s *intakeServiceImpl) intakeAudit(ctx context.Context, auditID int64, op string) (*entity.Audit, error) {
	audit, err := s.deps.loadMutableAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if err := requireStage(audit, entity.StageNotification, entity.StageConsolidation, op); err != nil {
		return nil, err
	}
	return audit, nil
}

func (s *intakeServiceImpl) RegisterDocument(ctx context.Context, in RegisterDocumentInput, actor Actor) (*port.DocumentMeta, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if len(in.Content) == 0 && in.FileID == "" {
		return nil, entity.ValidationErrorf("document needs content or a file id")
	}
	if _, err := s.deps.Registry.Get(in.SectionID); err != nil {
		return nil, err
	}
	audit, err := s.intakeAudit(ctx, in.AuditID, "register_document")
	if err != nil {
		return nil, err
	}

	fileID := in.FileID
	if len(in.Content) > 0 {
		if s.storage == nil {
			return nil, entity.ValidationErrorf("evidence storage is not configured")
		}
		fileID, err = s.storage.Save(ctx, audit.Code, in.SectionID, in.FileName, in.Content)
		if err != nil {
			s.deps.Logger.Error("Failed to store evidence", "audit_id", in.AuditID, "section", in.SectionID, "error", err)
			return nil, fmt.Errorf("store evidence: %w", err)
		}
	}

	meta := &port.DocumentMeta{
		AuditID:    in.AuditID,
		SectionID:  in.SectionID,
		FileID:     fileID,
		FileName:   in.FileName,
		UploadedAt: s.deps.Now(),
	}
	err = s.deps.mutate(ctx, in.AuditID, func(txCtx context.Context) error {
		// re-check under the lock; the audit may have been cancelled meanwhile
		if _, err := s.intakeAudit(txCtx, in.AuditID, "register_document"); err != nil {
			return err
		}
		return s.deps.Repos.Documents.Register(txCtx, meta)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("Document registered",
		"audit_id", in.AuditID, "section", in.SectionID, "file_id", fileID, "actor", actor.ID)
	return meta, nil
}

func (s *intakeServiceImpl) ReportInventory(ctx context.Context, in InventoryInput, actor Actor) (*port.InventoryResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	result := &port.InventoryResult{
		AuditID:            in.AuditID,
		Processed:          true,
		ConformantCount:    in.ConformantCount,
		NonConformantCount: in.NonConformantCount,
		Score:              in.Score,
		ProcessedAt:        s.deps.Now(),
	}
	err := s.deps.mutate(ctx, in.AuditID, func(txCtx context.Context) error {
		if _, err := s.intakeAudit(txCtx, in.AuditID, "report_inventory"); err != nil {
			return err
		}
		return s.deps.Repos.Inventory.Save(txCtx, result)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("Inventory result stored",
		"audit_id", in.AuditID, "score", in.Score, "non_conformant", in.NonConformantCount, "actor", actor.ID)
	return result, nil
}
