package service

import (
	"context"
	"fmt"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/scoring"
	"github.com/garyjia/site-audit/internal/domain/section"
)

// inventoryFailScore is the conformance score under which an ingested
// inventory counts as failed
const inventoryFailScore = 50

// ValidationService is the append-only validation log. Appends never take
// the audit lock.
type ValidationService interface {
	Append(ctx context.Context, record *entity.ValidationRecord) (int64, error)
	Latest(ctx context.Context, auditID int64, filter port.ValidationFilter) (*entity.ValidationRecord, error)
	List(ctx context.Context, auditID int64) ([]*entity.ValidationRecord, error)
	Summarize(ctx context.Context, auditID int64) (*entity.ValidationSummary, error)
	// RecordInventoryResult appends a synthetic inventory_conformance record
	// from the ingestion result
	RecordInventoryResult(ctx context.Context, auditID int64, actor Actor) (*entity.ValidationRecord, error)
	// RecordManualOverride clears an earlier automatic failure for a section
	RecordManualOverride(ctx context.Context, auditID int64, sectionID entity.SectionID, notes string, actor Actor) (*entity.ValidationRecord, error)
	// ScoreWithIA asks the IA scorer to rate the section evidence and logs the verdict
	ScoreWithIA(ctx context.Context, auditID int64, sectionID entity.SectionID, evidence string, actor Actor) (*entity.ValidationRecord, error)
}

type validationServiceImpl struct {
	deps   Deps
	scorer port.SectionScorer
}

// NewValidationService creates a new ValidationService. scorer may be nil
// when IA scoring is disabled.
func NewValidationService(deps Deps, scorer port.SectionScorer) ValidationService {
	return &validationServiceImpl{deps: deps.WithDefaults(), scorer: scorer}
}

// Append validates and inserts a record. Storage failures surface as ErrStorage.
func (s *validationServiceImpl) Append(ctx context.Context, record *entity.ValidationRecord) (int64, error) {
	if record == nil {
		return 0, entity.ValidationErrorf("record is required")
	}
	if !record.Type.IsValid() {
		return 0, entity.ValidationErrorf("unknown validation type %q", record.Type)
	}
	if !record.Result.IsValid() {
		return 0, entity.ValidationErrorf("unknown validation result %q", record.Result)
	}
	if !record.Executor.IsValid() {
		return 0, entity.ValidationErrorf("unknown executor %q", record.Executor)
	}
	if record.SectionID != "" && !s.deps.Registry.Has(record.SectionID) {
		return 0, entity.NewNotFoundError("section", record.SectionID)
	}
	if err := validateScore(record.Score); err != nil {
		return 0, err
	}

	audit, err := s.deps.Repos.Audits.GetByID(ctx, record.AuditID)
	if err != nil {
		return 0, err
	}

	record.ID = 0
	record.CreatedAt = s.deps.Now()
	id, err := s.deps.Repos.Validations.Append(ctx, record)
	if err != nil {
		s.deps.Logger.Error("Failed to append validation record", "audit_id", record.AuditID, "type", record.Type, "error", err)
		return 0, err
	}
	record.ID = id

	s.deps.Metrics.ValidationRecorded(record.Type, record.Result)
	payload := map[string]any{
		"record_id": id,
		"type":      string(record.Type),
		"result":    string(record.Result),
	}
	if record.SectionID != "" {
		payload["section_id"] = string(record.SectionID)
	}
	if record.Score != nil {
		payload["score"] = *record.Score
	}
	s.deps.publish(ctx, event.NewEvent(event.TypeValidationRecorded, audit.ID, audit.Code, payload).WithActor(record.ExecutedBy))
	return id, nil
}

func (s *validationServiceImpl) Latest(ctx context.Context, auditID int64, filter port.ValidationFilter) (*entity.ValidationRecord, error) {
	return s.deps.Repos.Validations.Latest(ctx, auditID, filter)
}

func (s *validationServiceImpl) List(ctx context.Context, auditID int64) ([]*entity.ValidationRecord, error) {
	if _, err := s.deps.Repos.Audits.GetByID(ctx, auditID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Validations.ListByAudit(ctx, auditID)
}

// Summarize averages only records that carry a score
func (s *validationServiceImpl) Summarize(ctx context.Context, auditID int64) (*entity.ValidationSummary, error) {
	records, err := s.List(ctx, auditID)
	if err != nil {
		return nil, err
	}

	summary := &entity.ValidationSummary{Total: len(records)}
	var items []scoring.Weighted
	for _, r := range records {
		switch r.Result {
		case entity.ValidationSuccess:
			summary.Successful++
		case entity.ValidationWithWarnings:
			summary.WithWarnings++
		case entity.ValidationFailed:
			summary.Failed++
		case entity.ValidationPending:
			summary.Pending++
		}
		if r.Score != nil {
			items = append(items, scoring.Weighted{Score: r.Score, Weight: 1})
		}
	}
	summary.AverageScore = scoring.WeightedTotal(items)
	return summary, nil
}

func (s *validationServiceImpl) RecordInventoryResult(ctx context.Context, auditID int64, actor Actor) (*entity.ValidationRecord, error) {
	res, err := s.deps.Repos.Inventory.GetInventoryResult(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("get inventory result: %w", err)
	}
	if res == nil || !res.Processed {
		return nil, entity.ValidationErrorf("no processed inventory for audit %d", auditID)
	}

	score := scoring.Clamp(res.Score)
	record := &entity.ValidationRecord{
		AuditID:    auditID,
		SectionID:  section.EquipmentInventory,
		Type:       entity.ValidationInventoryConformance,
		Score:      &score,
		Executor:   entity.ExecutorETL,
		ExecutedBy: actor.ID,
		Notes:      fmt.Sprintf("%d conformes, %d no conformes", res.ConformantCount, res.NonConformantCount),
	}
	switch {
	case score < inventoryFailScore:
		record.Result = entity.ValidationFailed
		record.CriticalErrors = []string{fmt.Sprintf("conformidad de inventario %.2f por debajo de %d", score, inventoryFailScore)}
	case res.NonConformantCount > 0:
		record.Result = entity.ValidationWithWarnings
		record.Warnings = []string{fmt.Sprintf("%d equipos no conformes", res.NonConformantCount)}
	default:
		record.Result = entity.ValidationSuccess
	}

	if _, err := s.Append(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *validationServiceImpl) RecordManualOverride(ctx context.Context, auditID int64, sectionID entity.SectionID, notes string, actor Actor) (*entity.ValidationRecord, error) {
	if sectionID == "" {
		return nil, entity.ValidationErrorf("section id is required")
	}
	if notes == "" {
		return nil, entity.ValidationErrorf("override notes are required")
	}
	record := &entity.ValidationRecord{
		AuditID:    auditID,
		SectionID:  sectionID,
		Type:       entity.ValidationManualOverride,
		Result:     entity.ValidationSuccess,
		Executor:   entity.ExecutorUser,
		ExecutedBy: actor.ID,
		Notes:      notes,
	}
	if _, err := s.Append(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *validationServiceImpl) ScoreWithIA(ctx context.Context, auditID int64, sectionID entity.SectionID, evidence string, actor Actor) (*entity.ValidationRecord, error) {
	if s.scorer == nil {
		return nil, entity.ValidationErrorf("IA scoring is not configured")
	}
	def, err := s.deps.Registry.Get(sectionID)
	if err != nil {
		return nil, err
	}
	audit, err := s.deps.Repos.Audits.GetByID(ctx, auditID)
	if err != nil {
		return nil, err
	}

	verdict, err := s.scorer.ScoreSection(ctx, &port.SectionScoreRequest{
		AuditCode:   audit.Code,
		SectionID:   def.ID,
		SectionName: def.Name,
		Evidence:    evidence,
	})
	if err != nil {
		s.deps.Logger.Error("IA scoring failed", "audit_id", auditID, "section", sectionID, "error", err)
		return nil, fmt.Errorf("score section with IA: %w", err)
	}

	score := scoring.Clamp(verdict.Score)
	record := &entity.ValidationRecord{
		AuditID:        auditID,
		SectionID:      sectionID,
		Type:           entity.ValidationScoring,
		Result:         verdict.Result,
		Score:          &score,
		CriticalErrors: verdict.CriticalErrors,
		Warnings:       verdict.Warnings,
		Executor:       entity.ExecutorIA,
		ExecutedBy:     actor.ID,
		Notes:          verdict.Reasoning,
	}
	if !record.Result.IsValid() {
		record.Result = entity.ValidationPending
	}
	if _, err := s.Append(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// LatestAutomaticScore returns the score of the newest scoring or inventory
// conformance record of a section, or nil when there is none
func LatestAutomaticScore(ctx context.Context, repo port.ValidationRecordRepository, auditID int64, sectionID entity.SectionID) (*float64, error) {
	records, err := repo.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.SectionID != sectionID || r.Score == nil {
			continue
		}
		if r.Type == entity.ValidationScoring || r.Type == entity.ValidationInventoryConformance {
			v := *r.Score
			return &v, nil
		}
	}
	return nil, nil
}

// UnresolvedFailures lists obligatory sections whose latest automatic failure
// has not been followed by a non-failing manual record
func UnresolvedFailures(records []*entity.ValidationRecord, obligatory map[entity.SectionID]struct{}) []entity.SectionID {
	failing := make(map[entity.SectionID]bool)
	var order []entity.SectionID
	for _, r := range records {
		if r.SectionID == "" {
			continue
		}
		if _, ok := obligatory[r.SectionID]; !ok {
			continue
		}
		switch {
		case r.Executor.IsAutomatic() && r.Result == entity.ValidationFailed:
			if _, seen := failing[r.SectionID]; !seen {
				order = append(order, r.SectionID)
			}
			failing[r.SectionID] = true
		case !r.Executor.IsAutomatic() && r.Result != entity.ValidationFailed:
			if _, seen := failing[r.SectionID]; seen {
				failing[r.SectionID] = false
			}
		}
	}

	var out []entity.SectionID
	for _, id := range order {
		if failing[id] {
			out = append(out, id)
		}
	}
	return out
}

var _ ValidationService = (*validationServiceImpl)(nil)
