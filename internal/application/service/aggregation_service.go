package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
	"github.com/garyjia/site-audit/internal/domain/geo"
	"github.com/garyjia/site-audit/internal/domain/scoring"
)

// Finalize outcomes reported to metrics
const (
	finalizeCreated   = "created"
	finalizeUpdated   = "updated"
	finalizeUnchanged = "unchanged"
	finalizeRejected  = "rejected"
)

// ScoreBreakdown is the weighted total with the per-section scores it was built from
type ScoreBreakdown struct {
	Total         float64                      `json:"total"`
	SectionScores map[entity.SectionID]float64 `json:"section_scores"`
	Tier          entity.ComplianceTier        `json:"tier"`
	Conclusion    entity.Conclusion            `json:"conclusion"`
}

// AggregationService consolidates an audit into its final report
type AggregationService interface {
	ComputeTotalScore(ctx context.Context, auditID int64) (*ScoreBreakdown, error)
	ConsolidateFindings(ctx context.Context, auditID int64) (*entity.FindingSummary, error)
	SummarizeVisits(ctx context.Context, auditID int64) (*entity.VisitSummary, error)
	// BuildReport assembles the report without checking preconditions or persisting it
	BuildReport(ctx context.Context, auditID int64) (*entity.Report, error)
	Finalize(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error)
	// FinalizeLocked is Finalize for callers that already hold the audit lock
	// and run inside a transaction. changed is false when the stored report
	// already matched.
	FinalizeLocked(ctx context.Context, audit *entity.Audit) (report *entity.Report, changed bool, err error)
}

type aggregationServiceImpl struct {
	deps  Deps
	tiers scoring.Tiers
}

// NewAggregationService creates a new AggregationService
func NewAggregationService(deps Deps, tiers scoring.Tiers) AggregationService {
	return &aggregationServiceImpl{deps: deps.WithDefaults(), tiers: tiers}
}

// ComputeTotalScore weighs every resolved evaluation with a score. Sections
// without a score are left out of both sums.
func (s *aggregationServiceImpl) ComputeTotalScore(ctx context.Context, auditID int64) (*ScoreBreakdown, error) {
	evals, err := s.deps.Repos.Evaluations.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return s.breakdown(evals), nil
}

func (s *aggregationServiceImpl) breakdown(evals []*entity.SectionEvaluation) *ScoreBreakdown {
	sections := make(map[entity.SectionID]float64)
	items := make([]scoring.Weighted, 0, len(evals))
	for _, e := range evals {
		if !e.IsResolved() || e.Score == nil {
			continue
		}
		sections[e.SectionID] = *e.Score
		items = append(items, scoring.Weighted{Score: e.Score, Weight: s.deps.Registry.Weight(e.SectionID)})
	}
	total := scoring.WeightedTotal(items)
	tier, conclusion := s.tiers.Classify(total)
	return &ScoreBreakdown{Total: total, SectionScores: sections, Tier: tier, Conclusion: conclusion}
}

func (s *aggregationServiceImpl) ConsolidateFindings(ctx context.Context, auditID int64) (*entity.FindingSummary, error) {
	findings, err := s.deps.Repos.Findings.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return summarizeFindings(findings), nil
}

func summarizeFindings(findings []*entity.Finding) *entity.FindingSummary {
	summary := &entity.FindingSummary{
		Total:      len(findings),
		BySeverity: make(map[entity.Severity]int),
		ByType:     make(map[entity.FindingType]int),
		ByTracking: make(map[entity.TrackingState]int),
	}
	deductions := make([]float64, 0, len(findings))
	for _, f := range findings {
		summary.BySeverity[f.Severity]++
		summary.ByType[f.Type]++
		summary.ByTracking[f.Tracking]++
		if f.Tracking == entity.TrackingClosed {
			summary.Closed++
		} else {
			summary.Open++
		}
		deductions = append(deductions, f.DeductionPoints)
	}
	summary.TotalDeduction = scoring.Sum(deductions...)
	return summary
}

func (s *aggregationServiceImpl) SummarizeVisits(ctx context.Context, auditID int64) (*entity.VisitSummary, error) {
	visits, err := s.deps.Repos.Visits.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return summarizeVisits(visits), nil
}

func summarizeVisits(visits []*entity.Visit) *entity.VisitSummary {
	summary := &entity.VisitSummary{Total: len(visits), ByOutcome: make(map[string]int)}
	var scores []scoring.Weighted
	for _, v := range visits {
		switch v.State {
		case entity.VisitCompleted:
			summary.Completed++
			outcome := v.Verification
			if outcome == "" {
				outcome = geo.OutcomeUnverifiable
			}
			summary.ByOutcome[string(outcome)]++
			if v.Score != nil {
				scores = append(scores, scoring.Weighted{Score: v.Score, Weight: 1})
			}
		case entity.VisitCancelled:
			summary.Cancelled++
		}
	}
	if len(scores) > 0 {
		avg := scoring.WeightedTotal(scores)
		summary.AverageScore = &avg
	}
	return summary
}

type reportInputs struct {
	evals    []*entity.SectionEvaluation
	visits   []*entity.Visit
	findings []*entity.Finding
}

func (s *aggregationServiceImpl) load(ctx context.Context, auditID int64) (*reportInputs, error) {
	evals, err := s.deps.Repos.Evaluations.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	visits, err := s.deps.Repos.Visits.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	findings, err := s.deps.Repos.Findings.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return &reportInputs{evals: evals, visits: visits, findings: findings}, nil
}

func (s *aggregationServiceImpl) assemble(ctx context.Context, auditID int64, in *reportInputs) (*entity.Report, error) {
	b := s.breakdown(in.evals)
	report := &entity.Report{
		AuditID:       auditID,
		TotalScore:    b.Total,
		SectionScores: b.SectionScores,
		Tier:          b.Tier,
		Conclusion:    b.Conclusion,
		Findings:      *summarizeFindings(in.findings),
		Visits:        *summarizeVisits(in.visits),
		ApprovalState: entity.ReportDraft,
	}

	if s.deps.Repos.Inventory != nil {
		inv, err := s.deps.Repos.Inventory.GetInventoryResult(ctx, auditID)
		if err != nil {
			return nil, fmt.Errorf("get inventory result: %w", err)
		}
		if inv != nil {
			report.Inventory = &entity.InventorySummary{
				Processed:          inv.Processed,
				ConformantCount:    inv.ConformantCount,
				NonConformantCount: inv.NonConformantCount,
				Score:              scoring.Round2(inv.Score),
			}
		}
	}

	hash, err := contentHash(report)
	if err != nil {
		return nil, err
	}
	report.ContentHash = hash
	return report, nil
}

// contentHash covers only the derived content so approval bookkeeping and
// timestamps never change it
func contentHash(r *entity.Report) (string, error) {
	content := struct {
		TotalScore    float64                      `json:"total_score"`
		SectionScores map[entity.SectionID]float64 `json:"section_scores"`
		Tier          entity.ComplianceTier        `json:"tier"`
		Conclusion    entity.Conclusion            `json:"conclusion"`
		Findings      entity.FindingSummary        `json:"findings"`
		Visits        entity.VisitSummary          `json:"visits"`
		Inventory     *entity.InventorySummary     `json:"inventory"`
	}{r.TotalScore, r.SectionScores, r.Tier, r.Conclusion, r.Findings, r.Visits, r.Inventory}

	// encoding/json sorts map keys, which keeps the digest stable
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal report content: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (s *aggregationServiceImpl) BuildReport(ctx context.Context, auditID int64) (*entity.Report, error) {
	if _, err := s.deps.Repos.Audits.GetByID(ctx, auditID); err != nil {
		return nil, err
	}
	in, err := s.load(ctx, auditID)
	if err != nil {
		return nil, err
	}
	report, err := s.assemble(ctx, auditID, in)
	if err != nil {
		return nil, err
	}
	report.GeneratedAt = s.deps.Now()
	report.UpdatedAt = report.GeneratedAt
	return report, nil
}

// checkFinalizable returns a PreconditionError when an obligatory section is
// unresolved or a section flagged for a site visit has no completed visit
func (s *aggregationServiceImpl) checkFinalizable(stage entity.Stage, in *reportInputs) error {
	byID := make(map[entity.SectionID]*entity.SectionEvaluation, len(in.evals))
	for _, e := range in.evals {
		byID[e.SectionID] = e
	}

	var unresolved []string
	for _, id := range s.deps.Registry.ObligatoryIDs() {
		if e, ok := byID[id]; !ok || !e.IsResolved() {
			unresolved = append(unresolved, string(id))
		}
	}
	if len(unresolved) > 0 {
		return &entity.PreconditionError{
			Stage:   stage,
			Kind:    entity.PreconditionIncompleteEval,
			Reason:  "obligatory sections are not resolved",
			Missing: unresolved,
		}
	}

	var pending []string
	for _, e := range in.evals {
		if !e.RequiresSiteVisit {
			continue
		}
		covered := false
		for _, v := range in.visits {
			if v.State == entity.VisitCompleted && v.Covers(e.SectionID) {
				covered = true
				break
			}
		}
		if !covered {
			pending = append(pending, string(e.SectionID))
		}
	}
	if len(pending) > 0 {
		sort.Strings(pending)
		return &entity.PreconditionError{
			Stage:   stage,
			Kind:    entity.PreconditionPendingVisit,
			Reason:  "sections flagged for a site visit have no completed visit",
			Missing: pending,
		}
	}
	return nil
}

func (s *aggregationServiceImpl) FinalizeLocked(ctx context.Context, audit *entity.Audit) (*entity.Report, bool, error) {
	in, err := s.load(ctx, audit.ID)
	if err != nil {
		return nil, false, err
	}
	if err := s.checkFinalizable(audit.Stage, in); err != nil {
		s.deps.Metrics.ReportFinalized(finalizeRejected)
		return nil, false, err
	}

	fresh, err := s.assemble(ctx, audit.ID, in)
	if err != nil {
		return nil, false, err
	}

	stored, err := s.deps.Repos.Reports.GetByAuditID(ctx, audit.ID)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, false, err
	}

	now := s.deps.Now()
	switch {
	case stored == nil:
		fresh.GeneratedAt = now
		fresh.UpdatedAt = now
		if err := s.deps.Repos.Reports.Create(ctx, fresh); err != nil {
			return nil, false, err
		}
		s.deps.Metrics.ReportFinalized(finalizeCreated)
		return fresh, true, nil

	case stored.ContentHash == fresh.ContentHash:
		s.deps.Metrics.ReportFinalized(finalizeUnchanged)
		return stored, false, nil

	case stored.ApprovalState != entity.ReportDraft:
		s.deps.Metrics.ReportFinalized(finalizeRejected)
		return nil, false, &entity.TransitionError{Entity: "report", From: stored.ApprovalState.String(), Trigger: "finalize"}

	default:
		fresh.ID = stored.ID
		fresh.GeneratedAt = now
		fresh.UpdatedAt = now
		if err := s.deps.Repos.Reports.Update(ctx, fresh); err != nil {
			return nil, false, err
		}
		s.deps.Metrics.ReportFinalized(finalizeUpdated)
		return fresh, true, nil
	}
}

// Finalize is accepted during consolidation and while the final report is drafted
func (s *aggregationServiceImpl) Finalize(ctx context.Context, auditID int64, actor Actor) (*entity.Report, error) {
	var report *entity.Report
	var audit *entity.Audit
	var changed bool
	err := s.deps.mutate(ctx, auditID, func(txCtx context.Context) error {
		a, err := s.deps.loadMutableAudit(txCtx, auditID)
		if err != nil {
			return err
		}
		if err := requireStage(a, entity.StageConsolidation, entity.StageFinalReport, "finalize"); err != nil {
			return err
		}
		report, changed, err = s.FinalizeLocked(txCtx, a)
		audit = a
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.deps.Logger.Info("Report finalized", "audit_id", auditID, "total", report.TotalScore, "tier", report.Tier, "actor", actor.ID)
		s.deps.publish(ctx, ReportFinalizedEvent(audit, report).WithActor(actor.ID))
	}
	return report, nil
}

// ReportFinalizedEvent builds the report.finalized notification
func ReportFinalizedEvent(audit *entity.Audit, report *entity.Report) *event.Event {
	return event.NewEvent(event.TypeReportFinalized, audit.ID, audit.Code, map[string]any{
		"report_id":   report.ID,
		"total_score": report.TotalScore,
		"tier":        string(report.Tier),
		"conclusion":  string(report.Conclusion),
	})
}

var _ AggregationService = (*aggregationServiceImpl)(nil)
