package memory

import (
	"maps"
	"slices"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

func cloneAudit(a *entity.Audit) *entity.Audit {
	c := *a
	c.StageConfig = maps.Clone(a.StageConfig)
	return &c
}

func cloneHistory(h *entity.StageHistory) *entity.StageHistory {
	c := *h
	return &c
}

func cloneEvaluation(e *entity.SectionEvaluation) *entity.SectionEvaluation {
	c := *e
	return &c
}

func cloneValidation(v *entity.ValidationRecord) *entity.ValidationRecord {
	c := *v
	c.CriticalErrors = slices.Clone(v.CriticalErrors)
	c.Warnings = slices.Clone(v.Warnings)
	return &c
}

func cloneVisit(v *entity.Visit) *entity.Visit {
	c := *v
	c.Sections = slices.Clone(v.Sections)
	return &c
}

func cloneFinding(f *entity.Finding) *entity.Finding {
	c := *f
	return &c
}

func cloneReport(r *entity.Report) *entity.Report {
	c := *r
	c.SectionScores = maps.Clone(r.SectionScores)
	c.Findings.BySeverity = maps.Clone(r.Findings.BySeverity)
	c.Findings.ByType = maps.Clone(r.Findings.ByType)
	c.Findings.ByTracking = maps.Clone(r.Findings.ByTracking)
	c.Visits.ByOutcome = maps.Clone(r.Visits.ByOutcome)
	if r.Inventory != nil {
		inv := *r.Inventory
		c.Inventory = &inv
	}
	return &c
}

func cloneDocument(d *port.DocumentMeta) *port.DocumentMeta {
	c := *d
	return &c
}

func cloneInventory(r *port.InventoryResult) *port.InventoryResult {
	c := *r
	return &c
}
