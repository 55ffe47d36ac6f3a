package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/storage"
)

var exportNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func sampleBundle() *port.ReportBundle {
	deadline := exportNow.AddDate(0, 0, 30)
	return &port.ReportBundle{
		Audit: &entity.Audit{
			ID: 7, Code: "AUD-2026-X7K2", ProviderID: "prov-9", PrimaryAuditorID: "aud-1",
			ScheduledDate: exportNow.AddDate(0, -1, 0),
		},
		Report: &entity.Report{
			AuditID:       7,
			TotalScore:    86.456,
			SectionScores: map[entity.SectionID]float64{"red": 90, "energia": 80},
			Tier:          entity.TierSatisfactory,
			Conclusion:    entity.ConclusionObservations,
			Findings:      entity.FindingSummary{Total: 2, Open: 1, Closed: 1, TotalDeduction: 3.5},
			Visits:        entity.VisitSummary{Total: 1, Completed: 1},
			Inventory:     &entity.InventorySummary{Processed: true, ConformantCount: 40, NonConformantCount: 2, Score: 95},
			ApprovalState: entity.ReportApproved,
			GeneratedAt:   exportNow,
		},
		Sections: []entity.SectionDefinition{
			{ID: "red", Name: "Red", Obligatory: true},
			{ID: "energia", Name: "Energía"},
			{ID: "sin_eval", Name: "Sin evaluación"},
		},
		Evaluations: []*entity.SectionEvaluation{
			{SectionID: "red", State: entity.EvaluationCompleted, Result: entity.ResultCumple, Score: fptr(90), AssignedAuditorID: "aud-1"},
			{SectionID: "energia", State: entity.EvaluationCompleted, Result: entity.ResultCumpleConObservaciones, Score: fptr(80)},
		},
		Visits: []*entity.Visit{
			{SiteName: "Nodo Norte", ScheduledAt: exportNow, State: entity.VisitCompleted, DistanceMeters: fptr(42.5), Score: fptr(88)},
		},
		Findings: []*entity.Finding{
			{Code: "HAL-X7K2-002", Type: entity.FindingObservation, Severity: entity.SeverityLow, Title: "Etiquetado", Tracking: entity.TrackingClosed},
			{Code: "HAL-X7K2-001", Type: entity.FindingNonCompliance, Severity: entity.SeverityHigh, SectionID: "red",
				Title: "Cableado expuesto", Tracking: entity.TrackingOpen, RemediationDeadline: &deadline, DeductionPoints: 3.5},
		},
	}
}

func TestXLSXExporter_Export(t *testing.T) {
	base := t.TempDir()
	x := NewXLSXExporter(storage.NewExportFolders(base, zap.NewNop()), zap.NewNop())
	x.now = func() time.Time { return exportNow }

	path, err := x.Export(context.Background(), sampleBundle())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "AUD-2026-X7K2", "informe_AUD-2026-X7K2_20260302.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetSections, SheetFindings, SheetVisits}, f.GetSheetList())

	cell := func(sheet, axis string) string {
		v, err := f.GetCellValue(sheet, axis)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "AUD-2026-X7K2", cell(SheetSummary, "B1"))
	assert.Equal(t, "86.46", cell(SheetSummary, "B5"))
	assert.Equal(t, "satisfactorio", cell(SheetSummary, "B6"))
	assert.Equal(t, "Inventario no conforme", cell(SheetSummary, "A16"))

	assert.Equal(t, "red", cell(SheetSections, "A2"))
	assert.Equal(t, "Sí", cell(SheetSections, "C2"))
	assert.Equal(t, "90.00", cell(SheetSections, "F2"))
	assert.Equal(t, "cumple_con_observaciones", cell(SheetSections, "E3"))
	assert.Equal(t, "", cell(SheetSections, "D4"))

	// findings are ordered by code
	assert.Equal(t, "HAL-X7K2-001", cell(SheetFindings, "A2"))
	assert.Equal(t, "2026-04-01", cell(SheetFindings, "H2"))
	assert.Equal(t, "3.50", cell(SheetFindings, "I2"))
	assert.Equal(t, "HAL-X7K2-002", cell(SheetFindings, "A3"))

	assert.Equal(t, "Nodo Norte", cell(SheetVisits, "A2"))
	assert.Equal(t, "42.50", cell(SheetVisits, "E2"))
}

func TestXLSXExporter_RejectsIncompleteBundle(t *testing.T) {
	x := NewXLSXExporter(storage.NewExportFolders(t.TempDir(), zap.NewNop()), zap.NewNop())

	_, err := x.Export(context.Background(), &port.ReportBundle{Audit: &entity.Audit{Code: "AUD-1"}})
	assert.ErrorIs(t, err, entity.ErrValidation)
	_, err = x.Export(context.Background(), nil)
	assert.ErrorIs(t, err, entity.ErrValidation)
}
