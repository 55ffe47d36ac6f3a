// Package export renders consolidated audit reports as Excel workbooks.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/storage"
)

const (
	SheetSummary  = "Resumen"
	SheetSections = "Secciones"
	SheetFindings = "Hallazgos"
	SheetVisits   = "Visitas"
)

// XLSXExporter writes one workbook per report into the audit's export folder
type XLSXExporter struct {
	folders *storage.ExportFolders
	logger  *zap.Logger
	now     func() time.Time
}

// NewXLSXExporter creates an exporter writing under folders
func NewXLSXExporter(folders *storage.ExportFolders, logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{folders: folders, logger: logger, now: time.Now}
}

// Export writes informe_<code>_<date>.xlsx and returns its path
func (x *XLSXExporter) Export(ctx context.Context, bundle *port.ReportBundle) (string, error) {
	if bundle == nil || bundle.Audit == nil || bundle.Report == nil {
		return "", fmt.Errorf("%w: export needs an audit and its report", entity.ErrValidation)
	}
	audit := bundle.Audit

	dir, err := x.folders.Ensure(ctx, audit.Code)
	if err != nil {
		return "", err
	}
	outputPath := filepath.Join(dir, fmt.Sprintf("informe_%s_%s.xlsx",
		storage.SanitizeName(audit.Code), x.now().UTC().Format("20060102")))

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return "", fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetSections, SheetFindings, SheetVisits} {
		if _, err := f.NewSheet(name); err != nil {
			return "", fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	x.writeSummary(f, bundle)
	x.writeSections(f, bundle)
	x.writeFindings(f, bundle.Findings)
	x.writeVisits(f, bundle.Visits)

	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save Excel file: %w", err)
	}

	x.logger.Info("Report exported",
		zap.Int64("audit_id", audit.ID),
		zap.String("output_path", outputPath))
	return outputPath, nil
}

func (x *XLSXExporter) writeSummary(f *excelize.File, b *port.ReportBundle) {
	r := b.Report
	rows := [][]interface{}{
		{"Auditoría", b.Audit.Code},
		{"Proveedor", b.Audit.ProviderID},
		{"Auditor principal", b.Audit.PrimaryAuditorID},
		{"Fecha programada", b.Audit.ScheduledDate.Format("2006-01-02")},
		{"Puntaje total", score(r.TotalScore)},
		{"Nivel", string(r.Tier)},
		{"Conclusión", string(r.Conclusion)},
		{"Estado del informe", string(r.ApprovalState)},
		{"Hallazgos abiertos", r.Findings.Open},
		{"Hallazgos cerrados", r.Findings.Closed},
		{"Deducción total", score(r.Findings.TotalDeduction)},
		{"Visitas completadas", fmt.Sprintf("%d/%d", r.Visits.Completed, r.Visits.Total)},
		{"Hash de contenido", r.ContentHash},
		{"Generado", r.GeneratedAt.UTC().Format(time.RFC3339)},
	}
	if r.Inventory != nil {
		rows = append(rows,
			[]interface{}{"Inventario conforme", r.Inventory.ConformantCount},
			[]interface{}{"Inventario no conforme", r.Inventory.NonConformantCount},
			[]interface{}{"Puntaje inventario", score(r.Inventory.Score)},
		)
	}
	for i, row := range rows {
		x.setRow(f, SheetSummary, i+1, row)
	}
}

func (x *XLSXExporter) writeSections(f *excelize.File, b *port.ReportBundle) {
	x.setRow(f, SheetSections, 1, []interface{}{"Sección", "Nombre", "Obligatoria", "Estado", "Resultado", "Puntaje", "Auditor", "Observaciones"})

	evals := make(map[entity.SectionID]*entity.SectionEvaluation, len(b.Evaluations))
	for _, e := range b.Evaluations {
		evals[e.SectionID] = e
	}
	for i, def := range b.Sections {
		row := []interface{}{string(def.ID), def.Name, yesNo(def.Obligatory)}
		if e, ok := evals[def.ID]; ok {
			row = append(row, string(e.State), string(e.Result), optionalScore(e.Score), e.AssignedAuditorID, e.Observations)
		} else {
			row = append(row, "", "", "", "", "")
		}
		if s, ok := b.Report.SectionScores[def.ID]; ok {
			row[5] = score(s)
		}
		x.setRow(f, SheetSections, i+2, row)
	}
}

func (x *XLSXExporter) writeFindings(f *excelize.File, findings []*entity.Finding) {
	x.setRow(f, SheetFindings, 1, []interface{}{"Código", "Tipo", "Severidad", "Sección", "Título", "Seguimiento", "Plazo", "Fecha límite", "Deducción"})

	sorted := append([]*entity.Finding(nil), findings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
	for i, fd := range sorted {
		deadline := ""
		if fd.RemediationDeadline != nil {
			deadline = fd.RemediationDeadline.Format("2006-01-02")
		}
		x.setRow(f, SheetFindings, i+2, []interface{}{
			fd.Code, string(fd.Type), string(fd.Severity), string(fd.SectionID), fd.Title,
			string(fd.Tracking), string(fd.Timeframe), deadline, score(fd.DeductionPoints),
		})
	}
}

func (x *XLSXExporter) writeVisits(f *excelize.File, visits []*entity.Visit) {
	x.setRow(f, SheetVisits, 1, []interface{}{"Sitio", "Programada", "Estado", "Verificación GPS", "Distancia (m)", "Puntaje"})
	for i, v := range visits {
		x.setRow(f, SheetVisits, i+2, []interface{}{
			v.SiteName, v.ScheduledAt.Format("2006-01-02 15:04"), string(v.State),
			string(v.Verification), optionalScore(v.DistanceMeters), optionalScore(v.Score),
		})
	}
}

// setRow writes values starting at column A; failures are logged, not fatal
func (x *XLSXExporter) setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err == nil {
		err = f.SetSheetRow(sheet, cell, &values)
	}
	if err != nil {
		x.logger.Warn("Failed to set row",
			zap.String("sheet", sheet),
			zap.Int("row", row),
			zap.Error(err))
	}
}

// score renders a value with two decimals
func score(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func optionalScore(v *float64) string {
	if v == nil {
		return ""
	}
	return score(*v)
}

func yesNo(b bool) string {
	if b {
		return "Sí"
	}
	return "No"
}

var _ port.ReportExporter = (*XLSXExporter)(nil)
