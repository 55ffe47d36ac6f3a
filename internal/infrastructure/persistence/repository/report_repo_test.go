package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/domain/entity"
)

var reportCols = []string{
	"id", "audit_id", "total_score", "section_scores", "tier", "conclusion",
	"findings_summary", "visits_summary", "inventory", "content_hash", "approval_state",
	"reviewed_by", "approved_by", "approved_at", "delivered_at", "provider_response",
	"provider_responded_at", "generated_at", "updated_at",
}

func TestReportRepository_GetByAuditID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepository(db, nop())

	mock.ExpectQuery(`FROM reports WHERE audit_id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(reportCols).AddRow(
			6, 1, 84.5, `{"red":92,"energia":77}`, "satisfactorio", "cumple_con_observaciones",
			`{"total":2,"open":1,"closed":1,"total_deduction":3.5}`,
			`{"total":1,"completed":1,"cancelled":0,"by_outcome":{"verificada":1}}`,
			`{"processed":true,"conformant_count":40,"non_conformant_count":2,"score":95}`,
			"abc123", "aprobado", "rev-1", "dir-1", testNow, nil, "", nil, testNow, testNow,
		))

	rep, err := repo.GetByAuditID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, entity.TierSatisfactory, rep.Tier)
	assert.Equal(t, entity.ReportApproved, rep.ApprovalState)
	assert.Equal(t, map[entity.SectionID]float64{"red": 92, "energia": 77}, rep.SectionScores)
	assert.Equal(t, 2, rep.Findings.Total)
	assert.InDelta(t, 3.5, rep.Findings.TotalDeduction, 0.001)
	assert.Equal(t, 1, rep.Visits.ByOutcome["verificada"])
	require.NotNil(t, rep.Inventory)
	assert.Equal(t, 2, rep.Inventory.NonConformantCount)
	require.NotNil(t, rep.ApprovedAt)
	assert.Nil(t, rep.DeliveredAt)
}

func TestReportRepository_CreateConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepository(db, nop())

	mock.ExpectExec("INSERT INTO reports").
		WillReturnError(errors.New("UNIQUE constraint failed: reports.audit_id"))

	err := repo.Create(context.Background(), &entity.Report{AuditID: 1})
	assert.ErrorIs(t, err, entity.ErrConflict)
}

func TestReportRepository_CreateEncodesSummaries(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepository(db, nop())

	mock.ExpectExec("INSERT INTO reports").
		WithArgs(int64(1), 92.0, `{"red":92}`, "excelente", "cumple_totalmente",
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, "h1", "borrador", "", "",
			nil, nil, "", nil, testNow, testNow).
		WillReturnResult(sqlmock.NewResult(3, 1))

	rep := &entity.Report{
		AuditID:       1,
		TotalScore:    92,
		SectionScores: map[entity.SectionID]float64{"red": 92},
		Tier:          entity.TierExcellent,
		Conclusion:    entity.ConclusionFull,
		ContentHash:   "h1",
		ApprovalState: entity.ReportDraft,
		GeneratedAt:   testNow,
		UpdatedAt:     testNow,
	}
	require.NoError(t, repo.Create(context.Background(), rep))
	assert.Equal(t, int64(3), rep.ID)
}

func TestReportRepository_UpdateMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReportRepository(db, nop())

	mock.ExpectExec(`UPDATE reports`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &entity.Report{AuditID: 9})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
