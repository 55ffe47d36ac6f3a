package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/domain/entity"
)

var findingCols = []string{
	"id", "audit_id", "visit_id", "code", "type", "severity", "section_id", "title",
	"description", "timeframe", "remediation_deadline", "tracking", "deduction_points",
	"provider_acknowledged", "provider_response", "acknowledged_at", "correction_evidence",
	"verification_result", "verification_notes", "verified_by", "verified_at", "closed_at",
	"defer_reason", "version", "created_at", "updated_at",
}

func TestFindingRepository_CreateDuplicateCode(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFindingRepository(db, nop())

	mock.ExpectExec("INSERT INTO findings").
		WillReturnError(errors.New("UNIQUE constraint failed: findings.code"))

	err := repo.Create(context.Background(), &entity.Finding{Code: "HAL-AB12CD-001"})
	assert.ErrorIs(t, err, entity.ErrConflict)
}

func TestFindingRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFindingRepository(db, nop())

	deadline := testNow.Add(24 * time.Hour)
	mock.ExpectQuery(`FROM findings WHERE id = \?`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(findingCols).AddRow(
			4, 1, 2, "HAL-AB12CD-001", "no_conformidad", "critica", "energia", "UPS sin carga",
			"", "inmediato", deadline, "en_seguimiento", 5.0,
			true, "en proceso", testNow, "",
			"", "", "", nil, nil,
			"", int64(2), testNow, testNow,
		))

	f, err := repo.GetByID(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, entity.FindingNonCompliance, f.Type)
	assert.Equal(t, entity.SeverityCritical, f.Severity)
	assert.Equal(t, entity.TrackingFollowUp, f.Tracking)
	require.NotNil(t, f.RemediationDeadline)
	assert.True(t, f.RemediationDeadline.Equal(deadline))
	assert.True(t, f.ProviderAcknowledged)
	assert.Nil(t, f.ClosedAt)
}

func TestFindingRepository_CountByAudit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFindingRepository(db, nop())

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM findings WHERE audit_id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountByAudit(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFindingRepository_Update(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFindingRepository(db, nop())

	mock.ExpectExec(`UPDATE findings`).WillReturnResult(sqlmock.NewResult(0, 1))

	f := &entity.Finding{ID: 4, Code: "HAL-AB12CD-001", Tracking: entity.TrackingClosed, ClosedAt: &testNow, Version: 6}
	require.NoError(t, repo.Update(context.Background(), f))
	assert.Equal(t, int64(7), f.Version)
}
