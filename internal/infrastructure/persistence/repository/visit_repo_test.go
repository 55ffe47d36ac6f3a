package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/geo"
)

var visitCols = []string{
	"id", "audit_id", "site_name", "site_address", "reference_lat", "reference_lng",
	"scheduled_at", "state", "sections", "auditor_id", "arrival_at", "arrival_lat", "arrival_lng",
	"departure_at", "departure_lat", "departure_lng", "distance_meters", "verification", "score",
	"notes", "cancel_reason", "version", "created_at", "updated_at",
}

func TestVisitRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVisitRepository(db, nop())

	mock.ExpectQuery(`FROM visits WHERE id = \?`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(visitCols).AddRow(
			2, 1, "Nodo Norte", "Calle 100", 4.711, -74.0721,
			testNow, "en_curso", `["red","energia"]`, "aud-1", testNow, 4.7111, -74.0721,
			nil, nil, nil, 11.1, "verificada", nil,
			"", "", int64(3), testNow, testNow,
		))

	v, err := repo.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, entity.VisitInProgress, v.State)
	assert.Equal(t, &geo.Point{Latitude: 4.711, Longitude: -74.0721}, v.Reference)
	require.NotNil(t, v.Arrival)
	assert.Nil(t, v.Departure)
	assert.Nil(t, v.DepartureAt)
	assert.Equal(t, []entity.SectionID{"red", "energia"}, v.Sections)
	assert.Equal(t, geo.OutcomeVerified, v.Verification)
	assert.Nil(t, v.Score)
}

func TestVisitRepository_CreateSplitsCoordinates(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVisitRepository(db, nop())

	mock.ExpectExec("INSERT INTO visits").
		WithArgs(int64(1), "Nodo Norte", "", 4.711, -74.0721,
			testNow, "programada", `["red"]`, "", nil, nil, nil,
			nil, nil, nil, nil, "", nil,
			"", "", int64(1), testNow, testNow).
		WillReturnResult(sqlmock.NewResult(5, 1))

	v := &entity.Visit{
		AuditID:     1,
		SiteName:    "Nodo Norte",
		Reference:   &geo.Point{Latitude: 4.711, Longitude: -74.0721},
		ScheduledAt: testNow,
		State:       entity.VisitScheduled,
		Sections:    []entity.SectionID{"red"},
		Version:     1,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	require.NoError(t, repo.Create(context.Background(), v))
	assert.Equal(t, int64(5), v.ID)
}

func TestVisitRepository_UpdateStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVisitRepository(db, nop())

	mock.ExpectExec(`UPDATE visits`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM visits WHERE id = \?`).WillReturnRows(sqlmock.NewRows(visitCols))

	err := repo.Update(context.Background(), &entity.Visit{ID: 5, Version: 1})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
