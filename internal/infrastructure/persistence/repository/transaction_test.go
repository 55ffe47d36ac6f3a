package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/infrastructure/persistence/sqlite"
)

func TestRepositoriesJoinTransaction(t *testing.T) {
	db, mock := newMock(t)
	txm := sqlite.NewDB(db, nop())
	repos := New(db, nop())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE audits\s+SET stage = \?`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stage_history").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := txm.WithTransaction(context.Background(), func(ctx context.Context) error {
		if err := repos.Audits.UpdateStage(ctx, 1, 1, entity.StageDocumentIntake, ""); err != nil {
			return err
		}
		return repos.History.Create(ctx, &entity.StageHistory{
			AuditID:   1,
			FromStage: entity.StageNotification,
			ToStage:   entity.StageDocumentIntake,
			Trigger:   "advance",
			Timestamp: testNow,
		})
	})
	require.NoError(t, err)
}

func TestRepositoriesRollBackOnError(t *testing.T) {
	db, mock := newMock(t)
	txm := sqlite.NewDB(db, nop())
	repos := New(db, nop())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO stage_history").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := txm.WithTransaction(context.Background(), func(ctx context.Context) error {
		return repos.History.Create(ctx, &entity.StageHistory{AuditID: 1, Timestamp: testNow})
	})
	assert.ErrorIs(t, err, entity.ErrStorage)
}

func TestHistoryRepository_GetByAuditID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHistoryRepository(db, nop())

	mock.ExpectQuery(`FROM stage_history\s+WHERE audit_id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "audit_id", "from_stage", "to_stage", "trigger_name", "actor_id", "reason", "timestamp"}).
			AddRow(1, 1, 1, 2, "advance", "aud-1", "", testNow).
			AddRow(2, 1, 2, 91, "suspend", "dir-1", "proveedor no responde", testNow))

	records, err := repo.GetByAuditID(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, entity.StageDocumentIntake, records[0].ToStage)
	assert.Equal(t, entity.StageSuspended, records[1].ToStage)
	assert.Equal(t, "proveedor no responde", records[1].Reason)
}
