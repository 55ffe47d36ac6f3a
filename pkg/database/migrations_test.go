package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/migrations"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_evidence.sql":      {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"001_initial.sql":       {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"README.md":             {Data: []byte("ignored")},
		"nested/010_extras.sql": {Data: []byte("CREATE TABLE c (id INTEGER);")},
	}

	loaded, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, 1, loaded[0].Version)
	assert.Equal(t, "initial", loaded[0].Name)
	assert.Equal(t, 2, loaded[1].Version)
	assert.Equal(t, "extras", loaded[2].Name)
}

func TestLoadMigrationsRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "non numeric prefix",
			fsys: fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}},
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"001_a.sql": {Data: []byte("SELECT 1;")},
				"001_b.sql": {Data: []byte("SELECT 2;")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMigrations(tt.fsys)
			assert.Error(t, err)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	loaded, err := LoadMigrations(migrations.FS)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(loaded), 2)
	assert.Equal(t, 1, loaded[0].Version)
	assert.Contains(t, loaded[0].SQL, "CREATE TABLE IF NOT EXISTS audits")
	assert.Contains(t, loaded[1].SQL, "CREATE TABLE IF NOT EXISTS documents")
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})
	return &DB{DB: sqlDB, logger: zap.NewNop()}, mock
}

func TestMigratorRunSkipsApplied(t *testing.T) {
	db, mock := newMockDB(t)
	fsys := fstest.MapFS{
		"001_initial.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"002_evidence.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INTEGER);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version, name) VALUES (?, ?)")).
		WithArgs(2, "evidence").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := NewMigrator(db, zap.NewNop()).Run(context.Background(), fsys)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMigratorStatus(t *testing.T) {
	db, mock := newMockDB(t)
	fsys := fstest.MapFS{
		"001_initial.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"002_evidence.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	status, err := NewMigrator(db, zap.NewNop()).Status(context.Background(), fsys)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.Equal(t, "evidence", status[1].Name)
	assert.False(t, status[1].Applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorRunRollsBackFailedMigration(t *testing.T) {
	db, mock := newMockDB(t)
	fsys := fstest.MapFS{
		"001_initial.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	n, err := NewMigrator(db, zap.NewNop()).Run(context.Background(), fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration 1")
	assert.Equal(t, 0, n)
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "file",
			cfg:  Config{Path: "data/audits.db"},
			want: "file:data/audits.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate",
		},
		{
			name: "shared memory",
			cfg:  Config{Path: ":memory:", BusyTimeout: 2 * time.Second},
			want: "file::memory:?cache=shared&_journal_mode=WAL&_busy_timeout=2000&_foreign_keys=on&_txlock=immediate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
