package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/domain/entity"
)

func newStore(t *testing.T) *EvidenceStore {
	t.Helper()
	s := NewEvidenceStore(t.TempDir(), zap.NewNop())
	s.newID = func() string { return "abcd1234" }
	return s
}

func TestEvidenceStoreRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, "AUD-2026-0001", "red", "plano de red.pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "AUD-2026-0001/red/abcd1234_plano_de_red.pdf", id)

	content, err := s.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), content)

	require.NoError(t, s.Delete(ctx, id))
	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Read(ctx, id)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestEvidenceStoreRejectsTraversal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, "../../etc", "red", "../../passwd", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/red/abcd1234_passwd", id)

	_, err = s.Read(ctx, "../outside.txt")
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = s.Save(ctx, "///", "red", "a.pdf", nil)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, name, file string
	}{
		{"AUD-2026-0001", "AUD-2026-0001", "AUD-2026-0001"},
		{"acta final.v2.pdf", "actafinalv2pdf", "acta_final.v2.pdf"},
		{"../..//x", "x", "x"},
		{".hidden", "hidden", "hidden"},
		{`C:\docs\foto.jpg`, "Cdocsfotojpg", "foto.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.name, SanitizeName(tt.in))
			assert.Equal(t, tt.file, SanitizeFileName(tt.in))
		})
	}
}

func TestExportFolders(t *testing.T) {
	base := t.TempDir()
	m := NewExportFolders(base, zap.NewNop())
	ctx := context.Background()

	assert.False(t, m.Exists("AUD-1"))
	path, err := m.Ensure(ctx, "AUD-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "AUD-1"), path)
	assert.True(t, m.Exists("AUD-1"))

	require.NoError(t, os.WriteFile(filepath.Join(path, "informe.xlsx"), []byte("x"), 0644))
	require.NoError(t, m.Delete(ctx, "AUD-1"))
	assert.False(t, m.Exists("AUD-1"))

	_, err = m.Ensure(ctx, "..")
	assert.Error(t, err)
}
