package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/section"
)

func upload(t *testing.T, env *testEnv, auditID int64, id entity.SectionID) {
	t.Helper()
	require.NoError(t, env.deps.Repos.Documents.Register(context.Background(), &port.DocumentMeta{
		AuditID:    auditID,
		SectionID:  id,
		FileID:     "file-" + string(id),
		UploadedAt: testNow,
	}))
}

func TestCompletenessGate_ListsEveryMissingObligatorySection(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	upload(t, env, audit.ID, section.NetworkTopology)
	upload(t, env, audit.ID, section.Maintenance)

	summary, err := env.gate.ComputeCompletion(ctx, audit.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.TotalCount)
	assert.Equal(t, 2, summary.CompletedCount)
	assert.Len(t, summary.MissingObligatory, 8)
	assert.NotContains(t, summary.MissingObligatory, section.NetworkTopology)

	err = env.gate.RequireObligatoryEvidence(ctx, audit.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrIncompleteEvidence)
	assert.ErrorIs(t, err, entity.ErrPreconditionNotMet)

	var pe *entity.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Missing, 8)
	assert.Contains(t, pe.Missing, string(section.EquipmentInventory))
}

func TestCompletenessGate_PassesRegardlessOfOptionalSections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	for _, id := range env.deps.Registry.ObligatoryIDs() {
		if id == section.EquipmentInventory {
			continue
		}
		upload(t, env, audit.ID, id)
	}
	require.NoError(t, env.deps.Repos.Inventory.Save(ctx, &port.InventoryResult{AuditID: audit.ID, Processed: true, Score: 90}))

	complete, err := env.gate.IsSectionComplete(ctx, audit.ID, section.EquipmentInventory)
	require.NoError(t, err)
	assert.True(t, complete)

	complete, err = env.gate.IsSectionComplete(ctx, audit.ID, section.Maintenance)
	require.NoError(t, err)
	assert.False(t, complete)

	assert.NoError(t, env.gate.RequireObligatoryEvidence(ctx, audit.ID))
}

func TestCompletenessGate_UnprocessedInventoryIsMissing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	audit := env.schedule(t)

	require.NoError(t, env.deps.Repos.Inventory.Save(ctx, &port.InventoryResult{AuditID: audit.ID, Processed: false}))

	complete, err := env.gate.IsSectionComplete(ctx, audit.ID, section.EquipmentInventory)
	require.NoError(t, err)
	assert.False(t, complete)

	_, err = env.gate.IsSectionComplete(ctx, audit.ID, "unknown")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
