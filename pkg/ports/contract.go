package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitel/journey/pkg/domain"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a
// SnapshotStore implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	tenant := "contract-tenant-" + time.Now().Format("20060102150405")

	snap := func(id string) *domain.Snapshot {
		return &domain.Snapshot{
			TenantID: id,
			Journeys: []*domain.Journey{
				{ID: "j1", TenantID: id, Status: domain.JourneyActive, Context: map[string]any{"plan": "fiber_1g"}},
			},
			Templates: map[string]*domain.JourneyTemplate{
				"tpl": {ID: "tpl", Name: "Onboarding"},
			},
			Triggers: map[string]*domain.Trigger{
				"trg": {ID: "trg", EventType: domain.EventLeadConverted, TemplateID: "tpl", Active: true},
			},
			TakenAt: time.Now().UTC(),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, snap(tenant))
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, tenant)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, tenant, loaded.TenantID)
		require.Len(t, loaded.Journeys, 1)
		assert.Equal(t, "j1", loaded.Journeys[0].ID)
		assert.Equal(t, "fiber_1g", loaded.Journeys[0].Context["plan"])
		assert.Contains(t, loaded.Templates, "tpl")
		assert.Contains(t, loaded.Triggers, "trg")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+tenant)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := snap(tenant)
		s.Journeys = nil
		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, tenant)
		require.NoError(t, err)
		assert.Empty(t, loaded.Journeys)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, snap(tenant)))

		err := store.Delete(ctx, tenant)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, tenant)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := tenant + "-1"
		id2 := tenant + "-2"
		_ = store.Save(ctx, snap(id1))
		_ = store.Save(ctx, snap(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		tenants, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, tenants, id1)
		assert.Contains(t, tenants, id2)
	})
}
