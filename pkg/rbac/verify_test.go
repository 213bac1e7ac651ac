package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEvaluations_Clean(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()

	orgID := createOrganization(t, db, "acme")
	invID := createInventory(t, db, "prod", orgID)
	rd := inventoryViewer(t, engine)
	require.NoError(t, engine.GivePermission(ctx, rd, User{ID: 1}, inventoryResource(invID)))

	report, err := engine.VerifyEvaluations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RolesChecked)
	assert.False(t, report.HasDrift())
}

func TestVerifyEvaluations_DetectsDrift(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()

	orgID := createOrganization(t, db, "acme")
	inv1 := createInventory(t, db, "a", orgID)
	inv2 := createInventory(t, db, "b", orgID)
	rd := inventoryViewer(t, engine)
	alice := User{ID: 1}
	require.NoError(t, engine.GivePermission(ctx, rd, alice, inventoryResource(inv1)))
	require.NoError(t, engine.GivePermission(ctx, rd, alice, inventoryResource(inv2)))

	// tamper behind the engine's back: drop one tuple, forge another
	_, err := db.Exec("DELETE FROM role_evaluations_int WHERE object_id = $1", inv1)
	require.NoError(t, err)
	invCT, _ := engine.Registry().ContentTypeID("inventory")
	_, err = db.Exec(`
		INSERT INTO role_evaluations_int (role_id, codename, content_type_id, object_id)
		SELECT role_id, 'delete_inventory', content_type_id, object_id
		FROM role_evaluations_int WHERE codename = 'view_inventory' AND content_type_id = $1`, invCT)
	require.NoError(t, err)

	report, err := engine.VerifyEvaluations(ctx)
	require.NoError(t, err)
	assert.True(t, report.HasDrift())
	assert.Equal(t, 2, report.RolesChecked)
	assert.Len(t, report.DriftRoleIDs, 2)
	assert.Equal(t, 1, report.MissingTuples)
	assert.Equal(t, 1, report.ExtraTuples)
}

func TestRecomputeAll_RepairsDrift(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()

	orgID := createOrganization(t, db, "acme")
	invID := createInventory(t, db, "prod", orgID)
	rd := inventoryViewer(t, engine)
	alice := User{ID: 1}
	require.NoError(t, engine.GivePermission(ctx, rd, alice, inventoryResource(invID)))

	_, err := db.Exec("DELETE FROM role_evaluations_int")
	require.NoError(t, err)

	ok, err := engine.HasObjPerm(ctx, alice, inventoryResource(invID), "view_inventory")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, engine.RecomputeAll(ctx))

	ok, err = engine.HasObjPerm(ctx, alice, inventoryResource(invID), "view_inventory")
	require.NoError(t, err)
	assert.True(t, ok)

	report, err := engine.VerifyEvaluations(ctx)
	require.NoError(t, err)
	assert.False(t, report.HasDrift())
}

func TestNewMaintenance_Schedule(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultSettings())

	m, err := NewMaintenance(engine, "@hourly")
	require.NoError(t, err)
	m.Start()
	m.Stop()

	_, err = NewMaintenance(engine, "whenever")
	assert.True(t, IsConfigError(err))
}
