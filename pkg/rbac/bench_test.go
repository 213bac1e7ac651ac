package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func benchEngine(b *testing.B, settings Settings) (*Engine, int64, int64) {
	engine, db := newTestEngine(b, settings)
	ctx := context.Background()

	orgID := createOrganization(b, db, "bench")
	rd, err := engine.CreateRoleDefinition(ctx, RoleDefinitionSpec{
		Name:        "Bench Org Admin",
		ContentType: "organization",
		Permissions: []string{"view_organization", "view_inventory", "change_inventory"},
	})
	require.NoError(b, err)

	var invID int64
	for i := 0; i < 50; i++ {
		invID = createInventory(b, db, fmt.Sprintf("inv-%d", i), orgID)
	}
	require.NoError(b, engine.GivePermission(ctx, rd, User{ID: 1}, orgResource(orgID)))
	return engine, orgID, invID
}

func BenchmarkHasObjPerm(b *testing.B) {
	engine, _, invID := benchEngine(b, DefaultSettings())
	ctx := context.Background()
	alice := User{ID: 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := engine.HasObjPerm(ctx, alice, inventoryResource(invID), "change_inventory")
		if err != nil || !ok {
			b.Fatalf("check failed: ok=%v err=%v", ok, err)
		}
	}
}

func BenchmarkHasObjPermCached(b *testing.B) {
	settings := DefaultSettings()
	settings.CheckCacheSize = 1024
	engine, _, invID := benchEngine(b, settings)
	ctx := context.Background()
	alice := User{ID: 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := engine.HasObjPerm(ctx, alice, inventoryResource(invID), "change_inventory")
		if err != nil || !ok {
			b.Fatalf("check failed: ok=%v err=%v", ok, err)
		}
	}
}

func BenchmarkRecomputeAll(b *testing.B) {
	engine, _, _ := benchEngine(b, DefaultSettings())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.RecomputeAll(ctx); err != nil {
			b.Fatalf("recompute failed: %v", err)
		}
	}
}
