package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CatalogSync(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()

	// one content type row per registered type
	n := countRows(t, db, "content_types")
	assert.Equal(t, len(engine.Registry().Types()), n)

	st := engine.store()
	p, err := st.GetPermissionByCodename(ctx, "update_inventory")
	require.NoError(t, err)
	invCT, err := engine.Registry().ContentTypeID("inventory")
	require.NoError(t, err)
	assert.Equal(t, invCT, p.ContentTypeID)

	// member permission is injected for the team type
	_, err = st.GetPermissionByCodename(ctx, "member_team")
	assert.NoError(t, err)

	_, err = st.GetPermissionByCodename(ctx, "fly_inventory")
	assert.True(t, errors.Is(err, ErrNotFound))

	// second sync is a no-op
	require.NoError(t, engine.write(ctx, func(st *Store) error {
		if err := st.SyncContentTypes(ctx); err != nil {
			return err
		}
		return st.SyncPermissions(ctx)
	}))
	assert.Equal(t, n, countRows(t, db, "content_types"))
}

func TestStore_RoleDefinitionCRUD(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultSettings())
	ctx := context.Background()
	st := engine.store()

	perms, err := st.PermissionsByCodenames(ctx, []string{"view_inventory", "change_inventory"})
	require.NoError(t, err)
	invCT, err := engine.Registry().ContentTypeID("inventory")
	require.NoError(t, err)

	rd := &RoleDefinition{
		Name:          "Inventory Editor",
		Description:   "Edit one inventory",
		ContentTypeID: &invCT,
		Permissions:   perms,
	}
	require.NoError(t, st.CreateRoleDefinition(ctx, rd))
	assert.NotZero(t, rd.ID)
	assert.False(t, rd.CreatedAt.IsZero())

	got, err := st.GetRoleDefinition(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, "Inventory Editor", got.Name)
	assert.ElementsMatch(t, []string{"view_inventory", "change_inventory"}, got.Codenames())

	byName, err := st.GetRoleDefinitionByName(ctx, "Inventory Editor")
	require.NoError(t, err)
	assert.Equal(t, rd.ID, byName.ID)

	_, err = st.GetRoleDefinitionByName(ctx, "No Such Role")
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err := st.ListRoleDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Permissions, 2)

	update, err := st.GetPermissionByCodename(ctx, "update_inventory")
	require.NoError(t, err)
	require.NoError(t, st.AddDefinitionPermission(ctx, rd.ID, update.ID))
	got, err = st.GetRoleDefinition(ctx, rd.ID)
	require.NoError(t, err)
	assert.Len(t, got.Permissions, 3)

	require.NoError(t, st.RemoveDefinitionPermission(ctx, rd.ID, update.ID))
	require.NoError(t, st.ClearDefinitionPermissions(ctx, rd.ID))
	got, err = st.GetRoleDefinition(ctx, rd.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Permissions)

	require.NoError(t, st.DeleteRoleDefinition(ctx, rd.ID))
	_, err = st.GetRoleDefinition(ctx, rd.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(st.DeleteRoleDefinition(ctx, rd.ID), ErrNotFound))
}

func TestStore_UnknownCodenameIsValidationError(t *testing.T) {
	engine, _ := newTestEngine(t, DefaultSettings())
	st := engine.store()

	_, err := st.PermissionsByCodenames(context.Background(), []string{"view_inventory", "teleport_inventory"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestStore_ObjectRoleLifecycle(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()
	st := engine.store()

	orgID := createOrganization(t, db, "acme")
	invID := createInventory(t, db, "prod", orgID)

	perms, err := st.PermissionsByCodenames(ctx, []string{"view_inventory"})
	require.NoError(t, err)
	invCT, err := engine.Registry().ContentTypeID("inventory")
	require.NoError(t, err)
	rd := &RoleDefinition{Name: "Inventory Viewer", ContentTypeID: &invCT, Permissions: perms}
	require.NoError(t, st.CreateRoleDefinition(ctx, rd))

	role, created, err := st.GetOrCreateObjectRole(ctx, rd.ID, invCT, IntID(invID).String())
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := st.GetOrCreateObjectRole(ctx, rd.ID, invCT, IntID(invID).String())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, role.ID, again.ID)

	// actor edges
	added, err := st.AddUserToRole(ctx, role.ID, 7)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = st.AddUserToRole(ctx, role.ID, 7)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = st.AddTeamToRole(ctx, role.ID, 3)
	require.NoError(t, err)
	assert.True(t, added)
	teams, err := st.TeamsOfRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, teams)

	has, err := st.RoleHasActors(ctx, role.ID)
	require.NoError(t, err)
	assert.True(t, has)

	removed, err := st.RemoveUserFromRole(ctx, role.ID, 7)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = st.RemoveTeamFromRole(ctx, role.ID, 3)
	require.NoError(t, err)
	assert.True(t, removed)

	has, err = st.RoleHasActors(ctx, role.ID)
	require.NoError(t, err)
	assert.False(t, has)

	// deleting the role clears dependents
	require.NoError(t, st.BulkCreateEvaluations(ctx, []evalAddition{
		{roleID: role.ID, key: evalKey{"view_inventory", invCT, IntID(invID).String()}, pk: PKInt},
	}))
	require.NoError(t, st.DeleteObjectRole(ctx, role.ID))
	assert.Zero(t, countRows(t, db, "role_evaluations_int"))
	assert.Zero(t, countRows(t, db, "object_roles"))
}

func TestStore_Assignments(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()
	st := engine.store()

	orgID := createOrganization(t, db, "acme")
	invID := createInventory(t, db, "prod", orgID)

	perms, err := st.PermissionsByCodenames(ctx, []string{"view_inventory"})
	require.NoError(t, err)
	invCT, err := engine.Registry().ContentTypeID("inventory")
	require.NoError(t, err)
	rd := &RoleDefinition{Name: "Inventory Viewer", ContentTypeID: &invCT, Permissions: perms}
	require.NoError(t, st.CreateRoleDefinition(ctx, rd))

	role, _, err := st.GetOrCreateObjectRole(ctx, rd.ID, invCT, IntID(invID).String())
	require.NoError(t, err)

	objID := IntID(invID).String()
	a := &RoleUserAssignment{
		RoleDefinitionID: rd.ID,
		UserID:           7,
		ObjectRoleID:     &role.ID,
		ContentTypeID:    &invCT,
		ObjectID:         &objID,
	}
	created, err := st.GetOrCreateUserAssignment(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, a.ID)

	dup := *a
	dup.ID = 0
	created, err = st.GetOrCreateUserAssignment(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, dup.ID)

	// global assignment for the same user and definition
	g := &RoleUserAssignment{RoleDefinitionID: rd.ID, UserID: 7}
	created, err = st.GetOrCreateUserAssignment(ctx, g)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.GetOrCreateUserAssignment(ctx, &RoleUserAssignment{RoleDefinitionID: rd.ID, UserID: 7})
	require.NoError(t, err)
	assert.False(t, created)

	count, err := st.AssignmentCountForDefinition(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	deleted, err := st.DeleteUserAssignment(ctx, 7, rd.ID, &role.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = st.DeleteUserAssignment(ctx, 7, rd.ID, nil)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = st.DeleteUserAssignment(ctx, 7, rd.ID, nil)
	require.NoError(t, err)
	assert.False(t, deleted)

	ta := &RoleTeamAssignment{RoleDefinitionID: rd.ID, TeamID: 3, ObjectRoleID: &role.ID}
	created, err = st.GetOrCreateTeamAssignment(ctx, ta)
	require.NoError(t, err)
	assert.True(t, created)
	deleted, err = st.DeleteTeamAssignment(ctx, 3, rd.ID, &role.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestStore_ChildIDs(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()
	st := engine.store()
	reg := engine.Registry()

	org1 := createOrganization(t, db, "one")
	org2 := createOrganization(t, db, "two")
	inv1 := createInventory(t, db, "a", org1)
	inv2 := createInventory(t, db, "b", org1)
	createInventory(t, db, "other", org2)
	ns := createNamespace(t, db, "ns", org1)
	ci := createCollectionImport(t, db, "imp", ns)
	createCollectionImport(t, db, "elsewhere", createNamespace(t, db, "ns2", org2))

	var invChain, ciChain []*ResourceType
	for _, spec := range reg.ChildSpecs("organization") {
		switch spec.Type.Name {
		case "inventory":
			invChain = spec.Chain
		case "collection_import":
			ciChain = spec.Chain
		}
	}
	require.NotNil(t, invChain)
	require.NotNil(t, ciChain)

	ids, err := st.ChildIDs(ctx, invChain, IntID(org1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{IntID(inv1).String(), IntID(inv2).String()}, ids)

	// two-hop chain through namespaces
	ids, err = st.ChildIDs(ctx, ciChain, IntID(org1))
	require.NoError(t, err)
	assert.Equal(t, []string{IntID(ci).String()}, ids)
}

func TestStore_ParentObjectID(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()
	st := engine.store()
	reg := engine.Registry()

	orgID := createOrganization(t, db, "acme")
	invID := createInventory(t, db, "prod", orgID)
	igID := createInstanceGroup(t, db, "default")
	credID := createCredential(t, db, "vault", orgID)

	inv, err := reg.Type("inventory")
	require.NoError(t, err)
	parent, ok, err := st.ParentObjectID(ctx, inv, IntID(invID).String())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, IntID(orgID).String(), parent)

	// parentless type
	ig, err := reg.Type("instance_group")
	require.NoError(t, err)
	_, ok, err = st.ParentObjectID(ctx, ig, IntID(igID).String())
	require.NoError(t, err)
	assert.False(t, ok)

	// uuid-keyed child of an int-keyed parent
	cred, err := reg.Type("credential")
	require.NoError(t, err)
	parent, ok, err = st.ParentObjectID(ctx, cred, credID.String())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, IntID(orgID).String(), parent)

	// missing row
	_, ok, err = st.ParentObjectID(ctx, inv, "99999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_BulkEvaluations(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()
	st := engine.store()
	reg := engine.Registry()

	orgID := createOrganization(t, db, "acme")
	invID := createInventory(t, db, "prod", orgID)
	credID := createCredential(t, db, "vault", orgID)

	invCT, err := reg.ContentTypeID("inventory")
	require.NoError(t, err)
	credCT, err := reg.ContentTypeID("credential")
	require.NoError(t, err)

	perms, err := st.PermissionsByCodenames(ctx, []string{"view_inventory"})
	require.NoError(t, err)
	rd := &RoleDefinition{Name: "Mixed", ContentTypeID: &invCT, Permissions: perms}
	require.NoError(t, st.CreateRoleDefinition(ctx, rd))
	role, _, err := st.GetOrCreateObjectRole(ctx, rd.ID, invCT, IntID(invID).String())
	require.NoError(t, err)

	adds := []evalAddition{
		{roleID: role.ID, key: evalKey{"view_inventory", invCT, IntID(invID).String()}, pk: PKInt},
		{roleID: role.ID, key: evalKey{"view_credential", credCT, credID.String()}, pk: PKUUID},
	}
	require.NoError(t, st.BulkCreateEvaluations(ctx, adds))
	// duplicates are ignored
	require.NoError(t, st.BulkCreateEvaluations(ctx, adds))

	rows, err := st.EvaluationsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byPK := map[PKKind]evalRow{}
	for _, r := range rows {
		byPK[r.pk] = r
	}
	assert.Equal(t, IntID(invID).String(), byPK[PKInt].key.objectID)
	assert.Equal(t, credID.String(), byPK[PKUUID].key.objectID)

	require.NoError(t, st.BulkDeleteEvaluations(ctx, PKInt, []int64{byPK[PKInt].id}))
	require.NoError(t, st.BulkDeleteEvaluations(ctx, PKUUID, []int64{byPK[PKUUID].id}))
	rows, err = st.EvaluationsForRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_TeamOrgMapping(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	st := engine.store()

	org1 := createOrganization(t, db, "one")
	org2 := createOrganization(t, db, "two")
	t1 := createTeam(t, db, "alpha", org1)
	t2 := createTeam(t, db, "beta", org1)
	t3 := createTeam(t, db, "gamma", org2)

	mapping, err := st.TeamOrgMapping(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{t1, t2}, mapping[IntID(org1).String()])
	assert.Equal(t, []int64{t3}, mapping[IntID(org2).String()])

	all, err := st.AllTeamIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{t1, t2, t3}, all)
}
