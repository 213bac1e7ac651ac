package rbac

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func definitionNames(rds []*RoleDefinition) []string {
	out := make([]string, 0, len(rds))
	for _, rd := range rds {
		out = append(out, rd.Name)
	}
	return out
}

func TestSeedManagedRoles_Builtins(t *testing.T) {
	engine, db := newTestEngine(t, DefaultSettings())
	ctx := context.Background()

	rds, err := engine.SeedManagedRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Team Admin", "Team Member", "Organization Admin", "Organization Member",
	}, definitionNames(rds))

	byName := map[string]*RoleDefinition{}
	for _, rd := range rds {
		require.True(t, rd.Managed)
		byName[rd.Name] = rd
	}

	// empty template permissions expand to the full admin set
	var teamAdmin []string
	for _, p := range byName["Team Admin"].Permissions {
		teamAdmin = append(teamAdmin, p.Codename)
	}
	assert.ElementsMatch(t, []string{
		"change_team", "delete_team", "view_team", "member_team",
	}, teamAdmin)

	orgAdmin := byName["Organization Admin"]
	assert.Len(t, orgAdmin.Permissions, 25)
	assert.True(t, orgAdmin.HasPermission("member_team"))
	assert.True(t, orgAdmin.HasPermission("update_inventory"))
	assert.False(t, orgAdmin.HasPermission("add_organization"))

	var orgMember []string
	for _, p := range byName["Organization Member"].Permissions {
		orgMember = append(orgMember, p.Codename)
	}
	assert.Equal(t, []string{"view_organization"}, orgMember)

	// reseeding finds everything in place
	again, err := engine.SeedManagedRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 4)
	assert.Equal(t, 4, countRows(t, db, "role_definitions"))
}

func TestSeedManagedRoles_SystemAuditor(t *testing.T) {
	settings := DefaultSettings()
	settings.AllowSingletonUserRoles = true
	engine, _ := newTestEngine(t, settings)
	ctx := context.Background()

	rds, err := engine.SeedManagedRoles(ctx)
	require.NoError(t, err)
	require.Len(t, rds, 5)

	auditor := rds[4]
	assert.Equal(t, "System Auditor", auditor.Name)
	assert.Nil(t, auditor.ContentTypeID)
	assert.Len(t, auditor.Permissions, 7)
	for _, p := range auditor.Permissions {
		assert.Equal(t, "view", p.Action())
	}
}

func TestSeedManagedRoles_PrecreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  - name: Inventory Auditor
    description: Read-only inventory access
    content_type: inventory
    permissions:
      - view_inventory
  - name: Namespace Admin
    description: Full control of a namespace
    content_type: namespace
  - name: Global Operator
    description: Needs system-wide roles enabled
    permissions:
      - view_inventory
`), 0o644))

	settings := DefaultSettings()
	settings.RolePrecreate = path
	engine, _ := newTestEngine(t, settings)
	ctx := context.Background()

	rds, err := engine.SeedManagedRoles(ctx)
	require.NoError(t, err)

	names := definitionNames(rds)
	assert.Contains(t, names, "Inventory Auditor")
	assert.Contains(t, names, "Namespace Admin")
	// global templates are skipped while system-wide roles are off
	assert.NotContains(t, names, "Global Operator")

	for _, rd := range rds {
		if rd.Name == "Namespace Admin" {
			var codenames []string
			for _, p := range rd.Permissions {
				codenames = append(codenames, p.Codename)
			}
			assert.ElementsMatch(t, []string{
				"change_namespace", "delete_namespace", "view_namespace",
				"add_collection_import", "change_collection_import",
				"delete_collection_import", "view_collection_import",
			}, codenames)
		}
	}
}

func TestLoadRoleTemplates_MissingFile(t *testing.T) {
	_, err := LoadRoleTemplates(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
