// Package rbac provides object-level role-based access control with
// materialized permission evaluations.
//
// # Overview
//
// This package implements RBAC for applications whose resources form a
// parent/child hierarchy (organizations containing teams, inventories,
// namespaces and so on). Permissions are granted by assigning role
// definitions to users or teams on specific objects; the engine then
// materializes the full consequence of every assignment - including
// permissions inherited from parent objects and permissions conferred
// through team membership chains - into flat evaluation tables that a
// single indexed query can answer.
//
// # Architecture
//
// The system consists of five key components:
//
//  1. Registry: the resource types under access control, their parent
//     links and their permission catalogs
//  2. Role definitions: named, reusable bundles of permissions, either
//     bound to one resource type or global
//  3. Assignments: bindings of a role definition to a user or team,
//     scoped to one object (or system-wide for global definitions)
//  4. Evaluations: materialized (permission, object) tuples, the only
//     thing the read path ever touches
//  5. Engine: the write path that keeps evaluations consistent as
//     assignments, definitions, memberships and objects change
//
// # Resource Types
//
// Applications describe their models up front:
//
//	reg := rbac.NewRegistry()
//	reg.Register(rbac.ResourceType{
//		Name:     "organization",
//		Table:    "organizations",
//		PKColumn: "id",
//		PK:       rbac.PKInt,
//	})
//	reg.Register(rbac.ResourceType{
//		Name:         "team",
//		Table:        "teams",
//		PKColumn:     "id",
//		PK:           rbac.PKInt,
//		ParentType:   "organization",
//		ParentColumn: "organization_id",
//	})
//	reg.Register(rbac.ResourceType{
//		Name:             "inventory",
//		Table:            "inventories",
//		PKColumn:         "id",
//		PK:               rbac.PKInt,
//		ParentType:       "organization",
//		ParentColumn:     "organization_id",
//		ExtraPermissions: []string{"update_inventory"},
//	})
//
// Each type gets the standard add/change/delete/view actions plus any
// extras. The team type automatically carries a membership permission
// ("member_team") which is what makes team-based access work.
//
// # Role Definitions
//
// Definitions bundle permission codenames and bind to a type:
//
//	rd, err := engine.CreateRoleDefinition(ctx, rbac.RoleDefinitionSpec{
//		Name:        "Inventory Operator",
//		ContentType: "inventory",
//		Permissions: []string{"view_inventory", "change_inventory", "update_inventory"},
//	})
//
// A definition bound to a parent type may include child-type permissions,
// which fan out over every child object under the assignment target:
//
//	rd, err := engine.CreateRoleDefinition(ctx, rbac.RoleDefinitionSpec{
//		Name:        "Org Inventory Manager",
//		ContentType: "organization",
//		Permissions: []string{"view_organization", "add_inventory", "change_inventory", "view_inventory"},
//	})
//
// Definitions with a nil content type are global and grant their
// permissions everywhere; these require the singleton settings switches.
//
// # Assignments
//
//	// user 7 can operate inventory 42
//	err := engine.GivePermission(ctx, rd, rbac.User{ID: 7}, rbac.Resource{
//		Type: "inventory", ID: rbac.IntID(42),
//	})
//
//	// the whole backend team can, too
//	err = engine.GivePermission(ctx, rd, rbac.Team{ID: 3}, obj)
//
//	// system-wide auditor
//	err = engine.GiveGlobalPermission(ctx, auditorRD, rbac.User{ID: 9})
//
// Assigning a membership role (one carrying member_team) to a team
// makes that team's members inherit everything the target team holds,
// transitively through any depth of nesting.
//
// # Permission Checking
//
// The read path is a single query against the evaluation tables, with
// an optional in-process cache in front:
//
//	ok, err := engine.HasObjPerm(ctx, rbac.User{ID: 7}, obj, "change")
//
//	ids, err := engine.AccessibleIDs(ctx, rbac.User{ID: 7}, "inventory", "view")
//
//	codenames, err := engine.GetPermissions(ctx, rbac.User{ID: 7}, obj)
//
// Users with a configured superuser flag bypass all checks; per-action
// bypass flags (an auditor flag for view, say) bypass checks for one
// action only.
//
// # Lifecycle Notifications
//
// The engine cannot see the application's own tables change, so the
// application tells it when controlled objects are created, re-parented
// or deleted:
//
//	engine.NotifyResourceCreated(ctx, obj)
//	engine.NotifyResourceMoved(ctx, obj, &oldOrgID, &newOrgID)
//	engine.NotifyResourceDeleted(ctx, obj)
//
// Each notification recomputes exactly the object roles whose
// evaluations the event could have changed.
//
// # Managed Roles
//
// SeedManagedRoles creates the conventional admin/member definitions
// for the team type and its parent, plus a global auditor when global
// roles are enabled. Additional templates can be precreated from a YAML
// file via Settings.RolePrecreate:
//
//	roles:
//	  - name: Inventory Operator
//	    content_type: inventory
//	    permissions: [view_inventory, change_inventory, update_inventory]
//
// # Database Schema
//
// Ten tables, created by RunMigrations:
//
//   - content_types, permissions: the registered catalog
//   - role_definitions, role_definition_permissions
//   - object_roles, object_role_users, object_role_teams,
//     object_role_provides_teams
//   - role_user_assignments, role_team_assignments
//   - role_evaluations_int, role_evaluations_uuid: the materialized
//     tuples, partitioned by primary-key kind
//
// # Design Decisions
//
// Write-time materialization: assignments are rare and checks are
// constant, so all inheritance and team math happens on the write path.
// A check never walks the object tree or the team graph.
//
// Partitioned evaluations: integer- and UUID-keyed resources get
// separate tuple tables with native id columns, keeping the hot lookup
// index compact instead of forcing everything through text.
//
// Transactional consistency: every mutation and its evaluation updates
// commit together. Readers never observe an assignment whose
// consequences are not yet queryable.
//
// Generation-tagged caching: the check cache key includes a generation
// counter bumped on every committed write, so invalidation is O(1) and
// never misses; the TTL bounds staleness from other writers sharing the
// database.
//
// # Testing
//
// Unit tests run against in-memory SQLite; the SQL sticks to the
// common subset, so the same statements run on Postgres in production.
// Integration tests use RequirePostgres, which skips unless
// TEST_POSTGRES_PRIMARY is set.
package rbac
