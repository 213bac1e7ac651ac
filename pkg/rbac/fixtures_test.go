package rbac

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens an in-memory SQLite database with the engine schema
// and a small application schema around it: organizations holding
// teams, namespaces and inventories, collection imports under
// namespaces, parentless instance groups, and UUID-keyed credentials.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// one shared in-memory database for all pooled connections
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		);

		CREATE TABLE teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			organization_id INTEGER REFERENCES organizations(id)
		);

		CREATE TABLE namespaces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			organization_id INTEGER REFERENCES organizations(id)
		);

		CREATE TABLE inventories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			organization_id INTEGER REFERENCES organizations(id)
		);

		CREATE TABLE collection_imports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			namespace_id INTEGER REFERENCES namespaces(id)
		);

		CREATE TABLE instance_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		);

		CREATE TABLE credentials (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			organization_id INTEGER REFERENCES organizations(id)
		);

		CREATE TABLE content_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			codename TEXT NOT NULL,
			content_type_id INTEGER NOT NULL REFERENCES content_types(id),
			UNIQUE(codename, content_type_id)
		);

		CREATE TABLE role_definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			managed INTEGER NOT NULL DEFAULT 0,
			content_type_id INTEGER REFERENCES content_types(id),
			created_by INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE role_definition_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_definition_id INTEGER NOT NULL REFERENCES role_definitions(id),
			permission_id INTEGER NOT NULL REFERENCES permissions(id),
			UNIQUE(role_definition_id, permission_id)
		);

		CREATE TABLE object_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_definition_id INTEGER NOT NULL REFERENCES role_definitions(id),
			content_type_id INTEGER NOT NULL REFERENCES content_types(id),
			object_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(object_id, content_type_id, role_definition_id)
		);

		CREATE TABLE object_role_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_role_id INTEGER NOT NULL REFERENCES object_roles(id),
			user_id INTEGER NOT NULL,
			UNIQUE(object_role_id, user_id)
		);

		CREATE TABLE object_role_teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_role_id INTEGER NOT NULL REFERENCES object_roles(id),
			team_id INTEGER NOT NULL,
			UNIQUE(object_role_id, team_id)
		);

		CREATE TABLE object_role_provides_teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_role_id INTEGER NOT NULL REFERENCES object_roles(id),
			team_id INTEGER NOT NULL,
			UNIQUE(object_role_id, team_id)
		);

		CREATE TABLE role_user_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_definition_id INTEGER NOT NULL REFERENCES role_definitions(id),
			user_id INTEGER NOT NULL,
			object_role_id INTEGER REFERENCES object_roles(id),
			content_type_id INTEGER REFERENCES content_types(id),
			object_id TEXT,
			created_by INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, object_role_id)
		);

		CREATE UNIQUE INDEX idx_user_assignments_global
			ON role_user_assignments(user_id, role_definition_id)
			WHERE object_role_id IS NULL;

		CREATE TABLE role_team_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_definition_id INTEGER NOT NULL REFERENCES role_definitions(id),
			team_id INTEGER NOT NULL,
			object_role_id INTEGER REFERENCES object_roles(id),
			content_type_id INTEGER REFERENCES content_types(id),
			object_id TEXT,
			created_by INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(team_id, object_role_id)
		);

		CREATE UNIQUE INDEX idx_team_assignments_global
			ON role_team_assignments(team_id, role_definition_id)
			WHERE object_role_id IS NULL;

		CREATE TABLE role_evaluations_int (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL REFERENCES object_roles(id),
			codename TEXT NOT NULL,
			content_type_id INTEGER NOT NULL,
			object_id INTEGER NOT NULL,
			UNIQUE(role_id, codename, content_type_id, object_id)
		);

		CREATE TABLE role_evaluations_uuid (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL REFERENCES object_roles(id),
			codename TEXT NOT NULL,
			content_type_id INTEGER NOT NULL,
			object_id TEXT NOT NULL,
			UNIQUE(role_id, codename, content_type_id, object_id)
		);
	`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

// testRegistry registers the application schema from setupTestDB.
func testRegistry(t testing.TB) *Registry {
	t.Helper()

	reg := NewRegistry()
	require.NoError(t, reg.Register(ResourceType{
		Name:     "organization",
		Table:    "organizations",
		PKColumn: "id",
		PK:       PKInt,
	}))
	require.NoError(t, reg.Register(ResourceType{
		Name:         "team",
		Table:        "teams",
		PKColumn:     "id",
		PK:           PKInt,
		ParentType:   "organization",
		ParentColumn: "organization_id",
	}))
	require.NoError(t, reg.Register(ResourceType{
		Name:         "namespace",
		Table:        "namespaces",
		PKColumn:     "id",
		PK:           PKInt,
		ParentType:   "organization",
		ParentColumn: "organization_id",
	}))
	require.NoError(t, reg.Register(ResourceType{
		Name:             "inventory",
		Table:            "inventories",
		PKColumn:         "id",
		PK:               PKInt,
		ParentType:       "organization",
		ParentColumn:     "organization_id",
		ExtraPermissions: []string{"update_inventory"},
	}))
	require.NoError(t, reg.Register(ResourceType{
		Name:         "collection_import",
		Table:        "collection_imports",
		PKColumn:     "id",
		PK:           PKInt,
		ParentType:   "namespace",
		ParentColumn: "namespace_id",
	}))
	require.NoError(t, reg.Register(ResourceType{
		Name:     "instance_group",
		Table:    "instance_groups",
		PKColumn: "id",
		PK:       PKInt,
	}))
	require.NoError(t, reg.Register(ResourceType{
		Name:         "credential",
		Table:        "credentials",
		PKColumn:     "id",
		PK:           PKUUID,
		ParentType:   "organization",
		ParentColumn: "organization_id",
	}))
	return reg
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestEngine wires a fresh database, registry and engine.
func newTestEngine(t testing.TB, settings Settings) (*Engine, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)
	engine, err := New(context.Background(), db, testRegistry(t), settings, WithLogger(quietLogger()))
	require.NoError(t, err)
	return engine, db
}

func createOrganization(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO organizations (name) VALUES ($1)", name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createTeam(t testing.TB, db *sql.DB, name string, orgID int64) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO teams (name, organization_id) VALUES ($1, $2)", name, orgID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createNamespace(t testing.TB, db *sql.DB, name string, orgID int64) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO namespaces (name, organization_id) VALUES ($1, $2)", name, orgID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createInventory(t testing.TB, db *sql.DB, name string, orgID int64) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO inventories (name, organization_id) VALUES ($1, $2)", name, orgID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createCollectionImport(t testing.TB, db *sql.DB, name string, namespaceID int64) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO collection_imports (name, namespace_id) VALUES ($1, $2)", name, namespaceID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createInstanceGroup(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO instance_groups (name) VALUES ($1)", name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createCredential(t testing.TB, db *sql.DB, name string, orgID int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec("INSERT INTO credentials (id, name, organization_id) VALUES ($1, $2, $3)", id.String(), name, orgID)
	require.NoError(t, err)
	return id
}

func orgResource(id int64) Resource        { return Resource{Type: "organization", ID: IntID(id)} }
func teamResource(id int64) Resource       { return Resource{Type: "team", ID: IntID(id)} }
func inventoryResource(id int64) Resource  { return Resource{Type: "inventory", ID: IntID(id)} }
func namespaceResource(id int64) Resource  { return Resource{Type: "namespace", ID: IntID(id)} }
func credentialResource(id uuid.UUID) Resource {
	return Resource{Type: "credential", ID: UUIDID(id)}
}

// countRows is a convenience for asserting table contents.
func countRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
