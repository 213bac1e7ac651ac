package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all engine migrations in apply order. The DDL
// targets PostgreSQL; tests mirror it with SQLite-compatible schemas.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create content_types and permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS content_types (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					codename VARCHAR(255) NOT NULL,
					content_type_id BIGINT NOT NULL REFERENCES content_types(id) ON DELETE CASCADE,
					UNIQUE(codename, content_type_id)
				);

				CREATE INDEX idx_permissions_codename ON permissions(codename);
				CREATE INDEX idx_permissions_content_type_id ON permissions(content_type_id);
			`,
		},
		{
			Version:     2,
			Description: "Create role_definitions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_definitions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					managed BOOLEAN NOT NULL DEFAULT FALSE,
					content_type_id BIGINT REFERENCES content_types(id) ON DELETE CASCADE,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS role_definition_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_definition_id BIGINT NOT NULL REFERENCES role_definitions(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					UNIQUE(role_definition_id, permission_id)
				);

				CREATE INDEX idx_rd_permissions_rd_id ON role_definition_permissions(role_definition_id);
				CREATE INDEX idx_rd_permissions_permission_id ON role_definition_permissions(permission_id);
			`,
		},
		{
			Version:     3,
			Description: "Create object_roles and actor edge tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS object_roles (
					id BIGSERIAL PRIMARY KEY,
					role_definition_id BIGINT NOT NULL REFERENCES role_definitions(id) ON DELETE CASCADE,
					content_type_id BIGINT NOT NULL REFERENCES content_types(id) ON DELETE CASCADE,
					object_id TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(object_id, content_type_id, role_definition_id)
				);

				CREATE INDEX idx_object_roles_ct_obj ON object_roles(content_type_id, object_id);
				CREATE INDEX idx_object_roles_rd_id ON object_roles(role_definition_id);

				CREATE TABLE IF NOT EXISTS object_role_users (
					id BIGSERIAL PRIMARY KEY,
					object_role_id BIGINT NOT NULL REFERENCES object_roles(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					UNIQUE(object_role_id, user_id)
				);

				CREATE INDEX idx_object_role_users_user_id ON object_role_users(user_id);

				CREATE TABLE IF NOT EXISTS object_role_teams (
					id BIGSERIAL PRIMARY KEY,
					object_role_id BIGINT NOT NULL REFERENCES object_roles(id) ON DELETE CASCADE,
					team_id BIGINT NOT NULL,
					UNIQUE(object_role_id, team_id)
				);

				CREATE INDEX idx_object_role_teams_team_id ON object_role_teams(team_id);

				CREATE TABLE IF NOT EXISTS object_role_provides_teams (
					id BIGSERIAL PRIMARY KEY,
					object_role_id BIGINT NOT NULL REFERENCES object_roles(id) ON DELETE CASCADE,
					team_id BIGINT NOT NULL,
					UNIQUE(object_role_id, team_id)
				);

				CREATE INDEX idx_provides_teams_team_id ON object_role_provides_teams(team_id);
			`,
		},
		{
			Version:     4,
			Description: "Create assignment tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_user_assignments (
					id BIGSERIAL PRIMARY KEY,
					role_definition_id BIGINT NOT NULL REFERENCES role_definitions(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					object_role_id BIGINT REFERENCES object_roles(id) ON DELETE CASCADE,
					content_type_id BIGINT REFERENCES content_types(id) ON DELETE CASCADE,
					object_id TEXT,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, object_role_id)
				);

				CREATE UNIQUE INDEX idx_user_assignments_global
					ON role_user_assignments(user_id, role_definition_id)
					WHERE object_role_id IS NULL;
				CREATE INDEX idx_user_assignments_user_id ON role_user_assignments(user_id);
				CREATE INDEX idx_user_assignments_rd_id ON role_user_assignments(role_definition_id);

				CREATE TABLE IF NOT EXISTS role_team_assignments (
					id BIGSERIAL PRIMARY KEY,
					role_definition_id BIGINT NOT NULL REFERENCES role_definitions(id) ON DELETE CASCADE,
					team_id BIGINT NOT NULL,
					object_role_id BIGINT REFERENCES object_roles(id) ON DELETE CASCADE,
					content_type_id BIGINT REFERENCES content_types(id) ON DELETE CASCADE,
					object_id TEXT,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, object_role_id)
				);

				CREATE UNIQUE INDEX idx_team_assignments_global
					ON role_team_assignments(team_id, role_definition_id)
					WHERE object_role_id IS NULL;
				CREATE INDEX idx_team_assignments_team_id ON role_team_assignments(team_id);
				CREATE INDEX idx_team_assignments_rd_id ON role_team_assignments(role_definition_id);
			`,
		},
		{
			Version:     5,
			Description: "Create evaluation partitions",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_evaluations_int (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES object_roles(id) ON DELETE CASCADE,
					codename VARCHAR(255) NOT NULL,
					content_type_id BIGINT NOT NULL,
					object_id BIGINT NOT NULL,
					UNIQUE(role_id, codename, content_type_id, object_id)
				);

				CREATE INDEX idx_eval_int_lookup ON role_evaluations_int(codename, content_type_id, object_id);
				CREATE INDEX idx_eval_int_role_id ON role_evaluations_int(role_id);

				CREATE TABLE IF NOT EXISTS role_evaluations_uuid (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES object_roles(id) ON DELETE CASCADE,
					codename VARCHAR(255) NOT NULL,
					content_type_id BIGINT NOT NULL,
					object_id UUID NOT NULL,
					UNIQUE(role_id, codename, content_type_id, object_id)
				);

				CREATE INDEX idx_eval_uuid_lookup ON role_evaluations_uuid(codename, content_type_id, object_id);
				CREATE INDEX idx_eval_uuid_role_id ON role_evaluations_uuid(role_id);
			`,
		},
	}
}

// RunMigrations applies pending migrations, tracking applied versions in
// the rbac_migrations table.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
