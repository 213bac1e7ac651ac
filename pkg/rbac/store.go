package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Write operations run the store against a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store executes the engine's SQL. It holds no state beyond the
// connection handle and the frozen registry.
type Store struct {
	q   dbtx
	reg *Registry
}

// NewStore creates a store bound to a database or transaction.
func NewStore(q dbtx, reg *Registry) *Store {
	return &Store{q: q, reg: reg}
}

// SyncContentTypes inserts any missing content type rows for registered
// types and loads the name-to-id mapping into the registry.
func (s *Store) SyncContentTypes(ctx context.Context) error {
	for _, rt := range s.reg.Types() {
		_, err := s.q.ExecContext(ctx,
			"INSERT INTO content_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", rt.Name)
		if err != nil {
			return fmt.Errorf("failed to sync content type %s: %w", rt.Name, err)
		}
	}

	rows, err := s.q.QueryContext(ctx, "SELECT id, name FROM content_types")
	if err != nil {
		return fmt.Errorf("failed to load content types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("failed to scan content type: %w", err)
		}
		if _, ok := s.reg.types[name]; ok {
			s.reg.setContentTypeID(name, id)
		}
	}
	return rows.Err()
}

// SyncPermissions inserts any catalog atoms missing for the registered
// types. Existing rows are never removed.
func (s *Store) SyncPermissions(ctx context.Context) error {
	for _, rt := range s.reg.Types() {
		ctID, err := s.reg.ContentTypeID(rt.Name)
		if err != nil {
			return err
		}
		for _, codename := range s.reg.CodenamesFor(rt) {
			_, err := s.q.ExecContext(ctx,
				"INSERT INTO permissions (codename, content_type_id) VALUES ($1, $2) ON CONFLICT (codename, content_type_id) DO NOTHING",
				codename, ctID)
			if err != nil {
				return fmt.Errorf("failed to sync permission %s: %w", codename, err)
			}
		}
	}
	return nil
}

// GetPermissionByCodename fetches one catalog atom by codename.
func (s *Store) GetPermissionByCodename(ctx context.Context, codename string) (*Permission, error) {
	var p Permission
	err := s.q.QueryRowContext(ctx,
		"SELECT id, codename, content_type_id FROM permissions WHERE codename = $1", codename,
	).Scan(&p.ID, &p.Codename, &p.ContentTypeID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("permission %s: %w", codename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission %s: %w", codename, err)
	}
	return &p, nil
}

// PermissionsByCodenames resolves codenames to catalog atoms, failing
// with a ValidationError on the first unknown codename.
func (s *Store) PermissionsByCodenames(ctx context.Context, codenames []string) ([]Permission, error) {
	out := make([]Permission, 0, len(codenames))
	for _, codename := range codenames {
		p, err := s.GetPermissionByCodename(ctx, codename)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("permission %q does not exist", codename)
			}
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// CreateRoleDefinition inserts the definition and its permission rows,
// filling in the generated id and timestamps.
func (s *Store) CreateRoleDefinition(ctx context.Context, rd *RoleDefinition) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO role_definitions (name, description, managed, content_type_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		rd.Name, rd.Description, rd.Managed, rd.ContentTypeID, rd.CreatedBy,
	).Scan(&rd.ID, &rd.CreatedAt, &rd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role definition %s: %w", rd.Name, err)
	}
	for _, p := range rd.Permissions {
		if err := s.AddDefinitionPermission(ctx, rd.ID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// AddDefinitionPermission links one catalog atom to a definition.
func (s *Store) AddDefinitionPermission(ctx context.Context, rdID, permissionID int64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO role_definition_permissions (role_definition_id, permission_id)
		VALUES ($1, $2) ON CONFLICT (role_definition_id, permission_id) DO NOTHING`,
		rdID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to add permission to role definition: %w", err)
	}
	return nil
}

// RemoveDefinitionPermission unlinks one catalog atom from a definition.
func (s *Store) RemoveDefinitionPermission(ctx context.Context, rdID, permissionID int64) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM role_definition_permissions WHERE role_definition_id = $1 AND permission_id = $2",
		rdID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to remove permission from role definition: %w", err)
	}
	return nil
}

// ClearDefinitionPermissions unlinks every atom from a definition.
func (s *Store) ClearDefinitionPermissions(ctx context.Context, rdID int64) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM role_definition_permissions WHERE role_definition_id = $1", rdID)
	if err != nil {
		return fmt.Errorf("failed to clear role definition permissions: %w", err)
	}
	return nil
}

// TouchRoleDefinition bumps updated_at after a permission mutation.
func (s *Store) TouchRoleDefinition(ctx context.Context, rdID int64) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE role_definitions SET updated_at = CURRENT_TIMESTAMP WHERE id = $1", rdID)
	if err != nil {
		return fmt.Errorf("failed to touch role definition: %w", err)
	}
	return nil
}

func (s *Store) scanRoleDefinition(row *sql.Row) (*RoleDefinition, error) {
	var rd RoleDefinition
	var ctID sql.NullInt64
	var createdBy sql.NullInt64
	err := row.Scan(&rd.ID, &rd.Name, &rd.Description, &rd.Managed, &ctID, &createdBy, &rd.CreatedAt, &rd.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role definition: %w", err)
	}
	if ctID.Valid {
		rd.ContentTypeID = &ctID.Int64
	}
	if createdBy.Valid {
		rd.CreatedBy = &createdBy.Int64
	}
	return &rd, nil
}

// GetRoleDefinition fetches a definition and its permissions by id.
func (s *Store) GetRoleDefinition(ctx context.Context, id int64) (*RoleDefinition, error) {
	rd, err := s.scanRoleDefinition(s.q.QueryRowContext(ctx, `
		SELECT id, name, description, managed, content_type_id, created_by, created_at, updated_at
		FROM role_definitions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return s.attachPermissions(ctx, rd)
}

// GetRoleDefinitionByName fetches a definition and its permissions by name.
func (s *Store) GetRoleDefinitionByName(ctx context.Context, name string) (*RoleDefinition, error) {
	rd, err := s.scanRoleDefinition(s.q.QueryRowContext(ctx, `
		SELECT id, name, description, managed, content_type_id, created_by, created_at, updated_at
		FROM role_definitions WHERE name = $1`, name))
	if err != nil {
		return nil, err
	}
	return s.attachPermissions(ctx, rd)
}

func (s *Store) attachPermissions(ctx context.Context, rd *RoleDefinition) (*RoleDefinition, error) {
	perms, err := s.DefinitionPermissions(ctx, rd.ID)
	if err != nil {
		return nil, err
	}
	rd.Permissions = perms
	return rd, nil
}

// DefinitionPermissions returns the atoms linked to a definition.
func (s *Store) DefinitionPermissions(ctx context.Context, rdID int64) ([]Permission, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT p.id, p.codename, p.content_type_id
		FROM permissions p
		JOIN role_definition_permissions rdp ON rdp.permission_id = p.id
		WHERE rdp.role_definition_id = $1
		ORDER BY p.id`, rdID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role definition permissions: %w", err)
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Codename, &p.ContentTypeID); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListRoleDefinitions returns every definition with permissions attached.
func (s *Store) ListRoleDefinitions(ctx context.Context) ([]*RoleDefinition, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, description, managed, content_type_id, created_by, created_at, updated_at
		FROM role_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list role definitions: %w", err)
	}
	defer rows.Close()
	var out []*RoleDefinition
	for rows.Next() {
		var rd RoleDefinition
		var ctID, createdBy sql.NullInt64
		if err := rows.Scan(&rd.ID, &rd.Name, &rd.Description, &rd.Managed, &ctID, &createdBy, &rd.CreatedAt, &rd.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role definition: %w", err)
		}
		if ctID.Valid {
			rd.ContentTypeID = &ctID.Int64
		}
		if createdBy.Valid {
			rd.CreatedBy = &createdBy.Int64
		}
		out = append(out, &rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rd := range out {
		if _, err := s.attachPermissions(ctx, rd); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteRoleDefinition removes a definition. Its object roles,
// assignments, and permission links go with it.
func (s *Store) DeleteRoleDefinition(ctx context.Context, id int64) error {
	roles, err := s.ObjectRolesForDefinition(ctx, id)
	if err != nil {
		return err
	}
	for _, role := range roles {
		if err := s.DeleteObjectRole(ctx, role.ID); err != nil {
			return err
		}
	}
	for _, table := range []string{"role_user_assignments", "role_team_assignments", "role_definition_permissions"} {
		if _, err := s.q.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE role_definition_id = $1", table), id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	res, err := s.q.ExecContext(ctx, "DELETE FROM role_definitions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete role definition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignmentCountForDefinition counts user plus team assignments.
func (s *Store) AssignmentCountForDefinition(ctx context.Context, rdID int64) (int64, error) {
	var users, teams int64
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM role_user_assignments WHERE role_definition_id = $1", rdID).Scan(&users)
	if err != nil {
		return 0, fmt.Errorf("failed to count user assignments: %w", err)
	}
	err = s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM role_team_assignments WHERE role_definition_id = $1", rdID).Scan(&teams)
	if err != nil {
		return 0, fmt.Errorf("failed to count team assignments: %w", err)
	}
	return users + teams, nil
}

// GetObjectRole fetches the unique role for (definition, type, object).
func (s *Store) GetObjectRole(ctx context.Context, rdID, ctID int64, objectID string) (*ObjectRole, error) {
	var or ObjectRole
	err := s.q.QueryRowContext(ctx, `
		SELECT id, role_definition_id, content_type_id, object_id, created_at
		FROM object_roles
		WHERE role_definition_id = $1 AND content_type_id = $2 AND object_id = $3`,
		rdID, ctID, objectID,
	).Scan(&or.ID, &or.RoleDefinitionID, &or.ContentTypeID, &or.ObjectID, &or.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object role: %w", err)
	}
	return &or, nil
}

// GetOrCreateObjectRole returns the role for (definition, type, object),
// creating it if absent. Insert races resolve by re-fetch.
func (s *Store) GetOrCreateObjectRole(ctx context.Context, rdID, ctID int64, objectID string) (*ObjectRole, bool, error) {
	or, err := s.GetObjectRole(ctx, rdID, ctID, objectID)
	if err == nil {
		return or, false, nil
	}
	if err != ErrNotFound {
		return nil, false, err
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO object_roles (role_definition_id, content_type_id, object_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		rdID, ctID, objectID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create object role: %w", err)
	}
	created := false
	if n, _ := res.RowsAffected(); n > 0 {
		created = true
	}
	or, err = s.GetObjectRole(ctx, rdID, ctID, objectID)
	if err != nil {
		return nil, false, err
	}
	return or, created, nil
}

// DeleteObjectRole removes a role, its edges, evaluations, and
// assignments. Explicit deletes keep the behavior identical across
// backends that lack cascading foreign keys.
func (s *Store) DeleteObjectRole(ctx context.Context, orID int64) error {
	for _, table := range []string{
		"role_evaluations_int", "role_evaluations_uuid",
	} {
		if _, err := s.q.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE role_id = $1", table), orID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	for _, table := range []string{
		"object_role_users", "object_role_teams", "object_role_provides_teams",
		"role_user_assignments", "role_team_assignments",
	} {
		if _, err := s.q.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE object_role_id = $1", table), orID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if _, err := s.q.ExecContext(ctx, "DELETE FROM object_roles WHERE id = $1", orID); err != nil {
		return fmt.Errorf("failed to delete object role: %w", err)
	}
	return nil
}

func (s *Store) queryObjectRoles(ctx context.Context, query string, args ...interface{}) ([]*ObjectRole, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query object roles: %w", err)
	}
	defer rows.Close()
	var out []*ObjectRole
	for rows.Next() {
		var or ObjectRole
		if err := rows.Scan(&or.ID, &or.RoleDefinitionID, &or.ContentTypeID, &or.ObjectID, &or.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan object role: %w", err)
		}
		out = append(out, &or)
	}
	return out, rows.Err()
}

// ObjectRoleByID fetches one role by primary key.
func (s *Store) ObjectRoleByID(ctx context.Context, id int64) (*ObjectRole, error) {
	var or ObjectRole
	err := s.q.QueryRowContext(ctx, `
		SELECT id, role_definition_id, content_type_id, object_id, created_at
		FROM object_roles WHERE id = $1`, id,
	).Scan(&or.ID, &or.RoleDefinitionID, &or.ContentTypeID, &or.ObjectID, &or.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object role: %w", err)
	}
	return &or, nil
}

// AllObjectRoles returns every object role.
func (s *Store) AllObjectRoles(ctx context.Context) ([]*ObjectRole, error) {
	return s.queryObjectRoles(ctx, `
		SELECT id, role_definition_id, content_type_id, object_id, created_at
		FROM object_roles ORDER BY id`)
}

// ObjectRolesForDefinition returns every role of one definition.
func (s *Store) ObjectRolesForDefinition(ctx context.Context, rdID int64) ([]*ObjectRole, error) {
	return s.queryObjectRoles(ctx, `
		SELECT id, role_definition_id, content_type_id, object_id, created_at
		FROM object_roles WHERE role_definition_id = $1 ORDER BY id`, rdID)
}

// ObjectRolesForObject returns every role attached to one object.
func (s *Store) ObjectRolesForObject(ctx context.Context, ctID int64, objectID string) ([]*ObjectRole, error) {
	return s.queryObjectRoles(ctx, `
		SELECT id, role_definition_id, content_type_id, object_id, created_at
		FROM object_roles WHERE content_type_id = $1 AND object_id = $2 ORDER BY id`, ctID, objectID)
}

// ObjectRolesWithCodename returns roles whose definition carries the
// codename, regardless of where they attach.
func (s *Store) ObjectRolesWithCodename(ctx context.Context, codename string) ([]*ObjectRole, error) {
	return s.queryObjectRoles(ctx, `
		SELECT o.id, o.role_definition_id, o.content_type_id, o.object_id, o.created_at
		FROM object_roles o
		JOIN role_definition_permissions rdp ON rdp.role_definition_id = o.role_definition_id
		JOIN permissions p ON p.id = rdp.permission_id
		WHERE p.codename = $1 ORDER BY o.id`, codename)
}

// ObjectRolesWithEvaluation returns roles whose materialized tuples
// include the exact (codename, type, object) entry. Only integer-pk
// targets are relevant here; team lookups are the sole caller.
func (s *Store) ObjectRolesWithEvaluation(ctx context.Context, codename string, ctID, objectID int64) ([]*ObjectRole, error) {
	return s.queryObjectRoles(ctx, `
		SELECT o.id, o.role_definition_id, o.content_type_id, o.object_id, o.created_at
		FROM object_roles o
		WHERE o.id IN (
			SELECT e.role_id FROM role_evaluations_int e
			WHERE e.codename = $1 AND e.content_type_id = $2 AND e.object_id = $3
		) ORDER BY o.id`, codename, ctID, objectID)
}

// TeamsOfRole returns the ids of teams directly holding the role.
func (s *Store) TeamsOfRole(ctx context.Context, orID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT team_id FROM object_role_teams WHERE object_role_id = $1 ORDER BY team_id", orID)
	if err != nil {
		return nil, fmt.Errorf("failed to query role teams: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddUserToRole adds the membership edge; returns false if it existed.
func (s *Store) AddUserToRole(ctx context.Context, orID, userID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO object_role_users (object_role_id, user_id)
		VALUES ($1, $2) ON CONFLICT (object_role_id, user_id) DO NOTHING`, orID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to add user to object role: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveUserFromRole removes the edge; returns false if it was absent.
func (s *Store) RemoveUserFromRole(ctx context.Context, orID, userID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM object_role_users WHERE object_role_id = $1 AND user_id = $2", orID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove user from object role: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddTeamToRole adds the team membership edge.
func (s *Store) AddTeamToRole(ctx context.Context, orID, teamID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO object_role_teams (object_role_id, team_id)
		VALUES ($1, $2) ON CONFLICT (object_role_id, team_id) DO NOTHING`, orID, teamID)
	if err != nil {
		return false, fmt.Errorf("failed to add team to object role: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveTeamFromRole removes the team membership edge.
func (s *Store) RemoveTeamFromRole(ctx context.Context, orID, teamID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM object_role_teams WHERE object_role_id = $1 AND team_id = $2", orID, teamID)
	if err != nil {
		return false, fmt.Errorf("failed to remove team from object role: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RoleHasActors reports whether any user or team still holds the role.
func (s *Store) RoleHasActors(ctx context.Context, orID int64) (bool, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM object_role_users WHERE object_role_id = $1)
		     + (SELECT COUNT(*) FROM object_role_teams WHERE object_role_id = $2)`,
		orID, orID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count role actors: %w", err)
	}
	return n > 0, nil
}

// GetOrCreateUserAssignment records an assignment, returning created=false
// when the identical assignment already exists.
func (s *Store) GetOrCreateUserAssignment(ctx context.Context, a *RoleUserAssignment) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO role_user_assignments (role_definition_id, user_id, object_role_id, content_type_id, object_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
		a.RoleDefinitionID, a.UserID, a.ObjectRoleID, a.ContentTypeID, a.ObjectID, a.CreatedBy)
	if err != nil {
		return false, fmt.Errorf("failed to create user assignment: %w", err)
	}
	inserted, _ := res.RowsAffected()
	row := s.q.QueryRowContext(ctx, userAssignmentLookup(a.ObjectRoleID),
		userAssignmentLookupArgs(a)...)
	var createdBy sql.NullInt64
	if err := row.Scan(&a.ID, &createdBy, &a.CreatedAt); err != nil {
		return false, fmt.Errorf("failed to fetch user assignment: %w", err)
	}
	if createdBy.Valid {
		a.CreatedBy = &createdBy.Int64
	}
	return inserted > 0, nil
}

func userAssignmentLookup(objectRoleID *int64) string {
	if objectRoleID == nil {
		return `SELECT id, created_by, created_at FROM role_user_assignments
			WHERE user_id = $1 AND role_definition_id = $2 AND object_role_id IS NULL`
	}
	return `SELECT id, created_by, created_at FROM role_user_assignments
		WHERE user_id = $1 AND object_role_id = $2`
}

func userAssignmentLookupArgs(a *RoleUserAssignment) []interface{} {
	if a.ObjectRoleID == nil {
		return []interface{}{a.UserID, a.RoleDefinitionID}
	}
	return []interface{}{a.UserID, *a.ObjectRoleID}
}

// DeleteUserAssignment removes an assignment, object-scoped when orID is
// set, global otherwise. Returns false when nothing matched.
func (s *Store) DeleteUserAssignment(ctx context.Context, userID, rdID int64, orID *int64) (bool, error) {
	var res sql.Result
	var err error
	if orID == nil {
		res, err = s.q.ExecContext(ctx, `
			DELETE FROM role_user_assignments
			WHERE user_id = $1 AND role_definition_id = $2 AND object_role_id IS NULL`, userID, rdID)
	} else {
		res, err = s.q.ExecContext(ctx,
			"DELETE FROM role_user_assignments WHERE user_id = $1 AND object_role_id = $2", userID, *orID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete user assignment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetOrCreateTeamAssignment is the team counterpart of
// GetOrCreateUserAssignment.
func (s *Store) GetOrCreateTeamAssignment(ctx context.Context, a *RoleTeamAssignment) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO role_team_assignments (role_definition_id, team_id, object_role_id, content_type_id, object_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
		a.RoleDefinitionID, a.TeamID, a.ObjectRoleID, a.ContentTypeID, a.ObjectID, a.CreatedBy)
	if err != nil {
		return false, fmt.Errorf("failed to create team assignment: %w", err)
	}
	inserted, _ := res.RowsAffected()
	var query string
	var args []interface{}
	if a.ObjectRoleID == nil {
		query = `SELECT id, created_by, created_at FROM role_team_assignments
			WHERE team_id = $1 AND role_definition_id = $2 AND object_role_id IS NULL`
		args = []interface{}{a.TeamID, a.RoleDefinitionID}
	} else {
		query = `SELECT id, created_by, created_at FROM role_team_assignments
			WHERE team_id = $1 AND object_role_id = $2`
		args = []interface{}{a.TeamID, *a.ObjectRoleID}
	}
	var createdBy sql.NullInt64
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&a.ID, &createdBy, &a.CreatedAt); err != nil {
		return false, fmt.Errorf("failed to fetch team assignment: %w", err)
	}
	if createdBy.Valid {
		a.CreatedBy = &createdBy.Int64
	}
	return inserted > 0, nil
}

// DeleteTeamAssignment removes a team assignment.
func (s *Store) DeleteTeamAssignment(ctx context.Context, teamID, rdID int64, orID *int64) (bool, error) {
	var res sql.Result
	var err error
	if orID == nil {
		res, err = s.q.ExecContext(ctx, `
			DELETE FROM role_team_assignments
			WHERE team_id = $1 AND role_definition_id = $2 AND object_role_id IS NULL`, teamID, rdID)
	} else {
		res, err = s.q.ExecContext(ctx,
			"DELETE FROM role_team_assignments WHERE team_id = $1 AND object_role_id = $2", teamID, *orID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete team assignment: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PurgeTeamActor removes every engine edge referencing a deleted team:
// held roles, provided memberships, and assignments.
func (s *Store) PurgeTeamActor(ctx context.Context, teamID int64) error {
	for _, table := range []string{"object_role_teams", "object_role_provides_teams"} {
		if _, err := s.q.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE team_id = $1", table), teamID); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	if _, err := s.q.ExecContext(ctx,
		"DELETE FROM role_team_assignments WHERE team_id = $1", teamID); err != nil {
		return fmt.Errorf("failed to purge team assignments: %w", err)
	}
	return nil
}
