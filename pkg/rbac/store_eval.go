package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// evalAddition is a tuple queued for insertion into a partition.
type evalAddition struct {
	roleID int64
	key    evalKey
	pk     PKKind
}

func evalTable(pk PKKind) string {
	if pk == PKUUID {
		return "role_evaluations_uuid"
	}
	return "role_evaluations_int"
}

// EvaluationsForRole returns the stored tuples of one object role from
// both partitions, object ids in text form.
func (s *Store) EvaluationsForRole(ctx context.Context, orID int64) ([]evalRow, error) {
	var out []evalRow
	for _, pk := range []PKKind{PKInt, PKUUID} {
		rows, err := s.q.QueryContext(ctx, fmt.Sprintf(
			"SELECT id, codename, content_type_id, object_id FROM %s WHERE role_id = $1", evalTable(pk)), orID)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", evalTable(pk), err)
		}
		for rows.Next() {
			var r evalRow
			var objText string
			if pk == PKInt {
				var obj int64
				if err := rows.Scan(&r.id, &r.key.codename, &r.key.contentTypeID, &obj); err != nil {
					rows.Close()
					return nil, fmt.Errorf("failed to scan evaluation: %w", err)
				}
				objText = fmt.Sprintf("%d", obj)
			} else {
				if err := rows.Scan(&r.id, &r.key.codename, &r.key.contentTypeID, &objText); err != nil {
					rows.Close()
					return nil, fmt.Errorf("failed to scan evaluation: %w", err)
				}
			}
			r.key.objectID = objText
			r.pk = pk
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// BulkCreateEvaluations inserts tuples into their partitions in batches.
func (s *Store) BulkCreateEvaluations(ctx context.Context, adds []evalAddition) error {
	byPartition := map[PKKind][]evalAddition{}
	for _, a := range adds {
		byPartition[a.pk] = append(byPartition[a.pk], a)
	}
	for pk, batch := range byPartition {
		const chunkSize = 500
		for start := 0; start < len(batch); start += chunkSize {
			end := start + chunkSize
			if end > len(batch) {
				end = len(batch)
			}
			chunk := batch[start:end]
			values := make([]string, 0, len(chunk))
			args := make([]interface{}, 0, len(chunk)*4)
			for i, a := range chunk {
				n := i * 4
				values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4))
				objID, err := ParseResourceID(pk, a.key.objectID)
				if err != nil {
					return err
				}
				var objArg interface{}
				if pk == PKInt {
					objArg = objID.Int()
				} else {
					objArg = objID.String()
				}
				args = append(args, a.roleID, a.key.codename, a.key.contentTypeID, objArg)
			}
			query := fmt.Sprintf(
				"INSERT INTO %s (role_id, codename, content_type_id, object_id) VALUES %s ON CONFLICT DO NOTHING",
				evalTable(pk), strings.Join(values, ", "))
			if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert evaluations: %w", err)
			}
		}
	}
	return nil
}

// BulkDeleteEvaluations removes tuples from one partition by row id.
func (s *Store) BulkDeleteEvaluations(ctx context.Context, pk PKKind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", evalTable(pk), strings.Join(placeholders, ", "))
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete evaluations: %w", err)
	}
	return nil
}

// ChildIDs returns the primary keys, in text form, of every row of
// chain[0]'s type sitting below the root object. The chain joins child
// tables upward; the last hop's parent column matches the root id.
func (s *Store) ChildIDs(ctx context.Context, chain []*ResourceType, rootID ResourceID) ([]string, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("empty child chain")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT t0.%s FROM %s t0", chain[0].PKColumn, chain[0].Table)
	for i := 1; i < len(chain); i++ {
		fmt.Fprintf(&b, " JOIN %s t%d ON t%d.%s = t%d.%s",
			chain[i].Table, i, i-1, chain[i-1].ParentColumn, i, chain[i].PKColumn)
	}
	fmt.Fprintf(&b, " WHERE t%d.%s = $1", len(chain)-1, chain[len(chain)-1].ParentColumn)

	rows, err := s.q.QueryContext(ctx, b.String(), bindResourceID(rootID))
	if err != nil {
		return nil, fmt.Errorf("failed to query child ids of %s: %w", chain[0].Name, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		text, err := scanObjectID(rows, chain[0].PK)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// ParentObjectID reads the parent FK of one host row. ok is false when
// the row is missing or the FK is null.
func (s *Store) ParentObjectID(ctx context.Context, rt *ResourceType, objectID string) (string, bool, error) {
	parent := s.reg.ParentType(rt.Name)
	if parent == nil {
		return "", false, nil
	}
	objID, err := ParseResourceID(rt.PK, objectID)
	if err != nil {
		return "", false, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", rt.ParentColumn, rt.Table, rt.PKColumn)
	var parentID sql.NullString
	if parent.PK == PKInt {
		var n sql.NullInt64
		err = s.q.QueryRowContext(ctx, query, bindResourceID(objID)).Scan(&n)
		if n.Valid {
			parentID = sql.NullString{String: fmt.Sprintf("%d", n.Int64), Valid: true}
		}
	} else {
		err = s.q.QueryRowContext(ctx, query, bindResourceID(objID)).Scan(&parentID)
	}
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read parent of %s %s: %w", rt.Name, objectID, err)
	}
	return parentID.String, parentID.Valid, nil
}

// AllObjectIDs returns every primary key of a host table in text form.
func (s *Store) AllObjectIDs(ctx context.Context, rt *ResourceType) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", rt.PKColumn, rt.Table, rt.PKColumn))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", rt.Name, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		text, err := scanObjectID(rows, rt.PK)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// AllTeamIDs returns every team primary key from the host team table.
func (s *Store) AllTeamIDs(ctx context.Context) ([]int64, error) {
	tt := s.reg.types[s.reg.TeamType()]
	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", tt.PKColumn, tt.Table, tt.PKColumn))
	if err != nil {
		return nil, fmt.Errorf("failed to list team ids: %w", err)
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

// TeamOrgMapping maps each parent object id (text) to the team ids it
// contains. Empty when the team type has no parent.
func (s *Store) TeamOrgMapping(ctx context.Context) (map[string][]int64, error) {
	tt := s.reg.types[s.reg.TeamType()]
	out := map[string][]int64{}
	if tt.ParentType == "" {
		return out, nil
	}
	parent := s.reg.types[tt.ParentType]
	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IS NOT NULL", tt.PKColumn, tt.ParentColumn, tt.Table, tt.ParentColumn))
	if err != nil {
		return nil, fmt.Errorf("failed to map teams to parents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var teamID int64
		var parentText string
		if parent.PK == PKInt {
			var p int64
			if err := rows.Scan(&teamID, &p); err != nil {
				return nil, fmt.Errorf("failed to scan team parent: %w", err)
			}
			parentText = fmt.Sprintf("%d", p)
		} else {
			if err := rows.Scan(&teamID, &parentText); err != nil {
				return nil, fmt.Errorf("failed to scan team parent: %w", err)
			}
		}
		out[parentText] = append(out[parentText], teamID)
	}
	return out, rows.Err()
}

// membershipEdge is one team-held role that grants team membership.
type membershipEdge struct {
	role        ObjectRole
	actorTeamID int64
}

// TeamHeldMembershipEdges returns, for roles whose definition carries
// the membership codename, every (role, holding team) pair.
func (s *Store) TeamHeldMembershipEdges(ctx context.Context, codename string) ([]membershipEdge, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT o.id, o.role_definition_id, o.content_type_id, o.object_id, o.created_at, ot.team_id
		FROM object_roles o
		JOIN object_role_teams ot ON ot.object_role_id = o.id
		JOIN role_definition_permissions rdp ON rdp.role_definition_id = o.role_definition_id
		JOIN permissions p ON p.id = rdp.permission_id
		WHERE p.codename = $1 ORDER BY o.id, ot.team_id`, codename)
	if err != nil {
		return nil, fmt.Errorf("failed to query team membership edges: %w", err)
	}
	defer rows.Close()
	var out []membershipEdge
	for rows.Next() {
		var e membershipEdge
		if err := rows.Scan(&e.role.ID, &e.role.RoleDefinitionID, &e.role.ContentTypeID, &e.role.ObjectID, &e.role.CreatedAt, &e.actorTeamID); err != nil {
			return nil, fmt.Errorf("failed to scan membership edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// providesEdge is one (object role, provided team) pair.
type providesEdge struct {
	roleID int64
	teamID int64
}

// ProvidesTeamEdges returns the whole provides_teams relation.
func (s *Store) ProvidesTeamEdges(ctx context.Context) ([]providesEdge, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT object_role_id, team_id FROM object_role_provides_teams ORDER BY object_role_id, team_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query provides edges: %w", err)
	}
	defer rows.Close()
	var out []providesEdge
	for rows.Next() {
		var e providesEdge
		if err := rows.Scan(&e.roleID, &e.teamID); err != nil {
			return nil, fmt.Errorf("failed to scan provides edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddProvidesTeam records that holding the role confers team membership.
func (s *Store) AddProvidesTeam(ctx context.Context, orID, teamID int64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO object_role_provides_teams (object_role_id, team_id)
		VALUES ($1, $2) ON CONFLICT (object_role_id, team_id) DO NOTHING`, orID, teamID)
	if err != nil {
		return fmt.Errorf("failed to add provides edge: %w", err)
	}
	return nil
}

// RemoveProvidesTeam drops one provides edge.
func (s *Store) RemoveProvidesTeam(ctx context.Context, orID, teamID int64) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM object_role_provides_teams WHERE object_role_id = $1 AND team_id = $2", orID, teamID)
	if err != nil {
		return fmt.Errorf("failed to remove provides edge: %w", err)
	}
	return nil
}

// ProvidedTeamsOfRole returns the team ids a role provides membership to.
func (s *Store) ProvidedTeamsOfRole(ctx context.Context, orID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT team_id FROM object_role_provides_teams WHERE object_role_id = $1 ORDER BY team_id", orID)
	if err != nil {
		return nil, fmt.Errorf("failed to query provided teams: %w", err)
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

// RolesHeldByTeam returns the roles directly assigned to a team.
func (s *Store) RolesHeldByTeam(ctx context.Context, teamID int64) ([]*ObjectRole, error) {
	return s.queryObjectRoles(ctx, `
		SELECT o.id, o.role_definition_id, o.content_type_id, o.object_id, o.created_at
		FROM object_roles o
		JOIN object_role_teams ot ON ot.object_role_id = o.id
		WHERE ot.team_id = $1 ORDER BY o.id`, teamID)
}

// MemberRolesOfTeam returns the roles that confer membership in a team.
func (s *Store) MemberRolesOfTeam(ctx context.Context, teamID int64) ([]*ObjectRole, error) {
	return s.queryObjectRoles(ctx, `
		SELECT o.id, o.role_definition_id, o.content_type_id, o.object_id, o.created_at
		FROM object_roles o
		JOIN object_role_provides_teams pt ON pt.object_role_id = o.id
		WHERE pt.team_id = $1 ORDER BY o.id`, teamID)
}

func actorJoin(actor Actor) (table, column string, id int64) {
	switch a := actor.(type) {
	case User:
		return "object_role_users", "user_id", a.ID
	case Team:
		return "object_role_teams", "team_id", a.ID
	}
	return "", "", 0
}

// ActorHasEvaluation checks one materialized tuple against the roles the
// actor directly holds.
func (s *Store) ActorHasEvaluation(ctx context.Context, actor Actor, pk PKKind, codename string, ctID int64, objectID string) (bool, error) {
	table, column, actorID := actorJoin(actor)
	objID, err := ParseResourceID(pk, objectID)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s e
		JOIN %s edge ON edge.object_role_id = e.role_id
		WHERE edge.%s = $1 AND e.codename = $2 AND e.content_type_id = $3 AND e.object_id = $4`,
		evalTable(pk), table, column)
	var n int64
	if err := s.q.QueryRowContext(ctx, query, actorID, codename, ctID, bindResourceID(objID)).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check evaluation: %w", err)
	}
	return n > 0, nil
}

// AccessibleObjectIDs returns the distinct object ids, in text form, on
// which the actor holds the codename for one content type.
func (s *Store) AccessibleObjectIDs(ctx context.Context, actor Actor, pk PKKind, codename string, ctID int64) ([]string, error) {
	table, column, actorID := actorJoin(actor)
	query := fmt.Sprintf(`
		SELECT DISTINCT e.object_id FROM %s e
		JOIN %s edge ON edge.object_role_id = e.role_id
		WHERE edge.%s = $1 AND e.codename = $2 AND e.content_type_id = $3
		ORDER BY e.object_id`, evalTable(pk), table, column)
	rows, err := s.q.QueryContext(ctx, query, actorID, codename, ctID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accessible ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		text, err := scanObjectID(rows, pk)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// ObjectCodenames returns the distinct codenames the actor holds on one
// object through the evaluation cache.
func (s *Store) ObjectCodenames(ctx context.Context, actor Actor, pk PKKind, ctID int64, objectID string) ([]string, error) {
	table, column, actorID := actorJoin(actor)
	objID, err := ParseResourceID(pk, objectID)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT e.codename FROM %s e
		JOIN %s edge ON edge.object_role_id = e.role_id
		WHERE edge.%s = $1 AND e.content_type_id = $2 AND e.object_id = $3
		ORDER BY e.codename`, evalTable(pk), table, column)
	rows, err := s.q.QueryContext(ctx, query, actorID, ctID, bindResourceID(objID))
	if err != nil {
		return nil, fmt.Errorf("failed to query object codenames: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var codename string
		if err := rows.Scan(&codename); err != nil {
			return nil, fmt.Errorf("failed to scan codename: %w", err)
		}
		out = append(out, codename)
	}
	return out, rows.Err()
}

// GlobalPermissionsForUser returns the atoms of global definitions the
// user is directly assigned.
func (s *Store) GlobalPermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	return s.queryPermissions(ctx, `
		SELECT DISTINCT p.id, p.codename, p.content_type_id
		FROM permissions p
		JOIN role_definition_permissions rdp ON rdp.permission_id = p.id
		JOIN role_user_assignments a ON a.role_definition_id = rdp.role_definition_id
		WHERE a.user_id = $1 AND a.object_role_id IS NULL
		ORDER BY p.id`, userID)
}

// GlobalPermissionsForTeams returns the atoms of global definitions
// assigned to any of the teams.
func (s *Store) GlobalPermissionsForTeams(ctx context.Context, teamIDs []int64) ([]Permission, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(teamIDs))
	args := make([]interface{}, len(teamIDs))
	for i, id := range teamIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT p.id, p.codename, p.content_type_id
		FROM permissions p
		JOIN role_definition_permissions rdp ON rdp.permission_id = p.id
		JOIN role_team_assignments a ON a.role_definition_id = rdp.role_definition_id
		WHERE a.team_id IN (%s) AND a.object_role_id IS NULL
		ORDER BY p.id`, strings.Join(placeholders, ", "))
	return s.queryPermissions(ctx, query, args...)
}

// TeamsProvidedToUser returns the ids of teams the user is a member of,
// through the roles the user holds.
func (s *Store) TeamsProvidedToUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT pt.team_id
		FROM object_role_provides_teams pt
		JOIN object_role_users oru ON oru.object_role_id = pt.object_role_id
		WHERE oru.user_id = $1 ORDER BY pt.team_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user teams: %w", err)
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

func (s *Store) queryPermissions(ctx context.Context, query string, args ...interface{}) ([]Permission, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
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

// VisibleUserAssignments lists user assignments on objects the viewer
// holds any permission for. superCTIDs extends visibility to global
// assignments and whole content types when the viewer has global roles.
func (s *Store) VisibleUserAssignments(ctx context.Context, viewerID int64, superCTIDs []int64, includeGlobal bool) ([]*RoleUserAssignment, error) {
	query, args := visibleAssignmentQuery("role_user_assignments", "user_id", viewerID, superCTIDs, includeGlobal)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visible assignments: %w", err)
	}
	defer rows.Close()
	var out []*RoleUserAssignment
	for rows.Next() {
		var a RoleUserAssignment
		var orID, ctID, createdBy sql.NullInt64
		var objectID sql.NullString
		if err := rows.Scan(&a.ID, &a.RoleDefinitionID, &a.UserID, &orID, &ctID, &objectID, &createdBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if orID.Valid {
			a.ObjectRoleID = &orID.Int64
		}
		if ctID.Valid {
			a.ContentTypeID = &ctID.Int64
		}
		if objectID.Valid {
			a.ObjectID = &objectID.String
		}
		if createdBy.Valid {
			a.CreatedBy = &createdBy.Int64
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// VisibleTeamAssignments is the team-assignment counterpart of
// VisibleUserAssignments.
func (s *Store) VisibleTeamAssignments(ctx context.Context, viewerID int64, superCTIDs []int64, includeGlobal bool) ([]*RoleTeamAssignment, error) {
	query, args := visibleAssignmentQuery("role_team_assignments", "team_id", viewerID, superCTIDs, includeGlobal)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visible assignments: %w", err)
	}
	defer rows.Close()
	var out []*RoleTeamAssignment
	for rows.Next() {
		var a RoleTeamAssignment
		var orID, ctID, createdBy sql.NullInt64
		var objectID sql.NullString
		if err := rows.Scan(&a.ID, &a.RoleDefinitionID, &a.TeamID, &orID, &ctID, &objectID, &createdBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if orID.Valid {
			a.ObjectRoleID = &orID.Int64
		}
		if ctID.Valid {
			a.ContentTypeID = &ctID.Int64
		}
		if objectID.Valid {
			a.ObjectID = &objectID.String
		}
		if createdBy.Valid {
			a.CreatedBy = &createdBy.Int64
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// visibleAssignmentQuery builds the listing filter: an assignment is
// visible when the viewer holds any evaluation on its object, or via
// global grants when the viewer has any themselves.
func visibleAssignmentQuery(table, actorColumn string, viewerID int64, superCTIDs []int64, includeGlobal bool) (string, []interface{}) {
	args := []interface{}{viewerID, viewerID}
	conds := []string{`
		EXISTS (
			SELECT 1 FROM role_evaluations_int e
			JOIN object_role_users oru ON oru.object_role_id = e.role_id
			WHERE oru.user_id = $1 AND e.content_type_id = a.content_type_id
			  AND CAST(e.object_id AS TEXT) = a.object_id
		)`, `
		EXISTS (
			SELECT 1 FROM role_evaluations_uuid e
			JOIN object_role_users oru ON oru.object_role_id = e.role_id
			WHERE oru.user_id = $2 AND e.content_type_id = a.content_type_id
			  AND CAST(e.object_id AS TEXT) = a.object_id
		)`}
	if includeGlobal {
		conds = append(conds, "a.content_type_id IS NULL")
	}
	for _, ctID := range superCTIDs {
		args = append(args, ctID)
		conds = append(conds, fmt.Sprintf("a.content_type_id = $%d", len(args)))
	}
	query := fmt.Sprintf(`
		SELECT a.id, a.role_definition_id, a.%s, a.object_role_id, a.content_type_id, a.object_id, a.created_by, a.created_at
		FROM %s a
		WHERE %s
		ORDER BY a.id`, actorColumn, table, strings.Join(conds, " OR "))
	return query, args
}

// bindResourceID converts an id to the driver argument matching the
// partition column type.
func bindResourceID(id ResourceID) interface{} {
	if id.Kind() == PKInt {
		return id.Int()
	}
	return id.String()
}

// scanObjectID reads one id column of either pk kind into text form.
func scanObjectID(rows *sql.Rows, pk PKKind) (string, error) {
	if pk == PKInt {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return "", fmt.Errorf("failed to scan object id: %w", err)
		}
		return fmt.Sprintf("%d", n), nil
	}
	var u string
	if err := rows.Scan(&u); err != nil {
		return "", fmt.Errorf("failed to scan object id: %w", err)
	}
	if _, err := uuid.Parse(u); err != nil {
		return "", fmt.Errorf("invalid uuid object id %q: %w", u, err)
	}
	return u, nil
}
