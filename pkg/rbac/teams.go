package rbac

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// allTeamParents walks the team parentage graph upward from one team
// and returns every ancestor. The seen set bounds the walk so cycles in
// the graph terminate.
func allTeamParents(teamID int64, parents map[int64][]int64) map[int64]bool {
	ancestors := map[int64]bool{}
	stack := append([]int64{}, parents[teamID]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ancestors[next] {
			continue
		}
		ancestors[next] = true
		stack = append(stack, parents[next]...)
	}
	return ancestors
}

// computeTeamMemberRoles rebuilds the provides_teams relation for every
// team: the set of object roles that confer membership in it, directly
// or through a chain of team-held membership roles. It always runs
// globally and returns the ids of object roles whose provided set
// changed, so callers can re-materialize exactly those.
func computeTeamMemberRoles(ctx context.Context, st *Store, reg *Registry, log *logrus.Logger) (map[int64]bool, error) {
	teamType := reg.TeamType()
	teamCT, err := reg.ContentTypeID(teamType)
	if err != nil {
		return nil, err
	}
	var orgCT int64 = -1
	if parent := reg.ParentType(teamType); parent != nil {
		if orgCT, err = reg.ContentTypeID(parent.Name); err != nil {
			return nil, err
		}
	}

	orgTeams, err := st.TeamOrgMapping(ctx)
	if err != nil {
		return nil, err
	}

	// direct membership roles: a role on a team grants membership in
	// that team; a role on its parent grants membership in every team
	// under the parent
	membershipRoles, err := st.ObjectRolesWithCodename(ctx, reg.TeamPermission())
	if err != nil {
		return nil, err
	}
	directMemberRoles := map[int64][]int64{}
	for _, role := range membershipRoles {
		switch role.ContentTypeID {
		case teamCT:
			teamID, err := ParseResourceID(PKInt, role.ObjectID)
			if err != nil {
				return nil, err
			}
			directMemberRoles[teamID.Int()] = append(directMemberRoles[teamID.Int()], role.ID)
		case orgCT:
			for _, teamID := range orgTeams[role.ObjectID] {
				directMemberRoles[teamID] = append(directMemberRoles[teamID], role.ID)
			}
		default:
			log.WithFields(logrus.Fields{
				"object_role_id": role.ID,
				"content_type":   role.ContentTypeID,
				"object_id":      role.ObjectID,
			}).Warning("role grants team membership, which is invalid for its type")
		}
	}

	// membership roles held by teams link the graph: the holding team
	// becomes a parent of the target team
	edges, err := st.TeamHeldMembershipEdges(ctx, reg.TeamPermission())
	if err != nil {
		return nil, err
	}
	teamParents := map[int64][]int64{}
	for _, edge := range edges {
		switch edge.role.ContentTypeID {
		case teamCT:
			teamID, err := ParseResourceID(PKInt, edge.role.ObjectID)
			if err != nil {
				return nil, err
			}
			teamParents[teamID.Int()] = append(teamParents[teamID.Int()], edge.actorTeamID)
		case orgCT:
			log.WithFields(logrus.Fields{
				"object_role_id": edge.role.ID,
				"actor_team_id":  edge.actorTeamID,
			}).Warning("team holds an org-wide membership role, which should not have been allowed")
			for _, teamID := range orgTeams[edge.role.ObjectID] {
				teamParents[teamID] = append(teamParents[teamID], edge.actorTeamID)
			}
		}
	}

	// crawl the graph: membership in a team includes every role that
	// grants membership in any of its parent teams
	allMemberRoles := map[int64]map[int64]bool{}
	for teamID, roleIDs := range directMemberRoles {
		set := map[int64]bool{}
		for _, id := range roleIDs {
			set[id] = true
		}
		for parentID := range allTeamParents(teamID, teamParents) {
			for _, id := range directMemberRoles[parentID] {
				set[id] = true
			}
		}
		allMemberRoles[teamID] = set
	}

	// apply the diff against the stored relation
	existingEdges, err := st.ProvidesTeamEdges(ctx)
	if err != nil {
		return nil, err
	}
	existing := map[int64]map[int64]bool{}
	for _, e := range existingEdges {
		if existing[e.teamID] == nil {
			existing[e.teamID] = map[int64]bool{}
		}
		existing[e.teamID][e.roleID] = true
	}

	teamIDs, err := st.AllTeamIDs(ctx)
	if err != nil {
		return nil, err
	}
	changed := map[int64]bool{}
	for _, teamID := range teamIDs {
		expected := allMemberRoles[teamID]
		for roleID := range expected {
			if !existing[teamID][roleID] {
				if err := st.AddProvidesTeam(ctx, roleID, teamID); err != nil {
					return nil, fmt.Errorf("failed to add member role for team %d: %w", teamID, err)
				}
				changed[roleID] = true
			}
		}
		for roleID := range existing[teamID] {
			if !expected[roleID] {
				if err := st.RemoveProvidesTeam(ctx, roleID, teamID); err != nil {
					return nil, fmt.Errorf("failed to remove member role for team %d: %w", teamID, err)
				}
				changed[roleID] = true
			}
		}
	}
	return changed, nil
}
