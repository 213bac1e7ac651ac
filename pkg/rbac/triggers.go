package rbac

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// The caching layers (provides_teams and the evaluation partitions)
// only stay correct if every write that can affect them runs the right
// recomputation in the same transaction. This file decides, per event,
// which object roles are dirty and whether team membership must be
// rebuilt first.

// dirtySet collects object roles whose evaluations must be reconciled.
type dirtySet map[int64]*ObjectRole

func (d dirtySet) add(roles ...*ObjectRole) {
	for _, r := range roles {
		d[r.ID] = r
	}
}

func (d dirtySet) roles() []*ObjectRole {
	out := make([]*ObjectRole, 0, len(d))
	for _, r := range d {
		out = append(out, r)
	}
	return out
}

// teamAncestorRoles returns every role that directly or indirectly
// grants any permission on a team, read from the materialized tuples.
func teamAncestorRoles(ctx context.Context, st *Store, reg *Registry, teamID int64) ([]*ObjectRole, error) {
	teamCT, err := reg.ContentTypeID(reg.TeamType())
	if err != nil {
		return nil, err
	}
	return st.ObjectRolesWithEvaluation(ctx, reg.TeamPermission(), teamCT, teamID)
}

// descendentRoles returns the roles held by teams this role provides
// membership in; holding the role implies holding all of them.
func descendentRoles(ctx context.Context, st *Store, role *ObjectRole) ([]*ObjectRole, error) {
	teamIDs, err := st.ProvidedTeamsOfRole(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	var out []*ObjectRole
	for _, teamID := range teamIDs {
		held, err := st.RolesHeldByTeam(ctx, teamID)
		if err != nil {
			return nil, err
		}
		out = append(out, held...)
	}
	return out, nil
}

// neededUpdatesOnAssignment determines the recomputation required when
// an actor is granted a role or has one revoked. It returns whether team
// membership must be rebuilt and the roles to reconcile.
func (e *Engine) neededUpdatesOnAssignment(ctx context.Context, st *Store, rd *RoleDefinition, actor Actor, role *ObjectRole, created bool) (bool, dirtySet, error) {
	dirty := dirtySet{}
	if created {
		dirty.add(role)
	}

	hasTeamPerm := rd.HasPermission(e.reg.TeamPermission())
	roleType, err := e.reg.TypeByContentTypeID(role.ContentTypeID)
	if err != nil {
		return false, nil, err
	}
	if err := validateAssignmentEnabled(e.reg, e.settings, actor, roleType.Name, hasTeamPerm); err != nil {
		return false, nil, err
	}

	changesTeamOwners := false
	if team, ok := actor.(Team); ok {
		ancestors, err := teamAncestorRoles(ctx, st, e.reg, team.ID)
		if err != nil {
			return false, nil, err
		}
		dirty.add(ancestors...)
		changesTeamOwners = true
	}

	// granting or revoking team permissions may keep the parentage
	// intact and still change what downstream roles confer
	if (hasTeamPerm && created) || changesTeamOwners {
		descendents, err := descendentRoles(ctx, st, role)
		if err != nil {
			return false, nil, err
		}
		dirty.add(descendents...)
	}

	recomputeTeams := hasTeamPerm && (created || changesTeamOwners)
	return recomputeTeams, dirty, nil
}

// updateAfterAssignment runs team recomputation when flagged, folds any
// roles whose provided memberships changed into the dirty set, and
// reconciles.
func (e *Engine) updateAfterAssignment(ctx context.Context, st *Store, recomputeTeams bool, dirty dirtySet) error {
	if recomputeTeams {
		changed, err := computeTeamMemberRoles(ctx, st, e.reg, e.log)
		if err != nil {
			return err
		}
		if err := e.addRolesByID(ctx, st, dirty, changed); err != nil {
			return err
		}
	}
	mat := newMaterializer(st, e.reg, e.settings, e.log, e.metrics)
	return mat.Reconcile(ctx, dirty.roles())
}

func (e *Engine) addRolesByID(ctx context.Context, st *Store, dirty dirtySet, ids map[int64]bool) error {
	for id := range ids {
		if _, ok := dirty[id]; ok {
			continue
		}
		role, err := st.ObjectRoleByID(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		dirty.add(role)
	}
	return nil
}

// permissionsChanged reruns caching after a definition's permission set
// was mutated. memberTeamChanged tells whether the membership codename
// was among the added or removed atoms; full forces a global rebuild
// (used when the set was cleared and the delta is unknown).
func (e *Engine) permissionsChanged(ctx context.Context, st *Store, rd *RoleDefinition, memberTeamChanged, full bool) error {
	mat := newMaterializer(st, e.reg, e.settings, e.log, e.metrics)
	if full {
		if _, err := computeTeamMemberRoles(ctx, st, e.reg, e.log); err != nil {
			return err
		}
		return mat.Reconcile(ctx, nil)
	}

	roles, err := st.ObjectRolesForDefinition(ctx, rd.ID)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	e.log.WithFields(logrus.Fields{
		"role_definition": rd.Name,
		"object_roles":    len(roles),
	}).Info("role definition permissions changed")

	dirty := dirtySet{}
	dirty.add(roles...)

	if memberTeamChanged {
		for _, role := range roles {
			descendents, err := descendentRoles(ctx, st, role)
			if err != nil {
				return err
			}
			dirty.add(descendents...)
		}
		changed, err := computeTeamMemberRoles(ctx, st, e.reg, e.log)
		if err != nil {
			return err
		}
		if err := e.addRolesByID(ctx, st, dirty, changed); err != nil {
			return err
		}
	}

	// member roles that convey this definition through a team need
	// their copied tuples refreshed too
	for _, role := range roles {
		teamIDs, err := st.TeamsOfRole(ctx, role.ID)
		if err != nil {
			return err
		}
		for _, teamID := range teamIDs {
			memberRoles, err := st.MemberRolesOfTeam(ctx, teamID)
			if err != nil {
				return err
			}
			dirty.add(memberRoles...)
		}
	}
	return mat.Reconcile(ctx, dirty.roles())
}

// NotifyResourceCreated registers a newly created host object. Roles on
// its parent (and roles conveying them through teams) gain tuples for
// it; a new team additionally triggers membership recomputation.
func (e *Engine) NotifyResourceCreated(ctx context.Context, res Resource) error {
	rt, err := e.reg.Type(res.Type)
	if err != nil {
		return err
	}
	if rt.ParentType == "" && res.Type != e.reg.TeamType() {
		return nil
	}
	return e.write(ctx, func(st *Store) error {
		var newParent *ResourceID
		if rt.ParentType != "" {
			parentText, ok, err := st.ParentObjectID(ctx, rt, res.ID.String())
			if err != nil {
				return err
			}
			if ok {
				parentType := e.reg.ParentType(rt.Name)
				parsed, err := ParseResourceID(parentType.PK, parentText)
				if err != nil {
					return err
				}
				newParent = &parsed
			}
		}
		return e.parentChanged(ctx, st, rt, nil, newParent)
	})
}

// NotifyResourceMoved registers a parent change of a host object. Both
// the old and new parent's roles are reconciled.
func (e *Engine) NotifyResourceMoved(ctx context.Context, res Resource, oldParent, newParent *ResourceID) error {
	rt, err := e.reg.Type(res.Type)
	if err != nil {
		return err
	}
	if rt.ParentType == "" {
		return nil
	}
	e.log.WithFields(logrus.Fields{
		"resource": res.String(),
	}).Info("object changed parent, rebuilding evaluations")
	return e.write(ctx, func(st *Store) error {
		return e.parentChanged(ctx, st, rt, oldParent, newParent)
	})
}

// parentChanged reconciles roles attached to the affected parents plus
// the member roles that convey them, recomputing teams when the moved
// object is a team.
func (e *Engine) parentChanged(ctx context.Context, st *Store, rt *ResourceType, oldParent, newParent *ResourceID) error {
	parentType := e.reg.ParentType(rt.Name)
	dirty := dirtySet{}
	if parentType != nil {
		parentCT, err := e.reg.ContentTypeID(parentType.Name)
		if err != nil {
			return err
		}
		for _, parent := range []*ResourceID{newParent, oldParent} {
			if parent == nil {
				continue
			}
			roles, err := st.ObjectRolesForObject(ctx, parentCT, parent.String())
			if err != nil {
				return err
			}
			dirty.add(roles...)
		}
	}

	// parent team roles conveying the affected roles are ancestors
	if err := e.addConveyingRoles(ctx, st, dirty); err != nil {
		return err
	}

	if rt.Name == e.reg.TeamType() {
		changed, err := computeTeamMemberRoles(ctx, st, e.reg, e.log)
		if err != nil {
			return err
		}
		if err := e.addRolesByID(ctx, st, dirty, changed); err != nil {
			return err
		}
	}

	if len(dirty) == 0 {
		return nil
	}
	mat := newMaterializer(st, e.reg, e.settings, e.log, e.metrics)
	return mat.Reconcile(ctx, dirty.roles())
}

// addConveyingRoles extends the dirty set with every member role of a
// team that holds one of the roles already in it.
func (e *Engine) addConveyingRoles(ctx context.Context, st *Store, dirty dirtySet) error {
	for _, role := range dirty.roles() {
		teamIDs, err := st.TeamsOfRole(ctx, role.ID)
		if err != nil {
			return err
		}
		for _, teamID := range teamIDs {
			memberRoles, err := st.MemberRolesOfTeam(ctx, teamID)
			if err != nil {
				return err
			}
			dirty.add(memberRoles...)
		}
	}
	return nil
}

// NotifyResourceDeleted cascades the deletion of a host object into the
// engine's tables. Call it after the host row is gone. Team deletions
// route through NotifyTeamDeleted.
func (e *Engine) NotifyResourceDeleted(ctx context.Context, res Resource) error {
	if res.Type == e.reg.TeamType() {
		return e.NotifyTeamDeleted(ctx, res.ID.Int())
	}
	rt, err := e.reg.Type(res.Type)
	if err != nil {
		return err
	}
	ctID, err := e.reg.ContentTypeID(rt.Name)
	if err != nil {
		return err
	}
	return e.write(ctx, func(st *Store) error {
		roles, err := st.ObjectRolesForObject(ctx, ctID, res.ID.String())
		if err != nil {
			return err
		}
		for _, role := range roles {
			if err := st.DeleteObjectRole(ctx, role.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// NotifyTeamDeleted unwinds a deleted team: roles that conveyed its
// membership or were granted to it lose the inherited tuples, empty
// roles are dropped, and the team's own roles are removed. Call it
// after the host team row is deleted.
func (e *Engine) NotifyTeamDeleted(ctx context.Context, teamID int64) error {
	teamCT, err := e.reg.ContentTypeID(e.reg.TeamType())
	if err != nil {
		return err
	}
	return e.write(ctx, func(st *Store) error {
		// stash the graph around the team before its edges go away
		stashed, err := st.MemberRolesOfTeam(ctx, teamID)
		if err != nil {
			return err
		}
		held, err := st.RolesHeldByTeam(ctx, teamID)
		if err != nil {
			return err
		}
		ancestors, err := teamAncestorRoles(ctx, st, e.reg, teamID)
		if err != nil {
			return err
		}
		dirty := dirtySet{}
		dirty.add(ancestors...)
		for _, memberRole := range stashed {
			descendents, err := descendentRoles(ctx, st, memberRole)
			if err != nil {
				return err
			}
			dirty.add(descendents...)
		}

		if err := st.PurgeTeamActor(ctx, teamID); err != nil {
			return err
		}
		changed, err := computeTeamMemberRoles(ctx, st, e.reg, e.log)
		if err != nil {
			return err
		}
		if err := e.addRolesByID(ctx, st, dirty, changed); err != nil {
			return err
		}

		// roles the team held alone no longer have any actor
		for _, role := range held {
			hasActors, err := st.RoleHasActors(ctx, role.ID)
			if err != nil {
				return err
			}
			if !hasActors {
				delete(dirty, role.ID)
				if err := st.DeleteObjectRole(ctx, role.ID); err != nil {
					return err
				}
			}
		}

		// the team's own object roles go away entirely
		teamRoles, err := st.ObjectRolesForObject(ctx, teamCT, fmt.Sprintf("%d", teamID))
		if err != nil {
			return err
		}
		for _, role := range teamRoles {
			delete(dirty, role.ID)
			if err := st.DeleteObjectRole(ctx, role.ID); err != nil {
				return err
			}
		}

		mat := newMaterializer(st, e.reg, e.settings, e.log, e.metrics)
		return mat.Reconcile(ctx, dirty.roles())
	})
}
