package rbac

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// HasObjPerm answers whether the actor holds a permission on an object.
// A bare action is expanded for the object's type ("change" becomes
// "change_inventory"). Users short-circuit through superuser and
// per-action bypass flags and through global roles; everything else is
// a single indexed lookup against the materialized tuples.
func (e *Engine) HasObjPerm(ctx context.Context, actor Actor, obj Resource, codename string) (bool, error) {
	rt, err := e.reg.Type(obj.Type)
	if err != nil {
		return false, err
	}
	full, err := validateCodenameForModel(e.reg, codename, rt)
	if err != nil {
		return false, err
	}
	ctID, err := e.reg.ContentTypeID(obj.Type)
	if err != nil {
		return false, err
	}

	if user, ok := actor.(User); ok {
		if e.hasSuperPermission(user, full) {
			return true, nil
		}
	}

	if allowed, ok := e.cache.get(actor, obj, full); ok {
		e.metrics.cacheHit()
		return allowed, nil
	}
	e.metrics.cacheMiss()

	allowed, err := e.store().ActorHasEvaluation(ctx, actor, rt.PK, full, ctID, obj.ID.String())
	if err != nil {
		return false, err
	}
	if !allowed {
		if user, ok := actor.(User); ok && systemRolesEnabled(e.settings) {
			singleton, err := e.SingletonPermissions(ctx, user)
			if err != nil {
				return false, err
			}
			for _, c := range singleton {
				if c == full {
					allowed = true
					break
				}
			}
		}
	}
	e.cache.put(actor, obj, full, allowed)
	e.metrics.PermissionChecks.Inc()
	return allowed, nil
}

func (e *Engine) hasSuperPermission(user User, codename string) bool {
	if e.settings.HasSuperuserFlag(user) {
		return true
	}
	return e.settings.HasActionFlag(user, Permission{Codename: codename}.Action())
}

// AccessibleIDs returns the integer ids of objects of one type the
// actor holds the permission on. Bypass flags yield every id.
func (e *Engine) AccessibleIDs(ctx context.Context, actor Actor, typeName, codename string) ([]int64, error) {
	texts, err := e.accessibleTexts(ctx, actor, typeName, codename, PKInt)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(texts))
	for _, t := range texts {
		id, err := ParseResourceID(PKInt, t)
		if err != nil {
			return nil, err
		}
		out = append(out, id.Int())
	}
	return out, nil
}

// AccessibleUUIDs is AccessibleIDs for UUID-keyed types.
func (e *Engine) AccessibleUUIDs(ctx context.Context, actor Actor, typeName, codename string) ([]uuid.UUID, error) {
	texts, err := e.accessibleTexts(ctx, actor, typeName, codename, PKUUID)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(texts))
	for _, t := range texts {
		u, err := uuid.Parse(t)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (e *Engine) accessibleTexts(ctx context.Context, actor Actor, typeName, codename string, pk PKKind) ([]string, error) {
	rt, err := e.reg.Type(typeName)
	if err != nil {
		return nil, err
	}
	if rt.PK != pk {
		return nil, NewValidationError("type %s uses %s primary keys", typeName, rt.PK)
	}
	full, err := validateCodenameForModel(e.reg, codename, rt)
	if err != nil {
		return nil, err
	}
	if user, ok := actor.(User); ok && e.hasSuperPermission(user, full) {
		return e.store().AllObjectIDs(ctx, rt)
	}
	ctID, err := e.reg.ContentTypeID(typeName)
	if err != nil {
		return nil, err
	}
	return e.store().AccessibleObjectIDs(ctx, actor, pk, full, ctID)
}

// GetPermissions returns the codenames the actor holds on one object
// through the evaluation cache. Superuser flags and global roles do not
// contribute here.
func (e *Engine) GetPermissions(ctx context.Context, actor Actor, obj Resource) ([]string, error) {
	rt, err := e.reg.Type(obj.Type)
	if err != nil {
		return nil, err
	}
	ctID, err := e.reg.ContentTypeID(obj.Type)
	if err != nil {
		return nil, err
	}
	return e.store().ObjectCodenames(ctx, actor, rt.PK, ctID, obj.ID.String())
}

// SingletonPermissions returns the codenames a user holds system-wide:
// global roles assigned directly, and global roles assigned to teams
// the user is a member of. Each source is gated by its settings switch.
func (e *Engine) SingletonPermissions(ctx context.Context, user User) ([]string, error) {
	atoms, err := e.singletonPermissionAtoms(ctx, user)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(atoms))
	for _, p := range atoms {
		if !seen[p.Codename] {
			seen[p.Codename] = true
			out = append(out, p.Codename)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) singletonPermissionAtoms(ctx context.Context, user User) ([]Permission, error) {
	st := e.store()
	var out []Permission
	if e.settings.AllowSingletonUserRoles {
		perms, err := st.GlobalPermissionsForUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, perms...)
	}
	if e.settings.AllowSingletonTeamRoles {
		teams, err := st.TeamsProvidedToUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		perms, err := st.GlobalPermissionsForTeams(ctx, teams)
		if err != nil {
			return nil, err
		}
		out = append(out, perms...)
	}
	return out, nil
}
