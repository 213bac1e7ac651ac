package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// TrackerFunc reacts to a grant or revocation of a tracked role
// definition, typically to mirror it into a host relationship table.
// Role operations performed inside the callback do not re-dispatch.
type TrackerFunc func(ctx context.Context, e *Engine, actor Actor, obj Resource, giving bool) error

type trackerSyncKey struct{}

// Engine is the entry point: it owns the database handle, the frozen
// registry, and the settings, and exposes every read and write
// operation. All writes run in one transaction each.
type Engine struct {
	db       *sql.DB
	reg      *Registry
	settings Settings
	log      *logrus.Logger
	metrics  *Metrics
	cache    *checkCache
	trackers map[string]TrackerFunc
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger replaces the default standard logger.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics registers the engine's collectors on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = NewMetrics(reg) }
}

// New freezes the registry, syncs the content type and permission
// catalogs, and returns a ready engine. The database must already be
// migrated (see RunMigrations).
func New(ctx context.Context, db *sql.DB, reg *Registry, settings Settings, opts ...Option) (*Engine, error) {
	if err := reg.freeze(); err != nil {
		return nil, err
	}
	e := &Engine{
		db:       db,
		reg:      reg,
		settings: settings,
		log:      logrus.StandardLogger(),
		trackers: make(map[string]TrackerFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if settings.CheckCacheSize > 0 {
		cache, err := newCheckCache(settings.CheckCacheSize, settings.CheckCacheTTL)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	if err := e.write(ctx, func(st *Store) error {
		if err := st.SyncContentTypes(ctx); err != nil {
			return err
		}
		return st.SyncPermissions(ctx)
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// Registry returns the frozen registry.
func (e *Engine) Registry() *Registry { return e.reg }

// RegisterTracker attaches a callback fired whenever the named role
// definition is granted or revoked on an object.
func (e *Engine) RegisterTracker(roleName string, fn TrackerFunc) {
	e.trackers[roleName] = fn
}

// write runs fn inside one transaction and invalidates the check cache
// on success.
func (e *Engine) write(ctx context.Context, fn func(st *Store) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	st := NewStore(tx, e.reg)
	if err := fn(st); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	e.cache.bump()
	return nil
}

func (e *Engine) store() *Store {
	return NewStore(e.db, e.reg)
}

// GivePermission grants the role to a user or team on one object.
func (e *Engine) GivePermission(ctx context.Context, rd *RoleDefinition, actor Actor, obj Resource) error {
	return e.giveOrRemovePermission(ctx, rd, actor, obj, true)
}

// RemovePermission revokes the role from a user or team on one object.
// Revoking an assignment that does not exist is a no-op.
func (e *Engine) RemovePermission(ctx context.Context, rd *RoleDefinition, actor Actor, obj Resource) error {
	return e.giveOrRemovePermission(ctx, rd, actor, obj, false)
}

func (e *Engine) giveOrRemovePermission(ctx context.Context, rd *RoleDefinition, actor Actor, obj Resource, giving bool) error {
	if err := validateAssignment(e.reg, rd, obj); err != nil {
		return err
	}
	ctID, err := e.reg.ContentTypeID(obj.Type)
	if err != nil {
		return err
	}
	objectID := obj.ID.String()

	err = e.write(ctx, func(st *Store) error {
		role, err := st.GetObjectRole(ctx, rd.ID, ctID, objectID)
		created := false
		if err == ErrNotFound {
			if !giving {
				return nil
			}
			role, created, err = st.GetOrCreateObjectRole(ctx, rd.ID, ctID, objectID)
		}
		if err != nil {
			return err
		}

		recomputeTeams, dirty, err := e.neededUpdatesOnAssignment(ctx, st, rd, actor, role, created)
		if err != nil {
			return err
		}

		switch a := actor.(type) {
		case User:
			if giving {
				if _, err := st.AddUserToRole(ctx, role.ID, a.ID); err != nil {
					return err
				}
				assignment := &RoleUserAssignment{
					RoleDefinitionID: rd.ID,
					UserID:           a.ID,
					ObjectRoleID:     &role.ID,
					ContentTypeID:    &ctID,
					ObjectID:         &objectID,
				}
				if _, err := st.GetOrCreateUserAssignment(ctx, assignment); err != nil {
					return err
				}
			} else {
				if _, err := st.RemoveUserFromRole(ctx, role.ID, a.ID); err != nil {
					return err
				}
				if _, err := st.DeleteUserAssignment(ctx, a.ID, rd.ID, &role.ID); err != nil {
					return err
				}
			}
		case Team:
			if giving {
				if _, err := st.AddTeamToRole(ctx, role.ID, a.ID); err != nil {
					return err
				}
				assignment := &RoleTeamAssignment{
					RoleDefinitionID: rd.ID,
					TeamID:           a.ID,
					ObjectRoleID:     &role.ID,
					ContentTypeID:    &ctID,
					ObjectID:         &objectID,
				}
				if _, err := st.GetOrCreateTeamAssignment(ctx, assignment); err != nil {
					return err
				}
			} else {
				if _, err := st.RemoveTeamFromRole(ctx, role.ID, a.ID); err != nil {
					return err
				}
				if _, err := st.DeleteTeamAssignment(ctx, a.ID, rd.ID, &role.ID); err != nil {
					return err
				}
			}
		default:
			return NewValidationError("cannot give permission to this actor, must be a user or team")
		}

		if !giving {
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

		return e.updateAfterAssignment(ctx, st, recomputeTeams, dirty)
	})
	if err != nil {
		return err
	}

	if tracker, ok := e.trackers[rd.Name]; ok && ctx.Value(trackerSyncKey{}) == nil {
		syncCtx := context.WithValue(ctx, trackerSyncKey{}, true)
		if err := tracker(syncCtx, e, actor, obj, giving); err != nil {
			return fmt.Errorf("tracker for role %s failed: %w", rd.Name, err)
		}
	}
	return nil
}

// GiveGlobalPermission grants a global (system-wide) role. Global roles
// are not materialized; evaluation reads them directly.
func (e *Engine) GiveGlobalPermission(ctx context.Context, rd *RoleDefinition, actor Actor) error {
	return e.giveOrRemoveGlobalPermission(ctx, rd, actor, true)
}

// RemoveGlobalPermission revokes a global role; absent grants are a no-op.
func (e *Engine) RemoveGlobalPermission(ctx context.Context, rd *RoleDefinition, actor Actor) error {
	return e.giveOrRemoveGlobalPermission(ctx, rd, actor, false)
}

func (e *Engine) giveOrRemoveGlobalPermission(ctx context.Context, rd *RoleDefinition, actor Actor, giving bool) error {
	if rd.ContentTypeID != nil {
		return NewValidationError("role definition content type must be null to assign globally")
	}
	return e.write(ctx, func(st *Store) error {
		switch a := actor.(type) {
		case User:
			if !e.settings.AllowSingletonUserRoles {
				return &PermissionDenied{Message: "global roles are not enabled for users"}
			}
			if giving {
				_, err := st.GetOrCreateUserAssignment(ctx, &RoleUserAssignment{
					RoleDefinitionID: rd.ID,
					UserID:           a.ID,
				})
				return err
			}
			_, err := st.DeleteUserAssignment(ctx, a.ID, rd.ID, nil)
			return err
		case Team:
			if !e.settings.AllowSingletonTeamRoles {
				return &PermissionDenied{Message: "global roles are not enabled for teams"}
			}
			if giving {
				_, err := st.GetOrCreateTeamAssignment(ctx, &RoleTeamAssignment{
					RoleDefinitionID: rd.ID,
					TeamID:           a.ID,
				})
				return err
			}
			_, err := st.DeleteTeamAssignment(ctx, a.ID, rd.ID, nil)
			return err
		}
		return NewValidationError("cannot give permission to this actor, must be a user or team")
	})
}

// RoleDefinitionSpec describes a definition to create. ContentType ""
// makes a global definition.
type RoleDefinitionSpec struct {
	Name        string
	Description string
	ContentType string
	Permissions []string
	Managed     bool
	CreatedBy   *int64
}

// CreateRoleDefinition validates the permission set against the bound
// type and persists the definition.
func (e *Engine) CreateRoleDefinition(ctx context.Context, spec RoleDefinitionSpec) (*RoleDefinition, error) {
	var ctID *int64
	if spec.ContentType != "" {
		id, err := e.reg.ContentTypeID(spec.ContentType)
		if err != nil {
			return nil, err
		}
		ctID = &id
	}
	var rd *RoleDefinition
	err := e.write(ctx, func(st *Store) error {
		perms, err := st.PermissionsByCodenames(ctx, spec.Permissions)
		if err != nil {
			return err
		}
		if err := validatePermissionsForModel(e.reg, e.settings, perms, ctID); err != nil {
			return err
		}
		rd = &RoleDefinition{
			Name:          spec.Name,
			Description:   spec.Description,
			Managed:       spec.Managed,
			ContentTypeID: ctID,
			Permissions:   perms,
			CreatedBy:     spec.CreatedBy,
		}
		return st.CreateRoleDefinition(ctx, rd)
	})
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// GetRoleDefinition looks up a definition by name.
func (e *Engine) GetRoleDefinition(ctx context.Context, name string) (*RoleDefinition, error) {
	return e.store().GetRoleDefinitionByName(ctx, name)
}

// GetOrCreateRoleDefinition returns an existing definition with exactly
// the spec's permission set, regardless of name, or creates one. With
// an empty permission list it matches by name instead.
func (e *Engine) GetOrCreateRoleDefinition(ctx context.Context, spec RoleDefinitionSpec) (*RoleDefinition, bool, error) {
	st := e.store()
	if len(spec.Permissions) > 0 {
		wanted := map[string]bool{}
		for _, c := range spec.Permissions {
			wanted[c] = true
		}
		existing, err := st.ListRoleDefinitions(ctx)
		if err != nil {
			return nil, false, err
		}
		for _, rd := range existing {
			if len(rd.Permissions) != len(wanted) {
				continue
			}
			match := true
			for _, p := range rd.Permissions {
				if !wanted[p.Codename] {
					match = false
					break
				}
			}
			if match {
				return rd, false, nil
			}
		}
		rd, err := e.CreateRoleDefinition(ctx, spec)
		if err != nil {
			return nil, false, err
		}
		return rd, true, nil
	}

	rd, err := st.GetRoleDefinitionByName(ctx, spec.Name)
	if err == nil {
		return rd, false, nil
	}
	if err != ErrNotFound {
		return nil, false, err
	}
	rd, err = e.CreateRoleDefinition(ctx, spec)
	if err != nil {
		return nil, false, err
	}
	return rd, true, nil
}

// DeleteRoleDefinition removes an unmanaged definition with no
// remaining assignments.
func (e *Engine) DeleteRoleDefinition(ctx context.Context, rd *RoleDefinition) error {
	if rd.Managed {
		return NewValidationError("role definition %s is managed and cannot be deleted", rd.Name)
	}
	return e.write(ctx, func(st *Store) error {
		count, err := st.AssignmentCountForDefinition(ctx, rd.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return NewValidationError("role definition %s still has %d assignments", rd.Name, count)
		}
		return st.DeleteRoleDefinition(ctx, rd.ID)
	})
}

// AddPermissions extends a definition's permission set and refreshes
// every evaluation the definition contributes to.
func (e *Engine) AddPermissions(ctx context.Context, rd *RoleDefinition, codenames ...string) error {
	if rd.Managed {
		return NewValidationError("role definition %s is managed and cannot be changed", rd.Name)
	}
	return e.write(ctx, func(st *Store) error {
		adding, err := st.PermissionsByCodenames(ctx, codenames)
		if err != nil {
			return err
		}
		current, err := st.DefinitionPermissions(ctx, rd.ID)
		if err != nil {
			return err
		}
		resulting := append(append([]Permission{}, current...), adding...)
		if err := validatePermissionsForModel(e.reg, e.settings, resulting, rd.ContentTypeID); err != nil {
			return err
		}
		memberTeamChanged := false
		for _, p := range adding {
			if p.Codename == e.reg.TeamPermission() {
				memberTeamChanged = true
			}
			if err := st.AddDefinitionPermission(ctx, rd.ID, p.ID); err != nil {
				return err
			}
		}
		if err := st.TouchRoleDefinition(ctx, rd.ID); err != nil {
			return err
		}
		rd.Permissions = resulting
		return e.permissionsChanged(ctx, st, rd, memberTeamChanged, false)
	})
}

// RemovePermissions shrinks a definition's permission set and refreshes
// every evaluation the definition contributes to.
func (e *Engine) RemovePermissions(ctx context.Context, rd *RoleDefinition, codenames ...string) error {
	if rd.Managed {
		return NewValidationError("role definition %s is managed and cannot be changed", rd.Name)
	}
	return e.write(ctx, func(st *Store) error {
		removing, err := st.PermissionsByCodenames(ctx, codenames)
		if err != nil {
			return err
		}
		memberTeamChanged := false
		removed := map[int64]bool{}
		for _, p := range removing {
			if p.Codename == e.reg.TeamPermission() {
				memberTeamChanged = true
			}
			removed[p.ID] = true
			if err := st.RemoveDefinitionPermission(ctx, rd.ID, p.ID); err != nil {
				return err
			}
		}
		if err := st.TouchRoleDefinition(ctx, rd.ID); err != nil {
			return err
		}
		var remaining []Permission
		for _, p := range rd.Permissions {
			if !removed[p.ID] {
				remaining = append(remaining, p)
			}
		}
		rd.Permissions = remaining
		return e.permissionsChanged(ctx, st, rd, memberTeamChanged, false)
	})
}

// ClearPermissions empties a definition's permission set. The delta is
// unknown afterwards, so caching is rebuilt globally.
func (e *Engine) ClearPermissions(ctx context.Context, rd *RoleDefinition) error {
	if rd.Managed {
		return NewValidationError("role definition %s is managed and cannot be changed", rd.Name)
	}
	return e.write(ctx, func(st *Store) error {
		if err := st.ClearDefinitionPermissions(ctx, rd.ID); err != nil {
			return err
		}
		if err := st.TouchRoleDefinition(ctx, rd.ID); err != nil {
			return err
		}
		rd.Permissions = nil
		return e.permissionsChanged(ctx, st, rd, true, true)
	})
}

// GiveCreatorPermissions grants a user working permissions on an object
// they just created: the configured creator actions for the object's
// type and everything below it, excluding creation of more siblings.
// Superusers and users who already hold the permissions are skipped.
func (e *Engine) GiveCreatorPermissions(ctx context.Context, user User, obj Resource) error {
	if e.settings.HasSuperuserFlag(user) {
		return nil
	}
	rt, err := e.reg.Type(obj.Type)
	if err != nil {
		return err
	}
	needed := map[string]bool{}
	actions := map[string]bool{}
	for _, action := range e.settings.CreatorDefaults {
		actions[action] = true
	}
	types := []*ResourceType{rt}
	for _, spec := range e.reg.ChildSpecs(rt.Name) {
		types = append(types, spec.Type)
	}
	for _, t := range types {
		for _, codename := range e.reg.CodenamesFor(t) {
			if isAddCodename(codename) && t.Name == obj.Type {
				continue
			}
			p := Permission{Codename: codename}
			if actions[p.Action()] {
				needed[codename] = true
			}
		}
	}
	if len(needed) == 0 {
		return nil
	}

	has, err := e.GetPermissions(ctx, user, obj)
	if err != nil {
		return err
	}
	singleton, err := e.SingletonPermissions(ctx, user)
	if err != nil {
		return err
	}
	hasSet := map[string]bool{}
	for _, c := range has {
		hasSet[c] = true
	}
	for _, c := range singleton {
		hasSet[c] = true
	}
	missing := false
	for c := range needed {
		if !hasSet[c] {
			missing = true
			break
		}
	}
	if !missing {
		return nil
	}

	codenames := make([]string, 0, len(needed))
	for c := range needed {
		codenames = append(codenames, c)
	}
	sort.Strings(codenames)
	spec := RoleDefinitionSpec{
		Name:        fmt.Sprintf("%s-creator-permission", obj.Type),
		ContentType: obj.Type,
		Permissions: codenames,
	}
	rd, _, err := e.GetOrCreateRoleDefinition(ctx, spec)
	if IsValidationError(err) {
		e.log.WithField("name", spec.Name).Warning("creating creator role definition as managed because it is not allowed as a custom role")
		spec.Managed = true
		rd, _, err = e.GetOrCreateRoleDefinition(ctx, spec)
	}
	if err != nil {
		return err
	}
	return e.GivePermission(ctx, rd, user, obj)
}

// AssignmentsVisibleTo lists the user and team assignments the viewer
// can see: those on objects the viewer holds any permission for, plus
// global assignments when the viewer has global grants themselves.
func (e *Engine) AssignmentsVisibleTo(ctx context.Context, viewer User) ([]*RoleUserAssignment, []*RoleTeamAssignment, error) {
	singleton, err := e.singletonPermissionAtoms(ctx, viewer)
	if err != nil {
		return nil, nil, err
	}
	ctSet := map[int64]bool{}
	for _, p := range singleton {
		ctSet[p.ContentTypeID] = true
	}
	superCTIDs := make([]int64, 0, len(ctSet))
	for id := range ctSet {
		superCTIDs = append(superCTIDs, id)
	}
	sort.Slice(superCTIDs, func(i, j int) bool { return superCTIDs[i] < superCTIDs[j] })

	st := e.store()
	users, err := st.VisibleUserAssignments(ctx, viewer.ID, superCTIDs, len(singleton) > 0)
	if err != nil {
		return nil, nil, err
	}
	teams, err := st.VisibleTeamAssignments(ctx, viewer.ID, superCTIDs, len(singleton) > 0)
	if err != nil {
		return nil, nil, err
	}
	return users, teams, nil
}
