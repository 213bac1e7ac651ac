package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// materializer reconciles the stored evaluation tuples of object roles
// against the tuples their definitions imply. It runs inside the write
// transaction, always after team membership recomputation.
type materializer struct {
	st       *Store
	reg      *Registry
	settings Settings
	log      *logrus.Logger
	metrics  *Metrics

	// role-definition permissions memoized per batch
	rdPerms map[int64][]Permission
}

func newMaterializer(st *Store, reg *Registry, settings Settings, log *logrus.Logger, metrics *Metrics) *materializer {
	return &materializer{
		st:       st,
		reg:      reg,
		settings: settings,
		log:      log,
		metrics:  metrics,
		rdPerms:  make(map[int64][]Permission),
	}
}

func (m *materializer) permissionsFor(ctx context.Context, rdID int64) ([]Permission, error) {
	if perms, ok := m.rdPerms[rdID]; ok {
		return perms, nil
	}
	perms, err := m.st.DefinitionPermissions(ctx, rdID)
	if err != nil {
		return nil, err
	}
	m.rdPerms[rdID] = perms
	return perms, nil
}

// expectedDirect computes the tuples one role implies on its own:
// same-type atoms on the role's object, add atoms (and every atom when
// CacheParentPermissions is set) echoed onto the role's object, and
// child-type atoms fanned out over the objects below the role's object.
// Tuples conferred through provided teams are handled by neededUpdates.
func (m *materializer) expectedDirect(ctx context.Context, role *ObjectRole) (map[evalKey]PKKind, error) {
	expected := map[evalKey]PKKind{}
	roleType, err := m.reg.TypeByContentTypeID(role.ContentTypeID)
	if err != nil {
		return nil, err
	}
	rootID, err := ParseResourceID(roleType.PK, role.ObjectID)
	if err != nil {
		return nil, err
	}
	perms, err := m.permissionsFor(ctx, role.RoleDefinitionID)
	if err != nil {
		return nil, err
	}

	// child id queries repeat per permission of the same type; memoize
	// them for the duration of this role
	cachedIDLists := map[int64][]string{}

	for _, perm := range perms {
		if perm.ContentTypeID == role.ContentTypeID {
			expected[evalKey{perm.Codename, role.ContentTypeID, role.ObjectID}] = roleType.PK
			continue
		}
		permType, err := m.reg.TypeByContentTypeID(perm.ContentTypeID)
		if err != nil {
			return nil, err
		}

		if perm.IsAdd() || m.settings.CacheParentPermissions {
			expected[evalKey{perm.Codename, role.ContentTypeID, role.ObjectID}] = roleType.PK
		}

		var evalType *ResourceType
		var chain []*ResourceType
		if perm.IsAdd() {
			// creation is checked on the permission model's parent, so
			// the tuple fans out over parent instances below the role
			// object; for a direct child that parent is the role object
			// itself, already covered above
			for _, spec := range m.reg.ChildSpecs(roleType.Name) {
				if len(spec.Chain) > 1 && spec.Type.Name == permType.Name {
					evalType = spec.Chain[1]
					chain = spec.Chain[1:]
					break
				}
			}
			if evalType == nil {
				continue
			}
		} else {
			for _, spec := range m.reg.ChildSpecs(roleType.Name) {
				if spec.Type.Name == permType.Name {
					evalType = spec.Type
					chain = spec.Chain
					break
				}
			}
			if evalType == nil {
				m.log.WithFields(logrus.Fields{
					"role_definition_id": role.RoleDefinitionID,
					"codename":           perm.Codename,
					"content_type":       roleType.Name,
				}).Warning("role lists permission but model is not a child, ignoring")
				continue
			}
		}

		evalCT, err := m.reg.ContentTypeID(evalType.Name)
		if err != nil {
			return nil, err
		}
		ids, ok := cachedIDLists[evalCT]
		if !ok {
			ids, err = m.st.ChildIDs(ctx, chain, rootID)
			if err != nil {
				return nil, err
			}
			cachedIDLists[evalCT] = ids
		}
		for _, id := range ids {
			expected[evalKey{perm.Codename, evalCT, id}] = evalType.PK
		}
	}
	return expected, nil
}

// neededUpdates diffs a role's stored tuples against expectations. The
// expected set is the role's own tuples plus the direct tuples of every
// role held by a team this role provides membership in.
func (m *materializer) neededUpdates(ctx context.Context, role *ObjectRole) (map[PKKind][]int64, []evalAddition, error) {
	existingRows, err := m.st.EvaluationsForRole(ctx, role.ID)
	if err != nil {
		return nil, nil, err
	}
	existing := make(map[evalKey]evalRow, len(existingRows))
	for _, r := range existingRows {
		existing[r.key] = r
	}

	expected, err := m.expectedDirect(ctx, role)
	if err != nil {
		return nil, nil, err
	}
	providedTeams, err := m.st.ProvidedTeamsOfRole(ctx, role.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, teamID := range providedTeams {
		teamRoles, err := m.st.RolesHeldByTeam(ctx, teamID)
		if err != nil {
			return nil, nil, err
		}
		for _, teamRole := range teamRoles {
			teamExpected, err := m.expectedDirect(ctx, teamRole)
			if err != nil {
				return nil, nil, err
			}
			for k, pk := range teamExpected {
				expected[k] = pk
			}
		}
	}

	toDelete := map[PKKind][]int64{}
	for key, row := range existing {
		if _, ok := expected[key]; !ok {
			toDelete[row.pk] = append(toDelete[row.pk], row.id)
		}
	}
	var toAdd []evalAddition
	for key, pk := range expected {
		if _, ok := existing[key]; !ok {
			toAdd = append(toAdd, evalAddition{roleID: role.ID, key: key, pk: pk})
		}
	}
	return toDelete, toAdd, nil
}

// Reconcile brings the evaluation partitions in line for the given
// roles; nil means every object role. Deletions and insertions are
// batched across the whole set.
func (m *materializer) Reconcile(ctx context.Context, roles []*ObjectRole) error {
	start := time.Now()
	if roles == nil {
		all, err := m.st.AllObjectRoles(ctx)
		if err != nil {
			return err
		}
		roles = all
	}

	toDelete := map[PKKind][]int64{}
	var toAdd []evalAddition
	for _, role := range roles {
		roleDelete, roleAdd, err := m.neededUpdates(ctx, role)
		if err != nil {
			return fmt.Errorf("failed to compute updates for object role %d: %w", role.ID, err)
		}
		for pk, ids := range roleDelete {
			toDelete[pk] = append(toDelete[pk], ids...)
		}
		toAdd = append(toAdd, roleAdd...)
	}

	if len(toAdd) > 0 {
		m.log.WithField("count", len(toAdd)).Info("adding object permission records")
		if err := m.st.BulkCreateEvaluations(ctx, toAdd); err != nil {
			return err
		}
	}
	deleted := 0
	for pk, ids := range toDelete {
		deleted += len(ids)
		if err := m.st.BulkDeleteEvaluations(ctx, pk, ids); err != nil {
			return err
		}
	}
	if deleted > 0 {
		m.log.WithField("count", deleted).Info("deleting object permission records")
	}

	if m.metrics != nil {
		m.metrics.MaterializerRuns.Inc()
		m.metrics.MaterializerDuration.Observe(time.Since(start).Seconds())
		m.metrics.DirtyRoles.Observe(float64(len(roles)))
		m.metrics.TuplesAdded.Add(float64(len(toAdd)))
		m.metrics.TuplesDeleted.Add(float64(deleted))
	}
	return nil
}
