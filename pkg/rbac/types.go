package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PKKind describes the primary key shape of a registered resource type.
// It selects which evaluation partition holds the type's tuples.
type PKKind int

const (
	PKInt PKKind = iota
	PKUUID
)

func (k PKKind) String() string {
	if k == PKUUID {
		return "uuid"
	}
	return "int"
}

// ResourceID is the primary key of a host object, either an int64 or a
// UUID. The zero value is not a valid id.
type ResourceID struct {
	kind PKKind
	i    int64
	u    uuid.UUID
}

// IntID wraps an integer primary key.
func IntID(id int64) ResourceID {
	return ResourceID{kind: PKInt, i: id}
}

// UUIDID wraps a UUID primary key.
func UUIDID(id uuid.UUID) ResourceID {
	return ResourceID{kind: PKUUID, u: id}
}

// ParseResourceID interprets text as an id of the given kind.
func ParseResourceID(kind PKKind, text string) (ResourceID, error) {
	if kind == PKUUID {
		u, err := uuid.Parse(text)
		if err != nil {
			return ResourceID{}, fmt.Errorf("parsing uuid id %q: %w", text, err)
		}
		return UUIDID(u), nil
	}
	var n int64
	if _, err := fmt.Sscanf(text, "%d", &n); err != nil {
		return ResourceID{}, fmt.Errorf("parsing int id %q: %w", text, err)
	}
	return IntID(n), nil
}

// Kind reports whether the id is an int or a UUID.
func (r ResourceID) Kind() PKKind { return r.kind }

// Int returns the integer value; only meaningful when Kind() == PKInt.
func (r ResourceID) Int() int64 { return r.i }

// UUID returns the UUID value; only meaningful when Kind() == PKUUID.
func (r ResourceID) UUID() uuid.UUID { return r.u }

// String renders the id in its database text form.
func (r ResourceID) String() string {
	if r.kind == PKUUID {
		return r.u.String()
	}
	return fmt.Sprintf("%d", r.i)
}

// Resource names a host object by registered type name and primary key.
type Resource struct {
	Type string
	ID   ResourceID
}

func (r Resource) String() string {
	return r.Type + ":" + r.ID.String()
}

// Actor is either a User or a Team receiving role assignments.
type Actor interface {
	actorKind() string
}

// User identifies a host user. The engine never reads the host's user
// table; superuser and bypass flags travel on the value itself.
type User struct {
	ID    int64
	Flags map[string]bool
}

func (User) actorKind() string { return "user" }

// HasFlag reports whether the named boolean flag is set on the user.
func (u User) HasFlag(name string) bool {
	return u.Flags[name]
}

// Team identifies a team actor. Teams must be registered as a resource
// type with an integer primary key.
type Team struct {
	ID int64
}

func (Team) actorKind() string { return "team" }

// Permission is one catalog atom: an action codename bound to a
// content type. add_<model> atoms carry the child model's content type
// but attach to role definitions of the parent type.
type Permission struct {
	ID            int64
	Codename      string
	ContentTypeID int64
}

// Action returns the codename's action prefix ("view" from "view_inventory").
func (p Permission) Action() string {
	if i := strings.Index(p.Codename, "_"); i > 0 {
		return p.Codename[:i]
	}
	return p.Codename
}

// IsAdd reports whether the atom is an object-creation permission.
func (p Permission) IsAdd() bool {
	return isAddCodename(p.Codename)
}

func isAddCodename(codename string) bool {
	return strings.HasPrefix(codename, "add_")
}

// RoleDefinition is a named, reusable set of permissions. ContentTypeID
// is nil for global (system-wide) definitions. Managed definitions are
// seeded by the engine and immutable through the public API.
type RoleDefinition struct {
	ID            int64
	Name          string
	Description   string
	Managed       bool
	ContentTypeID *int64
	Permissions   []Permission
	CreatedBy     *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPermission reports whether the definition carries the codename.
func (rd *RoleDefinition) HasPermission(codename string) bool {
	for _, p := range rd.Permissions {
		if p.Codename == codename {
			return true
		}
	}
	return false
}

// Codenames returns the definition's permission codenames in stored order.
func (rd *RoleDefinition) Codenames() []string {
	out := make([]string, 0, len(rd.Permissions))
	for _, p := range rd.Permissions {
		out = append(out, p.Codename)
	}
	return out
}

// ObjectRole is the join of a role definition and one concrete object.
// It exists only while at least one actor holds it.
type ObjectRole struct {
	ID               int64
	RoleDefinitionID int64
	ContentTypeID    int64
	ObjectID         string
	CreatedAt        time.Time
}

// RoleUserAssignment records that a user was given a role, either on an
// object (ObjectRoleID set) or globally (ObjectRoleID nil). Assignments
// are immutable; the object fields mirror the object role for listing.
type RoleUserAssignment struct {
	ID               int64
	RoleDefinitionID int64
	UserID           int64
	ObjectRoleID     *int64
	ContentTypeID    *int64
	ObjectID         *string
	CreatedBy        *int64
	CreatedAt        time.Time
}

// RoleTeamAssignment is the team counterpart of RoleUserAssignment.
type RoleTeamAssignment struct {
	ID               int64
	RoleDefinitionID int64
	TeamID           int64
	ObjectRoleID     *int64
	ContentTypeID    *int64
	ObjectID         *string
	CreatedBy        *int64
	CreatedAt        time.Time
}

// evalKey identifies one effective-permission tuple of an object role.
// objectID is the text form; the target type's pk kind picks the partition.
type evalKey struct {
	codename      string
	contentTypeID int64
	objectID      string
}

// evalRow is a stored evaluation tuple together with its partition row id.
type evalRow struct {
	id  int64
	key evalKey
	pk  PKKind
}
