package rbac

import (
	"fmt"
	"strings"
)

// DefaultActions is the action set a resource type gets when its
// registration does not override Actions. The add action attaches to
// the parent type at validation time.
var DefaultActions = []string{"add", "change", "delete", "view"}

// ResourceType describes one host model tracked by the engine.
type ResourceType struct {
	// Name is the singular model name used in codenames, e.g. "inventory".
	Name string
	// Table is the host table holding rows of this type.
	Table string
	// PKColumn is the primary key column, defaulting to "id".
	PKColumn string
	// PK selects the evaluation partition for this type.
	PK PKKind
	// ParentType names the registered parent, or "" for a root or
	// standalone type.
	ParentType string
	// ParentColumn is the FK column on Table pointing at the parent's
	// primary key, defaulting to "<ParentType>_id".
	ParentColumn string
	// Actions overrides DefaultActions when non-nil.
	Actions []string
	// ExtraPermissions are additional codenames beyond the action set,
	// e.g. "update_inventory".
	ExtraPermissions []string
}

// ChildSpec is one descendant of a resource type together with the FK
// chain that reaches it. Chain runs from the descendant upward; the last
// element's parent column references the ancestor the spec belongs to.
type ChildSpec struct {
	Type *ResourceType
	// Chain[0] is the descendant itself; each following element is one
	// hop toward the ancestor.
	Chain []*ResourceType
	// Path is the chain in codename form, e.g. "namespace__organization".
	Path string
}

// Registry holds the resource types the engine tracks and their parent
// relationships. All registration happens before the engine starts; the
// engine freezes the registry and later mutation is a ConfigError.
type Registry struct {
	teamType string
	types    map[string]*ResourceType
	order    []string
	children map[string][]ChildSpec
	ctID     map[string]int64
	ctName   map[int64]string
	frozen   bool
}

// NewRegistry returns an empty registry with team type name "team".
func NewRegistry() *Registry {
	return &Registry{
		teamType: "team",
		types:    make(map[string]*ResourceType),
		ctID:     make(map[string]int64),
		ctName:   make(map[int64]string),
	}
}

// SetTeamType renames the registered type that acts as the team model.
func (r *Registry) SetTeamType(name string) error {
	if r.frozen {
		return NewConfigError("cannot change team type after engine start")
	}
	r.teamType = name
	return nil
}

// TeamType returns the team model's type name.
func (r *Registry) TeamType() string { return r.teamType }

// TeamPermission returns the membership codename, e.g. "member_team".
func (r *Registry) TeamPermission() string {
	return "member_" + r.teamType
}

// Register adds a resource type. Duplicate names and registration after
// engine start are ConfigErrors; unknown parents are caught at freeze.
func (r *Registry) Register(rt ResourceType) error {
	if r.frozen {
		return NewConfigError("cannot register %q after engine start", rt.Name)
	}
	if rt.Name == "" || rt.Table == "" {
		return NewConfigError("resource type requires a name and a table")
	}
	if _, ok := r.types[rt.Name]; ok {
		return NewConfigError("type %q registered twice", rt.Name)
	}
	if rt.PKColumn == "" {
		rt.PKColumn = "id"
	}
	if rt.ParentType != "" && rt.ParentColumn == "" {
		rt.ParentColumn = rt.ParentType + "_id"
	}
	cp := rt
	r.types[rt.Name] = &cp
	r.order = append(r.order, rt.Name)
	return nil
}

// freeze validates the registered graph and locks the registry.
func (r *Registry) freeze() error {
	if r.frozen {
		return nil
	}
	tt, ok := r.types[r.teamType]
	if !ok {
		return NewConfigError("team type %q is not registered", r.teamType)
	}
	if tt.PK != PKInt {
		return NewConfigError("team type %q must use an integer primary key", r.teamType)
	}
	if !containsString(tt.ExtraPermissions, r.TeamPermission()) {
		tt.ExtraPermissions = append(tt.ExtraPermissions, r.TeamPermission())
	}
	for _, name := range r.order {
		rt := r.types[name]
		if rt.ParentType == "" {
			continue
		}
		if _, ok := r.types[rt.ParentType]; !ok {
			return NewConfigError("type %q names unregistered parent %q", name, rt.ParentType)
		}
		seen := map[string]bool{name: true}
		for p := rt.ParentType; p != ""; p = r.types[p].ParentType {
			if seen[p] {
				return NewConfigError("parent cycle through type %q", p)
			}
			seen[p] = true
		}
	}
	r.children = make(map[string][]ChildSpec, len(r.order))
	for _, name := range r.order {
		r.children[name] = r.buildChildren(name, map[string]bool{})
	}
	r.frozen = true
	return nil
}

// buildChildren walks direct children in registration order, then each
// child's own descendants, extending the FK chain by one hop. The seen
// set keeps the result deterministic and duplicate-free.
func (r *Registry) buildChildren(parent string, seen map[string]bool) []ChildSpec {
	var out []ChildSpec
	for _, name := range r.order {
		rt := r.types[name]
		if rt.ParentType != parent || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, ChildSpec{Type: rt, Chain: []*ResourceType{rt}, Path: rt.ParentType})
		for _, sub := range r.buildChildren(name, seen) {
			chain := append(append([]*ResourceType{}, sub.Chain...), rt)
			out = append(out, ChildSpec{Type: sub.Type, Chain: chain, Path: sub.Path + "__" + rt.ParentType})
		}
	}
	return out
}

// Type returns the registered type by name.
func (r *Registry) Type(name string) (*ResourceType, error) {
	rt, ok := r.types[name]
	if !ok {
		return nil, NewValidationError("unregistered resource type %q", name)
	}
	return rt, nil
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []*ResourceType {
	out := make([]*ResourceType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// ParentType returns the parent of the named type, or nil for roots.
func (r *Registry) ParentType(name string) *ResourceType {
	rt, ok := r.types[name]
	if !ok || rt.ParentType == "" {
		return nil
	}
	return r.types[rt.ParentType]
}

// ChildSpecs returns every descendant of the named type with its FK
// chain, in deterministic order. Only valid after the engine starts.
func (r *Registry) ChildSpecs(name string) []ChildSpec {
	return r.children[name]
}

// IsDescendant reports whether child sits below ancestor in the parent
// graph (any number of hops).
func (r *Registry) IsDescendant(child, ancestor string) bool {
	rt, ok := r.types[child]
	if !ok {
		return false
	}
	for p := rt.ParentType; p != ""; p = r.types[p].ParentType {
		if p == ancestor {
			return true
		}
	}
	return false
}

// CodenamesFor returns every codename attached to the type: its action
// set plus extra permissions. add_<name> is included when the action set
// carries "add", even though it validates onto the parent type.
func (r *Registry) CodenamesFor(rt *ResourceType) []string {
	actions := rt.Actions
	if actions == nil {
		actions = DefaultActions
	}
	out := make([]string, 0, len(actions)+len(rt.ExtraPermissions))
	for _, action := range actions {
		out = append(out, action+"_"+rt.Name)
	}
	for _, extra := range rt.ExtraPermissions {
		if !containsString(out, extra) {
			out = append(out, extra)
		}
	}
	return out
}

// TypeForCodename resolves the type name embedded in a full codename,
// e.g. "inventory" from "add_inventory" or "update_inventory". Extra
// permissions are matched against their owning type.
func (r *Registry) TypeForCodename(codename string) (*ResourceType, error) {
	i := strings.Index(codename, "_")
	if i > 0 {
		if rt, ok := r.types[codename[i+1:]]; ok {
			return rt, nil
		}
	}
	for _, name := range r.order {
		rt := r.types[name]
		if containsString(rt.ExtraPermissions, codename) {
			return rt, nil
		}
	}
	return nil, NewValidationError("codename %q does not match any registered type", codename)
}

// ContentTypeID returns the persistent integer id of a type name. The
// mapping is synced from the content_types table at engine start.
func (r *Registry) ContentTypeID(name string) (int64, error) {
	id, ok := r.ctID[name]
	if !ok {
		return 0, NewValidationError("unregistered resource type %q", name)
	}
	return id, nil
}

// TypeByContentTypeID is the reverse of ContentTypeID.
func (r *Registry) TypeByContentTypeID(id int64) (*ResourceType, error) {
	name, ok := r.ctName[id]
	if !ok {
		return nil, fmt.Errorf("unknown content type id %d: %w", id, ErrNotFound)
	}
	return r.types[name], nil
}

func (r *Registry) setContentTypeID(name string, id int64) {
	r.ctID[name] = id
	r.ctName[id] = name
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
