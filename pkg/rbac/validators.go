package rbac

import "strings"

func systemRolesEnabled(s Settings) bool {
	return s.AllowSingletonUserRoles || s.AllowSingletonTeamRoles
}

// validatePermissionsForModel checks a permission set against the
// content type a role definition binds to. ctID nil means a global
// definition. The rules:
//   - global definitions require singleton roles to be enabled and may
//     not carry the team membership codename
//   - an add_<model> atom attaches to the model's parent type; without a
//     parent it is only valid in global definitions
//   - every other atom must be for the bound type or one of its
//     descendants
//   - each model mentioned must also get its view permission
func validatePermissionsForModel(reg *Registry, settings Settings, perms []Permission, ctID *int64) error {
	var ctType *ResourceType
	if ctID == nil {
		if !systemRolesEnabled(settings) {
			return NewValidationError("system-wide roles are not enabled")
		}
		for _, p := range perms {
			if p.Codename == reg.TeamPermission() {
				return NewValidationError("the %s permission can not be used in global roles", reg.TeamPermission())
			}
		}
	} else {
		var err error
		ctType, err = reg.TypeByContentTypeID(*ctID)
		if err != nil {
			return err
		}
	}

	// group permissions by the model the role would apply to; add
	// permissions group under the permission model's parent
	byRoleModel := map[string][]Permission{}
	for _, p := range perms {
		permType, err := reg.TypeByContentTypeID(p.ContentTypeID)
		if err != nil {
			return err
		}
		roleModel := permType.Name
		if p.IsAdd() {
			roleModel = permType.ParentType
			if roleModel == "" && !systemRolesEnabled(settings) {
				return NewValidationError("%s permission requires system-wide roles, which are not enabled", p.Codename)
			}
		}
		if ctType != nil && roleModel != ctType.Name {
			if !childTypeNames(reg, ctType.Name)[permType.Name] {
				return NewValidationError("%s is not valid for content type %s", p.Codename, ctType.Name)
			}
		}
		byRoleModel[roleModel] = append(byRoleModel[roleModel], p)
	}

	for roleModel, modelPerms := range byRoleModel {
		ok := false
		for _, p := range modelPerms {
			if strings.HasPrefix(p.Codename, "view") {
				ok = true
				break
			}
			// system add permissions have no parent object to view
			if roleModel == "" && p.IsAdd() {
				ok = true
				break
			}
		}
		if !ok {
			return NewValidationError("permissions for model %s need to include view, got: %s",
				roleModel, strings.Join(codenameList(modelPerms), ", "))
		}
	}
	return nil
}

func codenameList(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Codename)
	}
	return out
}

func childTypeNames(reg *Registry, parent string) map[string]bool {
	out := map[string]bool{}
	for _, spec := range reg.ChildSpecs(parent) {
		out[spec.Type.Name] = true
	}
	return out
}

// validateCodenameForModel expands a bare action into a full codename
// for the type ("change" on an inventory becomes "change_inventory") and
// checks that the result can ever hold for the type: its own codenames,
// add codenames of child types, or any descendant's codenames. An add
// codename asked directly on its own model is an error, since creation
// is always checked on the parent.
func validateCodenameForModel(reg *Registry, codename string, rt *ResourceType) (string, error) {
	valid := map[string]bool{}
	for _, c := range reg.CodenamesFor(rt) {
		valid[c] = true
	}
	if !isAddCodename(codename) && valid[codename] {
		return codename, nil
	}
	name := codename
	if !strings.Contains(codename, "_") {
		name = codename + "_" + rt.Name
	} else if i := strings.LastIndex(codename, "."); i >= 0 {
		// permissions are sometimes referenced with an app prefix
		name = codename[i+1:]
	}
	if valid[name] {
		if isAddCodename(name) {
			return "", NewValidationError("add permissions are only valid for parent models, received for %s", rt.Name)
		}
		return name, nil
	}
	for _, spec := range reg.ChildSpecs(rt.Name) {
		for _, c := range reg.CodenamesFor(spec.Type) {
			if c == name {
				return name, nil
			}
		}
	}
	return "", NewValidationError("the permission %s is not valid for model %s", name, rt.Name)
}

// validateAssignmentEnabled enforces the team pairing switches when the
// actor is a team. hasTeamPerm tells whether the definition being
// assigned carries the membership codename.
func validateAssignmentEnabled(reg *Registry, settings Settings, actor Actor, targetType string, hasTeamPerm bool) error {
	if settings.TeamTeamAllowed && settings.TeamOrgAllowed && settings.TeamOrgTeamAllowed {
		return nil
	}
	if _, ok := actor.(Team); !ok {
		return nil
	}
	teamType := reg.TeamType()
	if !settings.TeamTeamAllowed && targetType == teamType {
		return NewValidationError("assigning team permissions to other teams is not allowed")
	}
	parent := reg.ParentType(teamType)
	if parent == nil {
		return nil
	}
	if !settings.TeamOrgAllowed && targetType == parent.Name {
		return NewValidationError("assigning %s permissions to teams is not allowed", parent.Name)
	}
	if !settings.TeamOrgTeamAllowed && targetType == parent.Name && hasTeamPerm {
		return NewValidationError("assigning %s permissions with team membership to teams is not allowed", parent.Name)
	}
	return nil
}

// validateAssignment checks the definition's bound type against the
// target object before an object-scoped assignment.
func validateAssignment(reg *Registry, rd *RoleDefinition, obj Resource) error {
	if rd.ContentTypeID == nil {
		return NewValidationError("role definition %s is global, use a global assignment", rd.Name)
	}
	rdType, err := reg.TypeByContentTypeID(*rd.ContentTypeID)
	if err != nil {
		return err
	}
	if rdType.Name != obj.Type {
		return NewValidationError("role type %s does not match object %s", rdType.Name, obj.Type)
	}
	return nil
}
