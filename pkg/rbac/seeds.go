package rbac

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManagedRoleTemplate describes one managed role definition to
// precreate. An empty permission list on an object-scoped template
// expands to every permission the type can carry (an admin role).
type ManagedRoleTemplate struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	ContentType string   `yaml:"content_type"`
	Permissions []string `yaml:"permissions"`
}

type roleTemplateFile struct {
	Roles []ManagedRoleTemplate `yaml:"roles"`
}

// LoadRoleTemplates reads extra managed role templates from a YAML file.
func LoadRoleTemplates(path string) ([]ManagedRoleTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role templates %s: %w", path, err)
	}
	var file roleTemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse role templates %s: %w", path, err)
	}
	return file.Roles, nil
}

// adminPermissionsFor returns every codename a role bound to the type
// can carry: the type's own atoms except creating more of itself, plus
// everything of its descendants.
func adminPermissionsFor(reg *Registry, typeName string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(codename string) {
		if !seen[codename] {
			seen[codename] = true
			out = append(out, codename)
		}
	}
	rt, err := reg.Type(typeName)
	if err != nil {
		return nil
	}
	for _, codename := range reg.CodenamesFor(rt) {
		if codename == "add_"+typeName {
			continue
		}
		add(codename)
	}
	for _, spec := range reg.ChildSpecs(typeName) {
		for _, codename := range reg.CodenamesFor(spec.Type) {
			add(codename)
		}
	}
	return out
}

// builtinManagedRoles are the standard admin and member definitions for
// the team type and its parent, plus a global auditor when global roles
// are enabled.
func builtinManagedRoles(reg *Registry, settings Settings) []ManagedRoleTemplate {
	teamType := reg.TeamType()
	templates := []ManagedRoleTemplate{
		{
			Name:        "Team Admin",
			Description: "Can manage a single team and has all permissions given to the team",
			ContentType: teamType,
		},
		{
			Name:        "Team Member",
			Description: "Has all permissions given to a single team",
			ContentType: teamType,
			Permissions: []string{"view_" + teamType, reg.TeamPermission()},
		},
	}
	if parent := reg.ParentType(teamType); parent != nil {
		memberPerms := []string{"view_" + parent.Name}
		if containsString(reg.CodenamesFor(parent), "member_"+parent.Name) {
			memberPerms = append(memberPerms, "member_"+parent.Name)
		}
		templates = append(templates,
			ManagedRoleTemplate{
				Name:        fmt.Sprintf("%s Admin", titleName(parent.Name)),
				Description: fmt.Sprintf("Has all permissions to a single %s and all objects inside of it", parent.Name),
				ContentType: parent.Name,
			},
			ManagedRoleTemplate{
				Name:        fmt.Sprintf("%s Member", titleName(parent.Name)),
				Description: fmt.Sprintf("Has member permission to a single %s", parent.Name),
				ContentType: parent.Name,
				Permissions: memberPerms,
			},
		)
	}
	if systemRolesEnabled(settings) {
		var viewAll []string
		for _, rt := range reg.Types() {
			if containsString(reg.CodenamesFor(rt), "view_"+rt.Name) {
				viewAll = append(viewAll, "view_"+rt.Name)
			}
		}
		templates = append(templates, ManagedRoleTemplate{
			Name:        "System Auditor",
			Description: "Has view permissions to all objects",
			Permissions: viewAll,
		})
	}
	return templates
}

func titleName(name string) string {
	if name == "" {
		return name
	}
	return string(name[0]-'a'+'A') + name[1:]
}

// SeedManagedRoles idempotently creates the built-in managed role
// definitions, plus templates from the configured precreate file.
// Existing definitions are matched by name and left untouched.
func (e *Engine) SeedManagedRoles(ctx context.Context) ([]*RoleDefinition, error) {
	templates := builtinManagedRoles(e.reg, e.settings)
	if e.settings.RolePrecreate != "" {
		extra, err := LoadRoleTemplates(e.settings.RolePrecreate)
		if err != nil {
			return nil, err
		}
		templates = append(templates, extra...)
	}

	var out []*RoleDefinition
	for _, tmpl := range templates {
		if tmpl.ContentType == "" && !systemRolesEnabled(e.settings) {
			e.log.WithField("name", tmpl.Name).Warning("skipping global managed role, system-wide roles are not enabled")
			continue
		}
		perms := tmpl.Permissions
		if len(perms) == 0 && tmpl.ContentType != "" {
			perms = adminPermissionsFor(e.reg, tmpl.ContentType)
		}
		rd, created, err := e.GetOrCreateRoleDefinition(ctx, RoleDefinitionSpec{
			Name:        tmpl.Name,
			Description: tmpl.Description,
			ContentType: tmpl.ContentType,
			Permissions: perms,
			Managed:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed managed role %s: %w", tmpl.Name, err)
		}
		if created {
			e.log.WithField("name", tmpl.Name).Info("created managed role definition")
		}
		out = append(out, rd)
	}
	return out, nil
}
