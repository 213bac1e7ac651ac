package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type registryFile struct {
	TeamType string             `yaml:"team_type"`
	Types    []registryFileType `yaml:"types"`
}

type registryFileType struct {
	Name             string   `yaml:"name"`
	Table            string   `yaml:"table"`
	PKColumn         string   `yaml:"pk_column"`
	PK               string   `yaml:"pk"`
	ParentType       string   `yaml:"parent_type"`
	ParentColumn     string   `yaml:"parent_column"`
	Actions          []string `yaml:"actions"`
	ExtraPermissions []string `yaml:"extra_permissions"`
}

// LoadRegistryFromYAML builds a registry from a YAML description of the
// resource types. Used by tooling that operates on a deployment's
// database without linking the application itself.
func LoadRegistryFromYAML(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}

	reg := NewRegistry()
	if file.TeamType != "" {
		if err := reg.SetTeamType(file.TeamType); err != nil {
			return nil, err
		}
	}
	for _, ft := range file.Types {
		var pk PKKind
		switch ft.PK {
		case "", "int":
			pk = PKInt
		case "uuid":
			pk = PKUUID
		default:
			return nil, NewConfigError("type %s: unknown pk kind %q", ft.Name, ft.PK)
		}
		if err := reg.Register(ResourceType{
			Name:             ft.Name,
			Table:            ft.Table,
			PKColumn:         ft.PKColumn,
			PK:               pk,
			ParentType:       ft.ParentType,
			ParentColumn:     ft.ParentColumn,
			Actions:          ft.Actions,
			ExtraPermissions: ft.ExtraPermissions,
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
