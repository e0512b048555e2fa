package rbac

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoleSeed describes a role as it appears in seed files.
type RoleSeed struct {
	Name        RoleName `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	IsAdmin     bool     `yaml:"is_admin"`
}

// Catalog is the role list plus the permission matrix, keyed by role name.
type Catalog struct {
	Roles       []RoleSeed                `yaml:"roles"`
	Permissions map[RoleName][]Permission `yaml:"permissions"`
}

// ParseCatalog decodes and validates a YAML catalog. Keys other than roles and
// permissions are ignored so seed files can carry extra sections.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Merge appends other's roles and permission rows. Later rows for the same
// (role, tile) win when applied, matching the store's upsert semantics.
func (c *Catalog) Merge(other Catalog) {
	c.Roles = append(c.Roles, other.Roles...)
	if len(other.Permissions) > 0 && c.Permissions == nil {
		c.Permissions = make(map[RoleName][]Permission, len(other.Permissions))
	}
	for role, perms := range other.Permissions {
		c.Permissions[role] = append(c.Permissions[role], perms...)
	}
}

// Validate checks enumerations and the write-implies-access invariant for
// every row, and that every permission row belongs to a declared role.
func (c Catalog) Validate() error {
	var problems []string

	declared := make(map[RoleName]bool, len(c.Roles))
	for _, r := range c.Roles {
		if !r.Name.Valid() {
			problems = append(problems, fmt.Sprintf("unknown role %q", r.Name))
			continue
		}
		if strings.TrimSpace(r.DisplayName) == "" {
			problems = append(problems, fmt.Sprintf("role %s: display_name is required", r.Name))
		}
		declared[r.Name] = true
	}

	for role, perms := range c.Permissions {
		if !declared[role] {
			problems = append(problems, fmt.Sprintf("permissions for undeclared role %q", role))
		}
		for _, p := range perms {
			if err := p.Validate(); err != nil {
				problems = append(problems, fmt.Sprintf("role %s: %v", role, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid catalog: %s", strings.Join(problems, "; "))
	}
	return nil
}
