package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/campusops/portal/internal/auth"
	"github.com/campusops/portal/internal/database"
	"github.com/campusops/portal/internal/db"
	"github.com/campusops/portal/internal/rbac"
	"github.com/campusops/portal/internal/roles"
	"gopkg.in/yaml.v3"
)

// SeedFile is one YAML seed file: the role catalog plus demo accounts.
type SeedFile struct {
	rbac.Catalog `yaml:",inline"`
	Users        []SeedUser `yaml:"users"`
}

type SeedUser struct {
	Email    string        `yaml:"email"`
	Name     string        `yaml:"name"`
	Role     rbac.RoleName `yaml:"role"`
	Password string        `yaml:"password"`
}

func decodeSeedFile(r io.Reader) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, err
	}
	return &f, nil
}

// merge appends other into f.
func (f *SeedFile) merge(other *SeedFile) {
	f.Catalog.Merge(other.Catalog)
	f.Users = append(f.Users, other.Users...)
}

func (f *SeedFile) validate() error {
	if err := f.Catalog.Validate(); err != nil {
		return err
	}

	declared := make(map[rbac.RoleName]bool, len(f.Roles))
	for _, r := range f.Roles {
		declared[r.Name] = true
	}

	seen := make(map[string]bool, len(f.Users))
	var problems []string
	for _, u := range f.Users {
		email := auth.NormalizeEmail(u.Email)
		switch {
		case email == "":
			problems = append(problems, "user with empty email")
			continue
		case seen[email]:
			problems = append(problems, fmt.Sprintf("duplicate user %s", email))
		}
		seen[email] = true

		if !declared[u.Role] {
			problems = append(problems, fmt.Sprintf("user %s: role %q is not declared", email, u.Role))
		}
		if u.Password == "" {
			problems = append(problems, fmt.Sprintf("user %s: password is required", email))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid seed users: %s", strings.Join(problems, "; "))
	}
	return nil
}

func loadSeedFiles(files []string) (*SeedFile, error) {
	combined := &SeedFile{}

	for _, file := range files {
		fh, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", file, err)
		}
		data, err := decodeSeedFile(fh)
		fh.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML in %s: %w", file, err)
		}
		combined.merge(data)
	}

	if err := combined.validate(); err != nil {
		return nil, err
	}
	return combined, nil
}

func applySeedFile(ctx context.Context, database *database.Database, roleService *roles.Service, data *SeedFile) error {
	if err := roleService.ApplyCatalog(ctx, &data.Catalog); err != nil {
		return fmt.Errorf("failed to apply role catalog: %w", err)
	}
	fmt.Printf("applied %d role(s)\n", len(data.Roles))

	for _, u := range data.Users {
		role, err := roleService.GetRoleByName(ctx, u.Role)
		if err != nil {
			return fmt.Errorf("failed to look up role %s: %w", u.Role, err)
		}

		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return err
		}

		email := auth.NormalizeEmail(u.Email)
		name := u.Name
		if name == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}

		if _, err := database.Queries().UpsertUser(ctx, db.UpsertUserParams{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
			RoleID:       role.ID,
		}); err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", email, err)
		}
		fmt.Printf("seeded user: %s (%s)\n", email, u.Role)
	}

	fmt.Println("seeding completed")
	return nil
}

func resolveFiles(file, dir string) ([]string, error) {
	if file == "" && dir == "" {
		return nil, fmt.Errorf("must specify either --file or --dir")
	}
	if file != "" && dir != "" {
		return nil, fmt.Errorf("cannot specify both --file and --dir")
	}
	if file != "" {
		return []string{file}, nil
	}
	return findYAMLFiles(dir)
}

func findYAMLFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isYAMLFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML files found in directory: %s", dir)
	}
	return files, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
