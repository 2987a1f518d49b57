package pool

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

//go:embed roles.yaml
var builtinRolesYAML []byte

// roleSpec is the YAML shape of one role in the built-in catalog.
type roleSpec struct {
	ID           string `yaml:"id"`
	DisplayName  string `yaml:"display_name"`
	Description  string `yaml:"description"`
	DefaultModel string `yaml:"default_model"`
	Timeout      string `yaml:"timeout"`
}

// RoleRegistry holds role definitions: which kinds of engineers the pool can
// field, their default model, and their stage timeout. Built-in roles can be
// updated and reset to their shipped defaults; custom roles can be updated
// but never reset.
type RoleRegistry struct {
	mu       sync.RWMutex
	roles    map[string]*models.Role
	defaults map[string]models.Role
}

// NewRoleRegistry creates a registry seeded with the embedded catalog.
func NewRoleRegistry() *RoleRegistry {
	r := &RoleRegistry{
		roles:    make(map[string]*models.Role),
		defaults: make(map[string]models.Role),
	}
	defaults, err := loadBuiltinRoles()
	if err != nil {
		// The catalog is embedded; a parse failure is a packaging bug.
		panic(fmt.Sprintf("pool: built-in role catalog: %v", err))
	}
	for _, role := range defaults {
		r.defaults[role.ID] = role
		c := role
		r.roles[role.ID] = &c
	}
	return r
}

func loadBuiltinRoles() ([]models.Role, error) {
	var specs []roleSpec
	if err := yaml.Unmarshal(builtinRolesYAML, &specs); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	roles := make([]models.Role, 0, len(specs))
	for _, s := range specs {
		timeout, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, fmt.Errorf("role %s timeout %q: %w", s.ID, s.Timeout, err)
		}
		roles = append(roles, models.Role{
			ID:           s.ID,
			DisplayName:  s.DisplayName,
			Description:  s.Description,
			BuiltIn:      true,
			DefaultModel: s.DefaultModel,
			Timeout:      timeout,
		})
	}
	return roles, nil
}

// List returns all roles ordered by id.
func (r *RoleRegistry) List() []models.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the role for an id.
func (r *RoleRegistry) Get(id string) (models.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[id]
	if !ok {
		return models.Role{}, protocol.NotFoundf("role %s not found", id)
	}
	return *role, nil
}

// Update overwrites a role's mutable fields, or registers a new custom role
// when the id is unknown. The built-in flag of existing roles is preserved.
func (r *RoleRegistry) Update(role models.Role) (models.Role, error) {
	if role.ID == "" {
		return models.Role{}, protocol.MissingParameter("roleId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.roles[role.ID]
	if !ok {
		role.BuiltIn = false
		c := role
		r.roles[role.ID] = &c
		return role, nil
	}
	if role.DisplayName != "" {
		existing.DisplayName = role.DisplayName
	}
	if role.Description != "" {
		existing.Description = role.Description
	}
	if role.DefaultModel != "" {
		existing.DefaultModel = role.DefaultModel
	}
	if role.Timeout > 0 {
		existing.Timeout = role.Timeout
	}
	return *existing, nil
}

// Reset restores a built-in role to its shipped defaults. Resetting a custom
// role fails: there is no default to restore.
func (r *RoleRegistry) Reset(id string) (models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[id]
	if !ok {
		return models.Role{}, protocol.NotFoundf("role %s not found", id)
	}
	if !role.BuiltIn {
		return models.Role{}, protocol.InvalidStatef("role %s is not built-in and cannot be reset", id)
	}
	def := r.defaults[id]
	c := def
	r.roles[id] = &c
	return def, nil
}
