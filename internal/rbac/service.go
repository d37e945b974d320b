package rbac

import (
	"context"
	"errors"
	"strings"
)

// ErrValidation indicates invalid role input.
var ErrValidation = errors.New("invalid role input")

// RepositoryPort defines data access methods for roles and permissions.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (RoleDetail, error)
	CreateRole(ctx context.Context, name, description string) (int64, error)
	UpdateRole(ctx context.Context, id int64, name, description string) error
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Service handles role and permission business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns one role with its permissions.
func (s *Service) GetRole(ctx context.Context, id int64) (RoleDetail, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole creates a role after validating its name.
func (s *Service) CreateRole(ctx context.Context, name, description string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrValidation
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole renames a role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrValidation
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role and revokes it from every user.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// SetRolePermissions replaces the grants of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return s.repo.SetRolePermissions(ctx, roleID, permissionIDs)
}

// EffectivePermissions resolves the union of permission codes a user holds.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, userID)
}
