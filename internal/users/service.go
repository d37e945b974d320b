package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string, roleIDs []int64) (int64, error)
	UpdateUser(ctx context.Context, id int64, email, name string, isActive bool, roleIDs []int64) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	SetActive(ctx context.Context, id int64, active bool, at time.Time) error
}

// AuditPort records administrative actions on user accounts.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput carries fields for a new user account.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	RoleIDs  []int64
	Operator shared.Operator
}

// UpdateInput carries fields for a profile update.
type UpdateInput struct {
	Email    string
	Name     string
	IsActive bool
	RoleIDs  []int64
	Operator shared.Operator
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new account with a bcrypt hashed password.
func (s *Service) CreateUser(ctx context.Context, input CreateInput) (int64, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" {
		return 0, ErrValidation
	}
	if len(input.Password) < 8 {
		return 0, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateUser(ctx, email, name, string(hash), input.RoleIDs)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, input.Operator, "user.create", id, map[string]any{"email": email})
	return id, nil
}

// UpdateUser changes profile fields and role assignments.
func (s *Service) UpdateUser(ctx context.Context, id int64, input UpdateInput) error {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" {
		return ErrValidation
	}
	if err := s.repo.UpdateUser(ctx, id, email, name, input.IsActive, input.RoleIDs); err != nil {
		return err
	}
	s.recordAudit(ctx, input.Operator, "user.update", id, map[string]any{"email": email, "active": input.IsActive})
	return nil
}

// ChangePassword replaces the stored hash after validating the new password.
func (s *Service) ChangePassword(ctx context.Context, id int64, password string, op shared.Operator) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.recordAudit(ctx, op, "user.password", id, nil)
	return nil
}

// Deactivate blocks an account from logging in without deleting its history.
func (s *Service) Deactivate(ctx context.Context, id int64, op shared.Operator) error {
	if id == op.ID {
		return fmt.Errorf("%w: cannot deactivate own account", ErrValidation)
	}
	if err := s.repo.SetActive(ctx, id, false, time.Now().UTC()); err != nil {
		return err
	}
	s.recordAudit(ctx, op, "user.deactivate", id, nil)
	return nil
}

// Activate re-enables a previously deactivated account.
func (s *Service) Activate(ctx context.Context, id int64, op shared.Operator) error {
	if err := s.repo.SetActive(ctx, id, true, time.Now().UTC()); err != nil {
		return err
	}
	s.recordAudit(ctx, op, "user.activate", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op shared.Operator, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   op.ID,
		ActorName: op.Name,
		Action:    action,
		Entity:    "user",
		EntityID:  strconv.FormatInt(userID, 10),
		Meta:      meta,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
