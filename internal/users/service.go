package users

import (
	"context"

	"github.com/mealdesk/mealdesk/internal/authz"
	"github.com/mealdesk/mealdesk/internal/shared"
)

// RoleLister exposes per-user role data from the role store.
type RoleLister interface {
	RolesForUser(ctx context.Context, userID int64) ([]authz.RoleGrant, error)
}

// Service handles user management business logic.
type Service struct {
	repo  RepositoryPort
	roles RoleLister
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, roles RoleLister) *Service {
	return &Service{repo: repo, roles: roles}
}

// ListUsers returns one page of users plus pagination metadata.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	list, err := s.repo.ListUsers(ctx, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, p, nil
}

// GetUser fetches a single user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// SetActive toggles an account.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// UserRoles returns the role grants a user holds.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]authz.RoleGrant, error) {
	return s.roles.RolesForUser(ctx, userID)
}
