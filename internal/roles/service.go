package roles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mealdesk/mealdesk/internal/authz"
	"github.com/mealdesk/mealdesk/internal/shared"
)

// AuditRecorder persists an audit trail of role mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SnapshotNotifier schedules a rebuild of the published permission snapshot
// after a grant-affecting mutation, so the sync evaluation path converges
// without waiting for the next cron run.
type SnapshotNotifier interface {
	NotifyRebuild(ctx context.Context, reason string) error
}

// Service handles role store business logic. It is the authoritative
// permission source: authz.RoleSource is implemented here.
type Service struct {
	repo     RepositoryPort
	registry *authz.Registry
	audit    AuditRecorder
	notifier SnapshotNotifier
}

// NewService builds a Service instance. The audit recorder and snapshot
// notifier may be nil.
func NewService(repo RepositoryPort, registry *authz.Registry, audit AuditRecorder, notifier SnapshotNotifier) *Service {
	return &Service{repo: repo, registry: registry, audit: audit, notifier: notifier}
}

// RolesForUser implements authz.RoleSource.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]authz.RoleGrant, error) {
	held, err := s.repo.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toGrants(held), nil
}

// AllRoles implements authz.RoleSource.
func (s *Service) AllRoles(ctx context.Context) ([]authz.RoleGrant, error) {
	all, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	return toGrants(all), nil
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role after validating its name.
func (s *Service) CreateRole(ctx context.Context, actorID int64, name, description string) (Role, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "role.create", role.ID, map[string]any{"name": role.Name})
	s.notifyRebuild(ctx, "role.create")
	return role, nil
}

// UpdateRole updates an existing role. System roles cannot be renamed.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, name, description string) (Role, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Role{}, err
	}
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if current.System && current.Name != name {
		return Role{}, ErrProtectedRole
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "role.update", role.ID, map[string]any{"name": role.Name})
	if current.Name != role.Name {
		s.notifyRebuild(ctx, "role.rename")
	}
	return role, nil
}

// DeleteRole removes a role. Deletion is blocked while any user holds the
// role and for protected system roles.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.System {
		return ErrProtectedRole
	}
	held, err := s.repo.CountAssignments(ctx, id)
	if err != nil {
		return err
	}
	if held > 0 {
		return fmt.Errorf("%w: %d assignments", ErrRoleInUse, held)
	}
	rows, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.recordAudit(ctx, actorID, "role.delete", id, map[string]any{"name": role.Name})
	s.notifyRebuild(ctx, "role.delete")
	return nil
}

// SetRolePermissions replaces the grant list of a role. Every grant must be
// in the permission registry; a typo'd key is rejected instead of being
// stored as a capability nobody can ever satisfy.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, permissions []string) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}

	canonical := make([]string, 0, len(permissions))
	seen := make(map[string]struct{}, len(permissions))
	for _, raw := range permissions {
		key, err := authz.ParseKey(raw)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, raw)
		}
		if !s.registry.Known(key) {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, raw)
		}
		if _, dup := seen[key.String()]; dup {
			continue
		}
		seen[key.String()] = struct{}{}
		canonical = append(canonical, key.String())
	}

	if err := s.repo.ReplaceRolePermissions(ctx, roleID, canonical); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.permissions", roleID, map[string]any{"permissions": canonical})
	s.notifyRebuild(ctx, "role.permissions")
	return nil
}

// AssignRole assigns a role to the given user. Duplicate (user, role) pairs
// surface as ErrDuplicate.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.assign", roleID, map[string]any{"user_id": userID})
	return nil
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.unassign", roleID, map[string]any{"user_id": userID})
	return nil
}

// RoleNamesForUser returns just the role names a user holds, for session
// issuance.
func (s *Service) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	held, err := s.repo.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(held))
	for i, role := range held {
		names[i] = role.Name
	}
	return names, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	// Audit failures never abort the mutation they describe.
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func (s *Service) notifyRebuild(ctx context.Context, reason string) {
	if s.notifier == nil {
		return
	}
	// Best effort: the scheduled verify run catches a lost notification.
	_ = s.notifier.NotifyRebuild(ctx, reason)
}

func toGrants(held []Role) []authz.RoleGrant {
	grants := make([]authz.RoleGrant, len(held))
	for i, role := range held {
		grants[i] = authz.RoleGrant{Name: role.Name, Permissions: role.Permissions}
	}
	return grants
}

func normalizeName(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", errors.New("roles: role name required")
	}
	return name, nil
}
