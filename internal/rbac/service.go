package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gatehouse-app/gatehouse/internal/shared"
)

// Auditor records admin mutations. *shared.AuditLogger satisfies it; tests
// pass nil.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates role management and authorization decisions.
type Service struct {
	repo    Repository
	auditor Auditor
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

// ListRoles returns all roles with permissions loaded.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole validates input and persists the role with its permission set
// atomically.
func (s *Service) CreateRole(ctx context.Context, actor, name string, perms []Permission) (Role, error) {
	name, perms, err := validateRoleInput(name, perms)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, name, perms)
	if err != nil {
		return Role{}, err
	}
	s.audit(ctx, actor, "role.create", strconv.FormatInt(role.ID, 10), map[string]any{"name": role.Name, "permissions": len(perms)})
	return role, nil
}

// UpdateRole validates input and replaces the role's name and entire
// permission set in one transaction.
func (s *Service) UpdateRole(ctx context.Context, actor string, id int64, name string, perms []Permission) (Role, error) {
	name, perms, err := validateRoleInput(name, perms)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, name, perms)
	if err != nil {
		return Role{}, err
	}
	s.audit(ctx, actor, "role.update", strconv.FormatInt(id, 10), map[string]any{"name": role.Name, "permissions": len(perms)})
	return role, nil
}

// DeleteRole removes the role and, by cascade, its permissions and user
// assignments. Returns false when the id is unknown.
func (s *Service) DeleteRole(ctx context.Context, actor string, id int64) (bool, error) {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.audit(ctx, actor, "role.delete", strconv.FormatInt(id, 10), nil)
	return true, nil
}

// AssignRolesToUser replaces the user's entire role membership set.
func (s *Service) AssignRolesToUser(ctx context.Context, actor string, userID int64, roleIDs []int64) error {
	if err := s.repo.ReplaceUserRoles(ctx, userID, roleIDs); err != nil {
		return err
	}
	s.audit(ctx, actor, "access.assign", strconv.FormatInt(userID, 10), map[string]any{"roles": len(roleIDs)})
	return nil
}

// ListUserAccess returns every user with their role names.
func (s *Service) ListUserAccess(ctx context.Context) ([]UserAccess, error) {
	return s.repo.ListUserAccess(ctx)
}

// GetUserAccess returns one user's role names.
func (s *Service) GetUserAccess(ctx context.Context, userID int64) (UserAccess, error) {
	return s.repo.GetUserAccess(ctx, userID)
}

// IsAuthorized reports whether the named user may invoke the controller/
// action pair. The permission set is read fresh on every call; there is no
// cross-request caching.
func (s *Service) IsAuthorized(ctx context.Context, username, controller, action string) (bool, error) {
	if username == "" {
		return false, nil
	}
	granted, err := s.repo.PermissionsForUser(ctx, username)
	if err != nil {
		return false, err
	}
	return Authorized(granted, controller, action), nil
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "role_access",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

func validateRoleInput(name string, perms []Permission) (string, []Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if len(name) > MaxNameLength {
		return "", nil, fmt.Errorf("%w: role name is limited to %d characters", shared.ErrValidation, MaxNameLength)
	}
	normalized := make([]Permission, 0, len(perms))
	for _, perm := range perms {
		perm = NormalizePermission(perm)
		if perm.Controller == "" || perm.Action == "" {
			return "", nil, fmt.Errorf("%w: permission requires controller and action", shared.ErrValidation)
		}
		if len(perm.Controller) > MaxNameLength || len(perm.Action) > MaxNameLength {
			return "", nil, fmt.Errorf("%w: controller and action are limited to %d characters", shared.ErrValidation, MaxNameLength)
		}
		normalized = append(normalized, perm)
	}
	return name, normalized, nil
}
