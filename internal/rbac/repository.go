package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-app/gatehouse/internal/platform/db"
	"github.com/gatehouse-app/gatehouse/internal/shared"
)

// ErrDuplicateName indicates a role name collision.
var ErrDuplicateName = fmt.Errorf("%w: role name already in use", shared.ErrValidation)

// Repository defines persistence operations for roles and permissions.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name string, perms []Permission) (Role, error)
	UpdateRole(ctx context.Context, id int64, name string, perms []Permission) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	PermissionsForUser(ctx context.Context, username string) ([]Permission, error)
	ListUserAccess(ctx context.Context) ([]UserAccess, error)
	GetUserAccess(ctx context.Context, userID int64) (UserAccess, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// ListRoles returns all roles with their permissions loaded.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	index := make(map[int64]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := r.pool.Query(ctx, `SELECT role_id, controller, action FROM role_permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID int64
		var perm Permission
		if err := permRows.Scan(&roleID, &perm.Controller, &perm.Action); err != nil {
			return nil, err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, perm)
		}
	}
	if err := permRows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches one role with its permissions.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT controller, action FROM role_permissions WHERE role_id = $1 ORDER BY id`, id)
	if err != nil {
		return Role{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.Controller, &perm.Action); err != nil {
			return Role{}, err
		}
		role.Permissions = append(role.Permissions, perm)
	}
	if err := rows.Err(); err != nil {
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a role and its permission rows in one transaction.
func (r *PGRepository) CreateRole(ctx context.Context, name string, perms []Permission) (Role, error) {
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO roles (name) VALUES ($1) RETURNING id, name, created_at, updated_at`, name).
			Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return mapUniqueViolation(err)
		}
		if err := insertPermissions(ctx, tx, role.ID, perms); err != nil {
			return err
		}
		role.Permissions = perms
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole renames a role and replaces its entire permission set. The old
// rows are deleted and the new set inserted inside one transaction, so a
// failure leaves the previous grants intact.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name string, perms []Permission) (Role, error) {
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE roles SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING id, name, created_at, updated_at`, id, name).
			Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return mapUniqueViolation(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if err := insertPermissions(ctx, tx, id, perms); err != nil {
			return err
		}
		role.Permissions = perms
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes the role; its permission rows and user assignments go
// with it via ON DELETE CASCADE. Returns shared.ErrNotFound when the id is
// unknown.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplaceUserRoles clears the user's role memberships and re-adds the given
// set within one transaction.
func (r *PGRepository) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID); err != nil {
				return err
			}
		}
		return nil
	})
}

// PermissionsForUser collects the permissions of every role the named user
// belongs to. An unknown username yields an empty set, not an error, so a
// stale session simply fails authorization.
func (r *PGRepository) PermissionsForUser(ctx context.Context, username string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.controller, rp.action
		FROM role_permissions rp
		JOIN user_roles ur ON ur.role_id = rp.role_id
		JOIN users u ON u.id = ur.user_id
		WHERE u.name = $1`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.Controller, &perm.Action); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListUserAccess returns every user with the names of their assigned roles.
func (r *PGRepository) ListUserAccess(ctx context.Context) ([]UserAccess, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		GROUP BY u.id, u.name
		ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserAccess
	for rows.Next() {
		var ua UserAccess
		if err := rows.Scan(&ua.UserID, &ua.UserName, &ua.Roles); err != nil {
			return nil, err
		}
		users = append(users, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUserAccess returns one user's role names.
func (r *PGRepository) GetUserAccess(ctx context.Context, userID int64) (UserAccess, error) {
	var ua UserAccess
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.name, COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE u.id = $1
		GROUP BY u.id, u.name`, userID).
		Scan(&ua.UserID, &ua.UserName, &ua.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAccess{}, shared.ErrNotFound
		}
		return UserAccess{}, err
	}
	return ua, nil
}

func insertPermissions(ctx context.Context, tx pgx.Tx, roleID int64, perms []Permission) error {
	for _, perm := range perms {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, controller, action) VALUES ($1, $2, $3)`,
			roleID, perm.Controller, perm.Action); err != nil {
			return err
		}
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return err
}
