package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/pkg/logger"
)

var defaultRoles = []struct {
	name        string
	description string
}{
	{models.RoleAdmin, "Administrator with full access"},
	{models.RoleUser, "Regular user with limited access"},
}

// ErrNothingToUpdate is returned by Update when no field was supplied.
var ErrNothingToUpdate = errors.New("no role fields to update")

type RoleUpdate struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=50"`
	Description *string `json:"description"`
}

type RoleRepository struct {
	db *sqlx.DB
}

func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) Create(ctx context.Context, name string, description *string) (int64, error) {
	id, err := insertID(ctx, r.db, "INSERT INTO roles (name, description) VALUES (?, ?)", name, description)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("failed to create role: %w", err)
	}
	return id, nil
}

func (r *RoleRepository) Read(ctx context.Context, id int64) (*models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, r.db.Rebind(
		"SELECT id, name, description, created_at, updated_at FROM roles WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

func (r *RoleRepository) ReadAll(ctx context.Context) ([]models.Role, error) {
	roles := []models.Role{}
	err := r.db.SelectContext(ctx, &roles,
		"SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// Update changes only the fields set in data.
func (r *RoleRepository) Update(ctx context.Context, id int64, data RoleUpdate) error {
	var fields []string
	var args []interface{}
	if data.Name != nil {
		fields = append(fields, "name = ?")
		args = append(args, *data.Name)
	}
	if data.Description != nil {
		fields = append(fields, "description = ?")
		args = append(args, *data.Description)
	}
	if len(fields) == 0 {
		return ErrNothingToUpdate
	}
	fields = append(fields, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		"UPDATE roles SET "+strings.Join(fields, ", ")+" WHERE id = ?"), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the role. Users still referencing it are not checked here;
// the foreign key decides.
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM roles WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return requireAffected(res)
}

// GetRoleID resolves a role by name, creating it when it does not exist.
// A missing roles table is created on the fly.
func (r *RoleRepository) GetRoleID(ctx context.Context, name string) (int64, error) {
	if err := r.EnsureDefaultRoles(ctx); err != nil {
		if !isMissingTable(err) {
			return 0, err
		}
		if err := CreateTableIfNotExists(ctx, r.db); err != nil {
			return 0, err
		}
	}

	var id int64
	err := r.db.GetContext(ctx, &id, r.db.Rebind("SELECT id FROM roles WHERE name = ?"), name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get role id: %w", err)
	}

	id, err = r.Create(ctx, name, nil)
	if errors.Is(err, ErrDuplicate) {
		// created concurrently
		err = r.db.GetContext(ctx, &id, r.db.Rebind("SELECT id FROM roles WHERE name = ?"), name)
	}
	return id, err
}

func (r *RoleRepository) GetRoleName(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name, r.db.Rebind("SELECT name FROM roles WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get role name: %w", err)
	}
	return name, nil
}

func (r *RoleRepository) RoleExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind("SELECT COUNT(*) FROM roles WHERE name = ?"), name)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return count > 0, nil
}

// UsersByRole lists the public fields of users holding roleID.
func (r *RoleRepository) UsersByRole(ctx context.Context, roleID int64) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(
		"SELECT id, username, email, role_id, created_at FROM users WHERE role_id = ? ORDER BY id"), roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	return users, nil
}

// EnsureDefaultRoles inserts admin and user when the roles table is empty.
func (r *RoleRepository) EnsureDefaultRoles(ctx context.Context) error {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM roles"); err != nil {
		return fmt.Errorf("failed to count roles: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, role := range defaultRoles {
		description := role.description
		if _, err := r.Create(ctx, role.name, &description); err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}
	logger.SystemLogger.Info("Default roles provisioned", zap.Int("count", len(defaultRoles)))
	return nil
}
