package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/pkg/crypto"
	"github.com/workaandrey/task-manager/pkg/logger"
)

// CreateTableIfNotExists creates roles, users and tasks in dependency order
// and provisions the default roles.
func CreateTableIfNotExists(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema(db.DriverName()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error creating table: %w", err)
		}
	}
	if err := NewRoleRepository(db).EnsureDefaultRoles(ctx); err != nil {
		return err
	}
	logger.SystemLogger.Info("Tables 'roles', 'users', 'tasks' are ready")
	return nil
}

// CreateAdminUser creates an admin account unless one with the same
// username or email already exists.
func CreateAdminUser(ctx context.Context, db *sqlx.DB, username, email, password string) error {
	users := NewUserRepository(db)
	exists, err := users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	roleID, err := NewRoleRepository(db).GetRoleID(ctx, models.RoleAdmin)
	if err != nil {
		return err
	}
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	id, err := users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		RoleID:       &roleID,
	})
	if err != nil && !errors.Is(err, ErrDuplicate) {
		return err
	}
	logger.SystemLogger.Info("Admin user is ready", zap.String("username", username), zap.Int64("user_id", id))
	return nil
}

// DeleteAllTable drops every table, children first.
func DeleteAllTable(ctx context.Context, db *sqlx.DB) error {
	for _, table := range []string{"tasks", "users", "roles"} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("error deleting table %s: %w", table, err)
		}
	}
	return nil
}
