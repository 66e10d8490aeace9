package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/workaandrey/task-manager/internal/models"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns the user without its password hash.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(
		"SELECT id, username, email, role_id, created_at FROM users WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// FindCredentials looks a user up by username or email, hash included.
func (r *UserRepository) FindCredentials(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(
		`SELECT id, username, email, password, role_id, created_at
		 FROM users WHERE username = ? OR email = ?
		 ORDER BY id LIMIT 1`), identifier, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(
		"SELECT COUNT(*) FROM users WHERE username = ? OR email = ?"), username, email)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return count > 0, nil
}

// Create inserts the user and returns its id. Unique violations map to
// ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (int64, error) {
	id, err := insertID(ctx, r.db,
		"INSERT INTO users (username, email, password, role_id) VALUES (?, ?, ?, ?)",
		user.Username, user.Email, user.PasswordHash, user.RoleID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id
	return id, nil
}

// RoleName resolves the name of the role held by userID.
func (r *UserRepository) RoleName(ctx context.Context, userID int64) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name, r.db.Rebind(
		`SELECT r.name FROM roles r
		 JOIN users u ON r.id = u.role_id
		 WHERE u.id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	return name, nil
}
