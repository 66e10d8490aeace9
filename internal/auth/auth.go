// Package auth implements session based login, registration and the current
// user lookup.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/repository"
	"github.com/workaandrey/task-manager/pkg/crypto"
	"github.com/workaandrey/task-manager/pkg/logger"
)

// SessionUserKey is the session key holding the logged-in user id.
const SessionUserKey = "user_id"

var (
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrDuplicateUser      = errors.New("Username or email already exists")
)

// ValidationError carries a user-facing message about rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Session is the part of a web session the service needs.
type Session interface {
	Get(key string) interface{}
	Set(key string, val interface{})
	Delete(key string)
	Destroy() error
}

// UserStore is the user persistence the service depends on.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindCredentials(ctx context.Context, identifier string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, user *models.User) (int64, error)
	RoleName(ctx context.Context, userID int64) (string, error)
}

type Registration struct {
	Username        string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
	RoleID          *int64 `validate:"-"`
}

type Service struct {
	users    UserStore
	validate *validator.Validate
}

func NewService(users UserStore) *Service {
	return &Service{users: users, validate: validator.New()}
}

// SessionUserID reads the user id out of the session. Values may come back
// as other numeric types after a storage round trip.
func SessionUserID(sess Session) (int64, bool) {
	if sess == nil {
		return 0, false
	}
	switch v := sess.Get(SessionUserKey).(type) {
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case float64:
		return int64(v), v > 0
	}
	return 0, false
}

func (s *Service) IsLoggedIn(sess Session) bool {
	_, ok := SessionUserID(sess)
	return ok
}

// CurrentUser returns nil without error when nobody is logged in or the
// session points at a user that no longer exists.
func (s *Service) CurrentUser(ctx context.Context, sess Session) (*models.User, error) {
	id, ok := SessionUserID(sess)
	if !ok {
		return nil, nil
	}
	return s.UserByID(ctx, id)
}

// UserByID resolves a user id, mapping a missing row to nil.
func (s *Service) UserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials without touching any session. Unknown
// identifiers and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		crypto.BurnPasswordCheck(password)
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindCredentials(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		crypto.BurnPasswordCheck(password)
		logger.SecurityLogger.Warn("Login failed", zap.String("identifier", identifier))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up credentials: %w", err)
	}
	if !crypto.CheckPassword(user.PasswordHash, password) {
		logger.SecurityLogger.Warn("Login failed", zap.String("identifier", identifier))
		return nil, ErrInvalidCredentials
	}
	public := user.Public()
	return &public, nil
}

// Login authenticates and stores the user id in the session.
func (s *Service) Login(ctx context.Context, sess Session, identifier, password string) (*models.User, error) {
	user, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	sess.Set(SessionUserKey, user.ID)
	logger.AuditLogger.Info("User logged in", zap.Int64("user_id", user.ID))
	return user, nil
}

// Register validates the input, stores a new user and logs it in.
func (s *Service) Register(ctx context.Context, sess Session, reg Registration) (*models.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := s.check(reg); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, reg.Username, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, ErrDuplicateUser
	}

	hash, err := crypto.HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		RoleID:       reg.RoleID,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}

	sess.Set(SessionUserKey, user.ID)
	logger.AuditLogger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	public := user.Public()
	return &public, nil
}

// check reports the first failing rule, with missing fields taking
// precedence over mismatch, length and format problems.
func (s *Service) check(reg Registration) error {
	err := s.validate.Struct(reg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	byTag := map[string]validator.FieldError{}
	for _, fe := range fieldErrs {
		if _, seen := byTag[fe.Tag()]; !seen {
			byTag[fe.Tag()] = fe
		}
	}
	rules := []struct {
		tag     string
		message string
	}{
		{"required", "All fields are required"},
		{"eqfield", "Passwords do not match"},
		{"min", "Password must be at least 6 characters long"},
		{"email", "Invalid email format"},
	}
	for _, rule := range rules {
		if fe, ok := byTag[rule.tag]; ok {
			return &ValidationError{Field: fe.Field(), Message: rule.message}
		}
	}
	return &ValidationError{Field: fieldErrs[0].Field(), Message: "Invalid input"}
}

// Logout forgets the user and invalidates the whole session.
func (s *Service) Logout(sess Session) error {
	if id, ok := SessionUserID(sess); ok {
		logger.AuditLogger.Info("User logged out", zap.Int64("user_id", id))
	}
	if sess == nil {
		return nil
	}
	sess.Delete(SessionUserKey)
	return sess.Destroy()
}

// IsAdmin reports whether the session user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, sess Session) bool {
	id, ok := SessionUserID(sess)
	if !ok {
		return false
	}
	name, err := s.users.RoleName(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.ErrorLogger.Error("Error resolving role", zap.Int64("user_id", id), zap.Error(err))
		}
		return false
	}
	return name == models.RoleAdmin
}
