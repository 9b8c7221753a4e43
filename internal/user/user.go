package user

import (
	"context"
	"errors"
	"strings"
	"time"

	userDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/user"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Role         role.Role  `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RoleValid is false when the stored role is not part of the current
// enumeration.
func (u *User) RoleValid() bool {
	return u.Role.Valid()
}

type ListFilter struct {
	Role       role.Role
	ActiveOnly bool
	Limit      int
	Offset     int
}

// RepositoryAPI is the credential store. Lookups return (nil, nil) when the
// row does not exist. Every write touches a single row.
type RepositoryAPI interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]*User, error)
	Create(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, id int64, displayName, email, phone string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, r role.Role) error
	SetActive(ctx context.Context, id int64, active bool) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// ConsoleActor is the actor id used by operator commands run on the host.
// It is never a user row and is trusted to manage privileged accounts.
const ConsoleActor int64 = 0

var (
	ErrNotFound          = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrSelfDeactivation  = errors.New("cannot deactivate own account")
	ErrPrivilegedAccount = errors.New("only a privileged user can manage privileged accounts")
)

// NormalizeUsername is applied on every write and every lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// FromDataModel keeps the stored role as-is. Validation happens where the
// role is used for a decision.
func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         role.Role(u.Role),
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
