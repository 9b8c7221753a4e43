package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	userDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/user"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("username = ?", user.NormalizeUsername(username)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return user.FromDataModel(&u), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*user.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user.FromDataModel(&u), nil
}

func (r *UserRepository) List(ctx context.Context, filter user.ListFilter) ([]*user.User, error) {
	q := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Order("username ASC")
	if filter.Role != "" {
		q = q.Where("role = ?", string(filter.Role))
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []*userDatamodel.User
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]*user.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, user.FromDataModel(row))
	}
	return out, nil
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	u.Username = user.NormalizeUsername(u.Username)
	row := user.ToDataModel(u)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return user.ErrUsernameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = row.ID
	u.CreatedAt = row.CreatedAt
	u.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, displayName, email, phone string) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"display_name": displayName,
		"email":        email,
		"phone":        phone,
	})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"password_hash": passwordHash})
}

func (r *UserRepository) UpdateRole(ctx context.Context, id int64, rl role.Role) error {
	if !rl.Valid() {
		return fmt.Errorf("%w: %q", role.ErrUnknownRole, rl)
	}
	return r.updateColumns(ctx, id, map[string]interface{}{"role": string(rl)})
}

func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"is_active": active})
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"last_login_at": at})
}

// updateColumns issues one UPDATE ... WHERE id = ? so concurrent readers see
// either the old row or the new one.
func (r *UserRepository) updateColumns(ctx context.Context, id int64, cols map[string]interface{}) error {
	cols["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}
