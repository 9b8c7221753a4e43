package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	permissionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/permission"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const versionRowID = 1

var _ permission.RepositoryAPI = (*PermissionRepository)(nil)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) Version(ctx context.Context) (int64, error) {
	var v permissionDatamodel.Version
	err := r.db.WithContext(ctx).Where("id = ?", versionRowID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read permission version: %w", err)
	}
	return v.Version, nil
}

func (r *PermissionRepository) FindGrant(ctx context.Context, rl role.Role, module, action string) (*permission.Grant, error) {
	var row permissionDatamodel.RolePermission
	err := r.db.WithContext(ctx).
		Where("role = ? AND module_key = ? AND action_key = ?", string(rl), module, action).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find grant: %w", err)
	}
	return permission.GrantFromDataModel(&row), nil
}

func (r *PermissionRepository) ListGrants(ctx context.Context, rl role.Role) ([]*permission.Grant, error) {
	var rows []*permissionDatamodel.RolePermission
	err := r.db.WithContext(ctx).
		Where("role = ?", string(rl)).
		Order("module_key ASC, action_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}

	out := make([]*permission.Grant, 0, len(rows))
	for _, row := range rows {
		out = append(out, permission.GrantFromDataModel(row))
	}
	return out, nil
}

// Grant inserts or updates the (role, module, action) row.
func (r *PermissionRepository) Grant(ctx context.Context, g *permission.Grant) (int64, error) {
	now := time.Now()
	row := &permissionDatamodel.RolePermission{
		Role:             string(g.Role),
		Module:           g.Module,
		Action:           g.Action,
		Granted:          g.Granted,
		RequiresApproval: g.RequiresApproval,
		GrantedBy:        g.GrantedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var version int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "role"}, {Name: "module_key"}, {Name: "action_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"granted", "requires_approval", "granted_by", "updated_at",
			}),
		}).Create(row).Error
		if err != nil {
			return fmt.Errorf("upsert grant: %w", err)
		}
		version, err = bumpVersion(tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Revoke deletes the row. Revoking a capability that was never granted
// still bumps the version so callers get a consistent result.
func (r *PermissionRepository) Revoke(ctx context.Context, rl role.Role, module, action string) (int64, error) {
	var version int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("role = ? AND module_key = ? AND action_key = ?", string(rl), module, action).
			Delete(&permissionDatamodel.RolePermission{}).Error
		if err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		version, err = bumpVersion(tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *PermissionRepository) Modules(ctx context.Context) ([]permission.Module, error) {
	var rows []permissionDatamodel.Module
	if err := r.db.WithContext(ctx).Order("sort_order ASC, module_key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	out := make([]permission.Module, 0, len(rows))
	for _, m := range rows {
		out = append(out, permission.Module{
			Key:         m.Key,
			DisplayName: m.DisplayName,
			Description: m.Description,
			SortOrder:   m.SortOrder,
			IsActive:    m.IsActive,
		})
	}
	return out, nil
}

func (r *PermissionRepository) Actions(ctx context.Context) ([]permission.Action, error) {
	var rows []permissionDatamodel.Action
	if err := r.db.WithContext(ctx).Order("action_key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}

	out := make([]permission.Action, 0, len(rows))
	for _, a := range rows {
		out = append(out, permission.Action{
			Key:              a.Key,
			DisplayName:      a.DisplayName,
			Description:      a.Description,
			IsSensitive:      a.IsSensitive,
			RequiresApproval: a.RequiresApproval,
		})
	}
	return out, nil
}

func (r *PermissionRepository) SaveModule(ctx context.Context, m permission.Module) error {
	now := time.Now()
	row := &permissionDatamodel.Module{
		Key:         m.Key,
		DisplayName: m.DisplayName,
		Description: m.Description,
		SortOrder:   m.SortOrder,
		IsActive:    m.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "module_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "description", "sort_order", "is_active", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("save module %s: %w", m.Key, err)
	}
	return nil
}

func (r *PermissionRepository) SaveAction(ctx context.Context, a permission.Action) error {
	now := time.Now()
	row := &permissionDatamodel.Action{
		Key:              a.Key,
		DisplayName:      a.DisplayName,
		Description:      a.Description,
		IsSensitive:      a.IsSensitive,
		RequiresApproval: a.RequiresApproval,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "action_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "description", "is_sensitive", "requires_approval", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("save action %s: %w", a.Key, err)
	}
	return nil
}

func (r *PermissionRepository) FindOverride(ctx context.Context, userID int64, module, action string) (*permission.Override, error) {
	var row permissionDatamodel.UserOverride
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND module_key = ? AND action_key = ?", userID, module, action).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find override: %w", err)
	}
	return permission.OverrideFromDataModel(&row), nil
}

func (r *PermissionRepository) ListOverrides(ctx context.Context, userID int64) ([]*permission.Override, error) {
	var rows []*permissionDatamodel.UserOverride
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("module_key ASC, action_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	out := make([]*permission.Override, 0, len(rows))
	for _, row := range rows {
		out = append(out, permission.OverrideFromDataModel(row))
	}
	return out, nil
}

func (r *PermissionRepository) SetOverride(ctx context.Context, o *permission.Override) (int64, error) {
	now := time.Now()
	row := &permissionDatamodel.UserOverride{
		UserID:    o.UserID,
		Module:    o.Module,
		Action:    o.Action,
		Effect:    string(o.Effect),
		ExpiresAt: o.ExpiresAt,
		GrantedBy: o.GrantedBy,
		Reason:    o.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var version int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "module_key"}, {Name: "action_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"effect", "expires_at", "granted_by", "reason", "updated_at",
			}),
		}).Create(row).Error
		if err != nil {
			return fmt.Errorf("upsert override: %w", err)
		}
		version, err = bumpVersion(tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *PermissionRepository) ClearOverride(ctx context.Context, userID int64, module, action string) (int64, error) {
	var version int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND module_key = ? AND action_key = ?", userID, module, action).
			Delete(&permissionDatamodel.UserOverride{}).Error
		if err != nil {
			return fmt.Errorf("delete override: %w", err)
		}
		version, err = bumpVersion(tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// bumpVersion increments the single version row, creating it on first use.
func bumpVersion(tx *gorm.DB) (int64, error) {
	res := tx.Model(&permissionDatamodel.Version{}).
		Where("id = ?", versionRowID).
		Updates(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("bump permission version: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		row := &permissionDatamodel.Version{ID: versionRowID, Version: 1, UpdatedAt: time.Now()}
		if err := tx.Create(row).Error; err != nil {
			return 0, fmt.Errorf("create permission version: %w", err)
		}
		return 1, nil
	}

	var v permissionDatamodel.Version
	if err := tx.Where("id = ?", versionRowID).First(&v).Error; err != nil {
		return 0, fmt.Errorf("read permission version: %w", err)
	}
	return v.Version, nil
}
