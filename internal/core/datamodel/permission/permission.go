package permission

import "time"

type Module struct {
	Key         string    `gorm:"column:module_key;primaryKey;size:64"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Description string    `gorm:"column:description"`
	SortOrder   int       `gorm:"column:sort_order"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Module) TableName() string {
	return "system_modules"
}

type Action struct {
	Key              string    `gorm:"column:action_key;primaryKey;size:64"`
	DisplayName      string    `gorm:"column:display_name;not null"`
	Description      string    `gorm:"column:description"`
	IsSensitive      bool      `gorm:"column:is_sensitive;not null"`
	RequiresApproval bool      `gorm:"column:requires_approval;not null"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (Action) TableName() string {
	return "system_actions"
}

// RolePermission is one (role, module, action) grant. A missing row means the
// capability is not granted.
type RolePermission struct {
	ID               int64     `gorm:"primaryKey"`
	Role             string    `gorm:"column:role;not null;uniqueIndex:idx_role_permissions_capability"`
	Module           string    `gorm:"column:module_key;not null;uniqueIndex:idx_role_permissions_capability"`
	Action           string    `gorm:"column:action_key;not null;uniqueIndex:idx_role_permissions_capability"`
	Granted          bool      `gorm:"column:granted;not null"`
	RequiresApproval bool      `gorm:"column:requires_approval;not null"`
	GrantedBy        *int64    `gorm:"column:granted_by"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

// UserOverride allows or denies one capability for one user regardless of
// the role table.
type UserOverride struct {
	ID        int64      `gorm:"primaryKey"`
	UserID    int64      `gorm:"column:user_id;not null;uniqueIndex:idx_user_overrides_capability"`
	Module    string     `gorm:"column:module_key;not null;uniqueIndex:idx_user_overrides_capability"`
	Action    string     `gorm:"column:action_key;not null;uniqueIndex:idx_user_overrides_capability"`
	Effect    string     `gorm:"column:effect;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	GrantedBy *int64     `gorm:"column:granted_by"`
	Reason    string     `gorm:"column:reason"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (UserOverride) TableName() string {
	return "user_permission_overrides"
}

// Version is a single row bumped by every write to role_permissions or
// user_permission_overrides. Caches compare against it.
type Version struct {
	ID        int       `gorm:"primaryKey"`
	Version   int64     `gorm:"column:version;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Version) TableName() string {
	return "permission_versions"
}

// All lists the models owned by the permission tables, for AutoMigrate.
func All() []interface{} {
	return []interface{}{&Module{}, &Action{}, &RolePermission{}, &UserOverride{}, &Version{}}
}
