package user

import "time"

// User is a staff account. Role is kept as the raw stored string; it is
// parsed into role.Role when read so that bad rows are detected.
type User struct {
	ID           int64      `gorm:"primaryKey"`
	Username     string     `gorm:"column:username;uniqueIndex;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	DisplayName  string     `gorm:"column:display_name;not null"`
	Email        string     `gorm:"column:email"`
	Phone        string     `gorm:"column:phone"`
	Role         string     `gorm:"column:role;not null;index"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}
