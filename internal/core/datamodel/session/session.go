package session

import "time"

// Session is a server-side login. ID is the SHA-256 of the token handed to the
// client, so a leaked table does not leak usable sessions.
type Session struct {
	ID         string     `gorm:"column:id;primaryKey;size:64"`
	UserID     int64      `gorm:"column:user_id;not null;index"`
	Role       string     `gorm:"column:role;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null;index"`
	RevokedAt  *time.Time `gorm:"column:revoked_at"`
	RemoteAddr string     `gorm:"column:remote_addr"`
	UserAgent  string     `gorm:"column:user_agent"`
}

func (Session) TableName() string {
	return "sessions"
}
