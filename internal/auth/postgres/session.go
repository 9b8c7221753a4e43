package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/hospitality-access/internal/auth"
	sessionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/session"
	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) auth.SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *sessionDatamodel.Session) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*sessionDatamodel.Session, error) {
	var s sessionDatamodel.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &s, nil
}

// Revoke only touches sessions that are still open, so a second call is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, at).
		Update("revoked_at", at)
	if res.Error != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? OR revoked_at IS NOT NULL", before).
		Delete(&sessionDatamodel.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
