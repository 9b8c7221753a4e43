package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	sessionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/session"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

// Session is what a successful login hands back. ID is the raw token and only
// exists here and on the client.
type Session struct {
	ID        string    `json:"-"`
	UserID    int64     `json:"user_id"`
	Role      role.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionRepository persists sessions keyed by HashSessionID(token). Lookups
// return (nil, nil) when the row does not exist.
type SessionRepository interface {
	Create(ctx context.Context, s *sessionDatamodel.Session) error
	FindByID(ctx context.Context, id string) (*sessionDatamodel.Session, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID int64, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

var (
	// ErrInvalidCredentials covers unknown user, wrong password and inactive
	// account alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrUnavailable        = errors.New("authentication store unavailable")
	ErrMalformedToken     = errors.New("malformed session token")
)

// HashSessionID derives the storage key for a session token.
func HashSessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomToken generates a cryptographically secure random token
func GenerateRandomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// validAt reports whether a stored session can still be used at now. Expiry
// is exclusive: at exactly ExpiresAt the session is gone.
func validAt(s *sessionDatamodel.Session, now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
