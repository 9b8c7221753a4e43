package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	sessionDatamodel "github.com/frahmantamala/hospitality-access/internal/core/datamodel/session"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/user"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
)

// UserStore is the slice of the credential store the authenticator needs.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*user.User, error)
	FindByID(ctx context.Context, id int64) (*user.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

type Options struct {
	SessionLifetime time.Duration
	// Throttle is optional; nil disables login throttling.
	Throttle *LoginThrottle
	Now      func() time.Time
}

// Service is the main auth service with dependencies
type Service struct {
	users     UserStore
	sessions  SessionRepository
	hasher    *PasswordHasher
	throttle  *LoginThrottle
	lifetime  time.Duration
	now       func() time.Time
	dummyHash string
	logger    *slog.Logger
}

// NewService creates a new auth service
func NewService(users UserStore, sessions SessionRepository, hasher *PasswordHasher, opts Options, logger *slog.Logger) (*Service, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = 2 * time.Hour
	}

	// Unknown usernames are verified against this so they cost the same as a
	// wrong password.
	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Service{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		throttle:  opts.Throttle,
		lifetime:  opts.SessionLifetime,
		now:       opts.Now,
		dummyHash: dummy,
		logger:    logger,
	}, nil
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*Session, *user.User, error) {
	if err := dto.Validate(); err != nil {
		return nil, nil, err
	}

	username := user.NormalizeUsername(dto.Username)
	if s.throttle != nil && !s.throttle.Allow(username) {
		s.logger.WarnContext(ctx, "login throttled", "username", username)
		return nil, nil, ErrTooManyAttempts
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	hash := s.dummyHash
	if u != nil {
		hash = u.PasswordHash
	}
	ok, needsRehash, verr := s.hasher.Verify(hash, dto.Password)
	if verr != nil && u != nil {
		s.logger.ErrorContext(ctx, "stored password hash is unreadable", "user_id", u.ID, "error", verr)
	}
	if u == nil || !u.IsActive || verr != nil || !ok {
		s.logger.InfoContext(ctx, "login rejected", "username", username)
		return nil, nil, ErrInvalidCredentials
	}

	token, err := GenerateRandomToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	client := internal.ClientFromContext(ctx)
	row := &sessionDatamodel.Session{
		ID:         HashSessionID(token),
		UserID:     u.ID,
		Role:       string(u.Role),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.lifetime),
		RemoteAddr: client.RemoteAddr,
		UserAgent:  client.UserAgent,
	}
	if err := s.sessions.Create(ctx, row); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if s.throttle != nil {
		s.throttle.Reset(username)
	}
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login", "user_id", u.ID, "error", err)
	}
	if needsRehash {
		s.rehash(ctx, u.ID, dto.Password)
	}

	s.logger.InfoContext(ctx, "login succeeded", "user_id", u.ID, "role", u.Role, "session", logger.Fingerprint(token))
	return &Session{
		ID:        token,
		UserID:    u.ID,
		Role:      u.Role,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, u, nil
}

func (s *Service) rehash(ctx context.Context, userID int64, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to upgrade password hash", "user_id", userID, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", userID)
}

// Logout ends the session. Unknown, expired and already revoked sessions are
// not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, HashSessionID(sessionID), s.now()); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// LogoutUser revokes every open session of a user.
func (s *Service) LogoutUser(ctx context.Context, userID int64) error {
	n, err := s.sessions.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "sessions revoked", "user_id", userID, "count", n)
	}
	return nil
}

// CurrentUser resolves a session to its live user record. It returns
// (nil, nil) for a missing, unknown, expired or revoked session and for an
// inactive user; an error only when storage cannot answer.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*user.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	key := HashSessionID(sessionID)
	row, err := s.sessions.FindByID(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !validAt(row, s.now()) {
		return nil, nil
	}

	u, err := s.users.FindByID(ctx, row.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if u == nil || !u.IsActive {
		if rerr := s.sessions.Revoke(ctx, key, s.now()); rerr != nil {
			s.logger.WarnContext(ctx, "failed to revoke session of inactive user", "user_id", row.UserID, "error", rerr)
		}
		return nil, nil
	}
	return u, nil
}

// GetRole returns the role of the session's user as stored now, not as it was
// at login. ok is false when there is no usable session.
func (s *Service) GetRole(ctx context.Context, sessionID string) (role.Role, bool, error) {
	u, err := s.CurrentUser(ctx, sessionID)
	if err != nil || u == nil {
		return "", false, err
	}
	if !u.Role.Valid() {
		return "", false, fmt.Errorf("user %d: %w: %q", u.ID, role.ErrUnknownRole, u.Role)
	}
	return u.Role, true, nil
}

// PurgeExpired deletes sessions that can no longer be used.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}

// RunPurger calls PurgeExpired every interval until ctx ends.
func (s *Service) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "session purge failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "expired sessions purged", "count", n)
			}
		}
	}
}
