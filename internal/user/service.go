package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/hospitality-access/internal/core/events"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
}

// SessionRevoker ends every session of a user. The auth service implements it.
type SessionRevoker interface {
	LogoutUser(ctx context.Context, userID int64) error
}

type Service struct {
	repo     RepositoryAPI
	hasher   PasswordHasher
	sessions SessionRevoker
	events   events.Publisher
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, hasher PasswordHasher, sessions SessionRevoker, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		hasher:   hasher,
		sessions: sessions,
		events:   publisher,
		logger:   logger,
	}
}

func (s *Service) Create(ctx context.Context, dto CreateUserDTO, actorID int64) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorizeTarget(ctx, actorID, role.Role(dto.Role)); err != nil {
		return nil, err
	}

	username := NormalizeUsername(dto.Username)
	existing, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  dto.DisplayName,
		Email:        dto.Email,
		Phone:        dto.Phone,
		Role:         role.Role(dto.Role),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user created", "user_id", u.ID, "role", u.Role, "actor_id", actorID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserCreated, u.ID, actorID, string(u.Role)))
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*User, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id int64, dto UpdateProfileDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, id, dto.DisplayName, dto.Email, dto.Phone); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ResetPassword replaces the hash and ends the user's sessions.
func (s *Service) ResetPassword(ctx context.Context, id int64, dto ResetPasswordDTO, actorID int64) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := s.authorizeAccount(ctx, actorID, id); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", id, "actor_id", actorID)
	s.revokeSessions(ctx, id)
	return nil
}

// ChangeRole takes effect on the user's next request; access checks always
// read the role from the user record, not the session.
func (s *Service) ChangeRole(ctx context.Context, id int64, dto ChangeRoleDTO, actorID int64) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	r, err := role.Parse(dto.Role)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTarget(ctx, actorID, r); err != nil {
		return nil, err
	}
	if err := s.authorizeAccount(ctx, actorID, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRole(ctx, id, r); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user role changed", "user_id", id, "role", r, "actor_id", actorID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserRoleChanged, id, actorID, string(r)))
	return s.Get(ctx, id)
}

// Deactivate is the only way to remove an account. Rows are never deleted.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if id == actorID {
		return ErrSelfDeactivation
	}
	if err := s.authorizeAccount(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deactivated", "user_id", id, "actor_id", actorID)
	s.revokeSessions(ctx, id)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserDeactivated, id, actorID, ""))
	return nil
}

func (s *Service) Reactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.authorizeAccount(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user reactivated", "user_id", id, "actor_id", actorID)
	s.publish(ctx, events.NewUserEvent(events.EventTypeUserReactivated, id, actorID, ""))
	return nil
}

// authorizeTarget lets only an active privileged actor hand out a privileged
// role. The actor's role is read from its record, never from the request.
func (s *Service) authorizeTarget(ctx context.Context, actorID int64, target role.Role) error {
	if !target.IsPrivileged() || actorID == ConsoleActor {
		return nil
	}
	actor, err := s.repo.FindByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("failed to look up actor: %w", err)
	}
	if actor == nil || !actor.IsActive || !actor.Role.IsPrivileged() {
		s.logger.WarnContext(ctx, "privileged account change refused", "actor_id", actorID, "target_role", target)
		return ErrPrivilegedAccount
	}
	return nil
}

// authorizeAccount applies authorizeTarget to the current role of user id.
func (s *Service) authorizeAccount(ctx context.Context, actorID, id int64) error {
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.authorizeTarget(ctx, actorID, target.Role)
}

// revokeSessions is best effort. An inactive user is already rejected on
// every request, so a failure here does not leave access open.
func (s *Service) revokeSessions(ctx context.Context, id int64) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.LogoutUser(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke sessions", "user_id", id, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", e.EventType(), "error", err)
	}
}

// IsNotFound is a small helper for handlers.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
