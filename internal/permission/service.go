package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/hospitality-access/internal/core/events"
	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

const (
	ChangeGranted         = "granted"
	ChangeRevoked         = "revoked"
	ChangeOverrideSet     = "override_set"
	ChangeOverrideCleared = "override_cleared"
)

type GrantInput struct {
	Role             role.Role
	Module           string
	Action           string
	RequiresApproval bool
	ActorID          int64
}

type OverrideInput struct {
	UserID    int64
	Module    string
	Action    string
	Effect    Effect
	ExpiresAt *time.Time
	Reason    string
	ActorID   int64
}

// Capability is one cell of a role's permission matrix.
type Capability struct {
	Module           string `json:"module"`
	Action           string `json:"action"`
	Granted          bool   `json:"granted"`
	RequiresApproval bool   `json:"requires_approval"`
	Sensitive        bool   `json:"sensitive"`
}

type Catalogue struct {
	Modules []Module `json:"modules"`
	Actions []Action `json:"actions"`
}

type Service struct {
	repo   RepositoryAPI
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	modules  map[string]Module
	actions  map[string]Action
	loadedAt time.Time
}

// CatalogueRefresh is the shortest gap between two catalogue reloads caused
// by lookups of unknown capabilities.
const CatalogueRefresh = 30 * time.Second

func NewService(repo RepositoryAPI, publisher events.Publisher, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   repo,
		events: publisher,
		logger: logger,
		now:    now,
	}
}

// Evaluate decides one capability for one user. An unknown role or a stored
// row naming a capability outside the catalogue is returned as an error so
// callers can treat it as an integrity problem rather than a plain deny.
func (s *Service) Evaluate(ctx context.Context, userID int64, r role.Role, module, action string) (Decision, error) {
	if !r.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", role.ErrUnknownRole, r)
	}

	var ov *Override
	if userID > 0 {
		var err error
		ov, err = s.repo.FindOverride(ctx, userID, module, action)
		if err != nil {
			return Decision{}, err
		}
	}
	g, err := s.repo.FindGrant(ctx, r, module, action)
	if err != nil {
		return Decision{}, err
	}

	now := s.now()
	act, known, err := s.lookup(ctx, module, action)
	if err != nil {
		return Decision{}, err
	}
	if !known {
		if (g != nil && g.Granted) || ov.Active(now) {
			return Decision{}, fmt.Errorf("%w: %s", ErrDanglingGrant, Key(module, action))
		}
		return Decision{Allowed: false, Source: SourceNone}, nil
	}

	d := decide(now, ov, g)
	d.Sensitive = act.IsSensitive
	if d.Allowed && d.Source == SourceOverride {
		d.RequiresApproval = act.RequiresApproval
	}
	return d, nil
}

// IsGranted reports whether the role table grants the capability. A missing
// row is false.
func (s *Service) IsGranted(ctx context.Context, r role.Role, module, action string) (bool, error) {
	g, err := s.repo.FindGrant(ctx, r, module, action)
	if err != nil {
		return false, err
	}
	return g != nil && g.Granted, nil
}

func (s *Service) Grant(ctx context.Context, in GrantInput) error {
	if err := s.checkCapability(ctx, in.Role, in.Module, in.Action); err != nil {
		return err
	}

	var grantedBy *int64
	if in.ActorID > 0 {
		grantedBy = &in.ActorID
	}
	version, err := s.repo.Grant(ctx, &Grant{
		Role:             in.Role,
		Module:           in.Module,
		Action:           in.Action,
		Granted:          true,
		RequiresApproval: in.RequiresApproval,
		GrantedBy:        grantedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to grant %s to %s: %w", Key(in.Module, in.Action), in.Role, err)
	}

	s.logger.InfoContext(ctx, "capability granted",
		"role", in.Role, "module", in.Module, "action", in.Action, "actor_id", in.ActorID, "version", version)
	s.publish(ctx, events.NewPermissionChangedEvent(string(in.Role), in.Module, in.Action, ChangeGranted, in.ActorID, version))
	return nil
}

func (s *Service) Revoke(ctx context.Context, r role.Role, module, action string, actorID int64) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %q", role.ErrUnknownRole, r)
	}

	version, err := s.repo.Revoke(ctx, r, module, action)
	if err != nil {
		return fmt.Errorf("failed to revoke %s from %s: %w", Key(module, action), r, err)
	}

	s.logger.InfoContext(ctx, "capability revoked",
		"role", r, "module", module, "action", action, "actor_id", actorID, "version", version)
	s.publish(ctx, events.NewPermissionChangedEvent(string(r), module, action, ChangeRevoked, actorID, version))
	return nil
}

func (s *Service) SetOverride(ctx context.Context, in OverrideInput) error {
	if in.Effect != EffectAllow && in.Effect != EffectDeny {
		return fmt.Errorf("%w: effect %q", ErrUnknownCapability, in.Effect)
	}
	if _, known, err := s.lookup(ctx, in.Module, in.Action); err != nil {
		return err
	} else if !known {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, Key(in.Module, in.Action))
	}

	var grantedBy *int64
	if in.ActorID > 0 {
		grantedBy = &in.ActorID
	}
	version, err := s.repo.SetOverride(ctx, &Override{
		UserID:    in.UserID,
		Module:    in.Module,
		Action:    in.Action,
		Effect:    in.Effect,
		ExpiresAt: in.ExpiresAt,
		GrantedBy: grantedBy,
		Reason:    in.Reason,
	})
	if err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}

	s.logger.InfoContext(ctx, "permission override set",
		"user_id", in.UserID, "module", in.Module, "action", in.Action, "effect", in.Effect, "actor_id", in.ActorID)
	s.publish(ctx, events.NewPermissionChangedEvent(fmt.Sprintf("user:%d", in.UserID), in.Module, in.Action, ChangeOverrideSet, in.ActorID, version))
	return nil
}

func (s *Service) ClearOverride(ctx context.Context, userID int64, module, action string, actorID int64) error {
	version, err := s.repo.ClearOverride(ctx, userID, module, action)
	if err != nil {
		return fmt.Errorf("failed to clear override: %w", err)
	}
	s.publish(ctx, events.NewPermissionChangedEvent(fmt.Sprintf("user:%d", userID), module, action, ChangeOverrideCleared, actorID, version))
	return nil
}

func (s *Service) Overrides(ctx context.Context, userID int64) ([]*Override, error) {
	return s.repo.ListOverrides(ctx, userID)
}

// Matrix lists every catalogue capability with the role's grant state.
func (s *Service) Matrix(ctx context.Context, r role.Role) ([]Capability, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", role.ErrUnknownRole, r)
	}
	cat, err := s.Catalogue(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := s.repo.ListGrants(ctx, r)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*Grant, len(grants))
	for _, g := range grants {
		byKey[Key(g.Module, g.Action)] = g
	}

	out := make([]Capability, 0, len(cat.Modules)*len(cat.Actions))
	for _, m := range cat.Modules {
		for _, a := range cat.Actions {
			c := Capability{Module: m.Key, Action: a.Key, Sensitive: a.IsSensitive}
			if g, ok := byKey[Key(m.Key, a.Key)]; ok && g.Granted {
				c.Granted = true
				c.RequiresApproval = g.RequiresApproval
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// UserModules returns the active modules the user may view, in display order.
func (s *Service) UserModules(ctx context.Context, userID int64, r role.Role) ([]Module, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", role.ErrUnknownRole, r)
	}
	cat, err := s.Catalogue(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := s.repo.ListGrants(ctx, r)
	if err != nil {
		return nil, err
	}
	overrides, err := s.repo.ListOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}

	grantByModule := make(map[string]*Grant)
	for _, g := range grants {
		if g.Action == ActionView {
			grantByModule[g.Module] = g
		}
	}
	overrideByModule := make(map[string]*Override)
	for _, o := range overrides {
		if o.Action == ActionView {
			overrideByModule[o.Module] = o
		}
	}

	now := s.now()
	out := []Module{}
	for _, m := range cat.Modules {
		if !m.IsActive {
			continue
		}
		if decide(now, overrideByModule[m.Key], grantByModule[m.Key]).Allowed {
			out = append(out, m)
		}
	}
	return out, nil
}

// Catalogue returns every module and action, sorted.
func (s *Service) Catalogue(ctx context.Context) (Catalogue, error) {
	s.mu.RLock()
	loaded := s.modules != nil
	s.mu.RUnlock()
	if !loaded {
		if err := s.reload(ctx); err != nil {
			return Catalogue{}, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	cat := Catalogue{
		Modules: make([]Module, 0, len(s.modules)),
		Actions: make([]Action, 0, len(s.actions)),
	}
	for _, m := range s.modules {
		cat.Modules = append(cat.Modules, m)
	}
	for _, a := range s.actions {
		cat.Actions = append(cat.Actions, a)
	}
	sort.Slice(cat.Modules, func(i, j int) bool {
		if cat.Modules[i].SortOrder != cat.Modules[j].SortOrder {
			return cat.Modules[i].SortOrder < cat.Modules[j].SortOrder
		}
		return cat.Modules[i].Key < cat.Modules[j].Key
	})
	sort.Slice(cat.Actions, func(i, j int) bool { return cat.Actions[i].Key < cat.Actions[j].Key })
	return cat, nil
}

// SeedCatalogue stores the default modules and actions and refreshes the
// in-memory copy.
func (s *Service) SeedCatalogue(ctx context.Context) error {
	for _, m := range DefaultModules() {
		if err := s.repo.SaveModule(ctx, m); err != nil {
			return err
		}
	}
	for _, a := range DefaultActions() {
		if err := s.repo.SaveAction(ctx, a); err != nil {
			return err
		}
	}
	return s.reload(ctx)
}

// SeedGrants writes the default role table. Existing rows are updated.
func (s *Service) SeedGrants(ctx context.Context) (int, error) {
	n := 0
	for _, g := range DefaultGrants() {
		if _, err := s.repo.Grant(ctx, g); err != nil {
			return n, fmt.Errorf("failed to seed %s for %s: %w", Key(g.Module, g.Action), g.Role, err)
		}
		n++
	}
	return n, nil
}

func (s *Service) checkCapability(ctx context.Context, r role.Role, module, action string) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %q", role.ErrUnknownRole, r)
	}
	_, known, err := s.lookup(ctx, module, action)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, Key(module, action))
	}
	return nil
}

// lookup finds the action in the catalogue and checks the module exists. A
// miss reloads the catalogue so modules added by another process are picked
// up, but at most once per CatalogueRefresh; until then misses are answered
// from memory.
func (s *Service) lookup(ctx context.Context, module, action string) (Action, bool, error) {
	act, ok := s.cached(module, action)
	if ok {
		return act, true, nil
	}
	if !s.stale() {
		return Action{}, false, nil
	}
	if err := s.reload(ctx); err != nil {
		return Action{}, false, err
	}
	act, ok = s.cached(module, action)
	return act, ok, nil
}

func (s *Service) stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules == nil || s.now().Sub(s.loadedAt) >= CatalogueRefresh
}

func (s *Service) cached(module, action string) (Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.modules[module]; !ok {
		return Action{}, false
	}
	act, ok := s.actions[action]
	return act, ok
}

func (s *Service) reload(ctx context.Context) error {
	modules, err := s.repo.Modules(ctx)
	if err != nil {
		return err
	}
	actions, err := s.repo.Actions(ctx)
	if err != nil {
		return err
	}

	mm := make(map[string]Module, len(modules))
	for _, m := range modules {
		mm[m.Key] = m
	}
	am := make(map[string]Action, len(actions))
	for _, a := range actions {
		am[a.Key] = a
	}

	s.mu.Lock()
	s.modules = mm
	s.actions = am
	s.loadedAt = s.now()
	s.mu.Unlock()
	return nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish permission event", "event_type", e.EventType(), "error", err)
	}
}
