package permission

import (
	"context"
	"sync"

	"github.com/frahmantamala/hospitality-access/internal/core/role"
)

type roleEntry struct {
	version int64
	grants  map[string]*Grant
}

// CachedStore keeps each role's grants in memory, stamped with the permission
// version they were read at. Every lookup reads the current version first, so
// a write through any process is visible to the next lookup here.
type CachedStore struct {
	RepositoryAPI

	maxRoles int
	mu       sync.RWMutex
	roles    map[role.Role]*roleEntry
}

func NewCachedStore(inner RepositoryAPI, maxRoles int) *CachedStore {
	if maxRoles <= 0 {
		maxRoles = len(role.All())
	}
	return &CachedStore{
		RepositoryAPI: inner,
		maxRoles:      maxRoles,
		roles:         make(map[role.Role]*roleEntry),
	}
}

func (c *CachedStore) FindGrant(ctx context.Context, r role.Role, module, action string) (*Grant, error) {
	entry, err := c.load(ctx, r)
	if err != nil {
		return nil, err
	}
	return entry.grants[Key(module, action)], nil
}

func (c *CachedStore) ListGrants(ctx context.Context, r role.Role) ([]*Grant, error) {
	entry, err := c.load(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]*Grant, 0, len(entry.grants))
	for _, g := range entry.grants {
		out = append(out, g)
	}
	return out, nil
}

func (c *CachedStore) Grant(ctx context.Context, g *Grant) (int64, error) {
	v, err := c.RepositoryAPI.Grant(ctx, g)
	c.Invalidate(g.Role)
	return v, err
}

func (c *CachedStore) Revoke(ctx context.Context, r role.Role, module, action string) (int64, error) {
	v, err := c.RepositoryAPI.Revoke(ctx, r, module, action)
	c.Invalidate(r)
	return v, err
}

// Invalidate drops a role's cached grants.
func (c *CachedStore) Invalidate(r role.Role) {
	c.mu.Lock()
	delete(c.roles, r)
	c.mu.Unlock()
}

// Len reports how many roles are cached.
func (c *CachedStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.roles)
}

func (c *CachedStore) load(ctx context.Context, r role.Role) (*roleEntry, error) {
	version, err := c.RepositoryAPI.Version(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	entry, ok := c.roles[r]
	c.mu.RUnlock()
	if ok && entry.version == version {
		return entry, nil
	}

	grants, err := c.RepositoryAPI.ListGrants(ctx, r)
	if err != nil {
		return nil, err
	}
	entry = &roleEntry{version: version, grants: make(map[string]*Grant, len(grants))}
	for _, g := range grants {
		entry.grants[Key(g.Module, g.Action)] = g
	}

	c.mu.Lock()
	if _, exists := c.roles[r]; !exists && len(c.roles) >= c.maxRoles {
		for k := range c.roles {
			delete(c.roles, k)
			break
		}
	}
	// A concurrent loader may have stored a newer snapshot.
	if cur, exists := c.roles[r]; !exists || cur.version <= version {
		c.roles[r] = entry
	}
	c.mu.Unlock()

	return entry, nil
}
