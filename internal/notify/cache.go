package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/bissquit/crisis-command/internal/domain"
)

// CacheRepository persists resolved stakeholder records keyed by id so a
// directory outage, or a process restart, does not blind notification
// fan-out. Implementations must treat Upsert as last-write-wins per id.
type CacheRepository interface {
	Upsert(ctx context.Context, stakeholders []*domain.Stakeholder) error
	Get(ctx context.Context, id string) (*domain.Stakeholder, error)
	ListByRoles(ctx context.Context, roles []string) ([]*domain.Stakeholder, error)
}

// MemoryCache is the in-process CacheRepository used for db-less runs and
// tests.
type MemoryCache struct {
	mu   sync.RWMutex
	byID map[string]*domain.Stakeholder
}

// NewMemoryCache creates an empty in-memory stakeholder cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{byID: make(map[string]*domain.Stakeholder)}
}

// Upsert stores or replaces the given stakeholder records.
func (c *MemoryCache) Upsert(_ context.Context, stakeholders []*domain.Stakeholder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range stakeholders {
		copied := *s
		c.byID[s.ID] = &copied
	}
	return nil
}

// Get returns the cached stakeholder with the given id.
func (c *MemoryCache) Get(_ context.Context, id string) (*domain.Stakeholder, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[id]
	if !ok {
		return nil, ErrStakeholderNotFound
	}
	copied := *s
	return &copied, nil
}

// ListByRoles returns cached stakeholders holding any of the given roles.
// An empty roles slice returns every cached entry.
func (c *MemoryCache) ListByRoles(_ context.Context, roles []string) ([]*domain.Stakeholder, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*domain.Stakeholder
	for _, s := range c.byID {
		if len(roles) > 0 && !matchesAnyRole(s.Role, roles) {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func matchesAnyRole(role string, roles []string) bool {
	for _, r := range roles {
		if strings.EqualFold(role, r) {
			return true
		}
	}
	return false
}
