// Package memory provides an in-memory implementation of the crisis
// repository. Used by unit tests and by deployments running without a
// database. Reads are concurrent; writes serialize on the store lock.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bissquit/crisis-command/internal/crisis"
	"github.com/bissquit/crisis-command/internal/domain"
)

// Repository implements crisis.Repository with a mutex-guarded map.
type Repository struct {
	mu     sync.RWMutex
	crises map[string]*domain.Crisis
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{crises: make(map[string]*domain.Crisis)}
}

// Create stores a new crisis.
func (r *Repository) Create(_ context.Context, c *domain.Crisis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crises[c.ID] = cloneCrisis(c)
	return nil
}

// Get retrieves a crisis by id.
func (r *Repository) Get(_ context.Context, id string) (*domain.Crisis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.crises[id]
	if !ok {
		return nil, crisis.ErrCrisisNotFound
	}
	return cloneCrisis(c), nil
}

// Update replaces the stored fields of a crisis. The stored timeline is kept
// authoritative; AppendTimeline is the only way to grow it.
func (r *Repository) Update(_ context.Context, c *domain.Crisis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.crises[c.ID]
	if !ok {
		return crisis.ErrCrisisNotFound
	}
	updated := cloneCrisis(c)
	updated.Timeline = stored.Timeline
	r.crises[c.ID] = updated
	return nil
}

// AppendTimeline appends one audit entry to a crisis.
func (r *Repository) AppendTimeline(_ context.Context, id string, entry domain.TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.crises[id]
	if !ok {
		return crisis.ErrCrisisNotFound
	}
	c.Timeline = append(c.Timeline, entry)
	return nil
}

// List retrieves crises matching the filters, ordered by priority with ties
// broken by earliest detection.
func (r *Repository) List(_ context.Context, filters crisis.Filters) ([]*domain.Crisis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Crisis, 0, len(r.crises))
	for _, c := range r.crises {
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		if filters.Severity != nil && c.Severity != *filters.Severity {
			continue
		}
		if filters.Type != nil && c.Type != *filters.Type {
			continue
		}
		if filters.ActiveOnly && c.Status.IsTerminal() {
			continue
		}
		out = append(out, cloneCrisis(c))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(out) {
		out = out[:filters.Limit]
	}

	return out, nil
}

func cloneCrisis(c *domain.Crisis) *domain.Crisis {
	clone := *c
	clone.AffectedSystems = append([]string(nil), c.AffectedSystems...)
	clone.Timeline = append([]domain.TimelineEntry(nil), c.Timeline...)
	clone.Impact.Categories = append([]domain.ImpactCategory(nil), c.Impact.Categories...)
	if c.Resolution != nil {
		res := *c.Resolution
		clone.Resolution = &res
	}
	if c.Mitigation != nil {
		mit := *c.Mitigation
		mit.Steps = append([]string(nil), c.Mitigation.Steps...)
		mit.RemainingIssues = append([]string(nil), c.Mitigation.RemainingIssues...)
		clone.Mitigation = &mit
	}
	if c.ConfirmedAt != nil {
		t := *c.ConfirmedAt
		clone.ConfirmedAt = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		clone.ResolvedAt = &t
	}
	return &clone
}
