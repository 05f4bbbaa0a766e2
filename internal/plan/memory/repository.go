// Package memory provides an in-memory plan repository for single-node
// deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/plan"
)

// Repository is a mutex-guarded in-memory plan store.
type Repository struct {
	mu    sync.RWMutex
	plans map[string]*domain.ResponsePlan
}

// NewRepository creates an empty in-memory plan repository.
func NewRepository() *Repository {
	return &Repository{plans: make(map[string]*domain.ResponsePlan)}
}

// Create stores a new plan.
func (r *Repository) Create(ctx context.Context, p *domain.ResponsePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plans[p.ID] = clonePlan(p)
	return nil
}

// Get retrieves a plan by id.
func (r *Repository) Get(ctx context.Context, id string) (*domain.ResponsePlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, plan.ErrPlanNotFound
	}
	return clonePlan(p), nil
}

// GetActiveByCrisis retrieves the single active plan for a crisis.
func (r *Repository) GetActiveByCrisis(ctx context.Context, crisisID string) (*domain.ResponsePlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plans {
		if p.CrisisID == crisisID && p.Status == domain.PlanStatusActive {
			return clonePlan(p), nil
		}
	}
	return nil, plan.ErrPlanNotFound
}

// ListByCrisis retrieves every plan for a crisis ordered by creation time.
func (r *Repository) ListByCrisis(ctx context.Context, crisisID string) ([]*domain.ResponsePlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.ResponsePlan
	for _, p := range r.plans {
		if p.CrisisID == crisisID {
			out = append(out, clonePlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces a stored plan.
func (r *Repository) Update(ctx context.Context, p *domain.ResponsePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plans[p.ID]; !ok {
		return plan.ErrPlanNotFound
	}
	r.plans[p.ID] = clonePlan(p)
	return nil
}

func clonePlan(p *domain.ResponsePlan) *domain.ResponsePlan {
	c := *p

	c.Actions = make([]domain.Action, len(p.Actions))
	copy(c.Actions, p.Actions)
	for i := range c.Actions {
		c.Actions[i].Dependencies = append([]string(nil), p.Actions[i].Dependencies...)
		if p.Actions[i].CompletedAt != nil {
			t := *p.Actions[i].CompletedAt
			c.Actions[i].CompletedAt = &t
		}
	}

	c.StakeholderIDs = append([]string(nil), p.StakeholderIDs...)
	c.Communications = append([]domain.CommunicationItem(nil), p.Communications...)
	c.Resources = append([]domain.ResourceItem(nil), p.Resources...)

	c.Timeline.Milestones = make([]domain.Milestone, len(p.Timeline.Milestones))
	copy(c.Timeline.Milestones, p.Timeline.Milestones)
	for i := range c.Timeline.Milestones {
		c.Timeline.Milestones[i].ActionIDs = append([]string(nil), p.Timeline.Milestones[i].ActionIDs...)
	}

	return &c
}
