package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/crisis-command/internal/bus"
	"github.com/bissquit/crisis-command/internal/domain"
)

// ExecuteAction moves an action to in-progress and records the assignee.
// Fails with ErrActionBlocked while any dependency is not completed.
func (s *Service) ExecuteAction(ctx context.Context, planID, actionID, assignee string) (*domain.ResponsePlan, error) {
	if assignee == "" {
		return nil, ErrMissingAssignee
	}

	p, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(p.CrisisID)
	defer s.locks.Unlock(p.CrisisID)

	p, err = s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PlanStatusCompleted {
		return nil, ErrPlanCompleted
	}

	action := p.ActionByID(actionID)
	if action == nil {
		return nil, ErrActionNotFound
	}
	if action.Status == domain.ActionStatusCompleted {
		return nil, ErrActionCompleted
	}

	for _, depID := range action.Dependencies {
		dep := p.ActionByID(depID)
		if dep == nil || dep.Status != domain.ActionStatusCompleted {
			return nil, fmt.Errorf("%w: action %q", ErrActionBlocked, action.Title)
		}
	}

	action.Status = domain.ActionStatusInProgress
	action.Assignee = assignee
	p.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}

	recordActionStarted(string(action.Priority))
	s.publisher.Publish(ctx, bus.New(bus.EventActionStarted, p.CrisisID, map[string]any{
		"plan_id":   p.ID,
		"action_id": action.ID,
		"title":     action.Title,
		"assignee":  assignee,
	}))
	s.appendCrisisTimeline(ctx, p.CrisisID, assignee, "action-started", action.Title)

	return p, nil
}

// CompleteAction marks an action completed and rolls the plan up to
// completed when it was the last open action.
func (s *Service) CompleteAction(ctx context.Context, planID, actionID, notes, actor string) (*domain.ResponsePlan, error) {
	p, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(p.CrisisID)
	defer s.locks.Unlock(p.CrisisID)

	p, err = s.repo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PlanStatusCompleted {
		return nil, ErrPlanCompleted
	}

	action := p.ActionByID(actionID)
	if action == nil {
		return nil, ErrActionNotFound
	}
	if action.Status == domain.ActionStatusCompleted {
		return nil, ErrActionCompleted
	}

	now := time.Now()
	action.Status = domain.ActionStatusCompleted
	action.CompletedAt = &now
	action.Notes = notes
	p.UpdatedAt = now

	planDone := p.AllActionsCompleted()
	if planDone {
		p.Status = domain.PlanStatusCompleted
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}

	recordActionCompleted(string(action.Priority))
	s.publisher.Publish(ctx, bus.New(bus.EventActionCompleted, p.CrisisID, map[string]any{
		"plan_id":   p.ID,
		"action_id": action.ID,
		"title":     action.Title,
	}))
	s.appendCrisisTimeline(ctx, p.CrisisID, actor, "action-completed", action.Title)

	if planDone {
		recordPlanCompleted()
		s.publisher.Publish(ctx, bus.New(bus.EventPlanCompleted, p.CrisisID, map[string]any{
			"plan_id": p.ID,
		}))
		s.appendCrisisTimeline(ctx, p.CrisisID, actor, "response-plan-completed", fmt.Sprintf("plan %s, all actions completed", p.ID))
	}

	return p, nil
}

// ReportActionFailure records a failed side-effect for an in-progress action
// and feeds the registry's failure counter read by the escalation engine.
// The action stays in-progress so the operator can retry.
func (s *Service) ReportActionFailure(ctx context.Context, planID, actionID, reason string) (int, error) {
	p, err := s.repo.Get(ctx, planID)
	if err != nil {
		return 0, err
	}

	action := p.ActionByID(actionID)
	if action == nil {
		return 0, ErrActionNotFound
	}
	if action.Status != domain.ActionStatusInProgress {
		return 0, ErrActionNotStarted
	}

	recordActionFailed()
	return s.crises.RecordActionFailure(ctx, p.CrisisID, action.Title, reason)
}

// appendCrisisTimeline best-effort appends an audit entry; the plan mutation
// already succeeded so a timeline failure only logs.
func (s *Service) appendCrisisTimeline(ctx context.Context, crisisID, actor, event, details string) {
	if err := s.crises.AppendTimeline(ctx, crisisID, domain.TimelineEntry{
		Timestamp: time.Now(),
		Actor:     actor,
		Action:    event,
		Details:   details,
	}); err != nil {
		slog.Warn("timeline append failed", "crisis_id", crisisID, "error", err)
	}
}
