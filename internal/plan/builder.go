// Package plan implements response plan generation and action execution
// tracking. Plans are built from fixed type catalogues, own their action and
// communication collections, and enforce dependency ordering when operators
// drive actions.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/crisis-command/internal/bus"
	"github.com/bissquit/crisis-command/internal/crisis"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/pkg/keylock"
	"github.com/google/uuid"
)

// StakeholderSource yields directory entries considered for plan membership.
// Implemented by the notify module's cached directory.
type StakeholderSource interface {
	ListStakeholders(ctx context.Context) ([]*domain.Stakeholder, error)
}

// Service implements response plan business logic. Mutations serialize on a
// per-crisis lock so concurrent operators cannot violate the one-active-plan
// and action-dependency invariants.
type Service struct {
	repo         Repository
	crises       *crisis.Service
	stakeholders StakeholderSource
	publisher    bus.Publisher
	locks        *keylock.KeyLock
}

// NewService creates a new plan service.
func NewService(repo Repository, crises *crisis.Service, stakeholders StakeholderSource, publisher bus.Publisher) *Service {
	return &Service{
		repo:         repo,
		crises:       crises,
		stakeholders: stakeholders,
		publisher:    publisher,
		locks:        keylock.New(),
	}
}

// Create builds a response plan for the given crisis id. This is the manual
// operator path; automatic creation on detection goes through BuildForCrisis.
func (s *Service) Create(ctx context.Context, crisisID, actor string) (*domain.ResponsePlan, error) {
	c, err := s.crises.Get(ctx, crisisID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, ErrCrisisTerminal
	}
	return s.BuildForCrisis(ctx, c, actor)
}

// BuildForCrisis generates and persists an active response plan from the
// crisis record. Exactly one plan may be active per crisis; a second build
// attempt fails with ErrPlanAlreadyActive.
func (s *Service) BuildForCrisis(ctx context.Context, c *domain.Crisis, actor string) (*domain.ResponsePlan, error) {
	s.locks.Lock(c.ID)
	defer s.locks.Unlock(c.ID)

	if _, err := s.repo.GetActiveByCrisis(ctx, c.ID); err == nil {
		return nil, ErrPlanAlreadyActive
	} else if !errors.Is(err, ErrPlanNotFound) {
		return nil, fmt.Errorf("check active plan: %w", err)
	}

	now := time.Now()
	planID := uuid.New().String()

	actions := buildActions(planID, c.Type, now)
	stakeholderIDs, err := s.selectStakeholders(ctx, c.Severity)
	if err != nil {
		// The directory being unreachable must not prevent a plan from
		// existing; stakeholders can be attached on the next rebuild.
		slog.Warn("stakeholder selection failed", "crisis_id", c.ID, "error", err)
	}

	duration := estimateDuration(c.Type, c.Severity)
	p := &domain.ResponsePlan{
		ID:             planID,
		CrisisID:       c.ID,
		Phase:          domain.PhaseImmediate,
		Actions:        actions,
		StakeholderIDs: stakeholderIDs,
		Communications: buildCommunications(c.Severity),
		Resources:      typeResources[c.Type],
		Timeline: domain.PlanTimeline{
			StartTime:         now,
			EstimatedDuration: duration,
			Milestones:        buildMilestones(actions, now, duration),
		},
		Status:    domain.PlanStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	recordPlanCreated(string(c.Type), string(c.Severity))
	s.publisher.Publish(ctx, bus.New(bus.EventPlanCreated, c.ID, map[string]any{
		"plan_id": p.ID,
		"actions": len(p.Actions),
	}))

	if err := s.crises.AppendTimeline(ctx, c.ID, domain.TimelineEntry{
		Timestamp: now,
		Actor:     actor,
		Action:    "response-plan-created",
		Details:   fmt.Sprintf("plan %s with %d actions", p.ID, len(p.Actions)),
	}); err != nil {
		slog.Warn("timeline append failed", "crisis_id", c.ID, "error", err)
	}

	return p, nil
}

// Get retrieves a plan by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.ResponsePlan, error) {
	return s.repo.Get(ctx, id)
}

// GetActiveByCrisis retrieves the active plan for a crisis.
func (s *Service) GetActiveByCrisis(ctx context.Context, crisisID string) (*domain.ResponsePlan, error) {
	return s.repo.GetActiveByCrisis(ctx, crisisID)
}

// ListByCrisis retrieves all plans ever built for a crisis, closed ones
// included.
func (s *Service) ListByCrisis(ctx context.Context, crisisID string) ([]*domain.ResponsePlan, error) {
	return s.repo.ListByCrisis(ctx, crisisID)
}

// buildActions expands the baseline pair plus the type catalogue into
// concrete actions. Catalogue actions depend on "activate crisis team" so the
// coordination bridge exists before specialist work starts.
func buildActions(planID string, crisisType domain.CrisisType, start time.Time) []domain.Action {
	templates := append(append([]actionTemplate{}, baselineActions...), typeActions[crisisType]...)

	actions := make([]domain.Action, 0, len(templates))
	var activateID string
	for i, tpl := range templates {
		a := domain.Action{
			ID:          uuid.New().String(),
			PlanID:      planID,
			Title:       tpl.Title,
			Description: tpl.Description,
			Priority:    tpl.Priority,
			Status:      domain.ActionStatusPending,
			Deadline:    start.Add(tpl.Offset),
		}
		if i == 0 {
			activateID = a.ID
		} else if i >= len(baselineActions) {
			a.Dependencies = []string{activateID}
		}
		actions = append(actions, a)
	}
	return actions
}

// selectStakeholders picks plan members by authority. High and critical
// crises pull in decision makers; lower severities keep the circle to
// coordinators.
func (s *Service) selectStakeholders(ctx context.Context, severity domain.Severity) ([]string, error) {
	if s.stakeholders == nil {
		return nil, nil
	}
	all, err := s.stakeholders.ListStakeholders(ctx)
	if err != nil {
		return nil, err
	}

	includeDecisionMakers := severity.Rank() >= domain.SeverityHigh.Rank()
	var ids []string
	for _, st := range all {
		switch st.Authority {
		case domain.AuthorityCoordinator:
			ids = append(ids, st.ID)
		case domain.AuthorityDecisionMaker:
			if includeDecisionMakers {
				ids = append(ids, st.ID)
			}
		}
	}
	return ids, nil
}

// buildCommunications produces the communication plan. Every plan opens with
// an internal coordinator email; high and critical crises add an external
// press release gated on ceo approval.
func buildCommunications(severity domain.Severity) []domain.CommunicationItem {
	items := []domain.CommunicationItem{{
		ID:          uuid.New().String(),
		Audience:    "internal",
		Channel:     domain.ChannelTypeEmail,
		Template:    "internal-situation-brief",
		Responsible: "crisis-coordinator",
		Status:      domain.CommunicationPending,
	}}

	if severity.Rank() >= domain.SeverityHigh.Rank() {
		items = append(items, domain.CommunicationItem{
			ID:          uuid.New().String(),
			Audience:    "external",
			Channel:     domain.ChannelTypeEmail,
			Template:    "press-release",
			Responsible: "communications-lead",
			Approver:    "ceo",
			Status:      domain.CommunicationPending,
		})
	}
	return items
}

// buildMilestones derives the two standard checkpoints: urgent actions done,
// then everything done.
func buildMilestones(actions []domain.Action, start time.Time, duration time.Duration) []domain.Milestone {
	var urgentIDs, allIDs []string
	for _, a := range actions {
		allIDs = append(allIDs, a.ID)
		if a.Priority == domain.ActionPriorityUrgent {
			urgentIDs = append(urgentIDs, a.ID)
		}
	}

	return []domain.Milestone{
		{
			Name:      "initial response complete",
			ActionIDs: urgentIDs,
			TargetAt:  start.Add(duration / 4),
		},
		{
			Name:      "crisis contained",
			ActionIDs: allIDs,
			TargetAt:  start.Add(duration),
		},
	}
}
