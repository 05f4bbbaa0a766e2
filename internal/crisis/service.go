// Package crisis implements the crisis registry: the single source of truth
// for crisis lifecycle state, classification of submitted events and
// registry-level reporting.
package crisis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/crisis-command/internal/bus"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/pkg/keylock"
	"github.com/google/uuid"
)

// PlanBuilder creates a response plan for a crisis. Implemented by the plan
// module; injected after construction to keep the dependency one-directional.
type PlanBuilder interface {
	BuildForCrisis(ctx context.Context, c *domain.Crisis, actor string) (*domain.ResponsePlan, error)
}

// Service implements crisis registry business logic. All mutations against
// one crisis id serialize on a per-id lock; operations on different crises
// do not block one another.
type Service struct {
	repo      Repository
	publisher bus.Publisher
	locks     *keylock.KeyLock
	planner   PlanBuilder
}

// NewService creates a new crisis service.
func NewService(repo Repository, publisher bus.Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		locks:     keylock.New(),
	}
}

// SetPlanBuilder wires the response plan builder used for automatic plan
// creation on high/critical detections.
func (s *Service) SetPlanBuilder(pb PlanBuilder) {
	s.planner = pb
}

// SubmitEventInput is a raw event from a threat/event source.
type SubmitEventInput struct {
	Type            domain.CrisisType
	SeverityHint    *domain.Severity
	Description     string
	Location        string
	AffectedSystems []string
	Source          string
	DetectedAt      time.Time
}

// ResolutionInput holds the required fields for resolving a crisis.
type ResolutionInput struct {
	Summary    string
	RootCause  string
	ResolvedBy string
}

// MitigationInput holds a partial-resolution report.
type MitigationInput struct {
	Steps           []string
	RemainingIssues []string
	EstimatedFullAt *time.Time
	RecordedBy      string
}

// Detect classifies a raw event and persists a new crisis in detected state.
// For high/critical severities a response plan is built automatically; a plan
// build failure does not lose the crisis record.
func (s *Service) Detect(ctx context.Context, input SubmitEventInput, actor string) (*domain.Crisis, error) {
	if err := validateSubmitEvent(input); err != nil {
		return nil, err
	}

	severity, impact, priority := Classify(input.Type, input.SeverityHint)

	now := time.Now()
	c := &domain.Crisis{
		ID:              uuid.New().String(),
		Type:            input.Type,
		Severity:        severity,
		Priority:        priority,
		Status:          domain.CrisisStatusDetected,
		Description:     input.Description,
		Location:        input.Location,
		AffectedSystems: input.AffectedSystems,
		Source:          input.Source,
		Impact:          impact,
		EscalationLevel: domain.EscalationOperational,
		DetectedAt:      input.DetectedAt,
		LastEscalatedAt: input.DetectedAt,
		Monitoring:      true,
		Timeline: []domain.TimelineEntry{{
			Timestamp: now,
			Actor:     actor,
			Action:    "detected",
			Details:   fmt.Sprintf("classified %s as %s, priority %d", input.Type, severity, priority),
		}},
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create crisis: %w", err)
	}

	recordCrisisDetected(string(c.Type), string(c.Severity))
	s.publisher.Publish(ctx, bus.New(bus.EventCrisisDetected, c.ID, map[string]any{
		"type":     c.Type,
		"severity": c.Severity,
		"priority": c.Priority,
	}))

	if s.planner != nil && c.Severity.Rank() >= domain.SeverityHigh.Rank() {
		if _, err := s.planner.BuildForCrisis(ctx, c, actor); err != nil {
			// Crisis tracking must never be lost because plan building
			// failed; the operator can re-trigger plan creation.
			slog.Error("automatic plan creation failed", "crisis_id", c.ID, "error", err)
		}
	}

	return c, nil
}

// Confirm transitions a crisis from detected to confirmed.
func (s *Service) Confirm(ctx context.Context, id, actor string) (*domain.Crisis, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !c.Status.CanTransitionTo(domain.CrisisStatusConfirmed) {
		return nil, fmt.Errorf("%w: %s -> confirmed", ErrInvalidTransition, c.Status)
	}

	now := time.Now()
	c.Status = domain.CrisisStatusConfirmed
	c.ConfirmedAt = &now

	return s.applyTransition(ctx, c, domain.TimelineEntry{
		Timestamp: now,
		Actor:     actor,
		Action:    "confirmed",
	})
}

// MarkPartialResolution records mitigation and moves the crisis to mitigated.
// The crisis stays monitored and its plan stays open.
func (s *Service) MarkPartialResolution(ctx context.Context, id string, input MitigationInput) (*domain.Crisis, error) {
	if len(input.Steps) == 0 {
		return nil, ErrMissingMitigation
	}

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !c.Status.CanTransitionTo(domain.CrisisStatusMitigated) {
		return nil, fmt.Errorf("%w: %s -> mitigated", ErrInvalidTransition, c.Status)
	}

	now := time.Now()
	c.Status = domain.CrisisStatusMitigated
	c.Mitigation = &domain.Mitigation{
		Steps:           input.Steps,
		RemainingIssues: input.RemainingIssues,
		EstimatedFullAt: input.EstimatedFullAt,
		RecordedBy:      input.RecordedBy,
		RecordedAt:      now,
	}

	return s.applyTransition(ctx, c, domain.TimelineEntry{
		Timestamp: now,
		Actor:     input.RecordedBy,
		Action:    "mitigated",
		Details:   fmt.Sprintf("%d mitigation steps recorded, %d issues outstanding", len(input.Steps), len(input.RemainingIssues)),
	})
}

// Resolve closes a crisis. Requires a full resolution record; resolving an
// already-resolved crisis is a no-op error, not a double state change.
func (s *Service) Resolve(ctx context.Context, id string, input ResolutionInput) (*domain.Crisis, error) {
	if input.Summary == "" || input.RootCause == "" || input.ResolvedBy == "" {
		return nil, ErrMissingResolution
	}

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.Status == domain.CrisisStatusResolved {
		return nil, ErrCrisisAlreadyResolved
	}
	if c.Status == domain.CrisisStatusCancelled {
		return nil, ErrCrisisCancelled
	}
	if !c.Status.CanTransitionTo(domain.CrisisStatusResolved) {
		return nil, fmt.Errorf("%w: %s -> resolved", ErrInvalidTransition, c.Status)
	}

	now := time.Now()
	c.Status = domain.CrisisStatusResolved
	c.ResolvedAt = &now
	c.Monitoring = false
	c.Resolution = &domain.Resolution{
		Summary:    input.Summary,
		RootCause:  input.RootCause,
		ResolvedBy: input.ResolvedBy,
	}

	resolved, err := s.applyTransition(ctx, c, domain.TimelineEntry{
		Timestamp: now,
		Actor:     input.ResolvedBy,
		Action:    "resolved",
		Details:   input.Summary,
	})
	if err != nil {
		return nil, err
	}

	recordCrisisResolved(string(c.Type), now.Sub(c.DetectedAt))
	return resolved, nil
}

// Cancel terminates a crisis found to be a false positive.
func (s *Service) Cancel(ctx context.Context, id, reason, actor string) (*domain.Crisis, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !c.Status.CanTransitionTo(domain.CrisisStatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, c.Status)
	}

	now := time.Now()
	c.Status = domain.CrisisStatusCancelled
	c.Monitoring = false

	return s.applyTransition(ctx, c, domain.TimelineEntry{
		Timestamp: now,
		Actor:     actor,
		Action:    "cancelled",
		Details:   reason,
	})
}

// RaiseEscalation lifts the crisis to the target level. Escalation never
// decreases and is rejected once a crisis reaches a terminal status. The
// boolean reports whether the level actually moved; a request for the
// current level or below leaves the crisis untouched and returns false.
func (s *Service) RaiseEscalation(ctx context.Context, id string, level domain.EscalationLevel, reason, actor string) (*domain.Crisis, bool, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	return s.raiseEscalationLocked(ctx, id, level, reason, actor)
}

func (s *Service) raiseEscalationLocked(ctx context.Context, id string, level domain.EscalationLevel, reason, actor string) (*domain.Crisis, bool, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if c.Status.IsTerminal() {
		return nil, false, ErrEscalationNotAllowed
	}
	if level.Rank() <= c.EscalationLevel.Rank() {
		// Already at or above the requested level; monotonicity holds.
		return c, false, nil
	}

	now := time.Now()
	from := c.EscalationLevel
	c.EscalationLevel = level
	c.LastEscalatedAt = now

	updated, err := s.applyEscalation(ctx, c, domain.TimelineEntry{
		Timestamp: now,
		Actor:     actor,
		Action:    "escalated",
		Details:   fmt.Sprintf("%s -> %s: %s", from, level, reason),
	}, from)
	if err != nil {
		return nil, false, err
	}

	return updated, true, nil
}

// ForceCritical raises severity to critical and escalation to executive in
// one step. Used by the escalation engine when repeated action failures
// signal a response breakdown.
func (s *Service) ForceCritical(ctx context.Context, id, reason string) (*domain.Crisis, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	return s.forceCriticalLocked(ctx, id, reason)
}

func (s *Service) forceCriticalLocked(ctx context.Context, id, reason string) (*domain.Crisis, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.Status.IsTerminal() {
		return nil, ErrEscalationNotAllowed
	}
	if c.Severity == domain.SeverityCritical && c.EscalationLevel == domain.EscalationExecutive {
		return c, nil
	}

	now := time.Now()
	from := c.EscalationLevel
	c.Severity = domain.SeverityCritical
	c.Priority = 1
	c.EscalationLevel = domain.EscalationExecutive
	c.LastEscalatedAt = now

	return s.applyEscalation(ctx, c, domain.TimelineEntry{
		Timestamp: now,
		Actor:     "escalation-engine",
		Action:    "forced-critical",
		Details:   reason,
	}, from)
}

// RecordActionFailure increments the crisis's failed-action counter and
// returns the new count. Failures are a signal for the escalation engine,
// not an error.
func (s *Service) RecordActionFailure(ctx context.Context, id, actionTitle, reason string) (int, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	c.FailedActions++
	entry := domain.TimelineEntry{
		Timestamp: time.Now(),
		Actor:     "action-tracker",
		Action:    "action-failed",
		Details:   fmt.Sprintf("%s: %s", actionTitle, reason),
	}
	c.Timeline = append(c.Timeline, entry)

	if err := s.repo.Update(ctx, c); err != nil {
		return 0, fmt.Errorf("update crisis: %w", err)
	}
	if err := s.repo.AppendTimeline(ctx, c.ID, entry); err != nil {
		return 0, fmt.Errorf("append timeline: %w", err)
	}

	return c.FailedActions, nil
}

// AppendTimeline appends an audit entry to a crisis under its lock.
func (s *Service) AppendTimeline(ctx context.Context, id string, entry domain.TimelineEntry) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.AppendTimeline(ctx, id, entry); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}

// Get retrieves a crisis by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Crisis, error) {
	return s.repo.Get(ctx, id)
}

// List retrieves crises matching the filters.
func (s *Service) List(ctx context.Context, filters Filters) ([]*domain.Crisis, error) {
	return s.repo.List(ctx, filters)
}

// ListActive retrieves all crises that are not resolved or cancelled.
func (s *Service) ListActive(ctx context.Context) ([]*domain.Crisis, error) {
	return s.repo.List(ctx, Filters{ActiveOnly: true})
}

// TryLockCrisis attempts to take the per-crisis lock without blocking.
// Used by the escalation engine to skip crises already mid-evaluation.
func (s *Service) TryLockCrisis(id string) bool {
	return s.locks.TryLock(id)
}

// UnlockCrisis releases the per-crisis lock taken by TryLockCrisis.
func (s *Service) UnlockCrisis(id string) {
	s.locks.Unlock(id)
}

// RaiseEscalationLocked raises escalation for a crisis whose lock the caller
// already holds via TryLockCrisis.
func (s *Service) RaiseEscalationLocked(ctx context.Context, id string, level domain.EscalationLevel, reason, actor string) (*domain.Crisis, bool, error) {
	return s.raiseEscalationLocked(ctx, id, level, reason, actor)
}

// ForceCriticalLocked is ForceCritical for a caller already holding the
// per-crisis lock via TryLockCrisis.
func (s *Service) ForceCriticalLocked(ctx context.Context, id, reason string) (*domain.Crisis, error) {
	return s.forceCriticalLocked(ctx, id, reason)
}

// applyTransition persists a status change, appends the timeline entry and
// emits crisis:status-updated.
func (s *Service) applyTransition(ctx context.Context, c *domain.Crisis, entry domain.TimelineEntry) (*domain.Crisis, error) {
	c.Timeline = append(c.Timeline, entry)

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update crisis: %w", err)
	}
	if err := s.repo.AppendTimeline(ctx, c.ID, entry); err != nil {
		return nil, fmt.Errorf("append timeline: %w", err)
	}

	recordStatusChange(string(c.Status))
	s.publisher.Publish(ctx, bus.New(bus.EventCrisisStatusUpdated, c.ID, map[string]any{
		"status": c.Status,
		"action": entry.Action,
	}))

	return c, nil
}

// applyEscalation persists an escalation change, appends the timeline entry
// and emits escalation:level-changed.
func (s *Service) applyEscalation(ctx context.Context, c *domain.Crisis, entry domain.TimelineEntry, from domain.EscalationLevel) (*domain.Crisis, error) {
	c.Timeline = append(c.Timeline, entry)

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update crisis: %w", err)
	}
	if err := s.repo.AppendTimeline(ctx, c.ID, entry); err != nil {
		return nil, fmt.Errorf("append timeline: %w", err)
	}

	recordEscalation(string(from), string(c.EscalationLevel))
	s.publisher.Publish(ctx, bus.New(bus.EventEscalationChanged, c.ID, map[string]any{
		"from":     from,
		"to":       c.EscalationLevel,
		"severity": c.Severity,
	}))

	return c, nil
}

func validateSubmitEvent(input SubmitEventInput) error {
	if input.Type == "" {
		return ErrMissingType
	}
	if input.Description == "" {
		return ErrMissingDescription
	}
	if input.DetectedAt.IsZero() {
		return ErrInvalidDetectedAt
	}
	if input.SeverityHint != nil && !input.SeverityHint.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidSeverity, *input.SeverityHint)
	}
	return nil
}
