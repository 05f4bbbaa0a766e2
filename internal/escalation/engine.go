// Package escalation implements the timer-driven escalation engine. A
// periodic tick evaluates every active crisis against its severity's
// escalation procedure and raises levels that have sat too long, while
// repeated action failures short-circuit straight to executive.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/crisis-command/internal/crisis"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/notify"
	"github.com/bissquit/crisis-command/internal/pkg/ctxlog"
)

const failureThreshold = 3

// Clock abstracts wall time so tests can drive evaluation deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Notifier sends one stakeholder notification batch per escalation step.
type Notifier interface {
	NotifyStakeholders(ctx context.Context, input notify.Input) (*notify.Result, error)
}

// Config contains engine configuration.
type Config struct {
	Interval         time.Duration
	TimeoutOverrides map[domain.Severity]time.Duration
}

// DefaultConfig returns the production evaluation cadence.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Minute}
}

// Engine periodically evaluates active crises for escalation.
type Engine struct {
	config   Config
	crises   *crisis.Service
	notifier Notifier
	clock    Clock

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates a new escalation engine.
func NewEngine(config Config, crises *crisis.Service, notifier Notifier, clock Clock) *Engine {
	if config.Interval == 0 {
		config.Interval = DefaultConfig().Interval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		config:   config,
		crises:   crises,
		notifier: notifier,
		clock:    clock,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the evaluation loop.
func (e *Engine) Start(ctx context.Context) {
	slog.Info("starting escalation engine", "interval", e.config.Interval)

	e.wg.Add(1)
	go e.run(ctx)
}

// Stop gracefully stops the engine. An in-flight tick is allowed to finish.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	slog.Info("escalation engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.EvaluateAll(ctx)
		}
	}
}

// EvaluateAll runs one evaluation pass over every active crisis. Crises
// already mid-evaluation from an overlapping tick are skipped rather than
// double-escalated.
func (e *Engine) EvaluateAll(ctx context.Context) {
	crises, err := e.crises.ListActive(ctx)
	if err != nil {
		slog.Error("escalation tick failed to list active crises", "error", err)
		return
	}

	recordTick(len(crises))
	for _, c := range crises {
		if !e.crises.TryLockCrisis(c.ID) {
			recordSkipped()
			continue
		}
		e.evaluate(ctxlog.With(ctx, "crisis_id", c.ID), c.ID)
		e.crises.UnlockCrisis(c.ID)
	}
}

// evaluate inspects one crisis under its lock. The terminal-status check is
// the first guard so a crisis resolved since listing performs no further
// escalation.
func (e *Engine) evaluate(ctx context.Context, id string) {
	c, err := e.crises.Get(ctx, id)
	if err != nil {
		ctxlog.FromContext(ctx).Error("escalation evaluation failed to load crisis", "error", err)
		return
	}
	if c.Status.IsTerminal() {
		return
	}

	if c.FailedActions >= failureThreshold {
		e.evaluateFailures(ctx, c)
		return
	}

	e.evaluateTimeout(ctx, c)
}

// evaluateFailures forces severity critical and executive escalation when
// repeated action failures signal a response breakdown.
func (e *Engine) evaluateFailures(ctx context.Context, c *domain.Crisis) {
	if c.Severity == domain.SeverityCritical && c.EscalationLevel == domain.EscalationExecutive {
		return
	}

	reason := fmt.Sprintf("%d response actions failed", c.FailedActions)
	updated, err := e.crises.ForceCriticalLocked(ctx, c.ID, reason)
	if err != nil {
		ctxlog.FromContext(ctx).Error("failure-based escalation failed", "error", err)
		return
	}

	recordEscalation("failure")
	e.notifyEscalation(ctx, updated, reason)
}

// evaluateTimeout raises the escalation level one step when the crisis has
// sat at its current level longer than the severity's timeout.
func (e *Engine) evaluateTimeout(ctx context.Context, c *domain.Crisis) {
	next := c.EscalationLevel.Next()
	if next == c.EscalationLevel {
		return
	}

	procedure := ProcedureFor(c.Severity, e.config.TimeoutOverrides)
	if e.clock.Now().Sub(c.LastEscalatedAt) < procedure.TimeoutBeforeEscalation {
		return
	}

	reason := fmt.Sprintf("no escalation activity for %s", procedure.TimeoutBeforeEscalation)
	updated, changed, err := e.crises.RaiseEscalationLocked(ctx, c.ID, next, reason, "escalation-engine")
	if err != nil {
		ctxlog.FromContext(ctx).Error("time-based escalation failed", "error", err)
		return
	}
	if !changed {
		return
	}

	recordEscalation("timeout")
	e.notifyEscalation(ctx, updated, reason)
}

// EscalateToExecutive immediately lifts a crisis to executive level,
// bypassing the timer. Satisfies the console's manual escalation path.
func (e *Engine) EscalateToExecutive(ctx context.Context, crisisID, reason string) (*domain.Crisis, error) {
	c, changed, err := e.crises.RaiseEscalation(ctx, crisisID, domain.EscalationExecutive, reason, "operator")
	if err != nil {
		return nil, err
	}
	// A crisis already at executive did not take a step, so no batch goes out.
	if !changed {
		return c, nil
	}

	recordEscalation("manual")
	e.notifyEscalation(ctx, c, reason)
	return c, nil
}

// notifyEscalation sends exactly one stakeholder batch for one escalation
// step. Delivery failures are tallied by the notifier, not propagated;
// escalation state must never be lost to a notification outage.
func (e *Engine) notifyEscalation(ctx context.Context, c *domain.Crisis, reason string) {
	procedure := ProcedureFor(c.Severity, e.config.TimeoutOverrides)

	result, err := e.notifier.NotifyStakeholders(ctx, notify.Input{
		CrisisID: c.ID,
		Severity: c.Severity,
		Message: fmt.Sprintf("Crisis %s escalated to %s: %s (%s)",
			c.ID, c.EscalationLevel, reason, c.Description),
		Roles:    procedure.RolesToNotify,
		Channels: procedure.Channels,
		Urgency:  string(c.Severity),
	})
	if err != nil {
		slog.Error("escalation notification batch failed", "crisis_id", c.ID, "error", err)
		return
	}

	slog.Info("escalation notification batch sent",
		"crisis_id", c.ID,
		"level", c.EscalationLevel,
		"delivered", result.Delivered,
		"failed", result.Failed,
	)
}
