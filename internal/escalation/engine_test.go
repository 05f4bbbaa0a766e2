package escalation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/crisis-command/internal/bus"
	"github.com/bissquit/crisis-command/internal/crisis"
	crisismemory "github.com/bissquit/crisis-command/internal/crisis/memory"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/escalation"
	"github.com/bissquit/crisis-command/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	inputs []notify.Input
}

func (n *recordingNotifier) NotifyStakeholders(_ context.Context, input notify.Input) (*notify.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, input)
	return &notify.Result{Recipients: 1, Delivered: 1}, nil
}

func (n *recordingNotifier) batches() []notify.Input {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Input{}, n.inputs...)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, bus.Event) {}

type engineFixture struct {
	crises   *crisis.Service
	engine   *escalation.Engine
	notifier *recordingNotifier
	clock    *fakeClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	crisisService := crisis.NewService(crisismemory.NewRepository(), nopPublisher{})
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Now()}
	engine := escalation.NewEngine(escalation.DefaultConfig(), crisisService, notifier, clock)

	return &engineFixture{crises: crisisService, engine: engine, notifier: notifier, clock: clock}
}

func (f *engineFixture) detect(t *testing.T, severity domain.Severity) *domain.Crisis {
	t.Helper()
	c, err := f.crises.Detect(context.Background(), crisis.SubmitEventInput{
		Type:         domain.CrisisTypeOperational,
		SeverityHint: &severity,
		Description:  "conveyor line halted",
		DetectedAt:   f.clock.Now(),
	}, "monitoring")
	require.NoError(t, err)
	return c
}

func TestEvaluateAll_TimeoutRaisesOneLevel(t *testing.T) {
	f := newEngineFixture(t)
	c := f.detect(t, domain.SeverityHigh)

	// Before the 2h high-severity timeout nothing moves.
	f.clock.Advance(time.Hour)
	f.engine.EvaluateAll(context.Background())

	got, err := f.crises.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationOperational, got.EscalationLevel)
	assert.Empty(t, f.notifier.batches())

	f.clock.Advance(90 * time.Minute)
	f.engine.EvaluateAll(context.Background())

	got, err = f.crises.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationSeniorMgmt, got.EscalationLevel)

	batches := f.notifier.batches()
	require.Len(t, batches, 1)
	assert.Equal(t, c.ID, batches[0].CrisisID)
	assert.ElementsMatch(t, []string{"crisis-coordinator", "operations-lead"}, batches[0].Roles)
	assert.ElementsMatch(t, []domain.ChannelType{domain.ChannelTypeEmail, domain.ChannelTypeChat}, batches[0].Channels)
}

func TestEvaluateAll_TimeoutStepsMeasureFromLastEscalation(t *testing.T) {
	f := newEngineFixture(t)
	c := f.detect(t, domain.SeverityHigh)

	f.clock.Advance(3 * time.Hour)
	f.engine.EvaluateAll(context.Background())

	// The clock restarted at the first step; the second needs its own 2h.
	f.clock.Advance(time.Hour)
	f.engine.EvaluateAll(context.Background())
	got, err := f.crises.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationSeniorMgmt, got.EscalationLevel)

	f.clock.Advance(2 * time.Hour)
	f.engine.EvaluateAll(context.Background())
	got, err = f.crises.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationExecutive, got.EscalationLevel)

	// Executive is the ceiling; further ticks neither move nor notify.
	f.clock.Advance(24 * time.Hour)
	f.engine.EvaluateAll(context.Background())
	got, err = f.crises.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationExecutive, got.EscalationLevel)
	assert.Len(t, f.notifier.batches(), 2)
}

func TestEvaluateAll_TimeoutOverridesApply(t *testing.T) {
	config := escalation.DefaultConfig()
	config.TimeoutOverrides = map[domain.Severity]time.Duration{
		domain.SeverityHigh: 10 * time.Minute,
	}

	crisisService := crisis.NewService(crisismemory.NewRepository(), nopPublisher{})
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Now()}
	engine := escalation.NewEngine(config, crisisService, notifier, clock)

	severity := domain.SeverityHigh
	c, err := crisisService.Detect(context.Background(), crisis.SubmitEventInput{
		Type:         domain.CrisisTypeOperational,
		SeverityHint: &severity,
		Description:  "conveyor line halted",
		DetectedAt:   clock.Now(),
	}, "monitoring")
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	engine.EvaluateAll(context.Background())

	got, err := crisisService.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationSeniorMgmt, got.EscalationLevel)
}

func TestEvaluateAll_RepeatedFailuresForceCritical(t *testing.T) {
	f := newEngineFixture(t)
	c := f.detect(t, domain.SeverityMedium)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.crises.RecordActionFailure(ctx, c.ID, "notify suppliers", "smtp relay refused connection")
		require.NoError(t, err)
	}

	f.engine.EvaluateAll(ctx)

	got, err := f.crises.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, got.Severity)
	assert.Equal(t, domain.EscalationExecutive, got.EscalationLevel)

	batches := f.notifier.batches()
	require.Len(t, batches, 1)
	assert.Contains(t, batches[0].Roles, "ceo")
	assert.Contains(t, batches[0].Channels, domain.ChannelTypeSMS)

	// Already at the ceiling; another tick is a no-op.
	f.engine.EvaluateAll(ctx)
	assert.Len(t, f.notifier.batches(), 1)
}

func TestEvaluateAll_TwoFailuresAreNotEnough(t *testing.T) {
	f := newEngineFixture(t)
	c := f.detect(t, domain.SeverityMedium)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.crises.RecordActionFailure(ctx, c.ID, "notify suppliers", "smtp relay refused connection")
		require.NoError(t, err)
	}

	f.engine.EvaluateAll(ctx)

	got, err := f.crises.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityMedium, got.Severity)
	assert.Equal(t, domain.EscalationOperational, got.EscalationLevel)
}

func TestEvaluateAll_SkipsTerminalCrises(t *testing.T) {
	f := newEngineFixture(t)
	c := f.detect(t, domain.SeverityHigh)

	_, err := f.crises.Cancel(context.Background(), c.ID, "false positive", "operator")
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	f.engine.EvaluateAll(context.Background())

	got, err := f.crises.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationOperational, got.EscalationLevel)
	assert.Empty(t, f.notifier.batches())
}

func TestEvaluateAll_SkipsLockedCrises(t *testing.T) {
	f := newEngineFixture(t)
	c := f.detect(t, domain.SeverityHigh)

	require.True(t, f.crises.TryLockCrisis(c.ID))
	defer f.crises.UnlockCrisis(c.ID)

	f.clock.Advance(3 * time.Hour)
	f.engine.EvaluateAll(context.Background())

	got, err := f.crises.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationOperational, got.EscalationLevel)
}

func TestEscalateToExecutive_BypassesTimer(t *testing.T) {
	f := newEngineFixture(t)
	c := f.detect(t, domain.SeverityMedium)

	updated, err := f.engine.EscalateToExecutive(context.Background(), c.ID, "board requested direct oversight")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationExecutive, updated.EscalationLevel)

	batches := f.notifier.batches()
	require.Len(t, batches, 1)
	assert.Contains(t, batches[0].Message, "board requested direct oversight")

	// Raising to a level already held is a no-op, not an error, and sends
	// no second stakeholder batch.
	again, err := f.engine.EscalateToExecutive(context.Background(), c.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationExecutive, again.EscalationLevel)
	assert.Len(t, f.notifier.batches(), 1)
}

func TestStartStop_WorkerTerminatesCleanly(t *testing.T) {
	f := newEngineFixture(t)

	f.engine.Start(context.Background())
	f.engine.Stop()
}
