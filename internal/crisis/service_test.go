package crisis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/crisis-command/internal/bus"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository over a map for testing.
type mockRepository struct {
	mu     sync.Mutex
	crises map[string]*domain.Crisis
}

func newMockRepository() *mockRepository {
	return &mockRepository{crises: make(map[string]*domain.Crisis)}
}

func (m *mockRepository) Create(_ context.Context, c *domain.Crisis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.crises[c.ID] = &copied
	return nil
}

func (m *mockRepository) Get(_ context.Context, id string) (*domain.Crisis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.crises[id]
	if !ok {
		return nil, ErrCrisisNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockRepository) Update(_ context.Context, c *domain.Crisis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.crises[c.ID]
	if !ok {
		return ErrCrisisNotFound
	}
	copied := *c
	// The stored timeline is authoritative; AppendTimeline is the only
	// growth path, mirroring the real repositories.
	copied.Timeline = stored.Timeline
	m.crises[c.ID] = &copied
	return nil
}

func (m *mockRepository) List(_ context.Context, filters Filters) ([]*domain.Crisis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Crisis
	for _, c := range m.crises {
		if filters.ActiveOnly && c.Status.IsTerminal() {
			continue
		}
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockRepository) AppendTimeline(_ context.Context, id string, entry domain.TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.crises[id]
	if !ok {
		return ErrCrisisNotFound
	}
	c.Timeline = append(c.Timeline, entry)
	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event bus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) byType(t bus.EventType) []bus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []bus.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestService() (*Service, *mockRepository, *recordingPublisher) {
	repo := newMockRepository()
	publisher := &recordingPublisher{}
	return NewService(repo, publisher), repo, publisher
}

func detectTestCrisis(t *testing.T, s *Service, crisisType domain.CrisisType, hint *domain.Severity) *domain.Crisis {
	t.Helper()
	c, err := s.Detect(context.Background(), SubmitEventInput{
		Type:         crisisType,
		SeverityHint: hint,
		Description:  "test crisis",
		Source:       "unit-test",
		DetectedAt:   time.Now().Add(-time.Minute),
	}, "tester")
	require.NoError(t, err)
	return c
}

func TestDetect_CreatesClassifiedCrisis(t *testing.T) {
	s, _, publisher := newTestService()

	hint := domain.SeverityCritical
	c, err := s.Detect(context.Background(), SubmitEventInput{
		Type:         domain.CrisisTypeCyberAttack,
		SeverityHint: &hint,
		Description:  "breach",
		DetectedAt:   time.Now(),
	}, "detector")
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, domain.CrisisStatusDetected, c.Status)
	assert.Equal(t, domain.SeverityCritical, c.Severity)
	assert.Equal(t, 1, c.Priority)
	assert.Equal(t, domain.EscalationOperational, c.EscalationLevel)
	assert.True(t, c.Monitoring)
	assert.Len(t, c.Timeline, 1)

	require.Len(t, publisher.byType(bus.EventCrisisDetected), 1)
}

func TestDetect_ValidatesInput(t *testing.T) {
	s, _, _ := newTestService()

	tests := []struct {
		name    string
		input   SubmitEventInput
		wantErr error
	}{
		{
			name:    "missing type",
			input:   SubmitEventInput{Description: "x", DetectedAt: time.Now()},
			wantErr: ErrMissingType,
		},
		{
			name:    "missing description",
			input:   SubmitEventInput{Type: domain.CrisisTypeOperational, DetectedAt: time.Now()},
			wantErr: ErrMissingDescription,
		},
		{
			name:    "zero detected at",
			input:   SubmitEventInput{Type: domain.CrisisTypeOperational, Description: "x"},
			wantErr: ErrInvalidDetectedAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Detect(context.Background(), tt.input, "tester")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	s, _, publisher := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	confirmed, err := s.Confirm(context.Background(), c.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.False(t, confirmed.ConfirmedAt.Before(confirmed.DetectedAt))

	mitigated, err := s.MarkPartialResolution(context.Background(), c.ID, MitigationInput{
		Steps:      []string{"failed node drained"},
		RecordedBy: "operator",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisStatusMitigated, mitigated.Status)
	assert.Nil(t, mitigated.ResolvedAt)
	assert.True(t, mitigated.Monitoring)

	resolved, err := s.Resolve(context.Background(), c.ID, ResolutionInput{
		Summary:    "service restored",
		RootCause:  "disk failure",
		ResolvedBy: "operator",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.False(t, resolved.Monitoring)

	// detected + confirmed + mitigated + resolved status events
	assert.Len(t, publisher.byType(bus.EventCrisisStatusUpdated), 3)
}

func TestLifecycle_RejectsSkippedTransitions(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	// Cannot mitigate straight from detected.
	_, err := s.MarkPartialResolution(context.Background(), c.ID, MitigationInput{
		Steps:      []string{"step"},
		RecordedBy: "operator",
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Cannot resolve straight from detected.
	_, err = s.Resolve(context.Background(), c.ID, ResolutionInput{
		Summary: "s", RootCause: "r", ResolvedBy: "o",
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// State unchanged after rejected transitions.
	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisStatusDetected, got.Status)
}

func TestResolve_RequiresResolutionRecord(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	_, err := s.Confirm(context.Background(), c.ID, "operator")
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), c.ID, ResolutionInput{Summary: "only summary"})
	assert.ErrorIs(t, err, ErrMissingResolution)
}

func TestResolve_IsIdempotentError(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	_, err := s.Confirm(context.Background(), c.ID, "operator")
	require.NoError(t, err)

	input := ResolutionInput{Summary: "s", RootCause: "r", ResolvedBy: "o"}
	first, err := s.Resolve(context.Background(), c.ID, input)
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), c.ID, input)
	assert.ErrorIs(t, err, ErrCrisisAlreadyResolved)

	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ResolvedAt.Unix(), got.ResolvedAt.Unix())
}

func TestResolve_RejectedAfterCancel(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	_, err := s.Cancel(context.Background(), c.ID, "false positive", "operator")
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), c.ID, ResolutionInput{Summary: "s", RootCause: "r", ResolvedBy: "o"})
	assert.ErrorIs(t, err, ErrCrisisCancelled)
}

func TestCancel_ReachableFromAnyNonResolvedState(t *testing.T) {
	s, _, _ := newTestService()

	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)
	cancelled, err := s.Cancel(context.Background(), c.ID, "false positive", "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.Monitoring)

	// Resolved crises cannot be cancelled.
	c2 := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)
	_, err = s.Confirm(context.Background(), c2.ID, "operator")
	require.NoError(t, err)
	_, err = s.Resolve(context.Background(), c2.ID, ResolutionInput{Summary: "s", RootCause: "r", ResolvedBy: "o"})
	require.NoError(t, err)
	_, err = s.Cancel(context.Background(), c2.ID, "oops", "operator")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRaiseEscalation_IsMonotonic(t *testing.T) {
	s, _, publisher := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	up, changed, err := s.RaiseEscalation(context.Background(), c.ID, domain.EscalationSeniorMgmt, "timeout", "engine")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.EscalationSeniorMgmt, up.EscalationLevel)

	// Raising to a lower or equal level changes nothing.
	same, changed, err := s.RaiseEscalation(context.Background(), c.ID, domain.EscalationOperational, "noop", "engine")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.EscalationSeniorMgmt, same.EscalationLevel)

	assert.Len(t, publisher.byType(bus.EventEscalationChanged), 1)
}

func TestRaiseEscalation_RejectedWhenTerminal(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	_, err := s.Cancel(context.Background(), c.ID, "false positive", "operator")
	require.NoError(t, err)

	_, _, err = s.RaiseEscalation(context.Background(), c.ID, domain.EscalationExecutive, "late", "engine")
	assert.ErrorIs(t, err, ErrEscalationNotAllowed)
}

func TestForceCritical_SetsSeverityAndLevel(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	forced, err := s.ForceCritical(context.Background(), c.ID, "3 actions failed")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, forced.Severity)
	assert.Equal(t, 1, forced.Priority)
	assert.Equal(t, domain.EscalationExecutive, forced.EscalationLevel)
}

func TestRecordActionFailure_CountsUp(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	for want := 1; want <= 3; want++ {
		count, err := s.RecordActionFailure(context.Background(), c.ID, "isolate", "timeout")
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailedActions)
}

// autoPlanBuilder records build invocations.
type autoPlanBuilder struct {
	mu    sync.Mutex
	built []string
	err   error
}

func (b *autoPlanBuilder) BuildForCrisis(_ context.Context, c *domain.Crisis, _ string) (*domain.ResponsePlan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.built = append(b.built, c.ID)
	return &domain.ResponsePlan{ID: "plan-" + c.ID, CrisisID: c.ID}, nil
}

func TestDetect_AutoBuildsPlanForHighSeverity(t *testing.T) {
	s, _, _ := newTestService()
	builder := &autoPlanBuilder{}
	s.SetPlanBuilder(builder)

	high := detectTestCrisis(t, s, domain.CrisisTypeCyberAttack, nil)
	detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	assert.Equal(t, []string{high.ID}, builder.built)
}

func TestDetect_SurvivesPlanBuildFailure(t *testing.T) {
	s, _, _ := newTestService()
	s.SetPlanBuilder(&autoPlanBuilder{err: assert.AnError})

	c := detectTestCrisis(t, s, domain.CrisisTypeCyberAttack, nil)

	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisStatusDetected, got.Status)
}

func TestTimeline_AppendOnlyOrdering(t *testing.T) {
	s, _, _ := newTestService()
	c := detectTestCrisis(t, s, domain.CrisisTypeOperational, nil)

	_, err := s.Confirm(context.Background(), c.ID, "operator")
	require.NoError(t, err)
	_, _, err = s.RaiseEscalation(context.Background(), c.ID, domain.EscalationSeniorMgmt, "timeout", "engine")
	require.NoError(t, err)

	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, got.Timeline, 3)
	assert.Equal(t, "detected", got.Timeline[0].Action)
	assert.Equal(t, "confirmed", got.Timeline[1].Action)
	assert.Equal(t, "escalated", got.Timeline[2].Action)
}
