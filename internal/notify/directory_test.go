package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDirectory wraps a StaticDirectory and fails on demand.
type flakyDirectory struct {
	mu      sync.Mutex
	inner   *StaticDirectory
	failing bool
	calls   int
}

func (d *flakyDirectory) setFailing(failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = failing
}

func (d *flakyDirectory) ResolveStakeholders(ctx context.Context, roles []string) ([]*domain.Stakeholder, error) {
	d.mu.Lock()
	d.calls++
	failing := d.failing
	d.mu.Unlock()
	if failing {
		return nil, errors.New("directory unreachable")
	}
	return d.inner.ResolveStakeholders(ctx, roles)
}

func (d *flakyDirectory) GetStakeholder(ctx context.Context, id string) (*domain.Stakeholder, error) {
	d.mu.Lock()
	d.calls++
	failing := d.failing
	d.mu.Unlock()
	if failing {
		return nil, errors.New("directory unreachable")
	}
	return d.inner.GetStakeholder(ctx, id)
}

func TestStaticDirectory_ResolveByRole(t *testing.T) {
	dir := testDirectory()

	all, err := dir.ResolveStakeholders(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	coordinators, err := dir.ResolveStakeholders(context.Background(), []string{"Crisis-Coordinator"})
	require.NoError(t, err)
	require.Len(t, coordinators, 1)
	assert.Equal(t, "coord-1", coordinators[0].ID)
}

func TestStaticDirectory_GetStakeholder(t *testing.T) {
	dir := testDirectory()

	s, err := dir.GetStakeholder(context.Background(), "ceo-1")
	require.NoError(t, err)
	assert.Equal(t, "CEO", s.Name)

	_, err = dir.GetStakeholder(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrStakeholderNotFound)
}

func TestCachedDirectory_ServesCacheDuringOutage(t *testing.T) {
	upstream := &flakyDirectory{inner: testDirectory()}
	cached := NewCachedDirectory(upstream, NewMemoryCache(), time.Minute)

	// Prime the cache while the directory is healthy.
	_, err := cached.ResolveStakeholders(context.Background(), nil)
	require.NoError(t, err)

	upstream.setFailing(true)

	resolved, err := cached.ResolveStakeholders(context.Background(), []string{"ceo"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "ceo-1", resolved[0].ID)

	s, err := cached.GetStakeholder(context.Background(), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, "Coordinator", s.Name)
}

func TestCachedDirectory_EmptyCacheSurfacesOutage(t *testing.T) {
	upstream := &flakyDirectory{inner: testDirectory(), failing: true}
	cached := NewCachedDirectory(upstream, NewMemoryCache(), time.Minute)

	_, err := cached.ResolveStakeholders(context.Background(), []string{"ceo"})
	assert.Error(t, err)
}

func TestCachedDirectory_ListServesFreshCacheWithoutUpstreamCall(t *testing.T) {
	upstream := &flakyDirectory{inner: testDirectory()}
	cached := NewCachedDirectory(upstream, NewMemoryCache(), time.Minute)

	_, err := cached.ListStakeholders(context.Background())
	require.NoError(t, err)

	before := upstream.calls
	_, err = cached.ListStakeholders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, upstream.calls)
}

func TestCachedDirectory_RepositorySurvivesRestart(t *testing.T) {
	repo := NewMemoryCache()
	upstream := &flakyDirectory{inner: testDirectory()}

	// First process primes the shared repository.
	first := NewCachedDirectory(upstream, repo, time.Minute)
	_, err := first.ResolveStakeholders(context.Background(), nil)
	require.NoError(t, err)

	// A fresh directory over the same repository serves cached entries even
	// when the upstream is down from the start.
	upstream.setFailing(true)
	second := NewCachedDirectory(upstream, repo, time.Minute)

	resolved, err := second.ResolveStakeholders(context.Background(), []string{"ceo"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "ceo-1", resolved[0].ID)

	s, err := second.GetStakeholder(context.Background(), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, "Coordinator", s.Name)
}

func TestMemoryCache_RoleFilterIsCaseInsensitive(t *testing.T) {
	repo := NewMemoryCache()
	require.NoError(t, repo.Upsert(context.Background(), testDirectory().stakeholders))

	matched, err := repo.ListByRoles(context.Background(), []string{"CEO"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "ceo-1", matched[0].ID)

	all, err := repo.ListByRoles(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = repo.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrStakeholderNotFound)
}

func TestHTTPDirectory_ResolveAndGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/stakeholders":
			assert.Equal(t, "ceo", r.URL.Query().Get("roles"))
			w.Write([]byte(`[{"id":"ceo-1","name":"CEO","role":"ceo","authority":"decision-maker"}]`))
		case "/stakeholders/ceo-1":
			w.Write([]byte(`{"id":"ceo-1","name":"CEO","role":"ceo","authority":"decision-maker"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := NewHTTPDirectory(server.URL, 5*time.Second)

	resolved, err := dir.ResolveStakeholders(context.Background(), []string{"ceo"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "ceo-1", resolved[0].ID)

	s, err := dir.GetStakeholder(context.Background(), "ceo-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthorityDecisionMaker, s.Authority)

	_, err = dir.GetStakeholder(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrStakeholderNotFound)
}
