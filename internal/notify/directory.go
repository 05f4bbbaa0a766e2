package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
)

// Directory resolves stakeholder roles to concrete records. The authoritative
// directory is an external collaborator; an empty roles slice resolves every
// known stakeholder.
type Directory interface {
	ResolveStakeholders(ctx context.Context, roles []string) ([]*domain.Stakeholder, error)
	GetStakeholder(ctx context.Context, id string) (*domain.Stakeholder, error)
}

// StaticDirectory serves stakeholders from a fixed list, typically loaded
// from configuration. It backs single-node deployments without an external
// directory service.
type StaticDirectory struct {
	stakeholders []*domain.Stakeholder
}

// NewStaticDirectory creates a directory over a fixed stakeholder list.
func NewStaticDirectory(stakeholders []*domain.Stakeholder) *StaticDirectory {
	return &StaticDirectory{stakeholders: stakeholders}
}

// ResolveStakeholders returns stakeholders matching any of the given roles.
func (d *StaticDirectory) ResolveStakeholders(_ context.Context, roles []string) ([]*domain.Stakeholder, error) {
	if len(roles) == 0 {
		return d.stakeholders, nil
	}
	var out []*domain.Stakeholder
	for _, s := range d.stakeholders {
		for _, role := range roles {
			if strings.EqualFold(s.Role, role) {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

// GetStakeholder returns the stakeholder with the given id.
func (d *StaticDirectory) GetStakeholder(_ context.Context, id string) (*domain.Stakeholder, error) {
	for _, s := range d.stakeholders {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, ErrStakeholderNotFound
}

// HTTPDirectory resolves stakeholders from an external directory service
// over its JSON API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for the given base URL.
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ResolveStakeholders queries the directory for stakeholders holding any of
// the given roles.
func (d *HTTPDirectory) ResolveStakeholders(ctx context.Context, roles []string) ([]*domain.Stakeholder, error) {
	endpoint := d.baseURL + "/stakeholders"
	if len(roles) > 0 {
		endpoint += "?roles=" + url.QueryEscape(strings.Join(roles, ","))
	}

	var out []*domain.Stakeholder
	if err := d.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStakeholder fetches one stakeholder by id.
func (d *HTTPDirectory) GetStakeholder(ctx context.Context, id string) (*domain.Stakeholder, error) {
	var out domain.Stakeholder
	err := d.getJSON(ctx, d.baseURL+"/stakeholders/"+url.PathEscape(id), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *HTTPDirectory) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrStakeholderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}

// CachedDirectory is a read-through TTL cache in front of a Directory.
// Resolved entries land in a CacheRepository, so with the postgres-backed
// repository the cache survives a process restart. Resolution by role always
// goes upstream; id lookups hit the cache first so a directory outage does
// not blind in-flight notification batches.
type CachedDirectory struct {
	upstream Directory
	cache    CacheRepository
	ttl      time.Duration

	mu   sync.RWMutex
	asOf time.Time
}

// NewCachedDirectory wraps the upstream directory with a TTL cache persisted
// through the given repository.
func NewCachedDirectory(upstream Directory, cache CacheRepository, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		upstream: upstream,
		cache:    cache,
		ttl:      ttl,
	}
}

// ResolveStakeholders resolves roles upstream and refreshes the cache with
// whatever comes back. On upstream failure it serves unexpired cached entries
// filtered by role.
func (d *CachedDirectory) ResolveStakeholders(ctx context.Context, roles []string) ([]*domain.Stakeholder, error) {
	resolved, err := d.upstream.ResolveStakeholders(ctx, roles)
	if err != nil {
		cached, cacheErr := d.cache.ListByRoles(ctx, roles)
		if cacheErr == nil {
			if fresh := d.fresh(cached); len(fresh) > 0 {
				return fresh, nil
			}
		}
		return nil, err
	}

	d.store(ctx, resolved, len(roles) == 0)
	return resolved, nil
}

// GetStakeholder serves from cache while fresh, otherwise refreshes from
// upstream.
func (d *CachedDirectory) GetStakeholder(ctx context.Context, id string) (*domain.Stakeholder, error) {
	cached, cacheErr := d.cache.Get(ctx, id)
	if cacheErr == nil && time.Since(cached.CachedAt) < d.ttl {
		return cached, nil
	}

	s, err := d.upstream.GetStakeholder(ctx, id)
	if err != nil {
		if cacheErr == nil {
			// Stale beats nothing when the directory is down.
			return cached, nil
		}
		return nil, err
	}

	d.store(ctx, []*domain.Stakeholder{s}, false)
	return s, nil
}

// ListStakeholders returns every stakeholder the directory knows about,
// serving the cache while the last full listing is fresh.
func (d *CachedDirectory) ListStakeholders(ctx context.Context) ([]*domain.Stakeholder, error) {
	d.mu.RLock()
	asOf := d.asOf
	d.mu.RUnlock()

	if time.Since(asOf) < d.ttl {
		cached, err := d.cache.ListByRoles(ctx, nil)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	return d.ResolveStakeholders(ctx, nil)
}

func (d *CachedDirectory) store(ctx context.Context, stakeholders []*domain.Stakeholder, fullListing bool) {
	now := time.Now()
	stamped := make([]*domain.Stakeholder, 0, len(stakeholders))
	for _, s := range stakeholders {
		copied := *s
		copied.CachedAt = now
		stamped = append(stamped, &copied)
	}

	// A cache write failure must not fail the resolution that produced it.
	if err := d.cache.Upsert(ctx, stamped); err != nil {
		slog.Error("stakeholder cache write failed", "error", err, "entries", len(stamped))
		return
	}

	if fullListing {
		d.mu.Lock()
		d.asOf = now
		d.mu.Unlock()
	}
}

func (d *CachedDirectory) fresh(stakeholders []*domain.Stakeholder) []*domain.Stakeholder {
	var out []*domain.Stakeholder
	for _, s := range stakeholders {
		if time.Since(s.CachedAt) < d.ttl {
			out = append(out, s)
		}
	}
	return out
}
