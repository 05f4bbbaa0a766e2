package crisis

import (
	"context"

	"github.com/bissquit/crisis-command/internal/domain"
)

// Repository defines the interface for crisis storage. Records are never
// deleted; resolved crises remain queryable for reporting.
type Repository interface {
	Create(ctx context.Context, c *domain.Crisis) error
	Get(ctx context.Context, id string) (*domain.Crisis, error)
	Update(ctx context.Context, c *domain.Crisis) error
	List(ctx context.Context, filters Filters) ([]*domain.Crisis, error)
	AppendTimeline(ctx context.Context, id string, entry domain.TimelineEntry) error
}

// Filters holds filter options for listing crises.
type Filters struct {
	Status     *domain.CrisisStatus
	Severity   *domain.Severity
	Type       *domain.CrisisType
	ActiveOnly bool // everything not resolved/cancelled
	Limit      int
	Offset     int
}
