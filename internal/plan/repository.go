package plan

import (
	"context"

	"github.com/bissquit/crisis-command/internal/domain"
)

// Repository defines the interface for response plan data access. Plans own
// their action and communication collections; closed plans are retained for
// audit and never deleted.
type Repository interface {
	Create(ctx context.Context, p *domain.ResponsePlan) error
	Get(ctx context.Context, id string) (*domain.ResponsePlan, error)
	GetActiveByCrisis(ctx context.Context, crisisID string) (*domain.ResponsePlan, error)
	ListByCrisis(ctx context.Context, crisisID string) ([]*domain.ResponsePlan, error)
	Update(ctx context.Context, p *domain.ResponsePlan) error
}
