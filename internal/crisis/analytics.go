package crisis

import (
	"context"
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
)

// Analytics summarizes the registry for reporting.
type Analytics struct {
	Total             int                         `json:"total"`
	Active            int                         `json:"active"`
	ByStatus          map[domain.CrisisStatus]int `json:"by_status"`
	BySeverity        map[domain.Severity]int     `json:"by_severity"`
	ByType            map[domain.CrisisType]int   `json:"by_type"`
	MeanTimeToResolve time.Duration               `json:"mean_time_to_resolve_ns"`
	ResolvedCount     int                         `json:"resolved_count"`
}

// GetAnalytics computes registry-wide counters and the mean time from
// detection to resolution across resolved crises.
func (s *Service) GetAnalytics(ctx context.Context) (*Analytics, error) {
	all, err := s.repo.List(ctx, Filters{})
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		ByStatus:   make(map[domain.CrisisStatus]int),
		BySeverity: make(map[domain.Severity]int),
		ByType:     make(map[domain.CrisisType]int),
	}

	var totalResolution time.Duration
	for _, c := range all {
		a.Total++
		a.ByStatus[c.Status]++
		a.BySeverity[c.Severity]++
		a.ByType[c.Type]++

		if !c.Status.IsTerminal() {
			a.Active++
		}
		if c.Status == domain.CrisisStatusResolved && c.ResolvedAt != nil {
			a.ResolvedCount++
			totalResolution += c.ResolvedAt.Sub(c.DetectedAt)
		}
	}

	if a.ResolvedCount > 0 {
		a.MeanTimeToResolve = totalResolution / time.Duration(a.ResolvedCount)
	}

	return a, nil
}
