// Package postgres provides the PostgreSQL implementation of the crisis
// repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bissquit/crisis-command/internal/crisis"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements crisis.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL crisis repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new crisis and its initial timeline entries.
func (r *Repository) Create(ctx context.Context, c *domain.Crisis) error {
	impact, err := json.Marshal(c.Impact)
	if err != nil {
		return fmt.Errorf("marshal impact: %w", err)
	}

	query := `
		INSERT INTO crises (
			id, type, severity, priority, status, description, location,
			affected_systems, source, impact, escalation_level,
			detected_at, last_escalated_at, monitoring, failed_actions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.Type,
		c.Severity,
		c.Priority,
		c.Status,
		c.Description,
		c.Location,
		c.AffectedSystems,
		c.Source,
		impact,
		c.EscalationLevel,
		c.DetectedAt,
		c.LastEscalatedAt,
		c.Monitoring,
		c.FailedActions,
	)
	if err != nil {
		return fmt.Errorf("create crisis: %w", err)
	}

	for _, entry := range c.Timeline {
		if err := r.AppendTimeline(ctx, c.ID, entry); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a crisis with its full timeline.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Crisis, error) {
	query := `
		SELECT
			id, type, severity, priority, status, description, location,
			affected_systems, source, impact, escalation_level,
			detected_at, confirmed_at, resolved_at, last_escalated_at,
			monitoring, failed_actions, resolution, mitigation
		FROM crises
		WHERE id = $1
	`
	c, err := scanCrisis(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, crisis.ErrCrisisNotFound
		}
		return nil, fmt.Errorf("get crisis: %w", err)
	}

	timeline, err := r.getTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Timeline = timeline

	return c, nil
}

// Update rewrites the mutable fields of a crisis. Timeline rows are append
// only and written through AppendTimeline.
func (r *Repository) Update(ctx context.Context, c *domain.Crisis) error {
	impact, err := json.Marshal(c.Impact)
	if err != nil {
		return fmt.Errorf("marshal impact: %w", err)
	}
	resolution, err := marshalNullable(c.Resolution)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	mitigation, err := marshalNullable(c.Mitigation)
	if err != nil {
		return fmt.Errorf("marshal mitigation: %w", err)
	}

	query := `
		UPDATE crises SET
			severity = $2, priority = $3, status = $4, impact = $5,
			escalation_level = $6, confirmed_at = $7, resolved_at = $8,
			last_escalated_at = $9, monitoring = $10, failed_actions = $11,
			resolution = $12, mitigation = $13
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		c.ID,
		c.Severity,
		c.Priority,
		c.Status,
		impact,
		c.EscalationLevel,
		c.ConfirmedAt,
		c.ResolvedAt,
		c.LastEscalatedAt,
		c.Monitoring,
		c.FailedActions,
		resolution,
		mitigation,
	)
	if err != nil {
		return fmt.Errorf("update crisis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crisis.ErrCrisisNotFound
	}
	return nil
}

// AppendTimeline inserts one audit entry.
func (r *Repository) AppendTimeline(ctx context.Context, id string, entry domain.TimelineEntry) error {
	query := `
		INSERT INTO crisis_timeline (crisis_id, ts, actor, action, details)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, id, entry.Timestamp, entry.Actor, entry.Action, entry.Details); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}

// List retrieves crises matching the filters ordered by priority, then
// earliest detection.
func (r *Repository) List(ctx context.Context, filters crisis.Filters) ([]*domain.Crisis, error) {
	query := `
		SELECT
			id, type, severity, priority, status, description, location,
			affected_systems, source, impact, escalation_level,
			detected_at, confirmed_at, resolved_at, last_escalated_at,
			monitoring, failed_actions, resolution, mitigation
		FROM crises
		WHERE 1=1
	`
	args := []any{}
	argNum := 1

	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filters.Status)
		argNum++
	}
	if filters.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, *filters.Severity)
		argNum++
	}
	if filters.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argNum)
		args = append(args, *filters.Type)
		argNum++
	}
	if filters.ActiveOnly {
		query += " AND status NOT IN ('resolved', 'cancelled')"
	}

	query += " ORDER BY priority ASC, detected_at ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list crises: %w", err)
	}
	defer rows.Close()

	var out []*domain.Crisis
	for rows.Next() {
		c, err := scanCrisis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crisis: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crises: %w", err)
	}

	for _, c := range out {
		timeline, err := r.getTimeline(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Timeline = timeline
	}

	return out, nil
}

func (r *Repository) getTimeline(ctx context.Context, id string) ([]domain.TimelineEntry, error) {
	query := `
		SELECT ts, actor, action, details
		FROM crisis_timeline
		WHERE crisis_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	defer rows.Close()

	var out []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		if err := rows.Scan(&e.Timestamp, &e.Actor, &e.Action, &e.Details); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanCrisis(row pgx.Row) (*domain.Crisis, error) {
	var c domain.Crisis
	var impact, resolution, mitigation []byte

	err := row.Scan(
		&c.ID,
		&c.Type,
		&c.Severity,
		&c.Priority,
		&c.Status,
		&c.Description,
		&c.Location,
		&c.AffectedSystems,
		&c.Source,
		&impact,
		&c.EscalationLevel,
		&c.DetectedAt,
		&c.ConfirmedAt,
		&c.ResolvedAt,
		&c.LastEscalatedAt,
		&c.Monitoring,
		&c.FailedActions,
		&resolution,
		&mitigation,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(impact, &c.Impact); err != nil {
		return nil, fmt.Errorf("unmarshal impact: %w", err)
	}
	if resolution != nil {
		c.Resolution = &domain.Resolution{}
		if err := json.Unmarshal(resolution, c.Resolution); err != nil {
			return nil, fmt.Errorf("unmarshal resolution: %w", err)
		}
	}
	if mitigation != nil {
		c.Mitigation = &domain.Mitigation{}
		if err := json.Unmarshal(mitigation, c.Mitigation); err != nil {
			return nil, fmt.Errorf("unmarshal mitigation: %w", err)
		}
	}

	return &c, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *domain.Resolution:
		if t == nil {
			return nil, nil
		}
	case *domain.Mitigation:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
