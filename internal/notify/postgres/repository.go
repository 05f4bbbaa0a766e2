// Package postgres provides the PostgreSQL implementation of the stakeholder
// cache repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/notify"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements notify.CacheRepository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL stakeholder cache repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert stores or replaces the given stakeholder records.
func (r *Repository) Upsert(ctx context.Context, stakeholders []*domain.Stakeholder) error {
	query := `
		INSERT INTO stakeholder_cache (
			id, name, role, department, contact_info, authority,
			availability, cached_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			department = EXCLUDED.department,
			contact_info = EXCLUDED.contact_info,
			authority = EXCLUDED.authority,
			availability = EXCLUDED.availability,
			cached_at = EXCLUDED.cached_at
	`
	for _, s := range stakeholders {
		contactInfo, err := json.Marshal(s.ContactInfo)
		if err != nil {
			return fmt.Errorf("marshal contact info: %w", err)
		}
		_, err = r.db.Exec(ctx, query,
			s.ID,
			s.Name,
			s.Role,
			s.Department,
			contactInfo,
			s.Authority,
			s.Availability,
			s.CachedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert stakeholder %s: %w", s.ID, err)
		}
	}
	return nil
}

// Get returns the cached stakeholder with the given id.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Stakeholder, error) {
	query := `
		SELECT id, name, role, department, contact_info, authority,
		       availability, cached_at
		FROM stakeholder_cache
		WHERE id = $1
	`
	s, err := scanStakeholder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notify.ErrStakeholderNotFound
		}
		return nil, fmt.Errorf("get stakeholder: %w", err)
	}
	return s, nil
}

// ListByRoles returns cached stakeholders holding any of the given roles.
// An empty roles slice returns every cached entry.
func (r *Repository) ListByRoles(ctx context.Context, roles []string) ([]*domain.Stakeholder, error) {
	query := `
		SELECT id, name, role, department, contact_info, authority,
		       availability, cached_at
		FROM stakeholder_cache
	`
	args := []any{}
	if len(roles) > 0 {
		lowered := make([]string, len(roles))
		for i, role := range roles {
			lowered[i] = strings.ToLower(role)
		}
		query += ` WHERE lower(role) = ANY($1)`
		args = append(args, lowered)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stakeholders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Stakeholder
	for rows.Next() {
		s, err := scanStakeholder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stakeholder: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStakeholder(row pgx.Row) (*domain.Stakeholder, error) {
	var s domain.Stakeholder
	var contactInfo []byte
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Role,
		&s.Department,
		&contactInfo,
		&s.Authority,
		&s.Availability,
		&s.CachedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(contactInfo, &s.ContactInfo); err != nil {
		return nil, fmt.Errorf("unmarshal contact info: %w", err)
	}
	return &s, nil
}
