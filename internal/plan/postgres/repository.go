// Package postgres provides the PostgreSQL implementation of the plan
// repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/plan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements plan.Repository using PostgreSQL. Plans live in
// response_plans with actions normalized into their own table; communication
// items, resources and milestones stay JSONB because nothing queries into
// them.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL plan repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a plan and its actions in one transaction.
func (r *Repository) Create(ctx context.Context, p *domain.ResponsePlan) error {
	communications, resources, milestones, err := marshalPlanDocs(p)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO response_plans (
			id, crisis_id, phase, status, stakeholder_ids, communications,
			resources, start_time, estimated_duration_seconds, milestones,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, query,
		p.ID,
		p.CrisisID,
		p.Phase,
		p.Status,
		p.StakeholderIDs,
		communications,
		resources,
		p.Timeline.StartTime,
		int64(p.Timeline.EstimatedDuration/time.Second),
		milestones,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}

	for i, a := range p.Actions {
		if err := insertAction(ctx, tx, &a, i); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves a plan with its actions.
func (r *Repository) Get(ctx context.Context, id string) (*domain.ResponsePlan, error) {
	query := planSelect + ` WHERE id = $1`
	p, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadActions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetActiveByCrisis retrieves the single active plan for a crisis.
func (r *Repository) GetActiveByCrisis(ctx context.Context, crisisID string) (*domain.ResponsePlan, error) {
	query := planSelect + ` WHERE crisis_id = $1 AND status = $2`
	p, err := scanPlan(r.db.QueryRow(ctx, query, crisisID, domain.PlanStatusActive))
	if err != nil {
		return nil, err
	}
	if err := r.loadActions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListByCrisis retrieves every plan for a crisis ordered by creation time.
func (r *Repository) ListByCrisis(ctx context.Context, crisisID string) ([]*domain.ResponsePlan, error) {
	query := planSelect + ` WHERE crisis_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, crisisID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.ResponsePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}

	for _, p := range plans {
		if err := r.loadActions(ctx, p); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// Update rewrites the plan row and upserts its actions in one transaction.
func (r *Repository) Update(ctx context.Context, p *domain.ResponsePlan) error {
	communications, resources, milestones, err := marshalPlanDocs(p)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE response_plans SET
			phase = $2, status = $3, stakeholder_ids = $4, communications = $5,
			resources = $6, milestones = $7, updated_at = $8
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query,
		p.ID,
		p.Phase,
		p.Status,
		p.StakeholderIDs,
		communications,
		resources,
		milestones,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return plan.ErrPlanNotFound
	}

	for i, a := range p.Actions {
		actionQuery := `
			UPDATE plan_actions SET
				status = $2, assignee = $3, completed_at = $4, notes = $5
			WHERE id = $1
		`
		tag, err := tx.Exec(ctx, actionQuery, a.ID, a.Status, a.Assignee, a.CompletedAt, a.Notes)
		if err != nil {
			return fmt.Errorf("update action: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := insertAction(ctx, tx, &p.Actions[i], i); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const planSelect = `
	SELECT
		id, crisis_id, phase, status, stakeholder_ids, communications,
		resources, start_time, estimated_duration_seconds, milestones,
		created_at, updated_at
	FROM response_plans
`

func scanPlan(row pgx.Row) (*domain.ResponsePlan, error) {
	var (
		p               domain.ResponsePlan
		communications  []byte
		resources       []byte
		milestones      []byte
		durationSeconds int64
	)

	err := row.Scan(
		&p.ID,
		&p.CrisisID,
		&p.Phase,
		&p.Status,
		&p.StakeholderIDs,
		&communications,
		&resources,
		&p.Timeline.StartTime,
		&durationSeconds,
		&milestones,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, plan.ErrPlanNotFound
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}

	p.Timeline.EstimatedDuration = time.Duration(durationSeconds) * time.Second
	if err := json.Unmarshal(communications, &p.Communications); err != nil {
		return nil, fmt.Errorf("unmarshal communications: %w", err)
	}
	if err := json.Unmarshal(resources, &p.Resources); err != nil {
		return nil, fmt.Errorf("unmarshal resources: %w", err)
	}
	if err := json.Unmarshal(milestones, &p.Timeline.Milestones); err != nil {
		return nil, fmt.Errorf("unmarshal milestones: %w", err)
	}
	return &p, nil
}

func (r *Repository) loadActions(ctx context.Context, p *domain.ResponsePlan) error {
	query := `
		SELECT id, plan_id, title, description, priority, status, assignee,
			dependencies, deadline, completed_at, notes
		FROM plan_actions
		WHERE plan_id = $1
		ORDER BY ord ASC
	`
	rows, err := r.db.Query(ctx, query, p.ID)
	if err != nil {
		return fmt.Errorf("load actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Action
		err := rows.Scan(
			&a.ID,
			&a.PlanID,
			&a.Title,
			&a.Description,
			&a.Priority,
			&a.Status,
			&a.Assignee,
			&a.Dependencies,
			&a.Deadline,
			&a.CompletedAt,
			&a.Notes,
		)
		if err != nil {
			return fmt.Errorf("scan action: %w", err)
		}
		p.Actions = append(p.Actions, a)
	}
	return rows.Err()
}

func insertAction(ctx context.Context, tx pgx.Tx, a *domain.Action, ord int) error {
	query := `
		INSERT INTO plan_actions (
			id, plan_id, title, description, priority, status, assignee,
			dependencies, deadline, completed_at, notes, ord
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := tx.Exec(ctx, query,
		a.ID,
		a.PlanID,
		a.Title,
		a.Description,
		a.Priority,
		a.Status,
		a.Assignee,
		a.Dependencies,
		a.Deadline,
		a.CompletedAt,
		a.Notes,
		ord,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func marshalPlanDocs(p *domain.ResponsePlan) (communications, resources, milestones []byte, err error) {
	if communications, err = json.Marshal(p.Communications); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal communications: %w", err)
	}
	if resources, err = json.Marshal(p.Resources); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal resources: %w", err)
	}
	if milestones, err = json.Marshal(p.Timeline.Milestones); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal milestones: %w", err)
	}
	return communications, resources, milestones, nil
}
