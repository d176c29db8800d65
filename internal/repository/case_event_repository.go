package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// CaseEventRepository stores the audit trail of case changes.
type CaseEventRepository interface {
	Create(ctx context.Context, event *domain.CaseEvent) error
	ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.CaseEvent, error)
}

type caseEventRepository struct {
	pool *pgxpool.Pool
}

// NewCaseEventRepository builds repository.
func NewCaseEventRepository(pool *pgxpool.Pool) CaseEventRepository {
	return &caseEventRepository{pool: pool}
}

func (r *caseEventRepository) Create(ctx context.Context, event *domain.CaseEvent) error {
	const query = `
        INSERT INTO case_events (case_id, actor_role, actor_id, event_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		event.CaseID,
		event.ActorRole,
		event.ActorID,
		event.EventType,
		event.OldValue,
		event.NewValue,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *caseEventRepository) ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.CaseEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, case_id, actor_role, actor_id, event_type, old_value, new_value, created_at
        FROM case_events WHERE case_id=$1 ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CaseEvent
	for rows.Next() {
		var event domain.CaseEvent
		if err := rows.Scan(
			&event.ID,
			&event.CaseID,
			&event.ActorRole,
			&event.ActorID,
			&event.EventType,
			&event.OldValue,
			&event.NewValue,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
