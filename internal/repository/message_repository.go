package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// MessageRepository manages the append-only chat transcript. Messages are
// never updated or deleted.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByCase(ctx context.Context, caseID string) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (case_id, sender_id, sender_name, sender_role, body)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.CaseID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderRole,
		msg.Text,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Message, error) {
	const query = `
        SELECT id, case_id, sender_id, sender_name, sender_role, body, created_at
        FROM messages WHERE case_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.CaseID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderRole,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
