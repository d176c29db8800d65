package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// ParticipantRepository defines persistence access for portal identities.
type ParticipantRepository interface {
	Create(ctx context.Context, participant *domain.Participant) error
	Update(ctx context.Context, participant *domain.Participant) error
	GetByID(ctx context.Context, id string) (*domain.Participant, error)
	GetByEmail(ctx context.Context, email string) (*domain.Participant, error)
	ListByRole(ctx context.Context, role domain.ParticipantRole) ([]domain.Participant, error)
}

type participantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository returns a Postgres-backed implementation.
func NewParticipantRepository(pool *pgxpool.Pool) ParticipantRepository {
	return &participantRepository{pool: pool}
}

func (r *participantRepository) Create(ctx context.Context, participant *domain.Participant) error {
	const query = `
        INSERT INTO participants (name, email, phone, password_hash, role, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		participant.Name,
		participant.Email,
		participant.Phone,
		participant.PasswordHash,
		participant.Role,
		participant.Status,
	).Scan(&participant.ID, &participant.CreatedAt, &participant.UpdatedAt)
}

func (r *participantRepository) Update(ctx context.Context, participant *domain.Participant) error {
	const query = `
        UPDATE participants SET name=$1, email=$2, phone=$3, password_hash=$4, role=$5, status=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		participant.Name,
		participant.Email,
		participant.Phone,
		participant.PasswordHash,
		participant.Role,
		participant.Status,
		participant.ID,
	).Scan(&participant.UpdatedAt)
}

func (r *participantRepository) GetByID(ctx context.Context, id string) (*domain.Participant, error) {
	const query = `
        SELECT id, name, email, phone, password_hash, role, status, created_at, updated_at
        FROM participants WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *participantRepository) GetByEmail(ctx context.Context, email string) (*domain.Participant, error) {
	const query = `
        SELECT id, name, email, phone, password_hash, role, status, created_at, updated_at
        FROM participants WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *participantRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Participant, error) {
	var participant domain.Participant
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&participant.ID,
		&participant.Name,
		&participant.Email,
		&participant.Phone,
		&participant.PasswordHash,
		&participant.Role,
		&participant.Status,
		&participant.CreatedAt,
		&participant.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepository) ListByRole(ctx context.Context, role domain.ParticipantRole) ([]domain.Participant, error) {
	const query = `
        SELECT id, name, email, phone, password_hash, role, status, created_at, updated_at
        FROM participants WHERE role=$1 ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Participant
	for rows.Next() {
		var participant domain.Participant
		if err := rows.Scan(
			&participant.ID,
			&participant.Name,
			&participant.Email,
			&participant.Phone,
			&participant.PasswordHash,
			&participant.Role,
			&participant.Status,
			&participant.CreatedAt,
			&participant.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, participant)
	}
	return result, rows.Err()
}
