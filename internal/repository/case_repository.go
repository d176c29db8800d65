package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/consult-case-service/internal/domain"
)

// CaseFilter captures listing parameters.
type CaseFilter struct {
	CustomerID *string
	ExpertID   *string
	Statuses   []domain.CaseStatus
	CaseTypes  []domain.CaseType
	Limit      int
	Offset     int
}

// CaseRepository encapsulates case persistence.
type CaseRepository interface {
	Create(ctx context.Context, kase *domain.Case) error
	Update(ctx context.Context, kase *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	GetByCaseNumber(ctx context.Context, number string) (*domain.Case, error)
	ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

const caseColumns = `id, case_number, business_type, case_type, status, scheduled_at, meeting_link,
               internal_notes, recommendation, suggested_services,
               customer_id, customer_name, customer_email, customer_phone, expert_id,
               created_at, updated_at, closed_at`

func (r *caseRepository) Create(ctx context.Context, kase *domain.Case) error {
	const query = `
        INSERT INTO cases (case_number, business_type, case_type, status, scheduled_at, meeting_link,
            internal_notes, recommendation, suggested_services,
            customer_id, customer_name, customer_email, customer_phone, expert_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		kase.CaseNumber,
		kase.BusinessType,
		kase.CaseType,
		kase.Status,
		kase.ScheduledAt,
		kase.MeetingLink,
		kase.InternalNotes,
		kase.Recommendation,
		kase.SuggestedServices,
		kase.CustomerID,
		kase.CustomerName,
		kase.CustomerEmail,
		kase.CustomerPhone,
		kase.ExpertID,
	).Scan(&kase.ID, &kase.CreatedAt, &kase.UpdatedAt)
}

func (r *caseRepository) Update(ctx context.Context, kase *domain.Case) error {
	const query = `
        UPDATE cases SET status=$1, scheduled_at=$2, meeting_link=$3, internal_notes=$4,
            recommendation=$5, suggested_services=$6, expert_id=$7, closed_at=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		kase.Status,
		kase.ScheduledAt,
		kase.MeetingLink,
		kase.InternalNotes,
		kase.Recommendation,
		kase.SuggestedServices,
		kase.ExpertID,
		kase.ClosedAt,
		kase.ID,
	).Scan(&kase.UpdatedAt)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *caseRepository) GetByCaseNumber(ctx context.Context, number string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE case_number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *caseRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Case, error) {
	var kase domain.Case
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&kase.ID,
		&kase.CaseNumber,
		&kase.BusinessType,
		&kase.CaseType,
		&kase.Status,
		&kase.ScheduledAt,
		&kase.MeetingLink,
		&kase.InternalNotes,
		&kase.Recommendation,
		&kase.SuggestedServices,
		&kase.CustomerID,
		&kase.CustomerName,
		&kase.CustomerEmail,
		&kase.CustomerPhone,
		&kase.ExpertID,
		&kase.CreatedAt,
		&kase.UpdatedAt,
		&kase.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &kase, nil
}

func (r *caseRepository) ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CustomerID != nil {
		conditions = append(conditions, "customer_id="+arg(*filter.CustomerID))
	}
	if filter.ExpertID != nil {
		conditions = append(conditions, "expert_id="+arg(*filter.ExpertID))
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status=ANY("+arg(filter.Statuses)+")")
	}
	if len(filter.CaseTypes) > 0 {
		conditions = append(conditions, "case_type=ANY("+arg(filter.CaseTypes)+")")
	}

	query := `SELECT ` + caseColumns + ` FROM cases`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		var kase domain.Case
		if err := rows.Scan(
			&kase.ID,
			&kase.CaseNumber,
			&kase.BusinessType,
			&kase.CaseType,
			&kase.Status,
			&kase.ScheduledAt,
			&kase.MeetingLink,
			&kase.InternalNotes,
			&kase.Recommendation,
			&kase.SuggestedServices,
			&kase.CustomerID,
			&kase.CustomerName,
			&kase.CustomerEmail,
			&kase.CustomerPhone,
			&kase.ExpertID,
			&kase.CreatedAt,
			&kase.UpdatedAt,
			&kase.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, kase)
	}
	return result, rows.Err()
}
