package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// ResponseRepository manages admin responses. Responses are append-only.
type ResponseRepository interface {
	Create(ctx context.Context, response *domain.Response) error
	ListByGrievance(ctx context.Context, grievanceID string) ([]domain.Response, error)
	DeleteByGrievance(ctx context.Context, grievanceID string) error
}

type responseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository constructs repository.
func NewResponseRepository(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepository{pool: pool}
}

func (r *responseRepository) Create(ctx context.Context, response *domain.Response) error {
	const query = `
        INSERT INTO responses (grievance_id, admin_id, response_text)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		response.GrievanceID,
		response.AdminID,
		response.Text,
	).Scan(&response.ID, &response.CreatedAt)
}

func (r *responseRepository) ListByGrievance(ctx context.Context, grievanceID string) ([]domain.Response, error) {
	const query = `
        SELECT id, grievance_id, admin_id, response_text, created_at
        FROM responses WHERE grievance_id=$1
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, grievanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Response
	for rows.Next() {
		var response domain.Response
		if err := rows.Scan(
			&response.ID,
			&response.GrievanceID,
			&response.AdminID,
			&response.Text,
			&response.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	return result, rows.Err()
}

func (r *responseRepository) DeleteByGrievance(ctx context.Context, grievanceID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM responses WHERE grievance_id=$1`, grievanceID)
	return err
}
