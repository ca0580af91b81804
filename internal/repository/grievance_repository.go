package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// GrievanceFilter captures listing parameters.
type GrievanceFilter struct {
	UserID      *string
	AssignedTo  *string
	Statuses    []domain.GrievanceStatus
	Categories  []domain.GrievanceCategory
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// GrievanceRepository encapsulates grievance persistence. ClaimReminder is the
// atomic conditional update backing the reminder cooldown: it succeeds at most
// once per cooldown window per grievance regardless of concurrent callers.
type GrievanceRepository interface {
	Create(ctx context.Context, grievance *domain.Grievance) error
	Update(ctx context.Context, grievance *domain.Grievance) error
	GetByID(ctx context.Context, id string) (*domain.Grievance, error)
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter GrievanceFilter) ([]domain.Grievance, error)
	ClaimReminder(ctx context.Context, id string, now, next time.Time) (bool, error)
}

type grievanceRepository struct {
	pool *pgxpool.Pool
}

// NewGrievanceRepository instantiates repository.
func NewGrievanceRepository(pool *pgxpool.Pool) GrievanceRepository {
	return &grievanceRepository{pool: pool}
}

func (r *grievanceRepository) Create(ctx context.Context, grievance *domain.Grievance) error {
	const query = `
        INSERT INTO grievances (user_id, title, description, category, status, assigned_to, documents, feedback, remind_after)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		grievance.UserID,
		grievance.Title,
		grievance.Description,
		grievance.Category,
		grievance.Status,
		grievance.AssignedTo,
		grievance.Documents,
		grievance.Feedback,
		grievance.RemindAfter,
	).Scan(&grievance.ID, &grievance.CreatedAt, &grievance.UpdatedAt)
}

func (r *grievanceRepository) Update(ctx context.Context, grievance *domain.Grievance) error {
	const query = `
        UPDATE grievances SET title=$1, description=$2, category=$3, status=$4,
            assigned_to=$5, documents=$6, feedback=$7, remind_after=$8, updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.pool.Exec(ctx, query,
		grievance.Title,
		grievance.Description,
		grievance.Category,
		grievance.Status,
		grievance.AssignedTo,
		grievance.Documents,
		grievance.Feedback,
		grievance.RemindAfter,
		grievance.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *grievanceRepository) GetByID(ctx context.Context, id string) (*domain.Grievance, error) {
	const query = `
        SELECT id, user_id, title, description, category, status, assigned_to,
               documents, feedback, remind_after, created_at, updated_at
        FROM grievances WHERE id=$1`
	var grievance domain.Grievance
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&grievance.ID,
		&grievance.UserID,
		&grievance.Title,
		&grievance.Description,
		&grievance.Category,
		&grievance.Status,
		&grievance.AssignedTo,
		&grievance.Documents,
		&grievance.Feedback,
		&grievance.RemindAfter,
		&grievance.CreatedAt,
		&grievance.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &grievance, nil
}

func (r *grievanceRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM grievances WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ClaimReminder performs the cooldown check and the new expiry write in one
// statement. It only succeeds when the grievance is non-terminal and its
// cooldown has lapsed; as a side effect a PENDING grievance advances to
// UNDER_REVIEW.
func (r *grievanceRepository) ClaimReminder(ctx context.Context, id string, now, next time.Time) (bool, error) {
	const query = `
        UPDATE grievances
        SET remind_after=$3,
            status = CASE WHEN status=$4 THEN $5 ELSE status END,
            updated_at=NOW()
        WHERE id=$1
          AND status NOT IN ($6, $7)
          AND (remind_after IS NULL OR remind_after <= $2)`
	cmd, err := r.pool.Exec(ctx, query,
		id,
		now,
		next,
		domain.StatusPending,
		domain.StatusUnderReview,
		domain.StatusResolved,
		domain.StatusRejected,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *grievanceRepository) ListWithFilter(ctx context.Context, filter GrievanceFilter) ([]domain.Grievance, error) {
	base := `SELECT id, user_id, title, description, category, status, assigned_to,
                    documents, feedback, remind_after, created_at, updated_at
             FROM grievances`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrievances(rows)
}

func scanGrievances(rows pgx.Rows) ([]domain.Grievance, error) {
	var result []domain.Grievance
	for rows.Next() {
		var grievance domain.Grievance
		if err := rows.Scan(
			&grievance.ID,
			&grievance.UserID,
			&grievance.Title,
			&grievance.Description,
			&grievance.Category,
			&grievance.Status,
			&grievance.AssignedTo,
			&grievance.Documents,
			&grievance.Feedback,
			&grievance.RemindAfter,
			&grievance.CreatedAt,
			&grievance.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, grievance)
	}
	return result, rows.Err()
}
