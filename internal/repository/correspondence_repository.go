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

// InboxFilter captures inbox listing parameters.
type InboxFilter struct {
	UnreadOnly        bool
	StarredOnly       bool
	SentFrom          *time.Time
	SentTo            *time.Time
	LinkedGrievanceID *string
	Limit             int
	Offset            int
}

// CorrespondenceRepository persists inbox messages.
type CorrespondenceRepository interface {
	Create(ctx context.Context, msg *domain.CorrespondenceMessage) error
	Update(ctx context.Context, msg *domain.CorrespondenceMessage) error
	GetByID(ctx context.Context, id string) (*domain.CorrespondenceMessage, error)
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter InboxFilter) ([]domain.CorrespondenceMessage, error)
}

type correspondenceRepository struct {
	pool *pgxpool.Pool
}

// NewCorrespondenceRepository instantiates repository.
func NewCorrespondenceRepository(pool *pgxpool.Pool) CorrespondenceRepository {
	return &correspondenceRepository{pool: pool}
}

func (r *correspondenceRepository) Create(ctx context.Context, msg *domain.CorrespondenceMessage) error {
	const query = `
        INSERT INTO correspondence_messages
            (subject, from_address, to_addresses, cc_addresses, bcc_addresses, body,
             sent_at, read, starred, delivery, original_message_id, linked_grievance_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		msg.Subject,
		msg.From,
		msg.To,
		msg.CC,
		msg.BCC,
		msg.Body,
		msg.SentAt,
		msg.Read,
		msg.Starred,
		msg.Delivery,
		msg.OriginalMessageID,
		msg.LinkedGrievanceID,
	).Scan(&msg.ID)
}

func (r *correspondenceRepository) Update(ctx context.Context, msg *domain.CorrespondenceMessage) error {
	const query = `
        UPDATE correspondence_messages
        SET read=$1, starred=$2, delivery=$3, linked_grievance_id=$4
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		msg.Read,
		msg.Starred,
		msg.Delivery,
		msg.LinkedGrievanceID,
		msg.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *correspondenceRepository) GetByID(ctx context.Context, id string) (*domain.CorrespondenceMessage, error) {
	const query = `
        SELECT id, subject, from_address, to_addresses, cc_addresses, bcc_addresses, body,
               sent_at, read, starred, delivery, original_message_id, linked_grievance_id
        FROM correspondence_messages WHERE id=$1`
	var msg domain.CorrespondenceMessage
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.Subject,
		&msg.From,
		&msg.To,
		&msg.CC,
		&msg.BCC,
		&msg.Body,
		&msg.SentAt,
		&msg.Read,
		&msg.Starred,
		&msg.Delivery,
		&msg.OriginalMessageID,
		&msg.LinkedGrievanceID,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *correspondenceRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM correspondence_messages WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *correspondenceRepository) ListWithFilter(ctx context.Context, filter InboxFilter) ([]domain.CorrespondenceMessage, error) {
	base := `SELECT id, subject, from_address, to_addresses, cc_addresses, bcc_addresses, body,
                    sent_at, read, starred, delivery, original_message_id, linked_grievance_id
             FROM correspondence_messages`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UnreadOnly {
		clauses = append(clauses, "read=false")
	}
	if filter.StarredOnly {
		clauses = append(clauses, "starred=true")
	}
	if filter.SentFrom != nil {
		args = append(args, *filter.SentFrom)
		clauses = append(clauses, fmt.Sprintf("sent_at >= $%d", len(args)))
	}
	if filter.SentTo != nil {
		args = append(args, *filter.SentTo)
		clauses = append(clauses, fmt.Sprintf("sent_at <= $%d", len(args)))
	}
	if filter.LinkedGrievanceID != nil {
		args = append(args, *filter.LinkedGrievanceID)
		clauses = append(clauses, fmt.Sprintf("linked_grievance_id=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY sent_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CorrespondenceMessage
	for rows.Next() {
		var msg domain.CorrespondenceMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.Subject,
			&msg.From,
			&msg.To,
			&msg.CC,
			&msg.BCC,
			&msg.Body,
			&msg.SentAt,
			&msg.Read,
			&msg.Starred,
			&msg.Delivery,
			&msg.OriginalMessageID,
			&msg.LinkedGrievanceID,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
