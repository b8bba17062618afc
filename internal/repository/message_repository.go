package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/case-service/internal/domain"
)

// MessageRepository manages case thread messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByCase(ctx context.Context, caseID string) ([]domain.Message, error)
}

type messageRepository struct {
	db querier
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{db: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, case_id, sender_identity, sender_role, channel, body, truncated, received_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.CaseID,
		msg.SenderIdentity,
		msg.SenderRole,
		msg.Channel,
		msg.Body,
		msg.Truncated,
		msg.ReceivedAt,
	)
	return err
}

func (r *messageRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Message, error) {
	const query = `
        SELECT id, case_id, sender_identity, sender_role, channel, body, truncated, received_at
        FROM messages WHERE case_id=$1 ORDER BY received_at ASC`
	rows, err := r.db.Query(ctx, query, caseID)
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
			&msg.SenderIdentity,
			&msg.SenderRole,
			&msg.Channel,
			&msg.Body,
			&msg.Truncated,
			&msg.ReceivedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
