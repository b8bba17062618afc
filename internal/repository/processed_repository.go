package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/case-service/internal/domain"
)

// ProcessedMessageRepository tracks raw channel message ids that adapters
// have already delivered, so retried webhooks and redelivered emails are
// dropped before they reach the engine.
type ProcessedMessageRepository interface {
	Seen(ctx context.Context, messageID string, channel domain.Channel) (bool, error)
	Record(ctx context.Context, messageID string, channel domain.Channel, caseID *string) error
}

type processedMessageRepository struct {
	db querier
}

// NewProcessedMessageRepository builds repository.
func NewProcessedMessageRepository(pool *pgxpool.Pool) ProcessedMessageRepository {
	return &processedMessageRepository{db: pool}
}

func (r *processedMessageRepository) Seen(ctx context.Context, messageID string, channel domain.Channel) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id=$1 AND channel=$2)`
	var seen bool
	if err := r.db.QueryRow(ctx, query, messageID, channel).Scan(&seen); err != nil {
		return false, err
	}
	return seen, nil
}

func (r *processedMessageRepository) Record(ctx context.Context, messageID string, channel domain.Channel, caseID *string) error {
	// ON CONFLICT DO NOTHING: a concurrent delivery of the same raw message
	// already recorded it, which is exactly the state we want.
	const query = `
        INSERT INTO processed_messages (message_id, channel, case_id)
        VALUES ($1,$2,$3)
        ON CONFLICT ON CONSTRAINT uq_processed_message_channel DO NOTHING`
	_, err := r.db.Exec(ctx, query, messageID, channel, caseID)
	return err
}
