package postgres

import (
	"context"
	"fmt"

	"repairhub/internal/domain/inbox"
)

type InboxRepository struct {
	db DB
}

func NewInboxRepository(db DB) *InboxRepository {
	return &InboxRepository{db: db}
}

// SaveIfNotExists returns true if the event was saved (is new), false if it already existed.
func (r *InboxRepository) SaveIfNotExists(ctx context.Context, e *inbox.Record) (bool, error) {
	const query = `
		INSERT INTO inbox_events (consumer, event_id, event_type, correlation_id, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (consumer, event_id) DO NOTHING
	`

	tag, err := executor(ctx, r.db).Exec(ctx, query, e.Consumer, e.EventID, e.EventType, nullIfEmptyText(e.CorrelationID))
	if err != nil {
		return false, fmt.Errorf("insert inbox event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
