package store

import (
	"context"
	"fmt"
	"time"
)

func (r *Repository) InsertOutboxEvent(ctx context.Context, e OutboxEvent) error {
	return insertOutboxEvent(ctx, r.db, r, e)
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, aggregate_id, event_type, payload, created_at FROM outbox_events
		 WHERE processed_at IS NULL ORDER BY id LIMIT ?`), limit)
	if err != nil {
		return nil, classify(fmt.Errorf("query unprocessed events: %w", err))
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`UPDATE outbox_events SET processed_at = ? WHERE id = ?`), time.Now().UTC(), id)
	if err != nil {
		return classify(fmt.Errorf("mark event processed: %w", err))
	}
	return nil
}
