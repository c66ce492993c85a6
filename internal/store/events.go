package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/noah-isme/tuition-ledger/internal/events"
)

// InsertDomainEvent persists one event; it satisfies events.EventStore.
func (s *Store) InsertDomainEvent(ctx context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	ev := events.Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     json.RawMessage(payload),
	}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO domain_events (id, topic, aggregate_id, payload) VALUES ($1, $2, $3, $4) RETURNING occurred_at`,
		uuid.MustParse(ev.ID), topic, aggregateID, payload,
	).Scan(&ev.OccurredAt)
	if err != nil {
		return events.Event{}, err
	}
	return ev, nil
}
