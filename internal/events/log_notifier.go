package events

import (
	"context"
	"slices"

	"github.com/rs/zerolog"
)

// LogNotifier writes one structured line per emitted event.
type LogNotifier struct {
	Logger zerolog.Logger
	Topics []string
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	if len(n.Topics) > 0 && !slices.Contains(n.Topics, event.Topic) {
		return nil
	}
	n.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Time("occurred_at", event.OccurredAt).
		Msg("domain_event")
	return nil
}
