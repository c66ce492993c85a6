package events

// Topic constants for ledger domain events.
const (
	// TopicPaymentRecorded is emitted once per append batch of payment records.
	TopicPaymentRecorded = "payment.recorded"
	// TopicLedgerSettled is emitted when an append leaves the student with nothing unpaid.
	TopicLedgerSettled = "ledger.settled"
	// TopicSettingsRefreshed is emitted when the reference data cache is invalidated.
	TopicSettingsRefreshed = "settings.refreshed"
)

// DefaultTopics returns the topics the log notifier reports on.
func DefaultTopics() []string {
	return []string{
		TopicPaymentRecorded,
		TopicLedgerSettled,
		TopicSettingsRefreshed,
	}
}
