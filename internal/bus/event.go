package bus

import "time"

// Event kinds published by the inventory daemon. Subscribers filter by prefix,
// e.g. "outbox." or "daemon.".
const (
	KindOutboxAppended     = "outbox.appended"
	KindOutboxAcknowledged = "outbox.acknowledged"
	KindRecordSynced       = "record.synced"
	KindStatusChanged      = "daemon.status_changed"
	KindRelayDelivered     = "relay.delivered"
	KindRelayFailed        = "relay.failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// EntryRef identifies the outbox entry (and record) an event is about.
type EntryRef struct {
	EntryID   int64  `json:"entry_id"`
	Operation string `json:"operation,omitempty"`
	Table     string `json:"table,omitempty"`
	RecordID  int64  `json:"record_id,omitempty"`
}
