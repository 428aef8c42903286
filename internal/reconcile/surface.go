// Package reconcile is the contract an external delivery agent uses to pull
// pending outbox entries and report what it managed to deliver.
//
// An agent drains, pushes each entry to the remote system of record, and
// acknowledges only what the remote accepted. A failed push is reported (or
// simply not acknowledged) and the entry is offered again on the next drain.
// Delivery is at-least-once; acknowledgement is idempotent, so redelivering
// after a lost acknowledgement is harmless.
package reconcile

import (
	"context"

	"github.com/DarkarBlays/inventario/internal/store"
)

// Surface is the read/ack pair exposed by the sync engine.
type Surface interface {
	// DrainPending returns pending entries oldest first without changing
	// anything. limit <= 0 returns all of them.
	DrainPending(ctx context.Context, limit int) ([]store.OutboxEntry, error)

	// Acknowledge marks one entry delivered. Acknowledging an entry twice is a
	// no-op; an unknown id is store.ErrNotFound.
	Acknowledge(ctx context.Context, entryID int64) error
}

// Result is the delivery outcome for one entry.
type Result struct {
	EntryID   int64  `json:"entry_id"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Summary counts what a report changed.
type Summary struct {
	Acknowledged int     `json:"acknowledged"`
	Failed       int     `json:"failed"`
	Missing      []int64 `json:"missing,omitempty"`
}
