package sync

import (
	"fmt"
	"slices"

	"github.com/DarkarBlays/inventario/internal/store"
)

// stateNew is the state of a record that does not exist yet.
const stateNew store.SyncState = ""

// validTransitions is the per-record sync state machine. There is no
// in-flight state: a record leaves pending only when its last pending outbox
// entry is acknowledged, and any mutation sends it back to pending.
var validTransitions = map[store.SyncState][]store.SyncState{
	stateNew:          {store.SyncPending},
	store.SyncPending: {store.SyncPending, store.SyncSynced},
	store.SyncSynced:  {store.SyncPending},
}

// TransitionError reports a sync state change the state machine forbids.
type TransitionError struct {
	From store.SyncState
	To   store.SyncState
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "new"
	}
	return fmt.Sprintf("invalid sync state transition from %s to %s", from, e.To)
}

// CanTransition reports whether a record may move from one sync state to another.
func CanTransition(from, to store.SyncState) bool {
	return slices.Contains(validTransitions[from], to)
}

func checkTransition(from, to store.SyncState) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
