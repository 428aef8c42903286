package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DarkarBlays/inventario/internal/bus"
	"github.com/DarkarBlays/inventario/internal/metrics"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/store"
	"go.uber.org/zap"
)

var _ reconcile.Surface = (*Engine)(nil)

// RecordStore is what the engine needs from the table it keeps in sync. Every
// method runs on the Queryer it is given so the engine owns the transaction.
type RecordStore interface {
	Table() string
	Get(ctx context.Context, q store.Queryer, id int64) (*store.Product, error)
	List(ctx context.Context, q store.Queryer) ([]store.Product, error)
	Insert(ctx context.Context, q store.Queryer, f store.ProductFields) (*store.Product, error)
	ApplyUpdate(ctx context.Context, q store.Queryer, id int64, f store.ProductFields) (int64, error)
	ApplyDelete(ctx context.Context, q store.Queryer, id int64) (int64, error)
	SetSyncState(ctx context.Context, q store.Queryer, id int64, state store.SyncState) (int64, error)
}

// Engine applies product mutations and their outbox entries in one
// transaction, and converges records to synced as entries are acknowledged.
//
// A reader never observes a pending record without its outbox entry, or an
// outbox entry without the mutation it describes.
type Engine struct {
	db      *store.DB
	records RecordStore
	bus     *bus.Bus
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecordStore replaces the default products record store.
func WithRecordStore(rs RecordStore) Option {
	return func(e *Engine) { e.records = rs }
}

// NewEngine creates a new sync engine over an open, migrated store.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		db:      db,
		records: store.Products{},
		bus:     b,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns a product by id.
func (e *Engine) Get(ctx context.Context, id int64) (*store.Product, error) {
	return e.records.Get(ctx, e.db, id)
}

// List returns every product.
func (e *Engine) List(ctx context.Context) ([]store.Product, error) {
	return e.records.List(ctx, e.db)
}

// Create validates f, inserts the product and queues a CREATE entry carrying
// the inserted snapshot. On error nothing is persisted.
func (e *Engine) Create(ctx context.Context, f store.ProductFields) (*store.Product, error) {
	if err := f.Validate(); err != nil {
		return nil, e.fail(store.OpCreate, err)
	}

	var (
		created *store.Product
		entry   *store.OutboxEntry
	)
	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := e.records.Insert(ctx, tx, f)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		if err := checkTransition(stateNew, p.SyncState); err != nil {
			return err
		}
		entry, err = e.append(ctx, tx, store.OpCreate, p)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, e.fail(store.OpCreate, err)
	}

	e.appended(entry)
	return created, nil
}

// Update applies patch to product id and queues an UPDATE entry carrying the
// post-mutation snapshot. Returns 0 and store.ErrNotFound when id is absent.
func (e *Engine) Update(ctx context.Context, id int64, patch store.ProductPatch) (int64, error) {
	if err := patch.Validate(); err != nil {
		return 0, e.fail(store.OpUpdate, err)
	}

	var (
		changed int64
		entry   *store.OutboxEntry
	)
	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.records.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(cur.SyncState, store.SyncPending); err != nil {
			return err
		}
		merged := patch.Apply(cur.Fields())
		if err := merged.Validate(); err != nil {
			return err
		}

		n, err := e.records.ApplyUpdate(ctx, tx, id, merged)
		if err != nil {
			return fmt.Errorf("update product %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
		}

		after, err := e.records.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		entry, err = e.append(ctx, tx, store.OpUpdate, after)
		if err != nil {
			return err
		}
		changed = n
		return nil
	})
	if err != nil {
		return 0, e.fail(store.OpUpdate, err)
	}

	e.appended(entry)
	return changed, nil
}

// Delete removes product id and queues a DELETE entry carrying the last
// snapshot. Returns 0 and store.ErrNotFound when id is absent.
func (e *Engine) Delete(ctx context.Context, id int64) (int64, error) {
	var (
		changed int64
		entry   *store.OutboxEntry
	)
	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		last, err := e.records.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		n, err := e.records.ApplyDelete(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("delete product %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
		}
		entry, err = e.append(ctx, tx, store.OpDelete, last)
		if err != nil {
			return err
		}
		changed = n
		return nil
	})
	if err != nil {
		return 0, e.fail(store.OpDelete, err)
	}

	e.appended(entry)
	return changed, nil
}

// DrainPending returns pending outbox entries in append order. It holds no
// transaction and never blocks writers.
func (e *Engine) DrainPending(ctx context.Context, limit int) ([]store.OutboxEntry, error) {
	return store.PendingOutbox(ctx, e.db, limit)
}

// Acknowledge marks entry entryID delivered, then flips its record to synced
// if no other pending entry references it. Acknowledging an already synced
// entry is a no-op. Entries may be acknowledged in any order.
func (e *Engine) Acknowledge(ctx context.Context, entryID int64) error {
	var (
		entry     *store.OutboxEntry
		flipped   bool
		converged bool
	)
	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = store.GetOutboxEntry(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if entry.Status == store.EntrySynced {
			return nil
		}

		n, err := store.MarkOutboxSynced(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		flipped = true

		if entry.RecordID == nil || entry.TargetTable != e.records.Table() {
			return nil
		}
		remaining, err := store.CountPendingFor(ctx, tx, entry.TargetTable, *entry.RecordID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		rec, err := e.records.Get(ctx, tx, *entry.RecordID)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted since; only the log entry converges.
			return nil
		}
		if err != nil {
			return err
		}
		if rec.SyncState == store.SyncSynced {
			return nil
		}
		if err := checkTransition(rec.SyncState, store.SyncSynced); err != nil {
			return err
		}
		if _, err := e.records.SetSyncState(ctx, tx, rec.ID, store.SyncSynced); err != nil {
			return err
		}
		converged = true
		return nil
	})
	if err != nil {
		return e.fail("ACK", err)
	}

	if !flipped {
		e.logger.Debug("acknowledge is a no-op, entry already synced", zap.Int64("entry_id", entryID))
		return nil
	}

	metrics.OutboxAcknowledgedTotal.Inc()
	metrics.OutboxPending.Dec()
	ref := entryRef(entry)
	e.bus.Publish(bus.Event{Kind: bus.KindOutboxAcknowledged, Timestamp: time.Now(), Payload: ref})
	if converged {
		metrics.RecordsSyncedTotal.Inc()
		e.bus.Publish(bus.Event{Kind: bus.KindRecordSynced, Timestamp: time.Now(), Payload: ref})
		e.logger.Debug("record synced", zap.String("table", ref.Table), zap.Int64("record_id", ref.RecordID))
	}
	return nil
}

// Stats returns outbox counters.
func (e *Engine) Stats(ctx context.Context) (*store.OutboxSummary, error) {
	return store.OutboxStats(ctx, e.db)
}

// History returns outbox entries of any status after afterID.
func (e *Engine) History(ctx context.Context, afterID int64, limit int) ([]store.OutboxEntry, error) {
	return store.ListOutbox(ctx, e.db, afterID, limit)
}

// RefreshMetrics seeds the pending gauge from the log, for use at startup.
func (e *Engine) RefreshMetrics(ctx context.Context) error {
	s, err := e.Stats(ctx)
	if err != nil {
		return err
	}
	metrics.OutboxPending.Set(float64(s.Pending))
	return nil
}

func (e *Engine) append(ctx context.Context, tx *sql.Tx, op store.Operation, p *store.Product) (*store.OutboxEntry, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", op, err)
	}
	id := p.ID
	entry, err := store.AppendOutbox(ctx, tx, op, e.records.Table(), &id, string(payload))
	if err != nil {
		return nil, fmt.Errorf("append %s entry: %w", op, err)
	}
	return entry, nil
}

func (e *Engine) appended(entry *store.OutboxEntry) {
	metrics.OutboxAppendedTotal.WithLabelValues(string(entry.Operation)).Inc()
	metrics.OutboxPending.Inc()
	ref := entryRef(entry)
	e.bus.Publish(bus.Event{Kind: bus.KindOutboxAppended, Timestamp: time.Now(), Payload: ref})
	e.logger.Debug("outbox entry appended",
		zap.Int64("entry_id", ref.EntryID),
		zap.String("operation", ref.Operation),
		zap.Int64("record_id", ref.RecordID))
}

func (e *Engine) fail(op store.Operation, err error) error {
	kind := errorKind(err)
	metrics.MutationErrorsTotal.WithLabelValues(string(op), kind).Inc()
	if kind == "storage" || kind == "internal" || kind == "transition" {
		e.logger.Error("mutation failed", zap.String("operation", string(op)), zap.Error(err))
	}
	return err
}

func errorKind(err error) string {
	var te *TransitionError
	switch {
	case errors.Is(err, store.ErrValidation):
		return "validation"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrStorage):
		return "storage"
	case errors.As(err, &te):
		return "transition"
	default:
		return "internal"
	}
}

func entryRef(e *store.OutboxEntry) bus.EntryRef {
	ref := bus.EntryRef{EntryID: e.ID, Operation: string(e.Operation), Table: e.TargetTable}
	if e.RecordID != nil {
		ref.RecordID = *e.RecordID
	}
	return ref
}
