package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/DarkarBlays/inventario/internal/store"
	"go.uber.org/zap"
)

// Reconciler applies delivery reports to a Surface and keeps checkpoints of
// the last delivered entry.
type Reconciler struct {
	surface Surface
	db      store.Queryer
	logger  *zap.Logger
}

// NewReconciler creates a reconciler. db may be nil, in which case no
// checkpoints are recorded.
func NewReconciler(surface Surface, db store.Queryer, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{surface: surface, db: db, logger: logger}
}

// Drain passes through to the surface.
func (r *Reconciler) Drain(ctx context.Context, limit int) ([]store.OutboxEntry, error) {
	return r.surface.DrainPending(ctx, limit)
}

// Apply acknowledges every delivered result in order and leaves failed ones
// pending. Entries that no longer exist are collected in Summary.Missing.
// Any other error stops the report; acknowledgements already made stand.
func (r *Reconciler) Apply(ctx context.Context, results []Result) (Summary, error) {
	var (
		sum           Summary
		lastDelivered int64
	)
	for _, res := range results {
		if !res.Delivered {
			sum.Failed++
			r.logger.Warn("delivery failed, entry stays pending",
				zap.Int64("entry_id", res.EntryID), zap.String("error", res.Error))
			continue
		}
		err := r.surface.Acknowledge(ctx, res.EntryID)
		if errors.Is(err, store.ErrNotFound) {
			sum.Missing = append(sum.Missing, res.EntryID)
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("acknowledge entry %d: %w", res.EntryID, err)
		}
		sum.Acknowledged++
		lastDelivered = max(lastDelivered, res.EntryID)
	}

	if err := r.checkpoint(ctx, lastDelivered); err != nil {
		r.logger.Warn("failed to record reconciliation checkpoint", zap.Error(err))
	}
	return sum, nil
}

// LastDelivered returns the highest entry id acknowledged through Apply.
func (r *Reconciler) LastDelivered(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, nil
	}
	v, ok, err := store.GetCheckpoint(ctx, r.db, store.CheckpointLastDeliveredID)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (r *Reconciler) checkpoint(ctx context.Context, lastDelivered int64) error {
	if r.db == nil {
		return nil
	}
	if err := store.PutCheckpoint(ctx, r.db, store.CheckpointLastReportAt, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return err
	}
	if lastDelivered == 0 {
		return nil
	}
	return store.AdvanceCheckpoint(ctx, r.db, store.CheckpointLastDeliveredID, lastDelivered)
}
