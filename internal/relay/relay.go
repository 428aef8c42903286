// Package relay is the built-in delivery agent. It drains the outbox in
// batches, pushes each entry to the remote, and reports the outcome through
// the reconciliation surface.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/DarkarBlays/inventario/internal/bus"
	"github.com/DarkarBlays/inventario/internal/metrics"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/status"
	"github.com/DarkarBlays/inventario/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tune the relay loop.
type Options struct {
	Interval   time.Duration
	BatchSize  int
	RatePerSec float64
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 10
	}
}

// Relay drains pending outbox entries and pushes them in id order. A batch
// stops at the first failed push, so a later mutation of a record is never
// delivered ahead of an earlier one.
type Relay struct {
	rec     *reconcile.Reconciler
	pusher  Pusher
	bus     *bus.Bus
	status  *status.Machine
	logger  *zap.Logger
	opts    Options
	limiter *rate.Limiter

	mu     sync.Mutex // serializes Flush
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a relay. st may be nil.
func New(rec *reconcile.Reconciler, pusher Pusher, b *bus.Bus, st *status.Machine, logger *zap.Logger, opts Options) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.defaults()
	return &Relay{
		rec:     rec,
		pusher:  pusher,
		bus:     b,
		status:  st,
		logger:  logger,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

// Start begins draining in the background. New outbox entries wake the loop
// early; otherwise it runs every Interval.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	var wake <-chan bus.Event
	unsub := func() {}
	if r.bus != nil {
		wake, unsub = r.bus.Subscribe(bus.KindOutboxAppended, 64)
	}

	go func() {
		defer close(r.done)
		defer unsub()
		r.loop(ctx, wake)
	}()
}

// Stop stops the loop and waits for an in-flight batch to finish reporting.
func (r *Relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Relay) loop(ctx context.Context, wake <-chan bus.Event) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.flushLogged(ctx)
	for {
		select {
		case <-ticker.C:
			r.flushLogged(ctx)
		case <-wake:
			drainWake(wake)
			r.flushLogged(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) flushLogged(ctx context.Context) {
	sum, err := r.Flush(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("relay flush failed", zap.Error(err))
		}
		return
	}
	if sum.Acknowledged > 0 || sum.Failed > 0 {
		r.logger.Info("relay flush",
			zap.Int("acknowledged", sum.Acknowledged),
			zap.Int("failed", sum.Failed),
			zap.Int("missing", len(sum.Missing)))
	}
}

// Flush drains and pushes batches until the outbox is empty or a push fails.
// The returned summary covers every batch.
func (r *Relay) Flush(ctx context.Context) (reconcile.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total reconcile.Summary
	for {
		entries, err := r.rec.Drain(ctx, r.opts.BatchSize)
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			r.setStatus(status.Ready, "")
			return total, nil
		}

		results, pushErr := r.push(ctx, entries)
		sum, err := r.rec.Apply(ctx, results)
		total.Acknowledged += sum.Acknowledged
		total.Failed += sum.Failed
		total.Missing = append(total.Missing, sum.Missing...)
		if err != nil {
			return total, err
		}
		if pushErr != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			r.setStatus(status.Offline, pushErr.Error())
			return total, nil
		}
		r.setStatus(status.Ready, "")
		if len(entries) < r.opts.BatchSize {
			return total, nil
		}
	}
}

// push delivers entries in order and stops at the first failure. The failed
// entry is reported as not delivered; entries after it are not reported.
func (r *Relay) push(ctx context.Context, entries []store.OutboxEntry) ([]reconcile.Result, error) {
	results := make([]reconcile.Result, 0, len(entries))
	for _, entry := range entries {
		if err := r.limiter.Wait(ctx); err != nil {
			return results, err
		}

		start := time.Now()
		err := r.pusher.Push(ctx, entry)
		metrics.RelayPushDuration.Observe(time.Since(start).Seconds())

		ref := bus.EntryRef{EntryID: entry.ID, Operation: string(entry.Operation), Table: entry.TargetTable}
		if entry.RecordID != nil {
			ref.RecordID = *entry.RecordID
		}

		if err != nil {
			metrics.RelayPushTotal.WithLabelValues("failed").Inc()
			r.logger.Warn("push failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
			r.bus.Publish(bus.Event{Kind: bus.KindRelayFailed, Timestamp: time.Now(), Payload: ref})
			results = append(results, reconcile.Result{EntryID: entry.ID, Error: err.Error()})
			return results, err
		}

		metrics.RelayPushTotal.WithLabelValues("delivered").Inc()
		r.bus.Publish(bus.Event{Kind: bus.KindRelayDelivered, Timestamp: time.Now(), Payload: ref})
		results = append(results, reconcile.Result{EntryID: entry.ID, Delivered: true})
	}
	return results, nil
}

func (r *Relay) setStatus(to status.State, reason string) {
	if r.status == nil {
		return
	}
	if err := r.status.Ensure(to, reason); err != nil {
		r.logger.Debug("status not changed", zap.String("to", string(to)), zap.Error(err))
	}
}

func drainWake(ch <-chan bus.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
