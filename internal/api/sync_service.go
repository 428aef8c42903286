package api

import (
	"context"
	"time"

	"github.com/DarkarBlays/inventario/internal/bus"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/status"
	"github.com/DarkarBlays/inventario/internal/store"
	intsync "github.com/DarkarBlays/inventario/internal/sync"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var _ SyncServer = (*SyncService)(nil)

// OutboxQuery is the document carried by SyncService/ListOutbox.
type OutboxQuery struct {
	AfterID int64 `json:"after_id"`
	Limit   int   `json:"limit"`
}

// StatusReport is the daemon status served by GetStatus and GET /api/status.
type StatusReport struct {
	Instance        string `json:"instance"`
	State           string `json:"state"`
	StateSince      int64  `json:"state_since"`
	Reason          string `json:"reason,omitempty"`
	UptimeMs        int64  `json:"uptime_ms"`
	Pending         int64  `json:"pending"`
	Synced          int64  `json:"synced"`
	OldestPendingAt int64  `json:"oldest_pending_at,omitempty"`
	LastDeliveredID int64  `json:"last_delivered_id,omitempty"`
	RelayEnabled    bool   `json:"relay_enabled"`
}

// Event is one bus event as delivered by WatchEvents.
type Event struct {
	EventID          string `json:"event_id"`
	Instance         string `json:"instance"`
	Kind             string `json:"kind"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
	Payload          any    `json:"payload,omitempty"`
}

// StatusSource assembles StatusReports. It is shared with the REST gateway.
type StatusSource struct {
	Instance     string
	StartedAt    time.Time
	Machine      *status.Machine
	Engine       *intsync.Engine
	Reconciler   *reconcile.Reconciler
	RelayEnabled bool
}

// Report collects the current status.
func (src *StatusSource) Report(ctx context.Context) (*StatusReport, error) {
	state, since, reason := src.Machine.Snapshot()
	r := &StatusReport{
		Instance:     src.Instance,
		State:        string(state),
		StateSince:   since.UnixMilli(),
		Reason:       reason,
		UptimeMs:     time.Since(src.StartedAt).Milliseconds(),
		RelayEnabled: src.RelayEnabled,
	}
	stats, err := src.Engine.Stats(ctx)
	if err != nil {
		return nil, err
	}
	r.Pending, r.Synced, r.OldestPendingAt = stats.Pending, stats.Synced, stats.OldestPendingAt

	if src.Reconciler != nil {
		last, err := src.Reconciler.LastDelivered(ctx)
		if err != nil {
			return nil, err
		}
		r.LastDeliveredID = last
	}
	return r, nil
}

// SyncService implements inventario.v1.SyncService: the reconciliation
// surface for external delivery agents plus status and event watching.
type SyncService struct {
	engine *intsync.Engine
	rec    *reconcile.Reconciler
	bus    *bus.Bus
	status *StatusSource
}

// NewSyncService creates a new sync service.
func NewSyncService(engine *intsync.Engine, rec *reconcile.Reconciler, b *bus.Bus, src *StatusSource) *SyncService {
	return &SyncService{
		engine: engine,
		rec:    rec,
		bus:    b,
		status: src,
	}
}

func (s *SyncService) DrainPending(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	entries, err := s.rec.Drain(ctx, int(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	if entries == nil {
		entries = []store.OutboxEntry{}
	}
	return encodeOrInternal(EncodeList(entries))
}

func (s *SyncService) Acknowledge(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	if err := s.engine.Acknowledge(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *SyncService) Report(ctx context.Context, req *structpb.ListValue) (*structpb.Struct, error) {
	var results []reconcile.Result
	if err := DecodeList(req, &results); err != nil {
		return nil, invalid("decode results: %v", err)
	}
	for _, r := range results {
		if r.EntryID <= 0 {
			return nil, invalid("entry_id must be positive")
		}
	}
	sum, err := s.rec.Apply(ctx, results)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeOrInternal(EncodeStruct(sum))
}

func (s *SyncService) ListOutbox(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	var q OutboxQuery
	if len(req.GetFields()) > 0 {
		if err := DecodeStruct(req, &q); err != nil {
			return nil, invalid("decode query: %v", err)
		}
	}
	entries, err := s.engine.History(ctx, q.AfterID, q.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	if entries == nil {
		entries = []store.OutboxEntry{}
	}
	return encodeOrInternal(EncodeList(entries))
}

func (s *SyncService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	r, err := s.status.Report(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeOrInternal(EncodeStruct(r))
}

func (s *SyncService) WatchEvents(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe(req.GetValue(), 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			msg, err := EncodeStruct(Event{
				EventID:          uuid.New().String(),
				Instance:         s.status.Instance,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          evt.Payload,
			})
			if err != nil {
				return toStatus(err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
