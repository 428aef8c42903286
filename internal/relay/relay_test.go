package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/DarkarBlays/inventario/internal/bus"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/status"
	"github.com/DarkarBlays/inventario/internal/store"
	intsync "github.com/DarkarBlays/inventario/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPusher records pushed entry ids and fails the ones listed in failOn.
type mockPusher struct {
	mu     stdsync.Mutex
	pushed []int64
	failOn map[int64]bool
}

func (m *mockPusher) Push(_ context.Context, e store.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed = append(m.pushed, e.ID)
	if m.failOn[e.ID] {
		return errors.New("connection refused")
	}
	return nil
}

func (m *mockPusher) calls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.pushed...)
}

type fixture struct {
	db     *store.DB
	engine *intsync.Engine
	bus    *bus.Bus
	status *status.Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	st := status.NewMachine(b)
	require.NoError(t, st.Transition(status.Migrating))
	require.NoError(t, st.Transition(status.Ready))
	return &fixture{db: db, engine: intsync.NewEngine(db, b, nil), bus: b, status: st}
}

func (f *fixture) relay(p Pusher, opts Options) *Relay {
	rec := reconcile.NewReconciler(f.engine, f.db, nil)
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 1000
	}
	return New(rec, p, f.bus, f.status, nil, opts)
}

func (f *fixture) create(t *testing.T, n int) {
	t.Helper()
	for range n {
		_, err := f.engine.Create(context.Background(), store.ProductFields{Name: "item"})
		require.NoError(t, err)
	}
}

func TestFlushDeliversAll(t *testing.T) {
	f := newFixture(t)
	f.create(t, 5)

	p := &mockPusher{}
	sum, err := f.relay(p, Options{BatchSize: 2}).Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Acknowledged)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, p.calls())

	pending, err := f.engine.DrainPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	list, err := f.engine.List(context.Background())
	require.NoError(t, err)
	for _, prod := range list {
		assert.Equal(t, store.SyncSynced, prod.SyncState)
	}
	assert.Equal(t, status.Ready, f.status.Current())
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, 4)

	p := &mockPusher{failOn: map[int64]bool{2: true}}
	sum, err := f.relay(p, Options{BatchSize: 10}).Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Acknowledged)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []int64{1, 2}, p.calls())

	pending, err := f.engine.DrainPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, entryIDs(pending))
	assert.Equal(t, status.Offline, f.status.Current())

	// The remote comes back: the next flush resumes at entry 2.
	p.mu.Lock()
	p.failOn = nil
	p.mu.Unlock()
	sum, err = f.relay(p, Options{BatchSize: 10}).Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Acknowledged)
	assert.Equal(t, []int64{1, 2, 2, 3, 4}, p.calls())
	assert.Equal(t, status.Ready, f.status.Current())
}

func TestFlushEmptyOutbox(t *testing.T) {
	f := newFixture(t)
	p := &mockPusher{}
	sum, err := f.relay(p, Options{}).Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Acknowledged)
	assert.Empty(t, p.calls())
}

func TestStartWakesOnAppend(t *testing.T) {
	f := newFixture(t)
	p := &mockPusher{}
	r := f.relay(p, Options{Interval: time.Hour})
	r.Start(context.Background())
	defer r.Stop()

	f.create(t, 1)

	require.Eventually(t, func() bool {
		s, err := f.engine.Stats(context.Background())
		return err == nil && s.Pending == 0 && s.Synced == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	f := newFixture(t)
	f.relay(&mockPusher{}, Options{}).Stop()
}

func TestHTTPPusher(t *testing.T) {
	var got Envelope
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	rid := int64(3)
	entry := store.OutboxEntry{
		ID: 7, Operation: store.OpUpdate, TargetTable: store.ProductsTable,
		RecordID: &rid, Payload: `{"id":3,"name":"Widget"}`, CreatedAt: 1000,
	}
	require.NoError(t, NewHTTPPusher(srv.URL, time.Second).Push(context.Background(), entry))

	assert.Equal(t, int64(7), got.EntryID)
	assert.Equal(t, store.OpUpdate, got.Operation)
	require.NotNil(t, got.RecordID)
	assert.Equal(t, int64(3), *got.RecordID)
	assert.JSONEq(t, entry.Payload, string(got.Payload))
	assert.Equal(t, "7", headers.Get("Idempotency-Key"))
	assert.NotEmpty(t, headers.Get("X-Request-ID"))
}

func TestHTTPPusherRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "duplicate sku", http.StatusConflict)
	}))
	defer srv.Close()

	err := NewHTTPPusher(srv.URL, time.Second).Push(context.Background(), store.OutboxEntry{ID: 1, Payload: "{}"})
	var pe *PushError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusConflict, pe.StatusCode)
	assert.Equal(t, "duplicate sku", pe.Body)
}

func TestHTTPPusherUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPPusher(url, time.Second).Push(context.Background(), store.OutboxEntry{ID: 1, Payload: "{}"})
	assert.Error(t, err)
}

func entryIDs(entries []store.OutboxEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
