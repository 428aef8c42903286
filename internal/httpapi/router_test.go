package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DarkarBlays/inventario/internal/api"
	"github.com/DarkarBlays/inventario/internal/bus"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/status"
	"github.com/DarkarBlays/inventario/internal/store"
	intsync "github.com/DarkarBlays/inventario/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	machine := status.NewMachine(b)
	engine := intsync.NewEngine(db, b, nil)
	rec := reconcile.NewReconciler(engine, db, nil)
	src := &api.StatusSource{Instance: "test", StartedAt: time.Now(), Machine: machine, Engine: engine, Reconciler: rec}

	srv := httptest.NewServer(NewHandler(engine, rec, src, nil))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestProductRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/products", `{"name":"Widget","price":10,"stock":5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var p store.Product
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, store.SyncPending, p.SyncState)

	resp, body = do(t, http.MethodPut, srv.URL+"/api/products/1", `{"stock":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"changed":1}`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/api/products/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, int64(3), p.Stock)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []store.Product
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	resp, body = do(t, http.MethodDelete, srv.URL+"/api/products/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"changed":1}`, string(body))
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing product", http.MethodGet, "/api/products/404", "", http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/api/products/999", "", http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/products/abc", "", http.StatusBadRequest},
		{"invalid product", http.MethodPost, "/api/products", `{"name":"","price":-1,"stock":0}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/products", `{"name":"x","price":1,"stock":1,"colour":"red"}`, http.StatusBadRequest},
		{"missing price", http.MethodPost, "/api/products", `{"name":"x","stock":1}`, http.StatusBadRequest},
		{"malformed JSON", http.MethodPost, "/api/products", `{`, http.StatusBadRequest},
		{"ack missing entry", http.MethodPost, "/api/products/sync/77/ack", "", http.StatusNotFound},
		{"bad limit", http.MethodGet, "/api/products/sync/pending?limit=x", "", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
			var e errorBody
			require.NoError(t, json.Unmarshal(body, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestValidationFields(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/products", `{"name":"x","price":1,"stock":-2}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "stock", e.Fields[0].Field)
}

func TestCreateRequiresPriceAndStock(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/products", `{"name":"x"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	var fields []string
	for _, f := range e.Fields {
		fields = append(fields, f.Field)
		assert.Equal(t, "is required", f.Reason)
	}
	assert.ElementsMatch(t, []string{"price", "stock"}, fields)

	// Explicit zeros are fine, and active defaults to true.
	resp, body = do(t, http.MethodPost, srv.URL+"/api/products", `{"name":"x","price":0,"stock":0}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var p store.Product
	require.NoError(t, json.Unmarshal(body, &p))
	assert.True(t, p.Active)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/outbox", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []store.OutboxEntry
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history, 1, "rejected creates must not queue entries")
}

func TestDuplicateSKUIsConflict(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/products", `{"sku":"A-1","name":"a","price":1,"stock":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/products", `{"sku":"A-1","name":"b","price":1,"stock":1}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSyncRoutes(t *testing.T) {
	srv := newTestServer(t)

	for _, name := range []string{"a", "b"} {
		resp, _ := do(t, http.MethodPost, srv.URL+"/api/products", `{"name":"`+name+`","price":1,"stock":1}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/products/sync/pending", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []store.OutboxEntry
	require.NoError(t, json.Unmarshal(body, &pending))
	require.Len(t, pending, 2)
	assert.Equal(t, store.OpCreate, pending[0].Operation)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/products/sync/1/ack", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"acknowledged":1}`, string(body))

	resp, body = do(t, http.MethodPost, srv.URL+"/api/products/sync/report", `[{"entry_id":2,"delivered":true}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sum reconcile.Summary
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Equal(t, 1, sum.Acknowledged)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/products/sync/pending", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/api/outbox?after_id=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []store.OutboxEntry
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	assert.Equal(t, store.EntrySynced, history[0].Status)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st api.StatusReport
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "test", st.Instance)
	assert.Equal(t, int64(2), st.Synced)
	assert.Equal(t, int64(2), st.LastDeliveredID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/products", `{"name":"m","price":1,"stock":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "inventario_outbox_appended_total")
}
