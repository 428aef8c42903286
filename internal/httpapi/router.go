// Package httpapi is the REST gateway over the sync engine. It serves the
// same documents as the gRPC API, plus Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/DarkarBlays/inventario/internal/api"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/store"
	intsync "github.com/DarkarBlays/inventario/internal/sync"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

// Handler serves the REST routes.
type Handler struct {
	engine *intsync.Engine
	rec    *reconcile.Reconciler
	status *api.StatusSource
	logger *zap.Logger
}

// NewHandler builds the gateway router.
func NewHandler(engine *intsync.Engine, rec *reconcile.Reconciler, src *api.StatusSource, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{engine: engine, rec: rec, status: src, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/sync/pending", h.drainPending)
		r.Post("/sync/report", h.report)
		r.Post("/sync/{entryID}/ack", h.acknowledge)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Patch("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Get("/api/outbox", h.listOutbox)
	r.Get("/api/status", h.getStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.engine.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in store.NewProduct
	if !h.decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	p, err := h.engine.Create(r.Context(), in.Fields())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch store.ProductPatch
	if !h.decode(w, r, &patch) {
		return
	}
	n, err := h.engine.Update(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changedBody{Changed: n})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.engine.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changedBody{Changed: n})
}

func (h *Handler) drainPending(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	entries, err := h.rec.Drain(r.Context(), int(limit))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.OutboxEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "entryID")
	if !ok {
		return
	}
	if err := h.engine.Acknowledge(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"acknowledged": id})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	var results []reconcile.Result
	if !h.decode(w, r, &results) {
		return
	}
	sum, err := h.rec.Apply(r.Context(), results)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) listOutbox(w http.ResponseWriter, r *http.Request) {
	after, ok := queryInt(w, r, "after_id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	entries, err := h.engine.History(r.Context(), after, int(limit))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.OutboxEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.status.Report(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error  string             `json:"error"`
	Fields []store.FieldError `json:"fields,omitempty"`
}

type changedBody struct {
	Changed int64 `json:"changed"`
}

// writeError maps the store error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: store.ErrValidation.Error(), Fields: ve.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: name + " must be a non-negative integer"})
		return 0, false
	}
	return v, true
}
