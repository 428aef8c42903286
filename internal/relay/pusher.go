package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/DarkarBlays/inventario/internal/store"
	"github.com/google/uuid"
)

// Pusher delivers one outbox entry to the remote system of record. A nil
// error means the remote accepted it and the entry may be acknowledged.
type Pusher interface {
	Push(ctx context.Context, entry store.OutboxEntry) error
}

// Envelope is the JSON body the HTTP pusher sends for each entry.
type Envelope struct {
	EntryID   int64           `json:"entry_id"`
	Operation store.Operation `json:"operation"`
	Table     string          `json:"table"`
	RecordID  *int64          `json:"record_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// PushError is a non-2xx answer from the remote.
type PushError struct {
	StatusCode int
	Body       string
}

func (e *PushError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote answered %d", e.StatusCode)
	}
	return fmt.Sprintf("remote answered %d: %s", e.StatusCode, e.Body)
}

// HTTPPusher POSTs each entry as an Envelope to a fixed URL. The entry id is
// sent as Idempotency-Key so the remote can discard redeliveries.
type HTTPPusher struct {
	url    string
	client *http.Client
}

// NewHTTPPusher creates a pusher with a per-request timeout.
func NewHTTPPusher(url string, timeout time.Duration) *HTTPPusher {
	return &HTTPPusher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPusher) Push(ctx context.Context, entry store.OutboxEntry) error {
	payload := json.RawMessage(entry.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	body, err := json.Marshal(Envelope{
		EntryID:   entry.ID,
		Operation: entry.Operation,
		Table:     entry.TargetTable,
		RecordID:  entry.RecordID,
		Payload:   payload,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode entry %d: %w", entry.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	req.Header.Set("Idempotency-Key", strconv.FormatInt(entry.ID, 10))

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &PushError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
