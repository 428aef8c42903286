package store

// SyncState is a product's propagation state towards the remote system of record.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
)

// Operation is the kind of mutation an outbox entry records.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// EntryStatus is an outbox entry's delivery status.
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntrySynced  EntryStatus = "synced"
)

// ProductsTable is the target_table recorded for product mutations.
const ProductsTable = "products"

// Product is an inventory record.
type Product struct {
	ID           int64     `json:"id"`
	SKU          string    `json:"sku,omitempty"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"`
	Stock        int64     `json:"stock"`
	Image        string    `json:"image,omitempty"`
	Active       bool      `json:"active"`
	SyncState    SyncState `json:"sync_state"`
	LastSyncedAt int64     `json:"last_synced_at,omitempty"`
	CreatedAt    int64     `json:"created_at"`
	UpdatedAt    int64     `json:"updated_at"`
}

// Fields returns the business attributes of p.
func (p *Product) Fields() ProductFields {
	return ProductFields{
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Image:       p.Image,
		Active:      p.Active,
	}
}

// OutboxEntry is one queued mutation awaiting delivery.
type OutboxEntry struct {
	ID          int64       `json:"id"`
	Operation   Operation   `json:"operation"`
	TargetTable string      `json:"target_table"`
	RecordID    *int64      `json:"record_id"`
	Payload     string      `json:"payload"`
	Status      EntryStatus `json:"status"`
	CreatedAt   int64       `json:"created_at"`
	SyncedAt    int64       `json:"synced_at,omitempty"`
}

// OutboxSummary holds aggregate outbox counters.
type OutboxSummary struct {
	Pending         int64
	Synced          int64
	OldestPendingAt int64 // unix ms, 0 when nothing is pending
}
