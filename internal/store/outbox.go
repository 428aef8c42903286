package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const outboxColumns = `id, operation, target_table, record_id, COALESCE(payload, ''), status, created_at, COALESCE(synced_at, 0)`

// AppendOutbox queues a mutation for delivery. It is meant to run on the same
// transaction as the mutation it records.
func AppendOutbox(ctx context.Context, q Queryer, op Operation, table string, recordID *int64, payload string) (*OutboxEntry, error) {
	now := time.Now().UnixMilli()
	res, err := q.ExecContext(ctx, `
		INSERT INTO outbox (operation, target_table, record_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		op, table, nullInt(recordID), payload, EntryPending, now)
	if err != nil {
		return nil, Classify("append outbox", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, Classify("append outbox", err)
	}
	return &OutboxEntry{
		ID:          id,
		Operation:   op,
		TargetTable: table,
		RecordID:    recordID,
		Payload:     payload,
		Status:      EntryPending,
		CreatedAt:   now,
	}, nil
}

// PendingOutbox returns pending entries oldest first. limit <= 0 returns all.
func PendingOutbox(ctx context.Context, q Queryer, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox WHERE status = ? ORDER BY id ASC LIMIT ?`, EntryPending, limit)
	if err != nil {
		return nil, Classify("pending outbox", err)
	}
	return scanEntries(rows)
}

// ListOutbox returns entries of any status with id > afterID, oldest first.
func ListOutbox(ctx context.Context, q Queryer, afterID int64, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, Classify("list outbox", err)
	}
	return scanEntries(rows)
}

// GetOutboxEntry returns a single entry by id, or ErrNotFound.
func GetOutboxEntry(ctx context.Context, q Queryer, id int64) (*OutboxEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outbox entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, Classify("get outbox entry", err)
	}
	return e, nil
}

// MarkOutboxSynced flips a pending entry to synced. Marking an entry that is
// already synced changes nothing and returns 0.
func MarkOutboxSynced(ctx context.Context, q Queryer, id int64) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE outbox SET status = ?, synced_at = ?
		WHERE id = ? AND status = ?`,
		EntrySynced, time.Now().UnixMilli(), id, EntryPending)
	if err != nil {
		return 0, Classify("mark outbox synced", err)
	}
	return rowsAffected("mark outbox synced", res)
}

// CountPendingFor returns how many pending entries reference the given record.
func CountPendingFor(ctx context.Context, q Queryer, table string, recordID int64) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox
		WHERE target_table = ? AND record_id = ? AND status = ?`,
		table, recordID, EntryPending).Scan(&n)
	if err != nil {
		return 0, Classify("count pending", err)
	}
	return n, nil
}

// OutboxStats returns aggregate counters over the whole log.
func OutboxStats(ctx context.Context, q Queryer) (*OutboxSummary, error) {
	var s OutboxSummary
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'synced' THEN 1 ELSE 0 END), 0),
			COALESCE(MIN(CASE WHEN status = 'pending' THEN created_at END), 0)
		FROM outbox`).Scan(&s.Pending, &s.Synced, &s.OldestPendingAt)
	if err != nil {
		return nil, Classify("outbox stats", err)
	}
	return &s, nil
}

func scanEntries(rows *sql.Rows) ([]OutboxEntry, error) {
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, Classify("scan outbox entry", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("scan outbox entries", err)
	}
	return entries, nil
}

func scanEntry(s scanner) (*OutboxEntry, error) {
	var (
		e        OutboxEntry
		recordID sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.Operation, &e.TargetTable, &recordID, &e.Payload, &e.Status, &e.CreatedAt, &e.SyncedAt); err != nil {
		return nil, err
	}
	if recordID.Valid {
		id := recordID.Int64
		e.RecordID = &id
	}
	return &e, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
