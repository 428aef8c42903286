package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// Checkpoint keys written by the reconciliation surface.
const (
	CheckpointLastDeliveredID = "last_delivered_id"
	CheckpointLastReportAt    = "last_report_at"
)

// PutCheckpoint upserts a reconciliation checkpoint value.
func PutCheckpoint(ctx context.Context, q Queryer, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return Classify("put checkpoint", err)
}

// AdvanceCheckpoint stores v under key unless a larger integer is already
// stored. The compare and the write are one statement, so concurrent
// reporters never move the value backwards.
func AdvanceCheckpoint(ctx context.Context, q Queryer, key string, v int64) error {
	now := time.Now().UnixMilli()
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CAST(MAX(CAST(value AS INTEGER), CAST(excluded.value AS INTEGER)) AS TEXT),
			updated_at = excluded.updated_at`,
		key, strconv.FormatInt(v, 10), now)
	return Classify("advance checkpoint", err)
}

// GetCheckpoint returns a checkpoint value; ok is false when the key was never written.
func GetCheckpoint(ctx context.Context, q Queryer, key string) (value string, ok bool, err error) {
	err = q.QueryRowContext(ctx, `SELECT value FROM sync_checkpoints WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, Classify("get checkpoint", err)
	}
	return value, true, nil
}
