package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const productColumns = `id, COALESCE(sku, ''), name, description, price, stock, image, active,
	sync_state, COALESCE(last_synced_at, 0), created_at, updated_at`

// Products is the Record Store for the products table. It holds no state; every
// method runs on the Queryer it is handed, so the sync engine decides the
// transaction boundary.
type Products struct{}

// Table returns the target_table recorded in the outbox for products.
func (Products) Table() string { return ProductsTable }

// Get returns a single product by id, or ErrNotFound.
func (Products) Get(ctx context.Context, q Queryer, id int64) (*Product, error) {
	row := q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, Classify("get product", err)
	}
	return p, nil
}

// List returns every product ordered by id.
func (Products) List(ctx context.Context, q Queryer) ([]Product, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, Classify("list products", err)
	}
	defer func() { _ = rows.Close() }()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, Classify("scan product", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("list products", err)
	}
	return products, nil
}

// Insert stores a new product in the pending state and returns it as persisted.
func (pr Products) Insert(ctx context.Context, q Queryer, f ProductFields) (*Product, error) {
	now := time.Now().UnixMilli()
	res, err := q.ExecContext(ctx, `
		INSERT INTO products (sku, name, description, price, stock, image, active, sync_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(f.SKU), f.Name, f.Description, f.Price, f.Stock, f.Image, f.Active, SyncPending, now, now)
	if err != nil {
		return nil, Classify("insert product", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, Classify("insert product", err)
	}
	return pr.Get(ctx, q, id)
}

// ApplyUpdate overwrites the business attributes of a product and returns it to
// the pending state. Returns the number of rows changed.
func (Products) ApplyUpdate(ctx context.Context, q Queryer, id int64, f ProductFields) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE products SET
			sku = ?, name = ?, description = ?, price = ?, stock = ?, image = ?, active = ?,
			sync_state = ?, updated_at = ?
		WHERE id = ?`,
		nullString(f.SKU), f.Name, f.Description, f.Price, f.Stock, f.Image, f.Active,
		SyncPending, time.Now().UnixMilli(), id)
	if err != nil {
		return 0, Classify("update product", err)
	}
	return rowsAffected("update product", res)
}

// ApplyDelete physically removes a product. Returns the number of rows changed.
func (Products) ApplyDelete(ctx context.Context, q Queryer, id int64) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return 0, Classify("delete product", err)
	}
	return rowsAffected("delete product", res)
}

// SetSyncState moves a product to state. Moving to synced stamps last_synced_at.
func (Products) SetSyncState(ctx context.Context, q Queryer, id int64, state SyncState) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if state == SyncSynced {
		res, err = q.ExecContext(ctx, `UPDATE products SET sync_state = ?, last_synced_at = ? WHERE id = ?`,
			state, time.Now().UnixMilli(), id)
	} else {
		res, err = q.ExecContext(ctx, `UPDATE products SET sync_state = ? WHERE id = ?`, state, id)
	}
	if err != nil {
		return 0, Classify("set sync state", err)
	}
	return rowsAffected("set sync state", res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*Product, error) {
	var p Product
	if err := s.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Image, &p.Active,
		&p.SyncState, &p.LastSyncedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func rowsAffected(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, Classify(op, err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
