package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, so ledger mutations can
// run standalone or inside a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type VariantRepo struct{ DB *pgxpool.Pool }

// Reserve decrements stock for one (variant, size) only when enough is left.
// The sufficiency check lives in the statement's WHERE clause: concurrent
// reservations for the last units serialize inside Postgres, never in Go.
func (r *VariantRepo) Reserve(ctx context.Context, variantID, size string, qty int) (left int, err error) {
	return Reserve(ctx, r.DB, variantID, size, qty)
}

func Reserve(ctx context.Context, q Querier, variantID, size string, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("invalid qty %d for variant %s size %s", qty, variantID, size)
	}
	var left int
	err := q.QueryRow(ctx, `
		UPDATE variant_sizes SET stock = stock - $3
		WHERE variant_id = $1 AND size = $2 AND stock >= $3
		RETURNING stock`, variantID, size, qty).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// Zero rows: either the size is gone or the stock ran out. Re-read for
	// the rejection detail only; the decision was already made atomically.
	var available int
	err = q.QueryRow(ctx, `SELECT stock FROM variant_sizes WHERE variant_id = $1 AND size = $2`,
		variantID, size).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrSizeNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, &InsufficientStockError{VariantID: variantID, Size: size, Requested: qty, Available: available}
}

// Release puts stock back after a cancellation or a failed checkout attempt.
func (r *VariantRepo) Release(ctx context.Context, variantID, size string, qty int) error {
	return Release(ctx, r.DB, variantID, size, qty)
}

func Release(ctx context.Context, q Querier, variantID, size string, qty int) error {
	ct, err := q.Exec(ctx, `
		UPDATE variant_sizes SET stock = stock + $3
		WHERE variant_id = $1 AND size = $2`, variantID, size, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrSizeNotFound
	}
	return nil
}

// SetStock is the administrative overwrite. It is deliberately not part of
// the reserve/release path and must never be used by checkout.
func (r *VariantRepo) SetStock(ctx context.Context, variantID, size string, stock int) error {
	if stock < 0 {
		return fmt.Errorf("stock must not be negative")
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO variant_sizes (variant_id, size, stock) VALUES ($1, $2, $3)
		ON CONFLICT (variant_id, size) DO UPDATE SET stock = $3`, variantID, size, stock)
	return err
}

func (r *VariantRepo) Availability(ctx context.Context, variantID, size string) (int, error) {
	return Availability(ctx, r.DB, variantID, size)
}

func Availability(ctx context.Context, q Querier, variantID, size string) (int, error) {
	var stock int
	err := q.QueryRow(ctx, `SELECT stock FROM variant_sizes WHERE variant_id = $1 AND size = $2`,
		variantID, size).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrSizeNotFound
	}
	return stock, err
}

func (r *VariantRepo) GetVariant(ctx context.Context, variantID string) (Variant, error) {
	var v Variant
	err := r.DB.QueryRow(ctx, `SELECT id, product_id, color, price_cents FROM variants WHERE id = $1`,
		variantID).Scan(&v.ID, &v.ProductID, &v.Color, &v.PriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, ErrSizeNotFound
	}
	if err != nil {
		return Variant{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT size, stock, price_cents FROM variant_sizes
		WHERE variant_id = $1 ORDER BY size`, variantID)
	if err != nil {
		return Variant{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var s SizeEntry
		if err := rows.Scan(&s.Size, &s.Stock, &s.PriceCents); err != nil {
			return Variant{}, err
		}
		v.Sizes = append(v.Sizes, s)
	}
	return v, rows.Err()
}

func (r *VariantRepo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, title, price_cents, created_at, updated_at
		FROM products ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.PriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
