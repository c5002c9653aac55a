package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoestopper/checkout/internal/catalog"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrProductUnavailable = errors.New("product no longer available")
)

type Item struct {
	VariantID string `json:"variant_id"`
	Size      string `json:"size"`
	Qty       int    `json:"qty"`
}

// Line is what the snapshot reader produces: the cart item joined with the
// authoritative price and stock at this moment. Client-side prices are never
// consulted.
type Line struct {
	ProductID  string
	VariantID  string
	Size       string
	Color      string
	Qty        int
	Stock      int
	PriceCents int64
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Get(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT variant_id, size, qty FROM cart_items
		WHERE user_id = $1 ORDER BY variant_id, size`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.VariantID, &it.Size, &it.Qty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Add upserts one cart line after checking the size exists and has enough
// stock for the resulting quantity. The check here is advisory; the binding
// check happens at checkout.
func (r *Repo) Add(ctx context.Context, userID, variantID, size string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("invalid qty %d", qty)
	}

	stock, err := catalog.Availability(ctx, r.DB, variantID, size)
	if err != nil {
		return err
	}

	var have int
	err = r.DB.QueryRow(ctx, `SELECT qty FROM cart_items WHERE user_id = $1 AND variant_id = $2 AND size = $3`,
		userID, variantID, size).Scan(&have)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if have+qty > stock {
		return &catalog.InsufficientStockError{VariantID: variantID, Size: size, Requested: have + qty, Available: stock}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_items (user_id, variant_id, size, qty) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, variant_id, size) DO UPDATE SET qty = cart_items.qty + $4`,
		userID, variantID, size, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) Remove(ctx context.Context, userID, variantID, size string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND variant_id = $2 AND size = $3`,
		userID, variantID, size)
	return err
}

// Clear removes the cart inside the caller's transaction; checkout wipes the
// cart in the same commit that persists the order.
func Clear(ctx context.Context, q catalog.Querier, userID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	return err
}

// Snapshot resolves the user's cart into concrete lines, pulling price and
// stock from the catalog right now. Read-only.
func (r *Repo) Snapshot(ctx context.Context, userID string) ([]Line, error) {
	items, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		var l Line
		err := r.DB.QueryRow(ctx, `
			SELECT v.product_id, v.id, vs.size, v.color, vs.stock,
			       COALESCE(vs.price_cents, v.price_cents, p.price_cents)
			FROM variant_sizes vs
			JOIN variants v ON v.id = vs.variant_id
			JOIN products p ON p.id = v.product_id
			WHERE vs.variant_id = $1 AND vs.size = $2`, it.VariantID, it.Size).
			Scan(&l.ProductID, &l.VariantID, &l.Size, &l.Color, &l.Stock, &l.PriceCents)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: variant %s size %s", ErrProductUnavailable, it.VariantID, it.Size)
		}
		if err != nil {
			return nil, err
		}
		l.Qty = it.Qty
		lines = append(lines, l)
	}
	return lines, nil
}
