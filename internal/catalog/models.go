package catalog

import "time"

type Product struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Variant is a purchasable color grouping of a product. Stock and price live
// per (variant, size); the variant-level price, when set, overrides the
// product price and is itself overridden by a size-level price.
type Variant struct {
	ID         string      `json:"id"`
	ProductID  string      `json:"product_id"`
	Color      string      `json:"color"`
	PriceCents *int64      `json:"price_cents,omitempty"`
	Sizes      []SizeEntry `json:"sizes"`
}

type SizeEntry struct {
	Size       string `json:"size"`
	Stock      int    `json:"stock"`
	PriceCents *int64 `json:"price_cents,omitempty"`
}
