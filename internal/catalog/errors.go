package catalog

import (
	"errors"
	"fmt"
)

var ErrSizeNotFound = errors.New("variant size not found")

type InsufficientStockError struct {
	VariantID string
	Size      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s size %s: requested %d, available %d",
		e.VariantID, e.Size, e.Requested, e.Available)
}
