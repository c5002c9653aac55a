package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrUnauthorized         = errors.New("not the order owner")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	ErrIncompleteAddress    = errors.New("incomplete delivery address")
)

type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}
