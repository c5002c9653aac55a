package orders

type Status string

const (
	StatusPaymentPending Status = "PaymentPending"
	StatusPaid           Status = "Paid"
	StatusApproved       Status = "Approved"
	StatusShipped        Status = "Shipped"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

// Delivered and Cancelled are terminal. Cancellation is only reachable
// before shipping.
var validNext = map[Status]map[Status]bool{
	StatusPaymentPending: {StatusPaid: true, StatusCancelled: true},
	StatusPaid:           {StatusApproved: true, StatusCancelled: true},
	StatusApproved:       {StatusShipped: true, StatusCancelled: true},
	StatusShipped:        {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// CanCancel reports whether stock may still be returned for this order.
func CanCancel(from Status) bool {
	return validNext[from][StatusCancelled]
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

// InitialStatus is PaymentPending unless the order is cash on delivery,
// which skips the payment gate entirely.
func InitialStatus(method PaymentMethod) Status {
	if method == MethodCOD {
		return StatusApproved
	}
	return StatusPaymentPending
}
