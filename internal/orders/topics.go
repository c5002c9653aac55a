package orders

// Messages are keyed by order id so every event for one order lands on the
// same partition, in order.
const (
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
)
