package redisx

import "time"

const (
	// Bearer session: session:{token} -> user_id
	KeySession = "session:%s"

	// One-time payment confirmation code: payconfirm:{order_id}:{tx_id} -> code
	KeyPaymentCode = "payconfirm:%s:%s"

	// Order status cache: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing in the notifier: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
