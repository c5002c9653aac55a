package orders

import "time"

type PaymentMethod string

const (
	MethodCOD  PaymentMethod = "COD"
	MethodCard PaymentMethod = "CARD"
	MethodUPI  PaymentMethod = "UPI"
)

func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCOD, MethodCard, MethodUPI:
		return true
	}
	return false
}

type TxStatus string

const (
	TxCreated   TxStatus = "Created"
	TxPaid      TxStatus = "Paid"
	TxFailed    TxStatus = "Failed"
	TxRefunded  TxStatus = "Refunded"
	TxCancelled TxStatus = "Cancelled"
)

type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode"`
}

func (a Address) Complete() bool {
	return a.Name != "" && a.Street != "" && a.City != "" && a.Pincode != ""
}

// Line is a snapshot of one purchased (variant, size, quantity, unit price)
// taken at order-creation time. PriceCents is never recomputed afterwards.
type Line struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id"`
	Size       string `json:"size"`
	Color      string `json:"color,omitempty"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

type HistoryEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

type Order struct {
	ID            string         `json:"order_id"`
	UserID        string         `json:"user_id"`
	Lines         []Line         `json:"items"`
	TotalCents    int64          `json:"total_cents"`
	Status        Status         `json:"status"`
	Method        PaymentMethod  `json:"payment_method"`
	PaymentStatus string         `json:"payment_status"`
	PaymentTxID   string         `json:"payment_transaction_id,omitempty"`
	Address       Address        `json:"delivery_address"`
	History       []HistoryEntry `json:"status_history"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Transaction records one payment attempt against an order. An order may
// carry zero (COD) or more attempts; at most one ends up Paid.
type Transaction struct {
	ID          string        `json:"transaction_id"`
	OrderID     string        `json:"order_id"`
	UserID      string        `json:"user_id"`
	Method      PaymentMethod `json:"method"`
	Status      TxStatus      `json:"status"`
	AmountCents int64         `json:"amount_cents"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
