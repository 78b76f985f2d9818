package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusPartial  PaymentStatus = "partial"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Order is the slice of the storefront order this service reads and
// mutates. Total is VND (no decimal fraction). The CRUD layer creates
// orders as pending with Total fixed; this service only ever advances
// payment state and flips StockAdjusted.
type Order struct {
	ID                   string        `json:"id"`
	UserID               int64         `json:"user_id"`
	Total                int64         `json:"total"`
	Status               OrderStatus   `json:"status"`
	PaymentMethod        string        `json:"payment_method"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	Gateway              string        `json:"gateway"`
	GatewayOrderID       string        `json:"gateway_order_id"`
	GatewayTransactionID string        `json:"gateway_transaction_id"`
	PaidAt               *time.Time    `json:"paid_at,omitempty"`
	StockAdjusted        bool          `json:"stock_adjusted"`
	Items                []OrderItem   `json:"items,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

type OrderItem struct {
	OrderID   string `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// PaymentStatusView is what the customer-facing polling endpoint returns
// while the user is off paying in their banking app.
type PaymentStatusView struct {
	OrderID       string        `json:"orderId"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	OrderStatus   OrderStatus   `json:"orderStatus"`
	Total         int64         `json:"totalPrice"`
	PaidAt        *time.Time    `json:"paidAt"`
}
