package gateway

// Order statuses reported by the gateway. Only ACTIVE is non-terminal.
const (
	OrderActive    = "ACTIVE"
	OrderPaid      = "PAID"
	OrderExpired   = "EXPIRED"
	OrderCancelled = "CANCELLED"
	OrderFailed    = "FAILED"
)

type CustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

type OrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type CreateOrderRequest struct {
	OrderID       string          `json:"order_id"`
	OrderAmount   float64         `json:"order_amount"`
	OrderCurrency string          `json:"order_currency"`
	Customer      CustomerDetails `json:"customer_details"`
	OrderMeta     *OrderMeta      `json:"order_meta,omitempty"`
	OrderNote     string          `json:"order_note,omitempty"`
}

type CreateOrderResponse struct {
	OrderID          string `json:"order_id"`
	GatewayOrderID   string `json:"cf_order_id"`
	PaymentSessionID string `json:"payment_session_id"`
	OrderStatus      string `json:"order_status"`
}

type PaymentAttempt struct {
	PaymentID     string  `json:"cf_payment_id"`
	PaymentStatus string  `json:"payment_status"`
	PaymentAmount float64 `json:"payment_amount"`
	PaymentTime   string  `json:"payment_time"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	Message       string  `json:"payment_message,omitempty"`
}

type OrderStatus struct {
	OrderID        string           `json:"order_id"`
	GatewayOrderID string           `json:"cf_order_id"`
	Status         string           `json:"order_status"`
	OrderAmount    float64          `json:"order_amount"`
	OrderCurrency  string           `json:"order_currency"`
	Payments       []PaymentAttempt `json:"payments,omitempty"`
}
