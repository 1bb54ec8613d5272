package models

import "time"

type TransactionStatus string

const (
	StatusCreated       TransactionStatus = "CREATED"
	StatusSessionActive TransactionStatus = "SESSION_ACTIVE"
	StatusPending       TransactionStatus = "PENDING"
	StatusPaid          TransactionStatus = "PAID"
	StatusFailed        TransactionStatus = "FAILED"
	StatusUnknown       TransactionStatus = "UNKNOWN"
)

// IsTerminal reports whether no further automatic transitions may occur.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusUnknown
}

type AssetType string

const (
	AssetGold   AssetType = "gold"
	AssetSilver AssetType = "silver"
)

// Transaction is the durable record of one purchase attempt. It is created
// once, mutated only by the reconciler, and never deleted.
type Transaction struct {
	OrderID       string            `json:"order_id"`
	UserID        string            `json:"user_id"`
	Amount        float64           `json:"amount"`
	AssetType     AssetType         `json:"asset_type"`
	Status        TransactionStatus `json:"status"`
	PaymentID     string            `json:"payment_id,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	Quantity      float64           `json:"quantity,omitempty"`
	CreditedAt    *time.Time        `json:"credited_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type CustomerDetails struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateOrderInput is the caller-facing order creation request.
type CreateOrderInput struct {
	OrderID   string          `json:"order_id,omitempty"`
	UserID    string          `json:"user_id"`
	Amount    float64         `json:"amount"`
	Currency  string          `json:"currency"`
	AssetType AssetType       `json:"asset_type"`
	Customer  CustomerDetails `json:"customer_details"`
	ReturnURL string          `json:"return_url,omitempty"`
	NotifyURL string          `json:"notify_url,omitempty"`
}

// CreateOrderOutput carries everything the client needs to hand the user to
// the gateway: a session for hosted checkout, an intent URI for UPI apps.
type CreateOrderOutput struct {
	OrderID    string            `json:"order_id"`
	SessionID  string            `json:"session_id"`
	Status     TransactionStatus `json:"status"`
	IntentURI  string            `json:"intent_uri,omitempty"`
	PaymentURL string            `json:"payment_url,omitempty"`
}

// Webhook event types pushed by the gateway.
const (
	EventPaymentSuccess     = "PAYMENT_SUCCESS"
	EventPaymentFailed      = "PAYMENT_FAILED"
	EventPaymentPending     = "PAYMENT_PENDING"
	EventPaymentUserDropped = "PAYMENT_USER_DROPPED"
)

type WebhookData struct {
	OrderID       string  `json:"order_id"`
	PaymentID     string  `json:"payment_id"`
	OrderAmount   float64 `json:"order_amount"`
	PaymentMethod string  `json:"payment_method"`
	PaymentError  string  `json:"payment_error,omitempty"`
	ErrorCode     string  `json:"error_code,omitempty"`
	PendingReason string  `json:"pending_reason,omitempty"`
}

type WebhookPayload struct {
	EventType string      `json:"event_type"`
	Data      WebhookData `json:"data"`
}

// NotificationEvent is one verified inbound report. It is transient: consumed
// once by the reconciler and discarded, never persisted.
type NotificationEvent struct {
	EventType     string
	OrderID       string
	PaymentID     string
	PaymentMethod string
	FailureReason string
}

// LedgerEntry is an immutable row appended for every applied credit.
type LedgerEntry struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	AssetType AssetType `json:"asset_type"`
	Amount    float64   `json:"amount"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

// Holding is the running position for one (user, asset) pair. Credits only
// ever increase it.
type Holding struct {
	UserID    string    `json:"user_id"`
	AssetType AssetType `json:"asset_type"`
	Amount    float64   `json:"amount"`
	Quantity  float64   `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusChangedEvent is published to Kafka on every committed transition.
type StatusChangedEvent struct {
	OrderID        string            `json:"order_id"`
	Status         TransactionStatus `json:"status"`
	PreviousStatus TransactionStatus `json:"previous_status"`
	PaymentID      string            `json:"payment_id,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}
