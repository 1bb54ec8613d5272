package interfaces

import (
	"context"
	"time"

	"github.com/aurumly/payment-reconciler/internal/gateway"
	"github.com/aurumly/payment-reconciler/internal/models"
)

// TransactionRepository defines the contract for transaction and holdings
// data access.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)

	// ActivateSession moves CREATED -> SESSION_ACTIVE and records the
	// gateway session id.
	ActivateSession(ctx context.Context, orderID, sessionID string) error

	// MarkPending moves SESSION_ACTIVE -> PENDING once the user has been
	// handed off to the gateway.
	MarkPending(ctx context.Context, orderID string) error

	// CommitTerminal writes a terminal status guarded by "current status is
	// non-terminal" and returns the number of rows changed. Zero rows means
	// the record was already terminal; that is the expected no-op under
	// redundant channels, not an error. When fromUnknown is true the guard
	// additionally admits UNKNOWN, so a manual recheck can resolve it.
	CommitTerminal(ctx context.Context, orderID string, to models.TransactionStatus, paymentID, paymentMethod, failureReason string, fromUnknown bool) (int64, error)

	// ApplyCredit atomically stamps credited_at (only if unset), increases
	// the user's holding and appends a ledger entry. Returns
	// models.ErrAlreadyCredited when the stamp was already set.
	ApplyCredit(ctx context.Context, entry *models.LedgerEntry) error

	GetHolding(ctx context.Context, userID string, asset models.AssetType) (*models.Holding, error)
}

// GatewayAPI is the outbound payment gateway surface consumed by the
// reconciler and the status handlers.
type GatewayAPI interface {
	CreateOrder(ctx context.Context, req *gateway.CreateOrderRequest) (*gateway.CreateOrderResponse, error)
	FetchOrderStatus(ctx context.Context, orderID string) (*gateway.OrderStatus, error)
	FetchPayments(ctx context.Context, orderID string) ([]gateway.PaymentAttempt, error)
	PaymentURL(orderID string, amount float64) string
}

// CreditApplier applies the monetary effect of a PAID transaction to the
// user's holdings, at most once per order.
type CreditApplier interface {
	Apply(ctx context.Context, tx *models.Transaction) error
}

// EventPublisher pushes committed status transitions to downstream
// consumers.
type EventPublisher interface {
	PublishStatusChange(ctx context.Context, event *models.StatusChangedEvent) error
}

// Deduper suppresses replays of notifications that were already processed
// successfully. Keys are recorded only after processing succeeds, so a
// redelivery following a transient failure is reprocessed rather than
// swallowed. A failure to reach the dedup store degrades to at-least-once
// processing; the terminal CAS remains the correctness guard.
type Deduper interface {
	// Seen reports whether the key was recorded by an earlier successful
	// processing.
	Seen(ctx context.Context, key string) (bool, error)

	// Record marks the key processed.
	Record(ctx context.Context, key string, ttl time.Duration) error
}
