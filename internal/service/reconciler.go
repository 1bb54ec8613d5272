package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/gateway"
	"github.com/aurumly/payment-reconciler/internal/interfaces"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
	"github.com/aurumly/payment-reconciler/internal/upi"
)

// Reconciler drives every transaction to a single terminal state. Two
// independent channels feed it concurrently — verified webhook notifications
// and gateway status polls — plus manual rechecks. All terminal writes
// funnel through commit, whose repository CAS guarantees the first observed
// outcome wins and the holdings credit runs at most once.
type Reconciler struct {
	repo      interfaces.TransactionRepository
	gw        interfaces.GatewayAPI
	credit    interfaces.CreditApplier
	publisher interfaces.EventPublisher
	deduper   interfaces.Deduper
	intents   *upi.Builder
	cfg       config.ReconcilerConfig

	mu    sync.Mutex
	polls map[string]context.CancelFunc
}

func NewReconciler(
	repo interfaces.TransactionRepository,
	gw interfaces.GatewayAPI,
	credit interfaces.CreditApplier,
	publisher interfaces.EventPublisher,
	deduper interfaces.Deduper,
	intents *upi.Builder,
	cfg config.ReconcilerConfig,
) *Reconciler {
	return &Reconciler{
		repo:      repo,
		gw:        gw,
		credit:    credit,
		publisher: publisher,
		deduper:   deduper,
		intents:   intents,
		cfg:       cfg,
		polls:     make(map[string]context.CancelFunc),
	}
}

// CreateOrder validates the request, persists the transaction, registers the
// order with the gateway and hands back everything the client needs to send
// the user there. A gateway rejection aborts before PENDING is ever reached.
func (r *Reconciler) CreateOrder(ctx context.Context, in *models.CreateOrderInput) (*models.CreateOrderOutput, error) {
	if err := validateCreateOrder(in); err != nil {
		return nil, err
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID = "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	tx := &models.Transaction{
		OrderID:   orderID,
		UserID:    in.UserID,
		Amount:    in.Amount,
		AssetType: in.AssetType,
	}
	if err := r.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	gwResp, err := r.gw.CreateOrder(ctx, &gateway.CreateOrderRequest{
		OrderID:       orderID,
		OrderAmount:   in.Amount,
		OrderCurrency: in.Currency,
		Customer: gateway.CustomerDetails{
			CustomerID:    in.Customer.ID,
			CustomerName:  in.Customer.Name,
			CustomerEmail: in.Customer.Email,
			CustomerPhone: in.Customer.Phone,
		},
		OrderMeta: &gateway.OrderMeta{
			ReturnURL: in.ReturnURL,
			NotifyURL: in.NotifyURL,
		},
		OrderNote: fmt.Sprintf("%s purchase", in.AssetType),
	})
	if err != nil {
		if models.IsGatewayRejected(err) {
			// The order never had a session; record the rejection so the
			// audit trail shows why it went nowhere.
			if commitErr := r.commit(ctx, orderID, models.StatusFailed, "", "", "gateway rejected order creation", "create", false); commitErr != nil {
				telemetry.Logger.Error("Failed to record gateway rejection",
					zap.String("order_id", orderID),
					zap.Error(commitErr),
				)
			}
		}
		return nil, err
	}

	if err := r.repo.ActivateSession(ctx, orderID, gwResp.PaymentSessionID); err != nil {
		return nil, err
	}
	if err := r.repo.MarkPending(ctx, orderID); err != nil {
		return nil, err
	}

	out := &models.CreateOrderOutput{
		OrderID:    orderID,
		SessionID:  gwResp.PaymentSessionID,
		Status:     models.StatusPending,
		PaymentURL: r.gw.PaymentURL(orderID, in.Amount),
	}
	if intentURI, err := r.intents.BuildIntentURI(in.Amount, orderID, ""); err == nil {
		out.IntentURI = intentURI
	} else {
		telemetry.Logger.Warn("Intent URI unavailable",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}

	telemetry.Logger.Info("Order created",
		zap.String("order_id", orderID),
		zap.Float64("amount", in.Amount),
		zap.String("asset_type", string(in.AssetType)),
	)
	return out, nil
}

// HandleNotification consumes one verified webhook event. The gateway may
// redeliver the same notification, so every path here is safe to run more
// than once per logical event.
func (r *Reconciler) HandleNotification(ctx context.Context, event *models.NotificationEvent) error {
	dedupKey := fmt.Sprintf("webhook_dedup:%s:%s:%s", event.OrderID, event.PaymentID, event.EventType)
	seen, err := r.deduper.Seen(ctx, dedupKey)
	if err != nil {
		// Dedup store down: fall through and let the terminal CAS absorb
		// any replay.
		telemetry.Logger.Warn("Notification dedup unavailable", zap.Error(err))
	} else if seen {
		telemetry.WebhooksReceived.WithLabelValues("duplicate").Inc()
		telemetry.Logger.Info("Duplicate notification skipped",
			zap.String("order_id", event.OrderID),
			zap.String("event_type", event.EventType),
		)
		return nil
	}

	telemetry.WebhooksReceived.WithLabelValues("accepted").Inc()

	var procErr error
	switch event.EventType {
	case models.EventPaymentSuccess:
		procErr = r.commit(ctx, event.OrderID, models.StatusPaid, event.PaymentID, event.PaymentMethod, "", "webhook", false)
	case models.EventPaymentFailed:
		procErr = r.commit(ctx, event.OrderID, models.StatusFailed, event.PaymentID, event.PaymentMethod, event.FailureReason, "webhook", false)
	case models.EventPaymentPending, models.EventPaymentUserDropped:
		telemetry.Logger.Info("Non-terminal notification, transaction stays pending",
			zap.String("order_id", event.OrderID),
			zap.String("event_type", event.EventType),
		)
	default:
		telemetry.Logger.Warn("Unrecognized notification event type",
			zap.String("order_id", event.OrderID),
			zap.String("event_type", event.EventType),
		)
	}
	if procErr != nil {
		// Leave the key unrecorded: the handler answers 500 and the
		// gateway's redelivery gets a clean retry.
		return procErr
	}

	if err := r.deduper.Record(ctx, dedupKey, r.cfg.DedupTTL); err != nil {
		telemetry.Logger.Warn("Failed to record notification dedup key", zap.Error(err))
	}
	return nil
}

// Poll runs the client-driven status check loop for one order. It stops on
// the first terminal outcome, on context cancellation, or after the attempt
// budget, in which case the transaction is committed to UNKNOWN and
// ErrBudgetExhausted is returned. A transient gateway failure consumes an
// attempt but never changes status by itself.
func (r *Reconciler) Poll(ctx context.Context, orderID string) error {
	for attempt := 1; attempt <= r.cfg.MaxPollAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(r.cfg.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		tx, err := r.repo.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if tx.Status.IsTerminal() {
			// The other channel got there first.
			return nil
		}

		telemetry.PollAttempts.Inc()
		status, err := r.gw.FetchOrderStatus(ctx, orderID)
		if err != nil {
			telemetry.Logger.Warn("Poll attempt failed",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		switch status.Status {
		case gateway.OrderPaid:
			paymentID, method := successfulPayment(status.Payments)
			return r.commit(ctx, orderID, models.StatusPaid, paymentID, method, "", "poll", false)
		case gateway.OrderFailed, gateway.OrderCancelled, gateway.OrderExpired:
			paymentID, method := latestPayment(status.Payments)
			reason := fmt.Sprintf("gateway reported %s", status.Status)
			return r.commit(ctx, orderID, models.StatusFailed, paymentID, method, reason, "poll", false)
		case gateway.OrderActive:
			// Keep polling.
		default:
			telemetry.Logger.Warn("Unrecognized gateway order status",
				zap.String("order_id", orderID),
				zap.String("status", status.Status),
			)
		}
	}

	if err := r.commit(ctx, orderID, models.StatusUnknown, "", "", "no terminal outcome within attempt budget", "poll", false); err != nil {
		return err
	}

	// The UNKNOWN commit may have lost the CAS to a channel that resolved
	// the order in the meantime; that is a success, not an exhausted budget.
	tx, err := r.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if tx.Status != models.StatusUnknown {
		return nil
	}
	return models.ErrBudgetExhausted
}

// StartPoll spawns a server-owned poll session for an order. At most one
// session runs per order; CancelPoll or a terminal outcome ends it.
func (r *Reconciler) StartPoll(orderID string) error {
	r.mu.Lock()
	if _, active := r.polls[orderID]; active {
		r.mu.Unlock()
		return fmt.Errorf("poll already running for order %s", orderID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.polls[orderID] = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.polls, orderID)
			r.mu.Unlock()
		}()
		if err := r.Poll(ctx, orderID); err != nil && !errors.Is(err, context.Canceled) {
			telemetry.Logger.Warn("Poll session ended with error",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// CancelPoll stops the poll session for an order, if one is running.
func (r *Reconciler) CancelPoll(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.polls[orderID]
	if ok {
		cancel()
		delete(r.polls, orderID)
	}
	return ok
}

// Recheck is the manual verification path for transactions the automatic
// channels could not resolve. Unlike Poll it may move UNKNOWN to a real
// outcome; PAID and FAILED stay untouched.
func (r *Reconciler) Recheck(ctx context.Context, orderID string) (*models.Transaction, error) {
	tx, err := r.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if tx.Status == models.StatusPaid || tx.Status == models.StatusFailed {
		return tx, nil
	}

	status, err := r.gw.FetchOrderStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch status.Status {
	case gateway.OrderPaid:
		paymentID, method := successfulPayment(status.Payments)
		if err := r.commit(ctx, orderID, models.StatusPaid, paymentID, method, "", "manual", true); err != nil {
			return nil, err
		}
	case gateway.OrderFailed, gateway.OrderCancelled, gateway.OrderExpired:
		paymentID, method := latestPayment(status.Payments)
		reason := fmt.Sprintf("gateway reported %s", status.Status)
		if err := r.commit(ctx, orderID, models.StatusFailed, paymentID, method, reason, "manual", true); err != nil {
			return nil, err
		}
	}

	return r.repo.GetByOrderID(ctx, orderID)
}

// commit is the single funnel for terminal transitions. The repository CAS
// admits only non-terminal rows (plus UNKNOWN when fromUnknown is set), so
// whichever channel observes an outcome first wins and every later report is
// a no-op. The holdings credit is gated behind a winning PAID commit and a
// fresh read of the persisted record.
func (r *Reconciler) commit(
	ctx context.Context,
	orderID string,
	to models.TransactionStatus,
	paymentID, paymentMethod, failureReason, source string,
	fromUnknown bool,
) error {
	prev, err := r.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	rows, err := r.repo.CommitTerminal(ctx, orderID, to, paymentID, paymentMethod, failureReason, fromUnknown)
	if err != nil {
		return err
	}
	if rows == 0 {
		// Expected under redundant channels: the record is already
		// terminal. Not an error.
		telemetry.Logger.Info("Terminal report for already-terminal transaction ignored",
			zap.String("order_id", orderID),
			zap.String("reported_status", string(to)),
			zap.String("source", source),
		)
		return nil
	}

	telemetry.ReconciliationsCompleted.WithLabelValues(string(to), source).Inc()
	telemetry.Logger.Info("Transaction reached terminal state",
		zap.String("order_id", orderID),
		zap.String("from_status", string(prev.Status)),
		zap.String("to_status", string(to)),
		zap.String("source", source),
	)

	if to == models.StatusPaid {
		// Re-read so the credit sees exactly what was persisted.
		fresh, err := r.repo.GetByOrderID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("reload transaction before credit: %w", err)
		}
		if err := r.credit.Apply(ctx, fresh); err != nil {
			return err
		}
	}

	event := &models.StatusChangedEvent{
		OrderID:        orderID,
		Status:         to,
		PreviousStatus: prev.Status,
		PaymentID:      paymentID,
		Timestamp:      time.Now(),
	}
	if err := r.publisher.PublishStatusChange(ctx, event); err != nil {
		// The transition is already durable; event delivery is best effort.
		telemetry.Logger.Error("Failed to publish status change",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}

	return nil
}

func validateCreateOrder(in *models.CreateOrderInput) error {
	if in.Amount <= 0 {
		return &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if in.UserID == "" {
		return &models.ValidationError{Field: "user_id", Reason: "required"}
	}
	if in.AssetType != models.AssetGold && in.AssetType != models.AssetSilver {
		return &models.ValidationError{Field: "asset_type", Reason: "must be gold or silver"}
	}
	if in.Customer.Phone == "" {
		return &models.ValidationError{Field: "customer_details.phone", Reason: "required"}
	}
	if in.Customer.Email == "" {
		return &models.ValidationError{Field: "customer_details.email", Reason: "required"}
	}
	if in.Currency == "" {
		in.Currency = "INR"
	} else if in.Currency != "INR" {
		return &models.ValidationError{Field: "currency", Reason: "only INR is supported"}
	}
	return nil
}

// successfulPayment picks the successful attempt's identifiers, if any.
func successfulPayment(payments []gateway.PaymentAttempt) (paymentID, method string) {
	for _, p := range payments {
		if p.PaymentStatus == "SUCCESS" {
			return p.PaymentID, p.PaymentMethod
		}
	}
	return latestPayment(payments)
}

func latestPayment(payments []gateway.PaymentAttempt) (paymentID, method string) {
	if len(payments) == 0 {
		return "", ""
	}
	last := payments[len(payments)-1]
	return last.PaymentID, last.PaymentMethod
}
