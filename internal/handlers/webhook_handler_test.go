package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/gateway"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/service"
	"github.com/aurumly/payment-reconciler/internal/signature"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
	"github.com/aurumly/payment-reconciler/internal/upi"
)

func init() {
	telemetry.Logger = zap.NewNop()
	gin.SetMode(gin.TestMode)
}

// memRepo holds a single pending transaction, enough to observe whether a
// webhook reached the reconciler.
type memRepo struct {
	mu sync.Mutex
	tx *models.Transaction

	credits int
}

func newMemRepo(orderID string) *memRepo {
	return &memRepo{tx: &models.Transaction{
		OrderID:   orderID,
		UserID:    "user-1",
		Amount:    100,
		AssetType: models.AssetGold,
		Status:    models.StatusPending,
	}}
}

func (m *memRepo) Create(context.Context, *models.Transaction) error { return models.ErrOrderExists }

func (m *memRepo) GetByOrderID(_ context.Context, orderID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx.OrderID != orderID {
		return nil, models.ErrOrderNotFound
	}
	cp := *m.tx
	return &cp, nil
}

func (m *memRepo) ActivateSession(context.Context, string, string) error { return nil }
func (m *memRepo) MarkPending(context.Context, string) error             { return nil }

func (m *memRepo) CommitTerminal(_ context.Context, orderID string, to models.TransactionStatus, paymentID, method, reason string, fromUnknown bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx.OrderID != orderID {
		return 0, nil
	}
	if m.tx.Status.IsTerminal() && !(fromUnknown && m.tx.Status == models.StatusUnknown) {
		return 0, nil
	}
	m.tx.Status = to
	m.tx.PaymentID = paymentID
	m.tx.PaymentMethod = method
	m.tx.FailureReason = reason
	return 1, nil
}

func (m *memRepo) ApplyCredit(_ context.Context, _ *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits++
	return nil
}

func (m *memRepo) GetHolding(_ context.Context, userID string, asset models.AssetType) (*models.Holding, error) {
	return &models.Holding{UserID: userID, AssetType: asset}, nil
}

func (m *memRepo) status() models.TransactionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx.Status
}

type noopGateway struct{}

func (noopGateway) CreateOrder(context.Context, *gateway.CreateOrderRequest) (*gateway.CreateOrderResponse, error) {
	return nil, &models.GatewayError{StatusCode: 500, Retryable: true}
}
func (noopGateway) FetchOrderStatus(context.Context, string) (*gateway.OrderStatus, error) {
	return nil, &models.GatewayError{StatusCode: 500, Retryable: true}
}
func (noopGateway) FetchPayments(context.Context, string) ([]gateway.PaymentAttempt, error) {
	return nil, nil
}
func (noopGateway) PaymentURL(string, float64) string { return "" }

type noopPublisher struct{}

func (noopPublisher) PublishStatusChange(context.Context, *models.StatusChangedEvent) error {
	return nil
}

type passDeduper struct{}

func (passDeduper) Seen(context.Context, string) (bool, error) { return false, nil }

func (passDeduper) Record(context.Context, string, time.Duration) error { return nil }

type countingCredit struct {
	repo *memRepo
}

func (c *countingCredit) Apply(ctx context.Context, tx *models.Transaction) error {
	return c.repo.ApplyCredit(ctx, &models.LedgerEntry{OrderID: tx.OrderID})
}

func webhookRig(t *testing.T, secret, orderID string) (*gin.Engine, *memRepo, *signature.Verifier) {
	t.Helper()
	repo := newMemRepo(orderID)
	reconciler := service.NewReconciler(
		repo,
		noopGateway{},
		&countingCredit{repo: repo},
		noopPublisher{},
		passDeduper{},
		upi.NewBuilder(config.UPIConfig{PayeeVPA: "shop@bank", PayeeName: "Shop"}),
		config.ReconcilerConfig{MaxPollAttempts: 1, PollInterval: time.Millisecond, DedupTTL: time.Hour},
	)
	verifier := signature.NewVerifier(secret)

	r := gin.New()
	handler := NewWebhookHandler(verifier, reconciler)
	r.POST("/webhooks/payment", handler.HandleNotification)
	return r, repo, verifier
}

func postWebhook(r *gin.Engine, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("X-Webhook-Signature", sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookMissingSignatureRejected(t *testing.T) {
	r, repo, _ := webhookRig(t, "secret", "order_1")
	body := []byte(`{"event_type":"PAYMENT_SUCCESS","data":{"order_id":"order_1","payment_id":"pay_1"}}`)

	w := postWebhook(r, body, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if repo.status() != models.StatusPending {
		t.Fatalf("unverified webhook changed status to %s", repo.status())
	}
	if repo.credits != 0 {
		t.Fatal("unverified webhook triggered a credit")
	}
}

func TestWebhookForgedSignatureRejected(t *testing.T) {
	r, repo, _ := webhookRig(t, "secret", "order_1")
	forger := signature.NewVerifier("wrong-secret")
	body := []byte(`{"event_type":"PAYMENT_SUCCESS","data":{"order_id":"order_1","payment_id":"pay_1"}}`)

	w := postWebhook(r, body, forger.Sign(body))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if repo.status() != models.StatusPending {
		t.Fatalf("forged webhook changed status to %s", repo.status())
	}
}

func TestWebhookValidSuccessProcessed(t *testing.T) {
	r, repo, verifier := webhookRig(t, "secret", "order_1")
	body := []byte(`{"event_type":"PAYMENT_SUCCESS","data":{"order_id":"order_1","payment_id":"pay_1","order_amount":100,"payment_method":"upi"}}`)

	w := postWebhook(r, body, verifier.Sign(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if repo.status() != models.StatusPaid {
		t.Fatalf("transaction status = %s, want PAID", repo.status())
	}
	if repo.credits != 1 {
		t.Fatalf("credits = %d, want 1", repo.credits)
	}
}

func TestWebhookUnrecognizedEventAccepted(t *testing.T) {
	r, repo, verifier := webhookRig(t, "secret", "order_1")
	body := []byte(`{"event_type":"REFUND_INITIATED","data":{"order_id":"order_1"}}`)

	w := postWebhook(r, body, verifier.Sign(body))
	if w.Code != http.StatusOK {
		t.Fatalf("unrecognized events must still be acknowledged, got %d", w.Code)
	}
	if repo.status() != models.StatusPending {
		t.Fatalf("unrecognized event changed status to %s", repo.status())
	}
}

func TestWebhookMalformedVerifiedPayload(t *testing.T) {
	r, _, verifier := webhookRig(t, "secret", "order_1")
	body := []byte(`{"event_type": `)

	w := postWebhook(r, body, verifier.Sign(body))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
