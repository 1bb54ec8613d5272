package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 10 * time.Second
	maxRetries  = 3
)

// Client is a stateless HTTP client for the payment gateway. Credentials are
// injected at construction and attached to every request out of band; the
// client itself holds no per-order state and is safe for concurrent use.
type Client struct {
	baseURL    string
	appID      string
	secretKey  string
	apiVersion string
	httpClient *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		appID:      cfg.AppID,
		secretKey:  cfg.SecretKey,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateOrder registers a new order with the gateway and returns the payment
// session authorizing one payment attempt.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal create order request: %w", err)
	}

	var resp CreateOrderResponse
	if err := c.do(ctx, "create_order", http.MethodPost, "/orders", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchOrderStatus returns the gateway's current view of an order.
func (c *Client) FetchOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	var status OrderStatus
	if err := c.do(ctx, "fetch_order", http.MethodGet, "/orders/"+orderID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// FetchPayments lists the payment attempts made against an order.
func (c *Client) FetchPayments(ctx context.Context, orderID string) ([]PaymentAttempt, error) {
	var payments []PaymentAttempt
	if err := c.do(ctx, "fetch_payments", http.MethodGet, "/orders/"+orderID+"/payments", nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// do executes one gateway call, retrying transient failures with jittered
// exponential backoff. Permanent rejections (4xx) are returned immediately.
func (c *Client) do(ctx context.Context, operation, method, path string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return &models.GatewayError{Retryable: true, Err: ctx.Err()}
			}
		}

		lastErr = c.doOnce(ctx, method, path, body, out)
		if lastErr == nil {
			telemetry.GatewayRequests.WithLabelValues(operation, "ok").Inc()
			return nil
		}
		if !models.IsGatewayUnavailable(lastErr) {
			telemetry.GatewayRequests.WithLabelValues(operation, "rejected").Inc()
			return lastErr
		}
		telemetry.GatewayRequests.WithLabelValues(operation, "unavailable").Inc()
		telemetry.Logger.Warn("Gateway call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("x-api-version", c.apiVersion)
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures and timeouts are both retryable.
		return &models.GatewayError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.GatewayError{Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &models.GatewayError{StatusCode: resp.StatusCode, Body: string(respBody), Retryable: true}
	case resp.StatusCode >= 400:
		return &models.GatewayError{StatusCode: resp.StatusCode, Body: string(respBody), Retryable: false}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

// backoffDelay returns the full-jitter delay before the given attempt.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return time.Duration(rand.Int63n(int64(d)) + 1)
}

// PaymentURL returns the gateway's hosted checkout page for an order.
func (c *Client) PaymentURL(orderID string, amount float64) string {
	return fmt.Sprintf("https://payments.cashfree.com/order/#/%s/%s/%.2f", c.appID, orderID, amount)
}
