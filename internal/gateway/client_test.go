package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

func init() {
	telemetry.Logger = zap.NewNop()
}

func testClient(baseURL string) *Client {
	return NewClient(config.GatewayConfig{
		BaseURL:    baseURL,
		AppID:      "app_test",
		SecretKey:  "secret_test",
		APIVersion: "2022-09-01",
		Timeout:    2 * time.Second,
	})
}

func TestCreateOrderSendsCredentials(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		json.NewEncoder(w).Encode(CreateOrderResponse{
			OrderID:          "order_1",
			GatewayOrderID:   "cf_99",
			PaymentSessionID: "session_xyz",
			OrderStatus:      OrderActive,
		})
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).CreateOrder(context.Background(), &CreateOrderRequest{
		OrderID:       "order_1",
		OrderAmount:   100,
		OrderCurrency: "INR",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if resp.PaymentSessionID != "session_xyz" {
		t.Fatalf("session id = %q", resp.PaymentSessionID)
	}

	if gotHeaders.Get("x-client-id") != "app_test" {
		t.Fatal("client id header missing")
	}
	if gotHeaders.Get("x-client-secret") != "secret_test" {
		t.Fatal("client secret header missing")
	}
	if gotHeaders.Get("x-api-version") != "2022-09-01" {
		t.Fatal("api version header missing")
	}
}

func TestRejectionIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"order_id already exists"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateOrder(context.Background(), &CreateOrderRequest{OrderID: "order_1"})
	if !models.IsGatewayRejected(err) {
		t.Fatalf("expected permanent rejection, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("4xx retried %d times", n)
	}

	var ge *models.GatewayError
	if !errors.As(err, &ge) {
		t.Fatal("expected *models.GatewayError")
	}
	if ge.StatusCode != http.StatusBadRequest || ge.Body == "" {
		t.Fatalf("gateway error body not preserved: %+v", ge)
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(OrderStatus{OrderID: "order_1", Status: OrderPaid})
	}))
	defer srv.Close()

	status, err := testClient(srv.URL).FetchOrderStatus(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("FetchOrderStatus: %v", err)
	}
	if status.Status != OrderPaid {
		t.Fatalf("status = %q, want PAID", status.Status)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("server saw %d calls, want 3", n)
	}
}

func TestExhaustedRetriesReportUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchOrderStatus(context.Background(), "order_1")
	if !models.IsGatewayUnavailable(err) {
		t.Fatalf("expected transient gateway error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != maxRetries+1 {
		t.Fatalf("server saw %d calls, want %d", n, maxRetries+1)
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(config.GatewayConfig{
		BaseURL: srv.URL,
		Timeout: 20 * time.Millisecond,
	})

	_, err := client.FetchOrderStatus(context.Background(), "order_1")
	if !models.IsGatewayUnavailable(err) {
		t.Fatalf("timeout should be reported as unavailable, got %v", err)
	}
}

func TestFetchPayments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/order_1/payments" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode([]PaymentAttempt{
			{PaymentID: "pay_1", PaymentStatus: "FAILED"},
			{PaymentID: "pay_2", PaymentStatus: "SUCCESS", PaymentMethod: "upi"},
		})
	}))
	defer srv.Close()

	payments, err := testClient(srv.URL).FetchPayments(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("FetchPayments: %v", err)
	}
	if len(payments) != 2 || payments[1].PaymentID != "pay_2" {
		t.Fatalf("unexpected payments: %+v", payments)
	}
}
