package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTracingMiddlewareSkipsProbeRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, observed := observer.New(zapcore.InfoLevel)
	prevLogger, prevTracer := Logger, Tracer
	Logger = zap.New(core)
	Tracer = otel.Tracer("test")
	defer func() { Logger, Tracer = prevLogger, prevTracer }()

	router := gin.New()
	router.Use(TracingMiddleware())
	router.GET("/health", func(c *gin.Context) { c.Status(200) })
	router.GET("/orders/:id", func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != 200 {
		t.Fatalf("health status = %d", w.Code)
	}
	if n := observed.FilterMessage("HTTP request").Len(); n != 0 {
		t.Fatalf("health probe produced %d request logs, want 0", n)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/orders/order_1", nil))
	if n := observed.FilterMessage("HTTP request").Len(); n != 1 {
		t.Fatalf("order request produced %d request logs, want 1", n)
	}
}
