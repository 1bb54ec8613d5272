package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/interfaces"
	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/service"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

type OrderHandler struct {
	repo       interfaces.TransactionRepository
	gw         interfaces.GatewayAPI
	reconciler *service.Reconciler
}

func NewOrderHandler(repo interfaces.TransactionRepository, gw interfaces.GatewayAPI, reconciler *service.Reconciler) *OrderHandler {
	return &OrderHandler{repo: repo, gw: gw, reconciler: reconciler}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var in models.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	out, err := h.reconciler.CreateOrder(c.Request.Context(), &in)
	if err != nil {
		h.writeCreateError(c, &in, err)
		return
	}

	c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) writeCreateError(c *gin.Context, in *models.CreateOrderInput, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
		return
	}
	if errors.Is(err, models.ErrOrderExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "order already exists", "order_id": in.OrderID})
		return
	}
	var ge *models.GatewayError
	if errors.As(err, &ge) && !ge.Retryable {
		// Pass the gateway's own error body through to the caller.
		c.Data(ge.StatusCode, "application/json", []byte(ge.Body))
		return
	}
	if models.IsGatewayUnavailable(err) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, try again"})
		return
	}

	telemetry.Logger.Error("Order creation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
}

// GetTransaction returns the persisted transaction record.
func (h *OrderHandler) GetTransaction(c *gin.Context) {
	orderID := c.Param("id")

	tx, err := h.repo.GetByOrderID(c.Request.Context(), orderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		telemetry.Logger.Error("Failed to fetch transaction",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transaction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction": tx,
		// UNKNOWN means no source ever confirmed an outcome; the client
		// should offer a manual re-check, never a blind retry.
		"needs_manual_verification": tx.Status == models.StatusUnknown,
	})
}

// GetOrderStatus proxies the gateway's view of the order, used by manual
// "check status" actions and the client-driven polling loop.
func (h *OrderHandler) GetOrderStatus(c *gin.Context) {
	orderID := c.Param("id")

	status, err := h.gw.FetchOrderStatus(c.Request.Context(), orderID)
	if err != nil {
		h.writeGatewayError(c, orderID, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetOrderPayments lists the gateway's payment attempts for an order.
func (h *OrderHandler) GetOrderPayments(c *gin.Context) {
	orderID := c.Param("id")

	payments, err := h.gw.FetchPayments(c.Request.Context(), orderID)
	if err != nil {
		h.writeGatewayError(c, orderID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "payments": payments})
}

// Recheck runs the manual verification path. It may resolve an UNKNOWN
// transaction; PAID and FAILED are returned unchanged.
func (h *OrderHandler) Recheck(c *gin.Context) {
	orderID := c.Param("id")

	tx, err := h.reconciler.Recheck(c.Request.Context(), orderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		h.writeGatewayError(c, orderID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction":               tx,
		"needs_manual_verification": tx.Status == models.StatusUnknown,
	})
}

// StartPoll begins a server-owned polling session for the order.
func (h *OrderHandler) StartPoll(c *gin.Context) {
	orderID := c.Param("id")

	if _, err := h.repo.GetByOrderID(c.Request.Context(), orderID); err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transaction"})
		return
	}

	if err := h.reconciler.StartPoll(orderID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"order_id": orderID, "polling": true})
}

// CancelPoll stops a running polling session.
func (h *OrderHandler) CancelPoll(c *gin.Context) {
	orderID := c.Param("id")

	if !h.reconciler.CancelPoll(orderID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no poll session for order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "polling": false})
}

// GetHolding returns the user's current position for one asset.
func (h *OrderHandler) GetHolding(c *gin.Context) {
	userID := c.Param("id")
	asset := models.AssetType(c.Param("asset"))

	if asset != models.AssetGold && asset != models.AssetSilver {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown asset type"})
		return
	}

	holding, err := h.repo.GetHolding(c.Request.Context(), userID, asset)
	if err != nil {
		telemetry.Logger.Error("Failed to fetch holding",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch holding"})
		return
	}

	c.JSON(http.StatusOK, holding)
}

func (h *OrderHandler) writeGatewayError(c *gin.Context, orderID string, err error) {
	var ge *models.GatewayError
	if errors.As(err, &ge) && !ge.Retryable {
		c.Data(ge.StatusCode, "application/json", []byte(ge.Body))
		return
	}
	if models.IsGatewayUnavailable(err) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		return
	}

	telemetry.Logger.Error("Gateway operation failed",
		zap.String("order_id", orderID),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
