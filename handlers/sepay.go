package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"payment-gateway-svc/cache"
	"payment-gateway-svc/gateway"
	"payment-gateway-svc/middleware"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statusCacheTTL = 5 * time.Second

// SepayHandler receives bank-transfer webhooks and serves the
// customer-facing payment-status polling endpoint. SePay retries on
// non-2xx responses, so events that can never succeed (no reference,
// outgoing transfer, unknown order) are still acknowledged with 200.
type SepayHandler struct {
	sepay  *gateway.Sepay
	orders gateway.OrderSource
	rdb    *redis.Client
	logger *zap.Logger
}

func NewSepayHandler(sepay *gateway.Sepay, orders gateway.OrderSource, rdb *redis.Client, logger *zap.Logger) *SepayHandler {
	return &SepayHandler{sepay: sepay, orders: orders, rdb: rdb, logger: logger}
}

func (h *SepayHandler) Webhook(c *gin.Context) {
	if !h.sepay.Authenticate(c.GetHeader("Authorization"), c.GetHeader("X-Api-Key")) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid API key"})
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unreadable body"})
		return
	}
	var payload gateway.SepayWebhook
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid payload"})
		return
	}

	orderID, result, err := h.sepay.HandleWebhook(c.Request.Context(), payload, raw)
	h.respondTransfer(c, orderID, result, err)
}

type sepayTestRequest struct {
	Content string `json:"content"`
	Amount  int64  `json:"amount"`
}

// TestWebhook simulates an incoming transfer without touching the bank.
// Sandbox only.
func (h *SepayHandler) TestWebhook(c *gin.Context) {
	var req sepayTestRequest
	// an empty body is fine, defaults below
	_ = c.ShouldBindJSON(&req)
	if req.Content == "" {
		req.Content = "HM123456TEST thanh toan"
	}
	if req.Amount == 0 {
		req.Amount = 500000
	}

	orderID, result, err := h.sepay.SimulateWebhook(c.Request.Context(), req.Content, req.Amount)
	h.respondTransfer(c, orderID, result, err)
}

func (h *SepayHandler) respondTransfer(c *gin.Context, orderID string, result recon.Result, err error) {
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrNotIncoming):
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ignored - outgoing transaction"})
		case errors.Is(err, gateway.ErrNoOrderRef):
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "No order reference found"})
		case errors.Is(err, recon.ErrOrderNotFound):
			h.logger.Error("SePay transfer references unknown order",
				zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
				zap.String("order_id", orderID),
			)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Order not found"})
		default:
			h.logger.Error("SePay reconcile failed",
				zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal error"})
		}
		return
	}

	middleware.RecordReconcileOutcome(models.ProviderSepay, string(result.Outcome))
	h.invalidateStatus(c, orderID)

	switch {
	case result.Outcome == models.OutcomeDuplicate:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Duplicate transaction", "orderId": orderID})
	case result.AmountStatus == models.AmountInsufficient:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Partial payment received",
			"orderId": orderID,
		})
	default:
		if result.AmountStatus == models.AmountExcess {
			middleware.RecordAmountDiscrepancy(models.ProviderSepay)
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Payment confirmed",
			"orderId": orderID,
		})
	}
}

// CheckStatus is the endpoint the frontend polls while the customer is
// completing the transfer in their banking app.
func (h *SepayHandler) CheckStatus(c *gin.Context) {
	orderID := c.Param("orderId")
	ctx := c.Request.Context()

	if h.rdb != nil {
		if view, err := cache.GetPaymentStatus(ctx, h.rdb, orderID); err == nil {
			c.JSON(http.StatusOK, view)
			return
		}
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, recon.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		h.logger.Error("Failed to load order for status check",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	view := &models.PaymentStatusView{
		OrderID:       order.ID,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.Status,
		Total:         order.Total,
		PaidAt:        order.PaidAt,
	}
	if h.rdb != nil {
		if err := cache.SetPaymentStatus(ctx, h.rdb, view, statusCacheTTL); err != nil {
			h.logger.Warn("Failed to cache payment status", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, view)
}

func (h *SepayHandler) invalidateStatus(c *gin.Context, orderID string) {
	if h.rdb == nil || orderID == "" {
		return
	}
	if err := cache.InvalidatePaymentStatus(c.Request.Context(), h.rdb, orderID); err != nil {
		h.logger.Warn("Failed to invalidate status cache", zap.String("order_id", orderID), zap.Error(err))
	}
}
