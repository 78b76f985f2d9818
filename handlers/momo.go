package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"payment-gateway-svc/gateway"
	"payment-gateway-svc/middleware"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MomoHandler exposes the MoMo wallet flow: payment creation, the
// server-to-server IPN, the browser callback redirect, active status
// query, and a sandbox simulator.
type MomoHandler struct {
	momo        *gateway.Momo
	orders      gateway.OrderSource
	frontendURL string
	logger      *zap.Logger
}

func NewMomoHandler(momo *gateway.Momo, orders gateway.OrderSource, frontendURL string, logger *zap.Logger) *MomoHandler {
	return &MomoHandler{momo: momo, orders: orders, frontendURL: frontendURL, logger: logger}
}

type createPaymentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

func (h *MomoHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	payURL, requestID, err := h.momo.CreatePayment(c.Request.Context(), req.OrderID)
	if err != nil {
		if errors.Is(err, recon.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		h.logger.Error("Failed to create MoMo payment",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"payUrl":    payURL,
		"requestId": requestID,
	})
}

// IPN handles the wallet's server-to-server notification. The gateway
// expects 204 on receipt; redelivered notifications are acknowledged the
// same way so it stops retrying.
func (h *MomoHandler) IPN(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var notice gateway.MomoIPN
	if err := json.Unmarshal(raw, &notice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.momo.HandleIPN(c.Request.Context(), notice, raw)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			middleware.RecordSignatureReject(models.ProviderMomo)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		case errors.Is(err, recon.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		default:
			h.logger.Error("MoMo IPN reconcile failed",
				zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
				zap.String("order_id", notice.OrderID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		}
		return
	}

	middleware.RecordReconcileOutcome(models.ProviderMomo, string(result.Outcome))
	if result.AmountStatus == models.AmountExcess {
		middleware.RecordAmountDiscrepancy(models.ProviderMomo)
	}
	c.Status(http.StatusNoContent)
}

// Callback is where the wallet app sends the customer's browser after
// payment. It never mutates anything: payment state comes from the IPN
// or the poller.
func (h *MomoHandler) Callback(c *gin.Context) {
	orderID := c.Query("orderId")
	resultCode := c.Query("resultCode")

	if resultCode == "0" {
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/payment/success?orderId=%s", h.frontendURL, orderID))
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/payment/cancel?orderId=%s&code=%s", h.frontendURL, orderID, resultCode))
}

// Query actively polls the gateway for a transaction and reconciles a
// conclusive answer. An unknown status is surfaced as retryable and the
// order stays pending.
func (h *MomoHandler) Query(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	status, result, err := h.momo.Query(c.Request.Context(), req.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, recon.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, gateway.ErrNoRequestRef):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No payment request on record for this order"})
		case errors.Is(err, gateway.ErrStatusUnknown):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Gateway status unknown, retry later"})
		default:
			h.logger.Error("MoMo query failed",
				zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
				zap.String("order_id", req.OrderID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		}
		return
	}

	resp := gin.H{"success": true, "status": string(status)}
	if result != nil {
		middleware.RecordReconcileOutcome(models.ProviderMomo, string(result.Outcome))
		resp["paymentStatus"] = string(result.PaymentStatus)
	}
	c.JSON(http.StatusOK, resp)
}

type momoSimulateRequest struct {
	OrderID    string `json:"orderId" binding:"required"`
	Amount     int64  `json:"amount"`
	ResultCode *int   `json:"resultCode"`
	Message    string `json:"message"`
}

// Simulate builds a sandbox notification and feeds it straight into
// reconciliation, bypassing signature verification. Sandbox only; the
// route is not registered in production mode.
func (h *MomoHandler) Simulate(c *gin.Context) {
	var req momoSimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	amount := req.Amount
	if amount == 0 {
		order, err := h.orders.GetOrder(c.Request.Context(), req.OrderID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		amount = order.Total
	}

	resultCode := 0
	if req.ResultCode != nil {
		resultCode = *req.ResultCode
	}
	message := req.Message
	if message == "" {
		message = "Successful."
	}

	notice := gateway.MomoIPN{
		PartnerCode:  "MOMOBKUN20180529",
		OrderID:      req.OrderID,
		RequestID:    req.OrderID + "_" + uuid.NewString(),
		Amount:       json.Number(fmt.Sprintf("%d", amount)),
		OrderInfo:    "Thanh toan don hang " + req.OrderID,
		OrderType:    "momo_wallet",
		TransID:      json.Number(fmt.Sprintf("%d", time.Now().UnixMilli())),
		ResultCode:   json.Number(fmt.Sprintf("%d", resultCode)),
		Message:      message,
		PayType:      "qr",
		ResponseTime: json.Number(fmt.Sprintf("%d", time.Now().UnixMilli())),
	}
	raw, _ := json.Marshal(notice)

	result, err := h.momo.Simulate(c.Request.Context(), notice, raw)
	if err != nil {
		if errors.Is(err, recon.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	middleware.RecordReconcileOutcome(models.ProviderMomo, string(result.Outcome))
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"outcome":      string(result.Outcome),
		"amountStatus": string(result.AmountStatus),
		"transId":      notice.TransID.String(),
	})
}
