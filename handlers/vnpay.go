package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payment-gateway-svc/gateway"
	"payment-gateway-svc/middleware"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VnpayHandler exposes the VNPay card flow. The IPN ack protocol is
// VNPay's own: a 200 response whose RspCode tells the gateway whether
// to stop retrying, so almost every outcome maps to some 200 body.
type VnpayHandler struct {
	vnpay       *gateway.Vnpay
	orders      gateway.OrderSource
	frontendURL string
	logger      *zap.Logger
}

func NewVnpayHandler(vnpay *gateway.Vnpay, orders gateway.OrderSource, frontendURL string, logger *zap.Logger) *VnpayHandler {
	return &VnpayHandler{vnpay: vnpay, orders: orders, frontendURL: frontendURL, logger: logger}
}

type vnpayCreateRequest struct {
	OrderID  string `json:"orderId" binding:"required"`
	BankCode string `json:"bankCode"`
}

func (h *VnpayHandler) CreatePayment(c *gin.Context) {
	var req vnpayCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	payURL, txnRef, err := h.vnpay.BuildPayURL(c.Request.Context(), req.OrderID, req.BankCode, c.ClientIP())
	if err != nil {
		if errors.Is(err, recon.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		h.logger.Error("Failed to build VNPay pay URL",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payUrl":  payURL,
		"txnRef":  txnRef,
	})
}

func vnpayAck(c *gin.Context, code, message string) {
	c.JSON(http.StatusOK, gin.H{"RspCode": code, "Message": message})
}

// IPN handles the gateway's server-to-server notification, delivered as
// a signed GET query.
func (h *VnpayHandler) IPN(c *gin.Context) {
	params := queryParams(c)
	raw, _ := json.Marshal(params)

	orderID, result, err := h.vnpay.HandleIPN(c.Request.Context(), params, raw)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			middleware.RecordSignatureReject(models.ProviderVnpay)
			vnpayAck(c, "97", "Invalid signature")
		case errors.Is(err, recon.ErrOrderNotFound):
			vnpayAck(c, "01", "Order not found")
		default:
			h.logger.Error("VNPay IPN reconcile failed",
				zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			vnpayAck(c, "99", "Unknown error")
		}
		return
	}

	middleware.RecordReconcileOutcome(models.ProviderVnpay, string(result.Outcome))
	switch {
	case result.Outcome == models.OutcomeDuplicate:
		vnpayAck(c, "02", "Order already confirmed")
	case result.AmountStatus == models.AmountInsufficient:
		vnpayAck(c, "04", "Invalid amount")
	default:
		if result.AmountStatus == models.AmountExcess {
			middleware.RecordAmountDiscrepancy(models.ProviderVnpay)
		}
		vnpayAck(c, "00", "Confirm success")
	}
}

// Return handles the customer's browser coming back from the hosted
// payment page. Hash-checked for the redirect decision only; it never
// advances payment state.
func (h *VnpayHandler) Return(c *gin.Context) {
	orderID, success, err := h.vnpay.VerifyReturn(queryParams(c))
	if err != nil {
		middleware.RecordSignatureReject(models.ProviderVnpay)
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/payment/error", h.frontendURL))
		return
	}
	if success {
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/payment/success?orderId=%s", h.frontendURL, orderID))
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/payment/cancel?orderId=%s", h.frontendURL, orderID))
}

func (h *VnpayHandler) Query(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	status, result, err := h.vnpay.Query(c.Request.Context(), req.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, recon.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, gateway.ErrNoRequestRef):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No payment request on record for this order"})
		case errors.Is(err, gateway.ErrStatusUnknown):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Gateway status unknown, retry later"})
		default:
			h.logger.Error("VNPay query failed",
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
		middleware.RecordReconcileOutcome(models.ProviderVnpay, string(result.Outcome))
		resp["paymentStatus"] = string(result.PaymentStatus)
	}
	c.JSON(http.StatusOK, resp)
}

type vnpaySimulateRequest struct {
	OrderID           string `json:"orderId" binding:"required"`
	Amount            int64  `json:"amount"`
	ResponseCode      string `json:"responseCode"`
	TransactionStatus string `json:"transactionStatus"`
}

// Simulate reconciles a sandbox-built callback directly, no hash check.
// Sandbox only.
func (h *VnpayHandler) Simulate(c *gin.Context) {
	var req vnpaySimulateRequest
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
		amount = order.Total * 100
	}
	code := req.ResponseCode
	if code == "" {
		code = "00"
	}
	status := req.TransactionStatus
	if status == "" {
		status = code
	}

	now := time.Now()
	params := map[string]string{
		"vnp_TxnRef":            req.OrderID + "_" + now.Format("02150405"),
		"vnp_Amount":            strconv.FormatInt(amount, 10),
		"vnp_ResponseCode":      code,
		"vnp_TransactionStatus": status,
		"vnp_TransactionNo":     strconv.FormatInt(now.UnixMilli(), 10),
		"vnp_BankCode":          "NCB",
		"vnp_PayDate":           now.Format("20060102150405"),
		"vnp_OrderInfo":         "Thanh toan don hang " + req.OrderID,
	}
	raw, _ := json.Marshal(params)

	orderID, result, err := h.vnpay.Simulate(c.Request.Context(), params, raw)
	if err != nil {
		if errors.Is(err, recon.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	middleware.RecordReconcileOutcome(models.ProviderVnpay, string(result.Outcome))
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"orderId":      orderID,
		"outcome":      string(result.Outcome),
		"amountStatus": string(result.AmountStatus),
		"txnRef":       params["vnp_TxnRef"],
	})
}
