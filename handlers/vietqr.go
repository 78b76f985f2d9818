package handlers

import (
	"errors"
	"net/http"

	"payment-gateway-svc/gateway"
	"payment-gateway-svc/recon"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VietqrHandler serves the manual-transfer checkout: QR image URLs,
// bank metadata, and the MoMo person-to-person deeplink. Settlement for
// these transfers arrives through the SePay webhook.
type VietqrHandler struct {
	vietqr *gateway.Vietqr
	orders gateway.OrderSource
	logger *zap.Logger
}

func NewVietqrHandler(vietqr *gateway.Vietqr, orders gateway.OrderSource, logger *zap.Logger) *VietqrHandler {
	return &VietqrHandler{vietqr: vietqr, orders: orders, logger: logger}
}

type generateQRRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Amount  int64  `json:"amount"`
}

func (h *VietqrHandler) GenerateQR(c *gin.Context) {
	var req generateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	amount := req.Amount
	if amount == 0 {
		order, err := h.orders.GetOrder(c.Request.Context(), req.OrderID)
		if err != nil {
			if errors.Is(err, recon.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
				return
			}
			h.logger.Error("Failed to load order for QR", zap.String("order_id", req.OrderID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}
		amount = order.Total
	}

	bank := h.vietqr.Bank()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"qrUrl":   h.vietqr.QRURL(req.OrderID, amount),
		"amount":  amount,
		"content": gateway.TransferContent(req.OrderID),
		"bank": gin.H{
			"bankId":      bank.BankID,
			"bankName":    bank.BankName,
			"accountNo":   bank.AccountNo,
			"accountName": bank.AccountName,
		},
	})
}

func (h *VietqrHandler) GenerateMomoQR(c *gin.Context) {
	var req generateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	amount := req.Amount
	if amount == 0 {
		order, err := h.orders.GetOrder(c.Request.Context(), req.OrderID)
		if err != nil {
			if errors.Is(err, recon.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}
		amount = order.Total
	}

	momoQR := h.vietqr.MomoQR()
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"deeplink": h.vietqr.MomoDeeplink(req.OrderID, amount),
		"phone":    momoQR.Phone,
		"name":     momoQR.Name,
		"amount":   amount,
		"content":  gateway.TransferContent(req.OrderID),
	})
}

func (h *VietqrHandler) Banks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"banks": h.vietqr.Banks()})
}

// Config exposes the receiving-account details the checkout page shows
// next to the QR code.
func (h *VietqrHandler) Config(c *gin.Context) {
	bank := h.vietqr.Bank()
	momoQR := h.vietqr.MomoQR()
	c.JSON(http.StatusOK, gin.H{
		"bank": gin.H{
			"bankId":      bank.BankID,
			"bankName":    bank.BankName,
			"accountNo":   bank.AccountNo,
			"accountName": bank.AccountName,
			"template":    bank.Template,
		},
		"momo": gin.H{
			"phone": momoQR.Phone,
			"name":  momoQR.Name,
		},
	})
}

// PaymentConfig lists the payment methods checkout can offer.
func (h *VietqrHandler) PaymentConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"methods": []gin.H{
			{"id": "momo", "name": "MoMo Wallet", "type": "gateway"},
			{"id": "vnpay", "name": "VNPay", "type": "gateway"},
			{"id": "vietqr", "name": "Bank Transfer (VietQR)", "type": "transfer"},
			{"id": "momo-qr", "name": "MoMo QR (manual)", "type": "transfer"},
		},
	})
}
