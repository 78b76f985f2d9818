package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payment-gateway-svc/config"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"
	"payment-gateway-svc/signature"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	vnpayCodeSuccess  = "00"
	vnpayCodePending  = "01"
	vnpayDateFormat   = "20060102150405"
	vnpayTxnRefFormat = "02150405" // ddHHmmss suffix on the order id
)

type Vnpay struct {
	cfg    config.VnpayConfig
	engine *recon.Engine
	orders OrderSource
	client *http.Client
	signer *signature.VnpaySigner
	logger *zap.Logger
	now    func() time.Time
}

func NewVnpay(cfg config.VnpayConfig, engine *recon.Engine, orders OrderSource, client *http.Client, logger *zap.Logger) *Vnpay {
	return &Vnpay{
		cfg:    cfg,
		engine: engine,
		orders: orders,
		client: defaultHTTPClient(client),
		signer: signature.NewVnpaySigner(cfg.HashSecret),
		logger: logger,
		now:    time.Now,
	}
}

// vnpayLocation pins createDate to the gateway's expected timezone.
var vnpayLocation = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*3600)
	}
	return loc
}()

// OrderIDFromTxnRef recovers the local order id from a vnp_TxnRef of
// the form <orderId>_<ddHHmmss>.
func OrderIDFromTxnRef(txnRef string) string {
	if i := strings.IndexByte(txnRef, '_'); i >= 0 {
		return txnRef[:i]
	}
	return txnRef
}

// BuildPayURL constructs the signed redirect URL for the hosted payment
// page and persists the txn reference on the order.
func (v *Vnpay) BuildPayURL(ctx context.Context, orderID, bankCode, clientIP string) (payURL, txnRef string, err error) {
	order, err := v.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", "", err
	}

	now := v.now().In(vnpayLocation)
	txnRef = fmt.Sprintf("%s_%s", orderID, now.Format(vnpayTxnRefFormat))
	if clientIP == "" || clientIP == "::1" {
		clientIP = "127.0.0.1"
	}

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    v.cfg.TmnCode,
		"vnp_Locale":     "vn",
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     txnRef,
		"vnp_OrderInfo":  "Thanh toan cho ma GD:" + orderID,
		"vnp_OrderType":  "other",
		"vnp_Amount":     strconv.FormatInt(order.Total*100, 10),
		"vnp_ReturnUrl":  v.cfg.ReturnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format(vnpayDateFormat),
	}
	if bankCode != "" {
		params["vnp_BankCode"] = bankCode
	}

	query := signature.CanonicalQuery(params)
	payURL = v.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + v.signer.Sign(params)

	if err := v.orders.SetGatewayRequest(ctx, orderID, models.ProviderVnpay, txnRef); err != nil {
		return "", "", err
	}
	return payURL, txnRef, nil
}

// HandleIPN verifies the secure hash and reconciles a passive IPN. The
// params are the raw query parameters of the callback.
func (v *Vnpay) HandleIPN(ctx context.Context, params map[string]string, raw json.RawMessage) (string, recon.Result, error) {
	if !v.signer.Verify(params) {
		v.logger.Error("VNPay IPN signature invalid", zap.String("txn_ref", params["vnp_TxnRef"]))
		return "", recon.Result{Outcome: models.OutcomeRejected}, ErrInvalidSignature
	}
	orderID := OrderIDFromTxnRef(params["vnp_TxnRef"])
	result, err := v.reconcileParams(ctx, orderID, params, models.EventKindIPN, raw)
	return orderID, result, err
}

// Simulate reconciles a sandbox-built callback without hash checking,
// calling the engine directly.
func (v *Vnpay) Simulate(ctx context.Context, params map[string]string, raw json.RawMessage) (string, recon.Result, error) {
	orderID := OrderIDFromTxnRef(params["vnp_TxnRef"])
	result, err := v.reconcileParams(ctx, orderID, params, models.EventKindSimulated, raw)
	return orderID, result, err
}

func (v *Vnpay) reconcileParams(ctx context.Context, orderID string, params map[string]string, kind models.EventKind, raw json.RawMessage) (recon.Result, error) {
	amount, err := strconv.ParseInt(params["vnp_Amount"], 10, 64)
	if err != nil {
		return recon.Result{Outcome: models.OutcomeRejected}, fmt.Errorf("unparseable vnp_Amount %q: %w", params["vnp_Amount"], err)
	}
	code := params["vnp_ResponseCode"]
	success := code == vnpayCodeSuccess
	if status, ok := params["vnp_TransactionStatus"]; ok && status != vnpayCodeSuccess {
		success = false
	}
	event := models.GatewayEvent{
		Provider:      models.ProviderVnpay,
		TransactionID: params["vnp_TransactionNo"],
		Kind:          kind,
		ResultCode:    code,
		Success:       success,
		Amount:        amount,
		GatewayRef:    params["vnp_TxnRef"],
		RawPayload:    raw,
		ReceivedAt:    time.Now(),
	}
	return v.engine.Reconcile(ctx, orderID, event)
}

// VerifyReturn checks the hash on the user-redirect return. Returns are
// lower trust: the caller only uses this to pick a frontend redirect,
// never to mark anything paid.
func (v *Vnpay) VerifyReturn(params map[string]string) (orderID string, success bool, err error) {
	if !v.signer.Verify(params) {
		return "", false, ErrInvalidSignature
	}
	return OrderIDFromTxnRef(params["vnp_TxnRef"]), params["vnp_ResponseCode"] == vnpayCodeSuccess, nil
}

type vnpayQueryResponse struct {
	VnpResponseCode  string `json:"vnp_ResponseCode"`
	VnpMessage       string `json:"vnp_Message"`
	VnpTransactionNo string `json:"vnp_TransactionNo"`
	VnpAmount        string `json:"vnp_Amount"`
}

// Query runs the querydr transaction lookup and feeds a conclusive
// answer through reconciliation. Pending ("01") appends nothing; a
// missing response code is treated as status unknown.
func (v *Vnpay) Query(ctx context.Context, orderID string) (QueryStatus, *recon.Result, error) {
	ctx, span := otel.Tracer("payment-gateway-svc").Start(ctx, "VnpayQuery")
	defer span.End()

	order, err := v.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", nil, err
	}
	txnRef := order.GatewayOrderID
	if txnRef == "" {
		return "", nil, ErrNoRequestRef
	}

	now := v.now().In(vnpayLocation).Format(vnpayDateFormat)
	params := map[string]string{
		"vnp_Version":         "2.1.0",
		"vnp_Command":         "querydr",
		"vnp_TmnCode":         v.cfg.TmnCode,
		"vnp_TxnRef":          txnRef,
		"vnp_OrderInfo":       "Query for order " + orderID,
		"vnp_TransactionDate": now,
		"vnp_CreateDate":      now,
		"vnp_IpAddr":          "127.0.0.1",
	}
	queryURL := v.cfg.QueryURL + "?" + signature.CanonicalQuery(params) + "&vnp_SecureHash=" + v.signer.Sign(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build query request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", nil, fmt.Errorf("%w: %v", ErrStatusUnknown, err)
	}
	defer resp.Body.Close()

	var body vnpayQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, fmt.Errorf("%w: unparseable response: %v", ErrStatusUnknown, err)
	}
	if body.VnpResponseCode == "" {
		return "", nil, ErrStatusUnknown
	}

	switch body.VnpResponseCode {
	case vnpayCodePending:
		return QueryStatusPending, nil, nil
	case vnpayCodeSuccess:
		amount, err := strconv.ParseInt(body.VnpAmount, 10, 64)
		if err != nil || amount == 0 {
			amount = order.Total * 100
		}
		raw, _ := json.Marshal(body)
		result, err := v.engine.Reconcile(ctx, orderID, models.GatewayEvent{
			Provider:      models.ProviderVnpay,
			TransactionID: body.VnpTransactionNo,
			Kind:          models.EventKindQuery,
			ResultCode:    body.VnpResponseCode,
			Success:       true,
			Amount:        amount,
			GatewayRef:    txnRef,
			RawPayload:    raw,
			ReceivedAt:    time.Now(),
		})
		if err != nil {
			return "", nil, err
		}
		return QueryStatusPaid, &result, nil
	default:
		raw, _ := json.Marshal(body)
		result, err := v.engine.Reconcile(ctx, orderID, models.GatewayEvent{
			Provider:      models.ProviderVnpay,
			TransactionID: body.VnpTransactionNo,
			Kind:          models.EventKindQuery,
			ResultCode:    body.VnpResponseCode,
			Success:       false,
			GatewayRef:    txnRef,
			RawPayload:    raw,
			ReceivedAt:    time.Now(),
		})
		if err != nil {
			return "", nil, err
		}
		return QueryStatusFailed, &result, nil
	}
}
