package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"payment-gateway-svc/config"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"
	"payment-gateway-svc/signature"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// MoMo result codes this adapter interprets. Everything else is a
// provider-native failure code, stored verbatim.
const (
	momoResultSuccess = "0"
	momoResultPending = "1000"
)

type Momo struct {
	cfg          config.MomoConfig
	engine       *recon.Engine
	orders       OrderSource
	client       *http.Client
	createSigner *signature.MomoSigner
	ipnSigner    *signature.MomoSigner
	querySigner  *signature.MomoSigner
	logger       *zap.Logger
}

func NewMomo(cfg config.MomoConfig, engine *recon.Engine, orders OrderSource, client *http.Client, logger *zap.Logger) *Momo {
	return &Momo{
		cfg:          cfg,
		engine:       engine,
		orders:       orders,
		client:       defaultHTTPClient(client),
		createSigner: signature.NewMomoSigner(cfg.SecretKey, signature.MomoCreateFields),
		ipnSigner:    signature.NewMomoSigner(cfg.SecretKey, signature.MomoIPNFields),
		querySigner:  signature.NewMomoSigner(cfg.SecretKey, signature.MomoQueryFields),
		logger:       logger,
	}
}

// MomoIPN is the wallet gateway's server-to-server notification body.
// Numeric fields stay json.Number so the signature raw string is built
// from exactly what was sent.
type MomoIPN struct {
	PartnerCode  string      `json:"partnerCode"`
	OrderID      string      `json:"orderId"`
	RequestID    string      `json:"requestId"`
	Amount       json.Number `json:"amount"`
	OrderInfo    string      `json:"orderInfo"`
	OrderType    string      `json:"orderType"`
	TransID      json.Number `json:"transId"`
	ResultCode   json.Number `json:"resultCode"`
	Message      string      `json:"message"`
	PayType      string      `json:"payType"`
	ResponseTime json.Number `json:"responseTime"`
	ExtraData    string      `json:"extraData"`
	Signature    string      `json:"signature"`
}

func (n MomoIPN) signatureParams(accessKey string) map[string]string {
	return map[string]string{
		"accessKey":    accessKey,
		"amount":       n.Amount.String(),
		"extraData":    n.ExtraData,
		"message":      n.Message,
		"orderId":      n.OrderID,
		"orderInfo":    n.OrderInfo,
		"orderType":    n.OrderType,
		"partnerCode":  n.PartnerCode,
		"payType":      n.PayType,
		"requestId":    n.RequestID,
		"responseTime": n.ResponseTime.String(),
		"resultCode":   n.ResultCode.String(),
		"transId":      n.TransID.String(),
		"signature":    n.Signature,
	}
}

// HandleIPN verifies and reconciles a passive push notification.
func (m *Momo) HandleIPN(ctx context.Context, notice MomoIPN, raw json.RawMessage) (recon.Result, error) {
	if !m.ipnSigner.Verify(notice.signatureParams(m.cfg.AccessKey)) {
		m.logger.Error("MoMo IPN signature invalid",
			zap.String("order_id", notice.OrderID),
			zap.String("trans_id", notice.TransID.String()),
		)
		return recon.Result{Outcome: models.OutcomeRejected}, ErrInvalidSignature
	}
	return m.reconcileNotice(ctx, notice, models.EventKindIPN, raw)
}

// Simulate feeds a sandbox-built notification straight into the
// reconciliation pipeline, skipping signature verification. It is the
// direct-call replacement for the fake-HTTP-request trick.
func (m *Momo) Simulate(ctx context.Context, notice MomoIPN, raw json.RawMessage) (recon.Result, error) {
	return m.reconcileNotice(ctx, notice, models.EventKindSimulated, raw)
}

func (m *Momo) reconcileNotice(ctx context.Context, notice MomoIPN, kind models.EventKind, raw json.RawMessage) (recon.Result, error) {
	amount, err := notice.Amount.Int64()
	if err != nil {
		return recon.Result{Outcome: models.OutcomeRejected}, fmt.Errorf("unparseable amount %q: %w", notice.Amount.String(), err)
	}
	event := models.GatewayEvent{
		Provider:      models.ProviderMomo,
		TransactionID: notice.TransID.String(),
		Kind:          kind,
		ResultCode:    notice.ResultCode.String(),
		Success:       notice.ResultCode.String() == momoResultSuccess,
		Amount:        amount,
		RawPayload:    raw,
		ReceivedAt:    time.Now(),
	}
	return m.engine.Reconcile(ctx, notice.OrderID, event)
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
}

// CreatePayment signs and posts a payment-create request and persists
// the request reference on the order for the active poller.
func (m *Momo) CreatePayment(ctx context.Context, orderID string) (payURL, requestID string, err error) {
	order, err := m.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", "", err
	}

	requestID = fmt.Sprintf("%s_%s", orderID, uuid.NewString())
	orderInfo := fmt.Sprintf("Payment for order %s", orderID)
	amount := fmt.Sprintf("%d", order.Total)

	params := map[string]string{
		"accessKey":   m.cfg.AccessKey,
		"amount":      amount,
		"extraData":   "",
		"ipnUrl":      m.cfg.IPNURL,
		"orderId":     orderID,
		"orderInfo":   orderInfo,
		"partnerCode": m.cfg.PartnerCode,
		"redirectUrl": m.cfg.RedirectURL,
		"requestId":   requestID,
		"requestType": "captureWallet",
	}

	body := map[string]string{
		"partnerCode": m.cfg.PartnerCode,
		"accessKey":   m.cfg.AccessKey,
		"requestId":   requestID,
		"amount":      amount,
		"orderId":     orderID,
		"orderInfo":   orderInfo,
		"redirectUrl": m.cfg.RedirectURL,
		"ipnUrl":      m.cfg.IPNURL,
		"extraData":   "",
		"requestType": "captureWallet",
		"signature":   m.createSigner.Sign(params),
		"lang":        "vi",
	}

	var resp momoCreateResponse
	if err := m.postJSON(ctx, m.cfg.Endpoint, body, &resp); err != nil {
		return "", "", err
	}
	if resp.ResultCode != 0 {
		return "", "", fmt.Errorf("momo payment creation failed: %d %s", resp.ResultCode, resp.Message)
	}

	if err := m.orders.SetGatewayRequest(ctx, orderID, models.ProviderMomo, requestID); err != nil {
		return "", "", err
	}
	return resp.PayURL, requestID, nil
}

type momoQueryResponse struct {
	ResultCode *int        `json:"resultCode"`
	Message    string      `json:"message"`
	TransID    json.Number `json:"transId"`
	Amount     json.Number `json:"amount"`
}

// Query asks the wallet gateway for the current transaction status and
// feeds a conclusive answer through the reconciliation pipeline. A
// "pending / not found" answer appends nothing - there is no new
// information to record. Timeouts and unrecognized shapes leave the
// order pending.
func (m *Momo) Query(ctx context.Context, orderID string) (QueryStatus, *recon.Result, error) {
	ctx, span := otel.Tracer("payment-gateway-svc").Start(ctx, "MomoQuery")
	defer span.End()

	order, err := m.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", nil, err
	}
	requestID := order.GatewayOrderID
	if requestID == "" {
		return "", nil, ErrNoRequestRef
	}

	params := map[string]string{
		"accessKey":   m.cfg.AccessKey,
		"orderId":     orderID,
		"partnerCode": m.cfg.PartnerCode,
		"requestId":   requestID,
	}
	body := map[string]string{
		"partnerCode": m.cfg.PartnerCode,
		"accessKey":   m.cfg.AccessKey,
		"requestId":   requestID,
		"orderId":     orderID,
		"signature":   m.querySigner.Sign(params),
		"lang":        "vi",
	}

	var resp momoQueryResponse
	if err := m.postJSON(ctx, m.cfg.QueryEndpoint, body, &resp); err != nil {
		span.RecordError(err)
		return "", nil, fmt.Errorf("%w: %v", ErrStatusUnknown, err)
	}
	if resp.ResultCode == nil {
		return "", nil, ErrStatusUnknown
	}

	code := fmt.Sprintf("%d", *resp.ResultCode)
	switch code {
	case momoResultPending:
		return QueryStatusPending, nil, nil
	case momoResultSuccess:
		amount, err := resp.Amount.Int64()
		if err != nil || amount == 0 {
			// Some sandbox responses omit the amount on query.
			amount = order.Total
		}
		raw, _ := json.Marshal(resp)
		result, err := m.engine.Reconcile(ctx, orderID, models.GatewayEvent{
			Provider:      models.ProviderMomo,
			TransactionID: resp.TransID.String(),
			Kind:          models.EventKindQuery,
			ResultCode:    code,
			Success:       true,
			Amount:        amount,
			RawPayload:    raw,
			ReceivedAt:    time.Now(),
		})
		if err != nil {
			return "", nil, err
		}
		return QueryStatusPaid, &result, nil
	default:
		raw, _ := json.Marshal(resp)
		result, err := m.engine.Reconcile(ctx, orderID, models.GatewayEvent{
			Provider:      models.ProviderMomo,
			TransactionID: resp.TransID.String(),
			Kind:          models.EventKindQuery,
			ResultCode:    code,
			Success:       false,
			RawPayload:    raw,
			ReceivedAt:    time.Now(),
		})
		if err != nil {
			return "", nil, err
		}
		return QueryStatusFailed, &result, nil
	}
}

func (m *Momo) postJSON(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("momo request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse momo response: %w", err)
	}
	return nil
}
