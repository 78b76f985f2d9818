package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"payment-gateway-svc/config"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"

	"go.uber.org/zap"
)

var (
	// ErrNotIncoming: the webhook reported money leaving the account.
	ErrNotIncoming = errors.New("outgoing transaction ignored")

	// ErrNoOrderRef: no HM<orderId> token in the transfer memo.
	ErrNoOrderRef = errors.New("no order reference in transfer content")
)

// Bank apps mangle memos (uppercase, prefix text, strip spaces), so the
// reference token is matched anywhere in the content, case-insensitive.
var orderRefPattern = regexp.MustCompile(`(?i)HM([A-Z0-9]+)`)

// Sepay receives bank-transfer notifications. There is no signature
// scheme: a static API key header authenticates the caller, and the
// order is correlated by the HM reference token the customer was told
// to put in the transfer memo.
type Sepay struct {
	cfg    config.SepayConfig
	engine *recon.Engine
	logger *zap.Logger
}

func NewSepay(cfg config.SepayConfig, engine *recon.Engine, logger *zap.Logger) *Sepay {
	return &Sepay{cfg: cfg, engine: engine, logger: logger}
}

// SepayWebhook is the transaction notification body.
type SepayWebhook struct {
	ID              int64  `json:"id"`
	Gateway         string `json:"gateway"`
	TransactionDate string `json:"transactionDate"`
	AccountNumber   string `json:"accountNumber"`
	Code            string `json:"code"`
	Content         string `json:"content"`
	TransferType    string `json:"transferType"`
	TransferAmount  int64  `json:"transferAmount"`
	Accumulated     int64  `json:"accumulated"`
	SubAccount      string `json:"subAccount"`
	ReferenceCode   string `json:"referenceCode"`
	Description     string `json:"description"`
}

// Authenticate checks the shared secret from either supported header
// shape. An empty configured key disables the check (local sandbox).
func (s *Sepay) Authenticate(authHeader, apiKeyHeader string) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	key := strings.TrimPrefix(authHeader, "Apikey ")
	if key == authHeader || key == "" {
		key = apiKeyHeader
	}
	return key == s.cfg.APIKey
}

// ParseOrderRef extracts the order id from a transfer memo. The memo
// generator uppercases ids, so the captured token is lowered back to
// match stored order ids.
func ParseOrderRef(content string) (string, bool) {
	m := orderRefPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// HandleWebhook correlates and reconciles one bank transfer. Outgoing
// transactions and memos without a reference are skipped without
// touching the ledger.
func (s *Sepay) HandleWebhook(ctx context.Context, payload SepayWebhook, raw json.RawMessage) (string, recon.Result, error) {
	return s.reconcileTransfer(ctx, payload, models.EventKindWebhook, raw)
}

// SimulateWebhook builds a sandbox transfer payload and runs it through
// the normal correlation path, ledgered as a simulated event.
func (s *Sepay) SimulateWebhook(ctx context.Context, content string, amount int64) (string, recon.Result, error) {
	payload := SepayWebhook{
		ID:              time.Now().UnixNano(),
		Gateway:         "MBBank",
		TransactionDate: time.Now().Format(time.RFC3339),
		Content:         content,
		TransferType:    "in",
		TransferAmount:  amount,
		ReferenceCode:   "FT" + strconv.FormatInt(time.Now().Unix(), 10),
	}
	raw, _ := json.Marshal(payload)
	return s.reconcileTransfer(ctx, payload, models.EventKindSimulated, raw)
}

func (s *Sepay) reconcileTransfer(ctx context.Context, payload SepayWebhook, kind models.EventKind, raw json.RawMessage) (string, recon.Result, error) {
	if payload.TransferType != "in" {
		return "", recon.Result{}, ErrNotIncoming
	}

	orderID, ok := ParseOrderRef(payload.Content)
	if !ok {
		s.logger.Warn("SePay webhook without order reference", zap.String("content", payload.Content))
		return "", recon.Result{}, ErrNoOrderRef
	}

	event := models.GatewayEvent{
		Provider:      models.ProviderSepay,
		TransactionID: strconv.FormatInt(payload.ID, 10),
		Kind:          kind,
		ResultCode:    payload.TransferType,
		Success:       true,
		Amount:        payload.TransferAmount,
		GatewayRef:    payload.ReferenceCode,
		RawPayload:    raw,
		ReceivedAt:    time.Now(),
	}
	result, err := s.engine.Reconcile(ctx, orderID, event)
	return orderID, result, err
}
