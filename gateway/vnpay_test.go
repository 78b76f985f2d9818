package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"payment-gateway-svc/config"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"
	"payment-gateway-svc/signature"

	"go.uber.org/zap/zaptest"
)

const vnpayTestSecret = "XNBCJJEIEWGFME2CJL6ML8T1NEKIRRWZ"

func newTestVnpay(t *testing.T, store *stubStore, cfg config.VnpayConfig) *Vnpay {
	t.Helper()
	cfg.TmnCode = "CGXZLS0Z"
	cfg.HashSecret = vnpayTestSecret
	if cfg.PayURL == "" {
		cfg.PayURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	}
	logger := zaptest.NewLogger(t)
	engine := recon.NewEngine(store, nil, logger)
	return NewVnpay(cfg, engine, store, nil, logger)
}

func signedIPNParams(orderID, txnRefSuffix, transNo, responseCode string, amount int64) map[string]string {
	params := map[string]string{
		"vnp_TmnCode":           "CGXZLS0Z",
		"vnp_TxnRef":            orderID + "_" + txnRefSuffix,
		"vnp_Amount":            jsonInt(amount),
		"vnp_ResponseCode":      responseCode,
		"vnp_TransactionStatus": responseCode,
		"vnp_TransactionNo":     transNo,
		"vnp_BankCode":          "NCB",
		"vnp_PayDate":           "20240115103000",
		"vnp_OrderInfo":         "Thanh toan cho ma GD:" + orderID,
	}
	signer := signature.NewVnpaySigner(vnpayTestSecret)
	params["vnp_SecureHash"] = signer.Sign(params)
	return params
}

func TestOrderIDFromTxnRef(t *testing.T) {
	tests := []struct {
		txnRef string
		want   string
	}{
		{"order1_02150405", "order1"},
		{"order1", "order1"},
		{"abc_123_456", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := OrderIDFromTxnRef(tt.txnRef); got != tt.want {
			t.Errorf("OrderIDFromTxnRef(%q) = %q, want %q", tt.txnRef, got, tt.want)
		}
	}
}

func TestVnpayBuildPayURL(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	v := newTestVnpay(t, store, config.VnpayConfig{})

	payURL, txnRef, err := v.BuildPayURL(context.Background(), "order1", "NCB", "192.168.1.10")
	if err != nil {
		t.Fatalf("BuildPayURL returned error: %v", err)
	}
	if !strings.HasPrefix(txnRef, "order1_") {
		t.Errorf("txnRef = %q, want order1_ prefix", txnRef)
	}

	parsed, err := url.Parse(payURL)
	if err != nil {
		t.Fatalf("unparseable pay URL: %v", err)
	}
	q := parsed.Query()
	if q.Get("vnp_Amount") != "50000000" {
		t.Errorf("vnp_Amount = %q, want 50000000 (VND x100)", q.Get("vnp_Amount"))
	}
	if q.Get("vnp_BankCode") != "NCB" {
		t.Errorf("vnp_BankCode = %q", q.Get("vnp_BankCode"))
	}

	// The URL must verify under its own hash
	params := make(map[string]string)
	for key, values := range q {
		params[key] = values[0]
	}
	signer := signature.NewVnpaySigner(vnpayTestSecret)
	if !signer.Verify(params) {
		t.Error("generated pay URL does not verify")
	}

	if store.orders["order1"].GatewayOrderID != txnRef {
		t.Error("txn reference was not persisted on the order")
	}
}

func TestVnpayHandleIPNSuccess(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	v := newTestVnpay(t, store, config.VnpayConfig{})

	params := signedIPNParams("order1", "15103000", "14512345", "00", 50000000)
	raw, _ := json.Marshal(params)

	orderID, result, err := v.HandleIPN(context.Background(), params, raw)
	if err != nil {
		t.Fatalf("HandleIPN returned error: %v", err)
	}
	if orderID != "order1" {
		t.Errorf("orderID = %q", orderID)
	}
	if result.Outcome != models.OutcomeApplied || result.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.AmountStatus != models.AmountExact {
		t.Errorf("amount status = %s, want exact for VND x100 amount", result.AmountStatus)
	}
}

func TestVnpayHandleIPNTamperedAmount(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	v := newTestVnpay(t, store, config.VnpayConfig{})

	params := signedIPNParams("order1", "15103000", "14512345", "00", 50000000)
	params["vnp_Amount"] = "1"
	raw, _ := json.Marshal(params)

	_, _, err := v.HandleIPN(context.Background(), params, raw)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(store.events) != 0 {
		t.Error("tampered IPN must not be ledgered")
	}
}

func TestVnpayHandleIPNFailureCode(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	v := newTestVnpay(t, store, config.VnpayConfig{})

	params := signedIPNParams("order1", "15103000", "14512345", "24", 50000000)
	raw, _ := json.Marshal(params)

	_, result, err := v.HandleIPN(context.Background(), params, raw)
	if err != nil {
		t.Fatalf("HandleIPN returned error: %v", err)
	}
	if result.PaymentStatus != models.PaymentStatusFailed {
		t.Errorf("payment status = %s, want failed", result.PaymentStatus)
	}
}

func TestVnpayVerifyReturnNeverMutates(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	v := newTestVnpay(t, store, config.VnpayConfig{})

	params := signedIPNParams("order1", "15103000", "14512345", "00", 50000000)
	orderID, success, err := v.VerifyReturn(params)
	if err != nil {
		t.Fatalf("VerifyReturn returned error: %v", err)
	}
	if orderID != "order1" || !success {
		t.Errorf("VerifyReturn = (%q, %v)", orderID, success)
	}
	if len(store.events) != 0 {
		t.Error("return must not be ledgered")
	}
	if store.orders["order1"].PaymentStatus != models.PaymentStatusPending {
		t.Error("return must not advance payment state")
	}
}

func TestVnpayQueryPendingAndUnknown(t *testing.T) {
	responses := map[string]struct {
		body       string
		wantStatus QueryStatus
		wantErr    error
	}{
		"pending": {`{"vnp_ResponseCode":"01","vnp_Message":"Order not found"}`, QueryStatusPending, nil},
		"unknown": {`{"vnp_Message":"maintenance"}`, "", ErrStatusUnknown},
	}

	for name, tc := range responses {
		t.Run(name, func(t *testing.T) {
			store := newStubStore()
			order := store.addOrder("order1", 500000)
			order.GatewayOrderID = "order1_15103000"

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			v := newTestVnpay(t, store, config.VnpayConfig{QueryURL: srv.URL})
			status, result, err := v.Query(context.Background(), "order1")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Query returned error: %v", err)
			}
			if status != tc.wantStatus || result != nil {
				t.Errorf("Query = (%s, %+v)", status, result)
			}
			if len(store.events) != 0 {
				t.Error("inconclusive query must not be ledgered")
			}
		})
	}
}

func TestVnpayQuerySuccessReconciles(t *testing.T) {
	store := newStubStore()
	order := store.addOrder("order1", 500000)
	order.GatewayOrderID = "order1_15103000"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vnp_ResponseCode":"00","vnp_TransactionNo":"14512345","vnp_Amount":"50000000"}`))
	}))
	defer srv.Close()

	v := newTestVnpay(t, store, config.VnpayConfig{QueryURL: srv.URL})
	status, result, err := v.Query(context.Background(), "order1")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if status != QueryStatusPaid {
		t.Errorf("status = %s, want paid", status)
	}
	if result == nil || result.Outcome != models.OutcomeApplied {
		t.Errorf("unexpected result: %+v", result)
	}
	kinds := store.eventKinds("order1")
	if len(kinds) != 1 || kinds[0] != models.EventKindQuery {
		t.Errorf("ledgered kinds = %v, want [query]", kinds)
	}
}
