package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"payment-gateway-svc/config"
	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"
	"payment-gateway-svc/signature"

	"go.uber.org/zap/zaptest"
)

const momoTestSecret = "K951B6PE1waDMi640xX08PD3vg6EkVlz"

func newTestMomo(t *testing.T, store *stubStore, cfg config.MomoConfig) *Momo {
	t.Helper()
	cfg.PartnerCode = "MOMOBKUN20180529"
	cfg.AccessKey = "klm05TvNBzhg7h7j"
	cfg.SecretKey = momoTestSecret
	logger := zaptest.NewLogger(t)
	engine := recon.NewEngine(store, nil, logger)
	return NewMomo(cfg, engine, store, nil, logger)
}

func signedNotice(t *testing.T, orderID, transID, resultCode string, amount int64) MomoIPN {
	t.Helper()
	notice := MomoIPN{
		PartnerCode:  "MOMOBKUN20180529",
		OrderID:      orderID,
		RequestID:    orderID + "_req1",
		Amount:       json.Number(jsonInt(amount)),
		OrderInfo:    "Thanh toan don hang " + orderID,
		OrderType:    "momo_wallet",
		TransID:      json.Number(transID),
		ResultCode:   json.Number(resultCode),
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: json.Number("1700000000000"),
	}
	signer := signature.NewMomoSigner(momoTestSecret, signature.MomoIPNFields)
	notice.Signature = signer.Sign(notice.signatureParams("klm05TvNBzhg7h7j"))
	return notice
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestMomoHandleIPNSuccess(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	m := newTestMomo(t, store, config.MomoConfig{})

	notice := signedNotice(t, "order1", "4088878653", "0", 500000)
	raw, _ := json.Marshal(notice)

	result, err := m.HandleIPN(context.Background(), notice, raw)
	if err != nil {
		t.Fatalf("HandleIPN returned error: %v", err)
	}
	if result.Outcome != models.OutcomeApplied || result.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("unexpected result: %+v", result)
	}
	if store.orders["order1"].Status != models.OrderStatusPaid {
		t.Errorf("order status = %s, want paid", store.orders["order1"].Status)
	}
}

func TestMomoHandleIPNBadSignature(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	m := newTestMomo(t, store, config.MomoConfig{})

	notice := signedNotice(t, "order1", "4088878653", "0", 500000)
	notice.Amount = json.Number("999999")
	raw, _ := json.Marshal(notice)

	_, err := m.HandleIPN(context.Background(), notice, raw)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered amount, got %v", err)
	}
	if len(store.events) != 0 {
		t.Error("tampered notification must not be ledgered")
	}
}

func TestMomoHandleIPNFailureCode(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	m := newTestMomo(t, store, config.MomoConfig{})

	notice := signedNotice(t, "order1", "4088878653", "1006", 500000)
	raw, _ := json.Marshal(notice)

	result, err := m.HandleIPN(context.Background(), notice, raw)
	if err != nil {
		t.Fatalf("HandleIPN returned error: %v", err)
	}
	if result.PaymentStatus != models.PaymentStatusFailed {
		t.Errorf("payment status = %s, want failed", result.PaymentStatus)
	}
	if store.orders["order1"].Status != models.OrderStatusCancelled {
		t.Errorf("order status = %s, want cancelled", store.orders["order1"].Status)
	}
}

func momoQueryServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMomoQuerySuccessReconciles(t *testing.T) {
	store := newStubStore()
	order := store.addOrder("order1", 500000)
	order.GatewayOrderID = "order1_req1"

	srv := momoQueryServer(t, `{"resultCode":0,"message":"Successful.","transId":4088878653,"amount":500000}`)
	m := newTestMomo(t, store, config.MomoConfig{QueryEndpoint: srv.URL})

	status, result, err := m.Query(context.Background(), "order1")
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

func TestMomoQueryPendingLedgersNothing(t *testing.T) {
	store := newStubStore()
	order := store.addOrder("order1", 500000)
	order.GatewayOrderID = "order1_req1"

	srv := momoQueryServer(t, `{"resultCode":1000,"message":"Transaction is initiated"}`)
	m := newTestMomo(t, store, config.MomoConfig{QueryEndpoint: srv.URL})

	status, result, err := m.Query(context.Background(), "order1")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if status != QueryStatusPending || result != nil {
		t.Errorf("pending must report (pending, nil), got (%s, %+v)", status, result)
	}
	if len(store.events) != 0 {
		t.Error("pending query must not be ledgered")
	}
	if store.orders["order1"].PaymentStatus != models.PaymentStatusPending {
		t.Error("order must stay pending")
	}
}

func TestMomoQueryUnknownShape(t *testing.T) {
	store := newStubStore()
	order := store.addOrder("order1", 500000)
	order.GatewayOrderID = "order1_req1"

	srv := momoQueryServer(t, `{"message":"maintenance"}`)
	m := newTestMomo(t, store, config.MomoConfig{QueryEndpoint: srv.URL})

	_, _, err := m.Query(context.Background(), "order1")
	if !errors.Is(err, ErrStatusUnknown) {
		t.Fatalf("expected ErrStatusUnknown, got %v", err)
	}
	if store.orders["order1"].PaymentStatus != models.PaymentStatusPending {
		t.Error("order must stay pending after an unknown status")
	}
}

func TestMomoQueryWithoutRequestRef(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	m := newTestMomo(t, store, config.MomoConfig{})

	_, _, err := m.Query(context.Background(), "order1")
	if !errors.Is(err, ErrNoRequestRef) {
		t.Fatalf("expected ErrNoRequestRef, got %v", err)
	}
}

func TestMomoCreatePayment(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("unreadable create body: %v", err)
		}
		if body["amount"] != "500000" || body["orderId"] != "order1" {
			t.Errorf("unexpected create body: %v", body)
		}
		if body["signature"] == "" {
			t.Error("create request is unsigned")
		}
		w.Write([]byte(`{"resultCode":0,"message":"Successful.","payUrl":"https://test.momo.vn/pay"}`))
	}))
	defer srv.Close()

	m := newTestMomo(t, store, config.MomoConfig{Endpoint: srv.URL})

	payURL, requestID, err := m.CreatePayment(context.Background(), "order1")
	if err != nil {
		t.Fatalf("CreatePayment returned error: %v", err)
	}
	if payURL != "https://test.momo.vn/pay" {
		t.Errorf("payURL = %q", payURL)
	}
	if requestID == "" {
		t.Error("empty requestID")
	}
	if store.orders["order1"].GatewayOrderID != requestID {
		t.Error("request reference was not persisted on the order")
	}
}

func TestMomoSimulateLedgeredAsSimulated(t *testing.T) {
	store := newStubStore()
	store.addOrder("order1", 500000)
	m := newTestMomo(t, store, config.MomoConfig{})

	notice := signedNotice(t, "order1", "999111", "0", 500000)
	notice.Signature = "" // simulate skips verification
	raw, _ := json.Marshal(notice)

	result, err := m.Simulate(context.Background(), notice, raw)
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}
	if result.Outcome != models.OutcomeApplied {
		t.Errorf("outcome = %s, want applied", result.Outcome)
	}
	kinds := store.eventKinds("order1")
	if len(kinds) != 1 || kinds[0] != models.EventKindSimulated {
		t.Errorf("ledgered kinds = %v, want [simulated]", kinds)
	}
}
