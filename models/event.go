package models

import (
	"encoding/json"
	"time"
)

// Providers known to the reconciliation engine.
const (
	ProviderMomo  = "momo"
	ProviderVnpay = "vnpay"
	ProviderSepay = "sepay"
)

type EventKind string

const (
	EventKindIPN       EventKind = "ipn"
	EventKindWebhook   EventKind = "webhook"
	EventKindQuery     EventKind = "query"
	EventKindSimulated EventKind = "simulated"
)

// GatewayEvent is the canonical form every adapter translates its
// provider's wire payload into before handing it to the reconciler.
// Amount is the provider-reported value as received on the wire, in
// that provider's own unit convention; the reconciler normalizes it.
type GatewayEvent struct {
	Provider      string          `json:"provider"`
	TransactionID string          `json:"transaction_id"`
	Kind          EventKind       `json:"kind"`
	ResultCode    string          `json:"result_code"`
	Success       bool            `json:"success"`
	Amount        int64           `json:"amount"`
	GatewayRef    string          `json:"gateway_ref,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
}

// ReconcileOutcome tells the caller what happened so the provider can be
// acked correctly. Duplicate is not an error: it is the expected result
// of redelivery and must be acknowledged as success.
type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeRejected  ReconcileOutcome = "rejected"
)

type AmountStatus string

const (
	AmountExact        AmountStatus = "exact"
	AmountInsufficient AmountStatus = "insufficient"
	AmountExcess       AmountStatus = "excess"
)

// PaymentEvent is a ledger row: one received notification, immutable
// once appended. (provider, transaction_id) dedups per order.
type PaymentEvent struct {
	ID            int64           `json:"id"`
	OrderID       string          `json:"order_id"`
	Provider      string          `json:"provider"`
	TransactionID string          `json:"transaction_id"`
	Kind          EventKind       `json:"kind"`
	ResultCode    string          `json:"result_code"`
	Amount        int64           `json:"amount"`
	Discrepancy   int64           `json:"discrepancy"`
	Raw           json.RawMessage `json:"raw"`
	ReceivedAt    time.Time       `json:"received_at"`
}

// NotifyEvent is published to Kafka on terminal payment transitions so
// the notification service can email the customer.
type NotifyEvent struct {
	OrderID       string        `json:"order_id"`
	UserID        int64         `json:"user_id"`
	Amount        int64         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	EventType     string        `json:"event_type"` // payment_success, payment_failed
	Provider      string        `json:"provider"`
	TransactionID string        `json:"transaction_id"`
}
