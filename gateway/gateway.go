// Package gateway holds one adapter per payment provider. Adapters
// translate provider wire payloads into canonical events, verify them
// with that provider's signer, and hand them to the reconciliation
// engine. They also carry the outbound payment-create and status-query
// clients for the providers that have them.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"payment-gateway-svc/models"
)

var (
	// ErrInvalidSignature is a hard reject: the payload never reaches
	// the ledger or the state machine.
	ErrInvalidSignature = errors.New("invalid gateway signature")

	// ErrStatusUnknown means a query-path call timed out or returned a
	// shape we do not recognize. The order stays pending; the caller
	// retries later.
	ErrStatusUnknown = errors.New("gateway status unknown")

	// ErrNoRequestRef means the order has no outstanding gateway
	// request to query.
	ErrNoRequestRef = errors.New("no payment request found for order")
)

// OrderSource is the slice of the order store the adapters read and
// annotate when creating payments.
type OrderSource interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	SetGatewayRequest(ctx context.Context, orderID, method, gatewayOrderID string) error
}

// QueryStatus is the poll result surfaced to the caller. Pending means
// the provider has nothing new to report and nothing was ledgered.
type QueryStatus string

const (
	QueryStatusPaid    QueryStatus = "paid"
	QueryStatusPending QueryStatus = "pending"
	QueryStatusFailed  QueryStatus = "failed"
)

func defaultHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 10 * time.Second}
}
