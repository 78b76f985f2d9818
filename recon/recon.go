// Package recon reconciles asynchronous gateway payment notifications
// against locally created orders. Every adapter and the active poller
// funnel through Engine.Reconcile; nothing else in the service mutates
// payment state.
package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-gateway-svc/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrOrderNotFound means the event referenced an order this shop
	// never created - a correlation bug or a forged reference.
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateEvent is returned by Store.AppendEvent when the
	// (order, provider, transaction) triple is already in the ledger.
	ErrDuplicateEvent = errors.New("duplicate payment event")
)

// Store is the slice of the order layer the engine consumes. AppendEvent
// must enforce ledger uniqueness per (order, provider, transaction).
// The Mark* operations are compare-and-sets guarded by the current
// payment state and report whether they transitioned; a false return
// means the order was already terminal and the event carries stale
// information. AdjustStockOnce must be a conditional flip that can only
// ever succeed once per order. Together these keep the engine correct
// under concurrent delivery without any in-process locking.
type Store interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	AppendEvent(ctx context.Context, ev models.PaymentEvent) error
	MarkPaid(ctx context.Context, orderID string, status models.OrderStatus, meta PaidMeta) (bool, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
	MarkPartial(ctx context.Context, orderID string) (bool, error)
	AdjustStockOnce(ctx context.Context, orderID string) (bool, error)
}

// PaidMeta is stamped onto the order when a payment completes.
type PaidMeta struct {
	Provider      string
	TransactionID string
	GatewayRef    string
	PaidAt        time.Time
}

// Notifier publishes terminal payment transitions for the notification
// service.
type Notifier interface {
	Publish(ctx context.Context, event models.NotifyEvent) error
}

type Engine struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

func NewEngine(store Store, notifier Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Result is what Reconcile reports back so the handler can ack the
// provider in its native shape.
type Result struct {
	Outcome       models.ReconcileOutcome
	AmountStatus  models.AmountStatus
	PaymentStatus models.PaymentStatus
}

// Reconcile applies one verified gateway event to its order:
//  1. load the order (unknown order rejects),
//  2. append to the ledger - a duplicate insert means redelivery and is
//     acknowledged as success with no state change,
//  3. advance payment state: success with sufficient amount pays the
//     order and decrements stock exactly once, insufficient amount marks
//     it partial, failure cancels it.
//
// Signature verification happens in the adapters before this point; an
// unverified payload never reaches the ledger.
func (e *Engine) Reconcile(ctx context.Context, orderID string, ev models.GatewayEvent) (Result, error) {
	ctx, span := otel.Tracer("payment-gateway-svc").Start(ctx, "Reconcile")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.provider", ev.Provider),
		attribute.String("payment.transaction_id", ev.TransactionID),
		attribute.String("payment.event_kind", string(ev.Kind)),
	)

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			e.logger.Error("Reconcile rejected: order not found",
				zap.String("order_id", orderID),
				zap.String("provider", ev.Provider),
				zap.String("transaction_id", ev.TransactionID),
			)
			return Result{Outcome: models.OutcomeRejected}, ErrOrderNotFound
		}
		span.RecordError(err)
		return Result{}, fmt.Errorf("failed to load order: %w", err)
	}

	amountStatus, normalized := AmountStatus(ev.Provider, order.Total, ev.Amount)
	span.SetAttributes(attribute.String("payment.amount_status", string(amountStatus)))

	var discrepancy int64
	if amountStatus == models.AmountExcess {
		discrepancy = normalized - order.Total
	}

	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	// Append unconditionally once the order is known; failed and partial
	// results are ledgered too, for dispute resolution.
	entry := models.PaymentEvent{
		OrderID:       orderID,
		Provider:      ev.Provider,
		TransactionID: ev.TransactionID,
		Kind:          ev.Kind,
		ResultCode:    ev.ResultCode,
		Amount:        normalized,
		Discrepancy:   discrepancy,
		Raw:           ev.RawPayload,
		ReceivedAt:    receivedAt,
	}
	if err := e.store.AppendEvent(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			e.logger.Info("Duplicate payment event ignored",
				zap.String("order_id", orderID),
				zap.String("provider", ev.Provider),
				zap.String("transaction_id", ev.TransactionID),
			)
			return Result{
				Outcome:       models.OutcomeDuplicate,
				AmountStatus:  amountStatus,
				PaymentStatus: order.PaymentStatus,
			}, nil
		}
		span.RecordError(err)
		return Result{}, fmt.Errorf("failed to append payment event: %w", err)
	}

	switch {
	case ev.Success && amountStatus == models.AmountInsufficient:
		transitioned, err := e.store.MarkPartial(ctx, orderID)
		if err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("failed to mark order partial: %w", err)
		}
		if !transitioned {
			return e.staleEvent(orderID, order, ev, amountStatus), nil
		}
		e.logger.Warn("Partial payment received",
			zap.String("order_id", orderID),
			zap.String("provider", ev.Provider),
			zap.Int64("expected", order.Total),
			zap.Int64("received", normalized),
		)
		return Result{
			Outcome:       models.OutcomeApplied,
			AmountStatus:  amountStatus,
			PaymentStatus: models.PaymentStatusPartial,
		}, nil

	case ev.Success:
		meta := PaidMeta{
			Provider:      ev.Provider,
			TransactionID: ev.TransactionID,
			GatewayRef:    ev.GatewayRef,
			PaidAt:        receivedAt,
		}
		transitioned, err := e.store.MarkPaid(ctx, orderID, paidOrderStatus(ev.Provider), meta)
		if err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("failed to mark order paid: %w", err)
		}
		if !transitioned {
			// The order is already terminal (failed or cancelled): the
			// compare-and-set held. Never touch stock or notify off a
			// state change that did not happen.
			return e.staleEvent(orderID, order, ev, amountStatus), nil
		}

		adjusted, err := e.store.AdjustStockOnce(ctx, orderID)
		if err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("failed to adjust stock: %w", err)
		}
		if adjusted {
			e.logger.Info("Stock adjusted for order", zap.String("order_id", orderID))
		}

		if discrepancy > 0 {
			e.logger.Warn("Excess payment accepted",
				zap.String("order_id", orderID),
				zap.String("provider", ev.Provider),
				zap.Int64("expected", order.Total),
				zap.Int64("received", normalized),
				zap.Int64("discrepancy", discrepancy),
			)
		}

		e.notify(ctx, models.NotifyEvent{
			OrderID:       orderID,
			UserID:        order.UserID,
			Amount:        normalized,
			Status:        models.PaymentStatusPaid,
			EventType:     "payment_success",
			Provider:      ev.Provider,
			TransactionID: ev.TransactionID,
		})

		e.logger.Info("Payment reconciled",
			zap.String("order_id", orderID),
			zap.String("provider", ev.Provider),
			zap.String("transaction_id", ev.TransactionID),
			zap.String("kind", string(ev.Kind)),
		)
		return Result{
			Outcome:       models.OutcomeApplied,
			AmountStatus:  amountStatus,
			PaymentStatus: models.PaymentStatusPaid,
		}, nil

	default:
		transitioned, err := e.store.MarkFailed(ctx, orderID)
		if err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("failed to mark order failed: %w", err)
		}
		if !transitioned {
			return e.staleEvent(orderID, order, ev, amountStatus), nil
		}

		e.notify(ctx, models.NotifyEvent{
			OrderID:       orderID,
			UserID:        order.UserID,
			Amount:        normalized,
			Status:        models.PaymentStatusFailed,
			EventType:     "payment_failed",
			Provider:      ev.Provider,
			TransactionID: ev.TransactionID,
		})

		e.logger.Info("Payment failed",
			zap.String("order_id", orderID),
			zap.String("provider", ev.Provider),
			zap.String("result_code", ev.ResultCode),
		)
		return Result{
			Outcome:       models.OutcomeApplied,
			AmountStatus:  amountStatus,
			PaymentStatus: models.PaymentStatusFailed,
		}, nil
	}
}

// staleEvent handles a ledgered event whose state transition was
// refused by the store's compare-and-set: the order already reached a
// terminal state through some earlier event. The event stays on the
// ledger for dispute resolution, but it must not move stock, publish
// notifications, or claim a state the store does not hold.
func (e *Engine) staleEvent(orderID string, order *models.Order, ev models.GatewayEvent, amountStatus models.AmountStatus) Result {
	e.logger.Warn("Stale payment event for settled order",
		zap.String("order_id", orderID),
		zap.String("provider", ev.Provider),
		zap.String("transaction_id", ev.TransactionID),
		zap.String("result_code", ev.ResultCode),
		zap.String("payment_status", string(order.PaymentStatus)),
	)
	return Result{
		Outcome:       models.OutcomeApplied,
		AmountStatus:  amountStatus,
		PaymentStatus: order.PaymentStatus,
	}
}

// paidOrderStatus is provider-specific: card and wallet payments settle
// instantly and move the order to paid; bank transfers go to processing
// pending manual fulfillment checks.
func paidOrderStatus(provider string) models.OrderStatus {
	if provider == models.ProviderSepay {
		return models.OrderStatusProcessing
	}
	return models.OrderStatusPaid
}

func (e *Engine) notify(ctx context.Context, event models.NotifyEvent) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, event); err != nil {
		// Notification is best effort; reconciliation already committed.
		e.logger.Error("Failed to publish payment event",
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}
