package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pqUniqueViolation = "23505"

// OrderStore is the Postgres implementation of recon.Store plus the few
// extra reads and writes the gateway adapters and handlers need.
type OrderStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderStore(db *sql.DB, logger *zap.Logger) *OrderStore {
	return &OrderStore{db: db, logger: logger}
}

func (s *OrderStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, total, status, COALESCE(payment_method, ''), payment_status,
			COALESCE(gateway, ''), COALESCE(gateway_order_id, ''), COALESCE(gateway_transaction_id, ''),
			paid_at, stock_adjusted, created_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(
		&order.ID, &order.UserID, &order.Total, &order.Status, &order.PaymentMethod,
		&order.PaymentStatus, &order.Gateway, &order.GatewayOrderID,
		&order.GatewayTransactionID, &order.PaidAt, &order.StockAdjusted, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recon.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// AppendEvent inserts a ledger row. The unique constraint on
// (order_id, provider, transaction_id) turns concurrent redelivery into
// recon.ErrDuplicateEvent; no lock is taken.
func (s *OrderStore) AppendEvent(ctx context.Context, ev models.PaymentEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_events (order_id, provider, transaction_id, kind, result_code, amount, discrepancy, raw, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.OrderID, ev.Provider, ev.TransactionID, ev.Kind, ev.ResultCode,
		ev.Amount, ev.Discrepancy, []byte(ev.Raw), ev.ReceivedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return recon.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to append payment event: %w", err)
	}
	return nil
}

// MarkPaid advances payment state to paid. The WHERE clause keeps the
// transition monotonic: an order already paid or failed is not touched,
// and zero rows affected tells the caller the compare-and-set held.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID string, status models.OrderStatus, meta recon.PaidMeta) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = 'paid', status = $2, gateway = $3,
			gateway_transaction_id = $4, gateway_order_id = COALESCE(NULLIF($5, ''), gateway_order_id),
			paid_at = $6
		 WHERE id = $1 AND payment_status IN ('pending', 'partial')`,
		orderID, status, meta.Provider, meta.TransactionID, meta.GatewayRef, meta.PaidAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *OrderStore) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = 'failed', status = 'cancelled'
		 WHERE id = $1 AND payment_status IN ('pending', 'partial')`,
		orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *OrderStore) MarkPartial(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = 'partial' WHERE id = $1 AND payment_status = 'pending'`,
		orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order partial: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// AdjustStockOnce flips stock_adjusted false->true and decrements stock
// for every order line inside one transaction. The conditional update is
// the serialization point: losing the race returns (false, nil), which
// callers treat as "someone else already did it".
func (s *OrderStore) AdjustStockOnce(ctx context.Context, orderID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET stock_adjusted = TRUE WHERE id = $1 AND stock_adjusted = FALSE`,
		orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to flip stock_adjusted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM order_items WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to load order items: %w", err)
	}
	type line struct {
		productID int64
		quantity  int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.quantity); err != nil {
			rows.Close()
			return false, fmt.Errorf("failed to scan order item: %w", err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate order items: %w", err)
	}

	for _, l := range lines {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = GREATEST(stock - $1, 0) WHERE id = $2`,
			l.quantity, l.productID,
		); err != nil {
			return false, fmt.Errorf("failed to decrement stock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}

	s.logger.Info("Inventory decremented",
		zap.String("order_id", orderID),
		zap.Int("lines", len(lines)),
	)
	return true, nil
}

// SetGatewayRequest persists the gateway-assigned request reference when
// a payment is created, so the active poller can query it later.
func (s *OrderStore) SetGatewayRequest(ctx context.Context, orderID, method, gatewayOrderID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_method = $2, gateway = $2, gateway_order_id = $3
		 WHERE id = $1 AND payment_status = 'pending'`,
		orderID, method, gatewayOrderID,
	)
	if err != nil {
		return fmt.Errorf("failed to set gateway request: %w", err)
	}
	return nil
}
