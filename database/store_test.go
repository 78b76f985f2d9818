package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) (*OrderStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOrderStore(db, zaptest.NewLogger(t)), mock
}

func TestGetOrder(t *testing.T) {
	store, mock := newTestStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "total", "status", "payment_method", "payment_status",
		"gateway", "gateway_order_id", "gateway_transaction_id",
		"paid_at", "stock_adjusted", "created_at",
	}).AddRow("order1", 7, 500000, "pending", "momo", "pending", "", "", "", nil, false, now)

	mock.ExpectQuery("SELECT id, user_id, total").
		WithArgs("order1").
		WillReturnRows(rows)

	order, err := store.GetOrder(context.Background(), "order1")
	if err != nil {
		t.Fatalf("GetOrder returned error: %v", err)
	}
	if order.ID != "order1" || order.Total != 500000 {
		t.Errorf("unexpected order: %+v", order)
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("payment status = %s, want pending", order.PaymentStatus)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id, user_id, total").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetOrder(context.Background(), "ghost")
	if !errors.Is(err, recon.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestAppendEvent(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO payment_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.AppendEvent(context.Background(), models.PaymentEvent{
		OrderID:       "order1",
		Provider:      models.ProviderMomo,
		TransactionID: "tx1",
		Kind:          models.EventKindIPN,
		ResultCode:    "0",
		Amount:        500000,
		ReceivedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendEvent returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppendEventDuplicate(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO payment_events").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := store.AppendEvent(context.Background(), models.PaymentEvent{
		OrderID:       "order1",
		Provider:      models.ProviderMomo,
		TransactionID: "tx1",
		ReceivedAt:    time.Now(),
	})
	if !errors.Is(err, recon.ErrDuplicateEvent) {
		t.Errorf("expected ErrDuplicateEvent for unique violation, got %v", err)
	}
}

func TestMarkPaidMonotonic(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE orders SET payment_status = 'paid'").
		WithArgs("order1", "paid", "momo", "tx1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	transitioned, err := store.MarkPaid(context.Background(), "order1", models.OrderStatusPaid, recon.PaidMeta{
		Provider:      models.ProviderMomo,
		TransactionID: "tx1",
		PaidAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("MarkPaid returned error: %v", err)
	}
	if !transitioned {
		t.Error("expected transitioned = true when a pending row matched")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkPaidTerminalOrderDoesNotTransition(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE orders SET payment_status = 'paid'").
		WithArgs("order1", "paid", "momo", "tx2", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	transitioned, err := store.MarkPaid(context.Background(), "order1", models.OrderStatusPaid, recon.PaidMeta{
		Provider:      models.ProviderMomo,
		TransactionID: "tx2",
		PaidAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("MarkPaid returned error: %v", err)
	}
	if transitioned {
		t.Error("expected transitioned = false when the monotonic guard matched no rows")
	}
}

func TestMarkFailedTerminalOrderDoesNotTransition(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE orders SET payment_status = 'failed'").
		WithArgs("order1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	transitioned, err := store.MarkFailed(context.Background(), "order1")
	if err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	if transitioned {
		t.Error("expected transitioned = false for an already-paid order")
	}
}

func TestAdjustStockOnce(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET stock_adjusted = TRUE").
		WithArgs("order1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT product_id, quantity FROM order_items").
		WithArgs("order1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity"}).
			AddRow(11, 2).
			AddRow(12, 1))
	mock.ExpectExec("UPDATE products SET stock = GREATEST").
		WithArgs(2, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products SET stock = GREATEST").
		WithArgs(1, int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	adjusted, err := store.AdjustStockOnce(context.Background(), "order1")
	if err != nil {
		t.Fatalf("AdjustStockOnce returned error: %v", err)
	}
	if !adjusted {
		t.Error("expected adjusted = true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAdjustStockOnceLostRace(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET stock_adjusted = TRUE").
		WithArgs("order1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	adjusted, err := store.AdjustStockOnce(context.Background(), "order1")
	if err != nil {
		t.Fatalf("losing the flip race must not error: %v", err)
	}
	if adjusted {
		t.Error("expected adjusted = false when another delivery already flipped the flag")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
