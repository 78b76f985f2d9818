package gateway

import (
	"context"
	"fmt"
	"sync"

	"payment-gateway-svc/models"
	"payment-gateway-svc/recon"
)

// stubStore backs adapter tests with the same uniqueness and
// conditional-flip behavior the SQL layer provides.
type stubStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	events map[string]models.PaymentEvent
}

func newStubStore() *stubStore {
	return &stubStore{
		orders: make(map[string]*models.Order),
		events: make(map[string]models.PaymentEvent),
	}
}

func (s *stubStore) addOrder(id string, total int64) *models.Order {
	order := &models.Order{
		ID:            id,
		UserID:        7,
		Total:         total,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	s.orders[id] = order
	return order
}

func (s *stubStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, recon.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *stubStore) SetGatewayRequest(ctx context.Context, orderID, method, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[orderID]; ok {
		order.PaymentMethod = method
		order.Gateway = method
		order.GatewayOrderID = gatewayOrderID
	}
	return nil
}

func (s *stubStore) AppendEvent(ctx context.Context, ev models.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", ev.OrderID, ev.Provider, ev.TransactionID)
	if _, exists := s.events[key]; exists {
		return recon.ErrDuplicateEvent
	}
	s.events[key] = ev
	return nil
}

func (s *stubStore) MarkPaid(ctx context.Context, orderID string, status models.OrderStatus, meta recon.PaidMeta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orders[orderID]
	if order.PaymentStatus != models.PaymentStatusPending && order.PaymentStatus != models.PaymentStatusPartial {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusPaid
	order.Status = status
	order.Gateway = meta.Provider
	order.GatewayTransactionID = meta.TransactionID
	paidAt := meta.PaidAt
	order.PaidAt = &paidAt
	return true, nil
}

func (s *stubStore) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orders[orderID]
	if order.PaymentStatus != models.PaymentStatusPending && order.PaymentStatus != models.PaymentStatusPartial {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusFailed
	order.Status = models.OrderStatusCancelled
	return true, nil
}

func (s *stubStore) MarkPartial(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orders[orderID]
	if order.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusPartial
	return true, nil
}

func (s *stubStore) AdjustStockOnce(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := s.orders[orderID]
	if order.StockAdjusted {
		return false, nil
	}
	order.StockAdjusted = true
	return true, nil
}

func (s *stubStore) eventKinds(orderID string) []models.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []models.EventKind
	for _, ev := range s.events {
		if ev.OrderID == orderID {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}
