package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
	"github.com/cloudkitchen/fulfillment/internal/port"
)

// IntakeService is the thin producer side: it records an order as PENDING and
// enqueues the fulfillment event. If the enqueue fails after the store write,
// the order stays PENDING indefinitely (no outbox).
type IntakeService struct {
	orders port.OrderRepository
	queue  port.OrderQueue
	logger *zap.Logger
}

func NewIntakeService(orders port.OrderRepository, queue port.OrderQueue, logger *zap.Logger) *IntakeService {
	return &IntakeService{
		orders: orders,
		queue:  queue,
		logger: logger,
	}
}

func (s *IntakeService) PlaceOrder(ctx context.Context, recipeID string) (*domain.Order, error) {
	now := time.Now()
	order := domain.Order{
		ID:        uuid.New().String(),
		RecipeID:  recipeID,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	body, err := json.Marshal(domain.FulfillmentEvent{
		OrderID:  order.ID,
		RecipeID: order.RecipeID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	if err := s.queue.Enqueue(ctx, body); err != nil {
		s.logger.Error("enqueue failed, order stuck in PENDING",
			zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("enqueue event: %w", err)
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("recipe_id", order.RecipeID))
	return &order, nil
}

func (s *IntakeService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx)
}
