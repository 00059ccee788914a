package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
	"github.com/cloudkitchen/fulfillment/internal/port"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrRecipeNotFound    = errors.New("recipe not found")
	ErrItemMissing       = errors.New("inventory item missing")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDeductConflict    = errors.New("deduction conflict")
	ErrDuplicateEvent    = errors.New("duplicate event")
)

// errApplyFailed marks an apply-phase failure whose partial effects have
// already been compensated, so a fresh snapshot attempt is safe.
var errApplyFailed = errors.New("deduction not applied")

const (
	// LowStockThreshold is the quantity below which an alert is published.
	LowStockThreshold = 5

	DefaultDeductAttempts = 3
)

// IsTerminal reports whether err is a fulfillment outcome rather than a
// transient failure. Terminal outcomes must be acknowledged; transient ones
// are left to queue redelivery.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrRecipeNotFound) ||
		errors.Is(err, ErrItemMissing) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDeductConflict) ||
		errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, domain.ErrInvalidRecipe)
}

type FulfillmentService struct {
	inventory   port.InventoryRepository
	orders      port.OrderRepository
	recipes     port.RecipeRepository
	notifier    port.Notifier
	logger      *zap.Logger
	maxAttempts int
}

func NewFulfillmentService(
	inventory port.InventoryRepository,
	orders port.OrderRepository,
	recipes port.RecipeRepository,
	notifier port.Notifier,
	logger *zap.Logger,
	maxAttempts int,
) *FulfillmentService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultDeductAttempts
	}
	return &FulfillmentService{
		inventory:   inventory,
		orders:      orders,
		recipes:     recipes,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Process reconciles one fulfillment event against inventory and moves the
// order to a terminal status. It is safe to call multiple times for the same
// event: a redelivered event for an already-terminal order is discarded.
func (s *FulfillmentService) Process(ctx context.Context, event domain.FulfillmentEvent) error {
	order, err := s.orders.GetOrder(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("get order %s: %w", event.OrderID, err)
	}
	if order == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, event.OrderID)
	}
	if order.Status.Terminal() {
		s.logger.Info("duplicate event discarded",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)))
		return fmt.Errorf("%w: order %s already %s", ErrDuplicateEvent, order.ID, order.Status)
	}

	recipe, err := s.recipes.GetRecipe(ctx, event.RecipeID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRecipe) {
			s.fail(ctx, order.ID)
		}
		return fmt.Errorf("get recipe %s: %w", event.RecipeID, err)
	}
	if recipe == nil {
		s.fail(ctx, order.ID)
		return fmt.Errorf("%w: %s", ErrRecipeNotFound, event.RecipeID)
	}
	if err := recipe.Validate(); err != nil {
		// The store boundary already rejects these; this is the engine's own
		// guard so no repository implementation can invert a deduction.
		s.fail(ctx, order.ID)
		return err
	}

	wants := sortedIngredients(recipe)

	applied, err := s.deduct(ctx, order.ID, wants)
	if err != nil {
		if IsTerminal(err) {
			s.fail(ctx, order.ID)
		}
		return err
	}

	won, err := s.orders.FinalizeOrder(ctx, order.ID, domain.OrderStatusCompleted)
	if err != nil {
		// Status unknown: the write may or may not have landed, so neither
		// compensating nor retrying here is provably safe. Left to
		// redelivery and, in the worst case, reconciliation tooling.
		return fmt.Errorf("finalize order %s: %w", order.ID, err)
	}
	if !won {
		// Another worker already finalized this order; undo our deduction so
		// only one deduction survives the duplicate.
		s.compensate(ctx, order.ID, wants)
		return fmt.Errorf("%w: order %s finalized by another worker", ErrDuplicateEvent, order.ID)
	}

	s.publishLowStock(ctx, wants, applied)

	s.logger.Info("order completed",
		zap.String("order_id", order.ID),
		zap.String("recipe_id", recipe.ID))
	return nil
}

type deduction struct {
	itemID string
	qty    int
}

type appliedItem struct {
	name   string
	newQty int
}

// sortedIngredients flattens the ingredient map in item-id order so that
// concurrent orders over overlapping recipes contend in a stable sequence.
func sortedIngredients(recipe *domain.Recipe) []deduction {
	out := make([]deduction, 0, len(recipe.Ingredients))
	for id, qty := range recipe.Ingredients {
		out = append(out, deduction{itemID: id, qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].itemID < out[j].itemID })
	return out
}

// deduct runs the snapshot / admission / conditional-apply protocol, retrying
// from a fresh snapshot when a conditional write loses a race. Whenever it
// returns an error the net inventory mutation is zero.
func (s *FulfillmentService) deduct(ctx context.Context, orderID string, wants []deduction) (map[string]appliedItem, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		applied, err := s.tryDeduct(ctx, orderID, wants)
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, errApplyFailed) {
			return nil, err
		}
		s.logger.Warn("deduction conflict, retrying",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, fmt.Errorf("%w: order %s gave up after %d attempts", ErrDeductConflict, orderID, s.maxAttempts)
}

func (s *FulfillmentService) tryDeduct(ctx context.Context, orderID string, wants []deduction) (map[string]appliedItem, error) {
	// Snapshot phase: admission is checked over the whole ingredient set
	// before any write.
	names := make(map[string]string, len(wants))
	for _, w := range wants {
		item, err := s.inventory.GetItem(ctx, w.itemID)
		if err != nil {
			return nil, fmt.Errorf("get item %s: %w", w.itemID, err)
		}
		if item == nil {
			return nil, fmt.Errorf("%w: %s", ErrItemMissing, w.itemID)
		}
		if item.Qty < w.qty {
			return nil, fmt.Errorf("%w: %s needs %d, have %d", ErrInsufficientStock, w.itemID, w.qty, item.Qty)
		}
		names[w.itemID] = item.Name
	}

	// Conditional apply phase. Any failure compensates what was already
	// applied before returning, so no partial deduction survives.
	applied := make(map[string]appliedItem, len(wants))
	done := make([]deduction, 0, len(wants))
	for _, w := range wants {
		newQty, ok, err := s.inventory.DecrementQuantity(ctx, w.itemID, w.qty)
		if err != nil || !ok {
			s.compensate(ctx, orderID, done)
			if err != nil {
				return nil, fmt.Errorf("decrement %s: %v: %w", w.itemID, err, errApplyFailed)
			}
			return nil, fmt.Errorf("lost race on %s: %w", w.itemID, errApplyFailed)
		}
		done = append(done, w)
		applied[w.itemID] = appliedItem{name: names[w.itemID], newQty: newQty}
	}
	return applied, nil
}

// compensate applies equal-and-opposite increments for already-applied
// deductions. A failure here leaves a residual inconsistency that only
// reconciliation tooling can repair.
func (s *FulfillmentService) compensate(ctx context.Context, orderID string, applied []deduction) {
	for _, d := range applied {
		if err := s.inventory.IncrementQuantity(ctx, d.itemID, d.qty); err != nil {
			s.logger.Error("CRITICAL: compensation failed",
				zap.String("order_id", orderID),
				zap.String("item_id", d.itemID),
				zap.Int("qty", d.qty),
				zap.Error(err))
		}
	}
}

func (s *FulfillmentService) fail(ctx context.Context, orderID string) {
	won, err := s.orders.FinalizeOrder(ctx, orderID, domain.OrderStatusFailed)
	if err != nil {
		s.logger.Error("failed to mark order FAILED",
			zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if !won {
		s.logger.Info("order already finalized elsewhere", zap.String("order_id", orderID))
	}
}

func (s *FulfillmentService) publishLowStock(ctx context.Context, wants []deduction, applied map[string]appliedItem) {
	for _, w := range wants {
		a, ok := applied[w.itemID]
		if !ok || a.newQty >= LowStockThreshold {
			continue
		}
		msg := fmt.Sprintf("Low stock alert: %s has qty %d", a.name, a.newQty)
		if err := s.notifier.Publish(ctx, "Low Stock Alert", msg); err != nil {
			s.logger.Error("low stock publish failed",
				zap.String("item_id", w.itemID), zap.Error(err))
		}
	}
}
