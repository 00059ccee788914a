package port

import (
	"context"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
)

type InventoryRepository interface {
	// GetItem retrieves an item by ID, returning nil if it does not exist.
	GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error)

	// DecrementQuantity conditionally deducts qty from an item. The deduction
	// applies only if the current quantity is at least qty; ok reports whether
	// it applied, and newQty is the post-update quantity when it did. A missing
	// item counts as a failed condition.
	DecrementQuantity(ctx context.Context, itemID string, qty int) (newQty int, ok bool, err error)

	// IncrementQuantity restores qty units (compensation for a partial deduction).
	IncrementQuantity(ctx context.Context, itemID string, qty int) error

	// PutItem creates or replaces an item.
	PutItem(ctx context.Context, item domain.InventoryItem) error

	// ListItems enumerates all items. Reporting views only; the deduction
	// path must use point reads.
	ListItems(ctx context.Context) ([]domain.InventoryItem, error)
}
