package port

import (
	"context"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists a new order in PENDING.
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder retrieves an order by ID, returning nil if it does not exist.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// FinalizeOrder moves an order to a terminal status only if it is still
	// PENDING. ok reports whether this write won; false means another worker
	// already finalized the order.
	FinalizeOrder(ctx context.Context, orderID string, status domain.OrderStatus) (ok bool, err error)

	// ListOrders enumerates all orders, newest first. Reporting views only.
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

type RecipeRepository interface {
	// GetRecipe retrieves a recipe by ID, returning nil if it does not exist.
	GetRecipe(ctx context.Context, recipeID string) (*domain.Recipe, error)

	// PutRecipe creates or replaces a recipe.
	PutRecipe(ctx context.Context, recipe domain.Recipe) error
}
