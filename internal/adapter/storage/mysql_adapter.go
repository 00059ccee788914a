package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, recipe_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.RecipeID, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT order_id, recipe_id, status, created_at, updated_at
		FROM orders WHERE order_id = ?`, orderID,
	).Scan(&order.ID, &order.RecipeID, &order.Status, &order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	return &order, nil
}

// FinalizeOrder moves an order to a terminal status, guarded on it still
// being PENDING. At most one such write wins per order.
func (m *MySQLAdapter) FinalizeOrder(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, updated_at = NOW()
		WHERE order_id = ? AND status = ?`,
		status, orderID, domain.OrderStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("finalize order: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize order: %w", err)
	}
	return rows == 1, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, recipe_id, status, created_at, updated_at
		FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.RecipeID, &order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (m *MySQLAdapter) GetRecipe(ctx context.Context, recipeID string) (*domain.Recipe, error) {
	var (
		recipe      domain.Recipe
		ingredients []byte
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT recipe_id, name, ingredients
		FROM recipes WHERE recipe_id = ?`, recipeID,
	).Scan(&recipe.ID, &recipe.Name, &ingredients)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query recipe: %w", err)
	}

	if err := json.Unmarshal(ingredients, &recipe.Ingredients); err != nil {
		return nil, fmt.Errorf("recipe %s has malformed ingredients: %w", recipeID, err)
	}
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	return &recipe, nil
}

func (m *MySQLAdapter) PutRecipe(ctx context.Context, recipe domain.Recipe) error {
	if err := recipe.Validate(); err != nil {
		return err
	}

	ingredients, err := json.Marshal(recipe.Ingredients)
	if err != nil {
		return fmt.Errorf("marshal ingredients: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO recipes (recipe_id, name, ingredients)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), ingredients = VALUES(ingredients)`,
		recipe.ID, recipe.Name, ingredients,
	)
	if err != nil {
		return fmt.Errorf("upsert recipe: %w", err)
	}
	return nil
}
