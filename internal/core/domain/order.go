package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

type Order struct {
	ID        string
	RecipeID  string
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
