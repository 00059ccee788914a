package domain

// FulfillmentEvent is the queue message produced once per order. Delivery is
// at-least-once, so the same event may be processed more than once.
type FulfillmentEvent struct {
	OrderID  string `json:"order_id"`
	RecipeID string `json:"recipe"`
}
