package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
	"github.com/cloudkitchen/fulfillment/internal/core/service"
	"github.com/cloudkitchen/fulfillment/internal/port"
)

type fakeQueue struct {
	mu       sync.Mutex
	msgs     []port.QueueMessage
	deleted  []string
	requeued []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.msgs = append(q.msgs, port.QueueMessage{Receipt: string(body), Body: body})
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]port.QueueMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := max
	if n > len(q.msgs) {
		n = len(q.msgs)
	}
	out := q.msgs[:n]
	q.msgs = q.msgs[n:]
	return out, nil
}

func (q *fakeQueue) Delete(ctx context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.deleted = append(q.deleted, receipt)
	return nil
}

func (q *fakeQueue) Requeue(ctx context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.requeued = append(q.requeued, receipt)
	return nil
}

func (q *fakeQueue) counts() (deleted, requeued int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.deleted), len(q.requeued)
}

type fakeInventory struct {
	mu    sync.Mutex
	items map[string]*domain.InventoryItem
}

func (f *fakeInventory) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[itemID]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (f *fakeInventory) DecrementQuantity(ctx context.Context, itemID string, qty int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[itemID]
	if !ok || item.Qty < qty {
		return 0, false, nil
	}
	item.Qty -= qty
	return item.Qty, true, nil
}

func (f *fakeInventory) IncrementQuantity(ctx context.Context, itemID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if item, ok := f.items[itemID]; ok {
		item.Qty += qty
	}
	return nil
}

func (f *fakeInventory) PutItem(ctx context.Context, item domain.InventoryItem) error { return nil }

func (f *fakeInventory) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return nil, nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	getErr error
}

func (f *fakeOrders) CreateOrder(ctx context.Context, order domain.Order) error { return nil }

func (f *fakeOrders) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	order, ok := f.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrders) FinalizeOrder(ctx context.Context, orderID string, status domain.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok || order.Status != domain.OrderStatusPending {
		return false, nil
	}
	order.Status = status
	return true, nil
}

func (f *fakeOrders) ListOrders(ctx context.Context) ([]domain.Order, error) { return nil, nil }

type fakeRecipes struct {
	recipes map[string]*domain.Recipe
}

func (f *fakeRecipes) GetRecipe(ctx context.Context, recipeID string) (*domain.Recipe, error) {
	recipe, ok := f.recipes[recipeID]
	if !ok {
		return nil, nil
	}
	copied := *recipe
	return &copied, nil
}

func (f *fakeRecipes) PutRecipe(ctx context.Context, recipe domain.Recipe) error { return nil }

type fakeNotifier struct{}

func (fakeNotifier) Publish(ctx context.Context, subject, message string) error { return nil }

func newTestConsumer(queue port.OrderQueue, orders *fakeOrders, recipes *fakeRecipes, inv *fakeInventory) *FulfillmentConsumer {
	engine := service.NewFulfillmentService(inv, orders, recipes, fakeNotifier{}, zap.NewNop(), 3)
	return NewFulfillmentConsumer(queue, engine, zap.NewNop(), 10, 10*time.Millisecond)
}

func TestHandle_CompletedEventAcked(t *testing.T) {
	queue := &fakeQueue{}
	orders := &fakeOrders{orders: map[string]*domain.Order{
		"o1": {ID: "o1", RecipeID: "r1", Status: domain.OrderStatusPending},
	}}
	recipes := &fakeRecipes{recipes: map[string]*domain.Recipe{
		"r1": {ID: "r1", Ingredients: map[string]int{"flour": 1}},
	}}
	inv := &fakeInventory{items: map[string]*domain.InventoryItem{
		"flour": {ID: "flour", Name: "flour", Qty: 10},
	}}

	c := newTestConsumer(queue, orders, recipes, inv)
	c.handle(context.Background(), zap.NewNop(), port.QueueMessage{
		Receipt: "m1",
		Body:    []byte(`{"order_id":"o1","recipe":"r1"}`),
	})

	deleted, requeued := queue.counts()
	if deleted != 1 || requeued != 0 {
		t.Errorf("expected 1 delete and 0 requeues, got %d/%d", deleted, requeued)
	}
	if orders.orders["o1"].Status != domain.OrderStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", orders.orders["o1"].Status)
	}
}

func TestHandle_UnknownFieldsTolerated(t *testing.T) {
	queue := &fakeQueue{}
	orders := &fakeOrders{orders: map[string]*domain.Order{
		"o1": {ID: "o1", RecipeID: "r1", Status: domain.OrderStatusPending},
	}}
	recipes := &fakeRecipes{recipes: map[string]*domain.Recipe{
		"r1": {ID: "r1", Ingredients: map[string]int{"flour": 1}},
	}}
	inv := &fakeInventory{items: map[string]*domain.InventoryItem{
		"flour": {ID: "flour", Name: "flour", Qty: 10},
	}}

	c := newTestConsumer(queue, orders, recipes, inv)
	c.handle(context.Background(), zap.NewNop(), port.QueueMessage{
		Receipt: "m1",
		Body:    []byte(`{"order_id":"o1","recipe":"r1","source":"web","attempt":2}`),
	})

	if orders.orders["o1"].Status != domain.OrderStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", orders.orders["o1"].Status)
	}
}

func TestHandle_PoisonMessageAcked(t *testing.T) {
	queue := &fakeQueue{}
	c := newTestConsumer(queue, &fakeOrders{}, &fakeRecipes{}, &fakeInventory{})

	c.handle(context.Background(), zap.NewNop(), port.QueueMessage{
		Receipt: "bad-json",
		Body:    []byte(`{not json`),
	})
	c.handle(context.Background(), zap.NewNop(), port.QueueMessage{
		Receipt: "no-ids",
		Body:    []byte(`{"order_id":""}`),
	})

	deleted, requeued := queue.counts()
	if deleted != 2 || requeued != 0 {
		t.Errorf("poison messages must be acked, got %d deletes / %d requeues", deleted, requeued)
	}
}

func TestHandle_TerminalFailureAcked(t *testing.T) {
	queue := &fakeQueue{}
	orders := &fakeOrders{orders: map[string]*domain.Order{
		"o1": {ID: "o1", RecipeID: "gone", Status: domain.OrderStatusPending},
	}}

	c := newTestConsumer(queue, orders, &fakeRecipes{}, &fakeInventory{})
	c.handle(context.Background(), zap.NewNop(), port.QueueMessage{
		Receipt: "m1",
		Body:    []byte(`{"order_id":"o1","recipe":"gone"}`),
	})

	deleted, requeued := queue.counts()
	if deleted != 1 || requeued != 0 {
		t.Errorf("terminal failure must be acked, got %d/%d", deleted, requeued)
	}
	if orders.orders["o1"].Status != domain.OrderStatusFailed {
		t.Errorf("expected FAILED, got %s", orders.orders["o1"].Status)
	}
}

func TestHandle_TransientFailureRequeued(t *testing.T) {
	queue := &fakeQueue{}
	orders := &fakeOrders{getErr: errors.New("connection refused")}

	c := newTestConsumer(queue, orders, &fakeRecipes{}, &fakeInventory{})
	c.handle(context.Background(), zap.NewNop(), port.QueueMessage{
		Receipt: "m1",
		Body:    []byte(`{"order_id":"o1","recipe":"r1"}`),
	})

	deleted, requeued := queue.counts()
	if deleted != 0 || requeued != 1 {
		t.Errorf("transient failure must be requeued, got %d deletes / %d requeues", deleted, requeued)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	queue := &fakeQueue{}
	c := newTestConsumer(queue, &fakeOrders{}, &fakeRecipes{}, &fakeInventory{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 3)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after cancel")
	}
}
