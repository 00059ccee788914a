package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
)

const itemKeyPrefix = "item:"

const (
	deductMissing      = -1
	deductInsufficient = -2
)

// deductScript decrements an item's quantity only if it still covers the
// requested amount, returning the post-update quantity. The inequality guard
// only fails under true contention on the same item.
var deductScript = redis.NewScript(`
local key = KEYS[1]
local need = tonumber(ARGV[1])

local qty = redis.call('HGET', key, 'qty')
if not qty then
	return -1
end

qty = tonumber(qty)
if qty >= need then
	return redis.call('HINCRBY', key, 'qty', -need)
end

return -2
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	fields, err := r.client.HGetAll(ctx, itemKeyPrefix+itemID).Result()
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	qty, err := strconv.Atoi(fields["qty"])
	if err != nil {
		return nil, fmt.Errorf("item %s has malformed qty %q", itemID, fields["qty"])
	}

	return &domain.InventoryItem{
		ID:   itemID,
		Name: fields["name"],
		Qty:  qty,
	}, nil
}

func (r *RedisAdapter) DecrementQuantity(ctx context.Context, itemID string, qty int) (int, bool, error) {
	if qty <= 0 {
		return 0, false, fmt.Errorf("decrement %s: amount %d must be positive", itemID, qty)
	}

	result, err := deductScript.Run(ctx, r.client, []string{itemKeyPrefix + itemID}, qty).Int()
	if err != nil {
		return 0, false, fmt.Errorf("decrement %s: %w", itemID, err)
	}

	switch result {
	case deductMissing, deductInsufficient:
		return 0, false, nil
	default:
		return result, true, nil
	}
}

func (r *RedisAdapter) IncrementQuantity(ctx context.Context, itemID string, qty int) error {
	return r.client.HIncrBy(ctx, itemKeyPrefix+itemID, "qty", int64(qty)).Err()
}

func (r *RedisAdapter) PutItem(ctx context.Context, item domain.InventoryItem) error {
	if item.ID == "" {
		return fmt.Errorf("put item: empty id")
	}
	if item.Qty < 0 {
		return fmt.Errorf("put item %s: qty %d must not be negative", item.ID, item.Qty)
	}
	return r.client.HSet(ctx, itemKeyPrefix+item.ID, "name", item.Name, "qty", item.Qty).Err()
}

// ListItems scans the keyspace; reporting views only.
func (r *RedisAdapter) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem

	iter := r.client.Scan(ctx, 0, itemKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		itemID := iter.Val()[len(itemKeyPrefix):]
		item, err := r.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, *item)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}

	return items, nil
}

// DeleteAllItems removes every inventory item. Reset tooling only.
func (r *RedisAdapter) DeleteAllItems(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, itemKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
