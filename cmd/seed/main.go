// Command seed wipes orders, recipes, inventory and the order queue, then
// loads a small sample data set. Operational tooling, never run in production.
package main

import (
	"context"
	"database/sql"
	"log"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/cloudkitchen/fulfillment/internal/adapter/queue"
	"github.com/cloudkitchen/fulfillment/internal/adapter/storage"
	"github.com/cloudkitchen/fulfillment/internal/config"
	"github.com/cloudkitchen/fulfillment/internal/core/domain"
)

const sampleRecipeID = "pancakes"

var sampleInventory = []domain.InventoryItem{
	{ID: "flour", Name: "Flour", Qty: 10},
	{ID: "sugar", Name: "Sugar", Qty: 10},
	{ID: "eggs", Name: "Eggs", Qty: 12},
	{ID: "milk", Name: "Milk", Qty: 8},
	{ID: "butter", Name: "Butter", Qty: 6},
}

var sampleRecipe = domain.Recipe{
	ID:   sampleRecipeID,
	Name: "Pancakes",
	Ingredients: map[string]int{
		"flour": 2,
		"sugar": 1,
		"eggs":  2,
		"milk":  1,
	},
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}

	orderQueue, err := queue.NewRabbitMQQueue(cfg.AMQPURL, cfg.OrderQueueName, 1)
	if err != nil {
		log.Fatalf("failed to connect rabbitmq: %v", err)
	}
	defer orderQueue.Close()

	// Clear everything
	if _, err := db.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		log.Fatalf("failed to clear orders: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM recipes`); err != nil {
		log.Fatalf("failed to clear recipes: %v", err)
	}
	log.Println("cleared orders and recipes")

	inventory := storage.NewRedisAdapter(rdb)
	if err := inventory.DeleteAllItems(ctx); err != nil {
		log.Fatalf("failed to clear inventory: %v", err)
	}
	log.Println("cleared inventory")

	if err := orderQueue.Purge(); err != nil {
		log.Fatalf("failed to purge queue: %v", err)
	}
	log.Printf("purged queue %s", cfg.OrderQueueName)

	// Load sample data
	for _, item := range sampleInventory {
		if err := inventory.PutItem(ctx, item); err != nil {
			log.Fatalf("failed to seed item %s: %v", item.ID, err)
		}
	}
	log.Printf("seeded %d inventory items", len(sampleInventory))

	store := storage.NewMySQLAdapter(db)
	if err := store.PutRecipe(ctx, sampleRecipe); err != nil {
		log.Fatalf("failed to seed recipe: %v", err)
	}
	log.Printf("seeded recipe %s", sampleRecipeID)
}
