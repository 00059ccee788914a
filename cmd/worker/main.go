package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cloudkitchen/fulfillment/internal/adapter/notifier"
	"github.com/cloudkitchen/fulfillment/internal/adapter/queue"
	"github.com/cloudkitchen/fulfillment/internal/adapter/storage"
	"github.com/cloudkitchen/fulfillment/internal/config"
	"github.com/cloudkitchen/fulfillment/internal/consumer"
	"github.com/cloudkitchen/fulfillment/internal/core/service"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Initialize RabbitMQ
	orderQueue, err := queue.NewRabbitMQQueue(cfg.AMQPURL, cfg.OrderQueueName, cfg.ReceiveMax*cfg.WorkerCount)
	if err != nil {
		logger.Fatal("failed to connect order queue", zap.Error(err))
	}
	alerts, err := notifier.NewRabbitMQNotifier(cfg.AMQPURL, cfg.AlertExchange)
	if err != nil {
		logger.Fatal("failed to connect notifier", zap.Error(err))
	}
	logger.Info("connected to rabbitmq", zap.String("queue", cfg.OrderQueueName))

	store := storage.NewMySQLAdapter(db)
	inventory := storage.NewRedisAdapter(rdb)

	engine := service.NewFulfillmentService(inventory, store, store, alerts, logger, cfg.DeductAttempts)
	workers := consumer.NewFulfillmentConsumer(orderQueue, engine, logger, cfg.ReceiveMax, cfg.ReceiveWait)

	logger.Info("starting fulfillment workers", zap.Int("count", cfg.WorkerCount))
	workers.Run(ctx, cfg.WorkerCount)

	logger.Info("shutting down")
	orderQueue.Close()
	alerts.Close()
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
