package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cloudkitchen/fulfillment/internal/adapter/handler"
	"github.com/cloudkitchen/fulfillment/internal/adapter/queue"
	"github.com/cloudkitchen/fulfillment/internal/adapter/storage"
	"github.com/cloudkitchen/fulfillment/internal/config"
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
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Initialize Redis (read-only inventory view)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Initialize order queue
	orderQueue, err := queue.NewRabbitMQQueue(cfg.AMQPURL, cfg.OrderQueueName, 1)
	if err != nil {
		logger.Fatal("failed to connect order queue", zap.Error(err))
	}
	logger.Info("connected to rabbitmq", zap.String("queue", cfg.OrderQueueName))

	store := storage.NewMySQLAdapter(db)
	inventory := storage.NewRedisAdapter(rdb)
	intake := service.NewIntakeService(store, orderQueue, logger)

	httpHandler := handler.NewHTTPHandler(intake, inventory)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			httpHandler.PlaceOrder(w, r)
			return
		}
		httpHandler.ListOrders(w, r)
	})
	mux.HandleFunc("/api/inventory", httpHandler.ListInventory)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("intake HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	orderQueue.Close()
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
