package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloudkitchen/fulfillment/internal/core/domain"
	"github.com/cloudkitchen/fulfillment/internal/core/service"
	"github.com/cloudkitchen/fulfillment/internal/port"
)

const receiveBackoff = time.Second

// FulfillmentConsumer pulls fulfillment events off the order queue and feeds
// them to the engine. Terminal outcomes acknowledge the delivery; transient
// failures return it to the queue for another worker.
type FulfillmentConsumer struct {
	queue       port.OrderQueue
	engine      *service.FulfillmentService
	logger      *zap.Logger
	receiveMax  int
	receiveWait time.Duration
}

func NewFulfillmentConsumer(
	queue port.OrderQueue,
	engine *service.FulfillmentService,
	logger *zap.Logger,
	receiveMax int,
	receiveWait time.Duration,
) *FulfillmentConsumer {
	return &FulfillmentConsumer{
		queue:       queue,
		engine:      engine,
		logger:      logger,
		receiveMax:  receiveMax,
		receiveWait: receiveWait,
	}
}

// Run starts workers concurrent poll loops and blocks until ctx is canceled
// and all of them have drained.
func (c *FulfillmentConsumer) Run(ctx context.Context, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (c *FulfillmentConsumer) loop(ctx context.Context, id int) {
	logger := c.logger.With(zap.Int("worker", id))
	logger.Info("worker started")

	for {
		msgs, err := c.queue.Receive(ctx, c.receiveMax, c.receiveWait)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("worker stopping")
				return
			}
			logger.Error("receive failed", zap.Error(err))
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				logger.Info("worker stopping")
				return
			}
			continue
		}

		for _, msg := range msgs {
			c.handle(ctx, logger, msg)
		}

		if ctx.Err() != nil {
			logger.Info("worker stopping")
			return
		}
	}
}

func (c *FulfillmentConsumer) handle(ctx context.Context, logger *zap.Logger, msg port.QueueMessage) {
	var event domain.FulfillmentEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Error("dropping unparseable message", zap.Error(err))
		c.ack(ctx, logger, msg.Receipt)
		return
	}
	if event.OrderID == "" || event.RecipeID == "" {
		logger.Error("dropping incomplete event", zap.ByteString("body", msg.Body))
		c.ack(ctx, logger, msg.Receipt)
		return
	}

	err := c.engine.Process(ctx, event)
	switch {
	case err == nil:
		c.ack(ctx, logger, msg.Receipt)
	case service.IsTerminal(err):
		if !errors.Is(err, service.ErrDuplicateEvent) {
			logger.Warn("fulfillment failed",
				zap.String("order_id", event.OrderID), zap.Error(err))
		}
		c.ack(ctx, logger, msg.Receipt)
	default:
		logger.Error("transient failure, requeueing",
			zap.String("order_id", event.OrderID), zap.Error(err))
		if err := c.queue.Requeue(ctx, msg.Receipt); err != nil {
			logger.Error("requeue failed", zap.String("receipt", msg.Receipt), zap.Error(err))
		}
	}
}

func (c *FulfillmentConsumer) ack(ctx context.Context, logger *zap.Logger, receipt string) {
	if err := c.queue.Delete(ctx, receipt); err != nil {
		logger.Error("ack failed", zap.String("receipt", receipt), zap.Error(err))
	}
}
