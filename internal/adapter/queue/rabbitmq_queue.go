package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cloudkitchen/fulfillment/internal/port"
)

// RabbitMQQueue carries fulfillment events on a durable queue with manual
// acknowledgment. An unacknowledged delivery is returned to the queue by the
// broker, which is what makes delivery at-least-once.
type RabbitMQQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string

	consumeOnce sync.Once
	consumeErr  error
	deliveries  <-chan amqp.Delivery

	mu      sync.Mutex
	pending map[string]amqp.Delivery
}

func NewRabbitMQQueue(url, name string, prefetch int) (*RabbitMQQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if _, err := channel.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &RabbitMQQueue{
		conn:    conn,
		channel: channel,
		name:    name,
		pending: make(map[string]amqp.Delivery),
	}, nil
}

func (q *RabbitMQQueue) Enqueue(ctx context.Context, body []byte) error {
	err := q.channel.PublishWithContext(ctx,
		"",     // default exchange
		q.name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Receive waits up to wait for the first delivery, then drains whatever else
// is immediately available up to max.
func (q *RabbitMQQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]port.QueueMessage, error) {
	q.consumeOnce.Do(func() {
		q.deliveries, q.consumeErr = q.channel.Consume(
			q.name,
			"",    // consumer tag
			false, // manual ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
	})
	if q.consumeErr != nil {
		return nil, fmt.Errorf("failed to consume: %w", q.consumeErr)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var out []port.QueueMessage
	for len(out) < max {
		if len(out) == 0 {
			select {
			case d, ok := <-q.deliveries:
				if !ok {
					return nil, fmt.Errorf("consumer channel closed")
				}
				out = append(out, q.track(d))
			case <-timer.C:
				return out, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		select {
		case d, ok := <-q.deliveries:
			if !ok {
				return out, nil
			}
			out = append(out, q.track(d))
		default:
			return out, nil
		}
	}
	return out, nil
}

func (q *RabbitMQQueue) track(d amqp.Delivery) port.QueueMessage {
	receipt := strconv.FormatUint(d.DeliveryTag, 10)

	q.mu.Lock()
	q.pending[receipt] = d
	q.mu.Unlock()

	return port.QueueMessage{Receipt: receipt, Body: d.Body}
}

func (q *RabbitMQQueue) Delete(ctx context.Context, receipt string) error {
	d, err := q.take(receipt)
	if err != nil {
		return err
	}
	return d.Ack(false)
}

func (q *RabbitMQQueue) Requeue(ctx context.Context, receipt string) error {
	d, err := q.take(receipt)
	if err != nil {
		return err
	}
	return d.Nack(false, true)
}

func (q *RabbitMQQueue) take(receipt string) (amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	d, ok := q.pending[receipt]
	if !ok {
		return amqp.Delivery{}, fmt.Errorf("unknown receipt %q", receipt)
	}
	delete(q.pending, receipt)
	return d, nil
}

// Purge discards all queued messages. Reset tooling only.
func (q *RabbitMQQueue) Purge() error {
	_, err := q.channel.QueuePurge(q.name, false)
	return err
}

func (q *RabbitMQQueue) Close() {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
