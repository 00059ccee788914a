package notifier

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQNotifier publishes alerts to a fanout exchange; delivery to any
// particular subscriber is fire-and-forget.
type RabbitMQNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitMQNotifier(url, exchange string) (*RabbitMQNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQNotifier{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
	}, nil
}

func (n *RabbitMQNotifier) Publish(ctx context.Context, subject, message string) error {
	err := n.channel.PublishWithContext(ctx,
		n.exchange,
		"",    // fanout ignores the routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "text/plain",
			Headers:     amqp.Table{"subject": subject},
			Body:        []byte(message),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (n *RabbitMQNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
