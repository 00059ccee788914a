package port

import (
	"context"
	"time"
)

// QueueMessage is one delivery. The receipt identifies the delivery (not the
// message) for acknowledgment, so a redelivered message carries a new receipt.
type QueueMessage struct {
	Receipt string
	Body    []byte
}

type OrderQueue interface {
	// Enqueue publishes a message body to the queue.
	Enqueue(ctx context.Context, body []byte) error

	// Receive waits up to wait for deliveries and returns at most max of them.
	// An empty slice with a nil error means the wait elapsed with nothing to do.
	Receive(ctx context.Context, max int, wait time.Duration) ([]QueueMessage, error)

	// Delete acknowledges a delivery; the message will not be redelivered.
	Delete(ctx context.Context, receipt string) error

	// Requeue returns an unprocessed delivery to the queue for another attempt.
	Requeue(ctx context.Context, receipt string) error
}
