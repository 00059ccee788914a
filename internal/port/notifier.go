package port

import "context"

type Notifier interface {
	// Publish sends a fire-and-forget alert to all subscribers.
	Publish(ctx context.Context, subject, message string) error
}
