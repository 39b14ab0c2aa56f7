package core

import "context"

// Publisher delivers domain events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, event interface{}) error
}
