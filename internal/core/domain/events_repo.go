package domain

import "context"

type EventRepository interface {
	Publish(ctx context.Context, events ...Event) error
	RegisterEventsHandler(topic string, handler func(events []Event))
	ClearRegisteredHandlers(topics ...string)
	Close()
}
