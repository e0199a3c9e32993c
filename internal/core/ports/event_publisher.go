package ports

import (
	"context"

	"github.com/tokenmarket/marketd/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
	// Subscribe returns a channel of the events published on topic from now on.
	// The channel is closed once ctx is done.
	Subscribe(ctx context.Context, topic string) <-chan domain.Event
	Close()
}
