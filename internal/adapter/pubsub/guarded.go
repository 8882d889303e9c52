package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/webitel/im-chat-core/internal/domain/event"
	"github.com/webitel/im-chat-core/internal/robustness"
)

// guardedDispatcher routes publishes through the broker circuit breaker:
// when the broker is unreachable the breaker opens and publishes fail fast
// instead of stacking up on a dead connection.
type guardedDispatcher struct {
	next    EventDispatcher
	breaker *robustness.Breaker
}

// NewGuardedDispatcher decorates next with breaker protection.
func NewGuardedDispatcher(next EventDispatcher, breaker *robustness.Breaker) EventDispatcher {
	return &guardedDispatcher{next: next, breaker: breaker}
}

func (d *guardedDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	return d.breaker.Do(func() error {
		return d.next.Publish(ctx, ev)
	})
}

func (d *guardedDispatcher) Publisher() message.Publisher {
	return d.next.Publisher()
}
