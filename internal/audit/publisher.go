package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when the async inbox cannot take more events.
var ErrQueueFull = errors.New("audit queue full")

// Publisher stamps events and hands them to a sink. With an inbox the sink is
// a Worker draining it; otherwise events go straight to the store.
type Publisher struct {
	store Store
	inbox chan<- Event
	now   func() time.Time
}

// NewPublisher writes synchronously to store.
func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store, now: time.Now}
}

// NewQueuedPublisher enqueues events on inbox without blocking the caller.
func NewQueuedPublisher(inbox chan<- Event) *Publisher {
	return &Publisher{inbox: inbox, now: time.Now}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrQueueFull
	}
}
