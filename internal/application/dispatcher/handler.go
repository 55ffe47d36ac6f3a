package dispatcher

import (
	"context"

	"github.com/garyjia/site-audit/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string     `json:"name"`
	EventType   event.Type `json:"event_type"`
	Description string     `json:"description,omitempty"`
	Handler     Handler    `json:"-"`
}

// Filter wraps h so it only sees events accepted by keep
func Filter(keep func(evt *event.Event) bool, h Handler) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		if !keep(evt) {
			return nil
		}
		return h(ctx, evt)
	}
}
