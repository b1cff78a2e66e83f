package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/gym-roster/internal/queue"
)

const notifyTimeout = 3 * time.Second

// Notifier runs the side effects of a committed write: a structured log
// line, an event on the broker and a cache flush. None of them can fail the
// write that triggered it.
type Notifier struct {
	events Publisher
	cache  Invalidator
	log    *slog.Logger
}

// NewNotifier fills nil arguments with no-op implementations and the default
// logger.
func NewNotifier(events Publisher, cache Invalidator, log *slog.Logger) *Notifier {
	if events == nil {
		events = NoopPublisher{}
	}
	if cache == nil {
		cache = NoopInvalidator{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{events: events, cache: cache, log: log}
}

func (n *Notifier) emit(ctx context.Context, ev queue.Event) {
	ev.ID = uuid.NewString()
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)

	n.log.Info("enrollment_event",
		"event", ev.Type,
		"activity_id", ev.ActivityID,
		"user_id", ev.UserID,
		"enrollment_id", ev.EnrollmentID,
		"available", ev.Available,
	)

	// The request may already be finishing; side effects get their own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := n.events.Publish(ctx, ev); err != nil {
		n.log.Warn("publish event failed", "event", ev.Type, "error", err)
	}
	if err := n.cache.Invalidate(ctx); err != nil {
		n.log.Warn("cache invalidation failed", "error", err)
	}
}
