// Package queue defines the domain event payload exchanged over RabbitMQ and
// the consumer that turns those events into an append-only audit log.
package queue

// DefaultQueue is the durable queue events are routed to.
const DefaultQueue = "gym.events"

// Event types.
const (
	EventEnrollmentCreated   = "enrollment.created"
	EventEnrollmentWithdrawn = "enrollment.withdrawn"
	EventActivityCreated     = "activity.created"
	EventActivityUpdated     = "activity.updated"
	EventActivityDeleted     = "activity.deleted"
)

// Event is published after every committed catalog or enrollment change. It
// carries enough context for consumers to log or aggregate without reading
// the primary database.
type Event struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	ActivityID    uint64 `json:"activity_id"`
	ActivityTitle string `json:"activity_title,omitempty"`
	UserID        uint64 `json:"user_id,omitempty"`
	EnrollmentID  uint64 `json:"enrollment_id,omitempty"`
	Available     int    `json:"available"`
	Removed       int    `json:"removed,omitempty"`
	BatchID       string `json:"batch_id,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}
