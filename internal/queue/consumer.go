package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConsumerConfig says where to read events from and where to log them.
type ConsumerConfig struct {
	URL    string
	Queue  string
	LogDir string
}

// StartEventConsumer consumes the event queue until ctx is cancelled,
// appending one line per event to <LogDir>/events.log. Broker failures are
// retried with exponential backoff capped at 30s; a message that cannot be
// handled is rejected without requeue.
func StartEventConsumer(ctx context.Context, cfg ConsumerConfig) error {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			slog.Warn("event consumer dial failed", "error", err, "retry_in", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, cfg)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("event consumer loop ended, reconnecting", "error", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		slog.Warn("event consumer set qos failed", "error", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(cfg.LogDir, d.Body); err != nil {
				slog.Error("event consumer handle message failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(logDir string, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "events.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev Event) string {
	parts := []string{
		fmt.Sprintf("[%s] %s", ev.OccurredAt, ev.Type),
		fmt.Sprintf("activity_id=%d", ev.ActivityID),
	}
	if ev.ActivityTitle != "" {
		parts = append(parts, fmt.Sprintf("title=%q", ev.ActivityTitle))
	}
	if ev.UserID != 0 {
		parts = append(parts, fmt.Sprintf("user_id=%d", ev.UserID))
	}
	if ev.EnrollmentID != 0 {
		parts = append(parts, fmt.Sprintf("enrollment_id=%d", ev.EnrollmentID))
	}
	if ev.Type != EventActivityDeleted {
		parts = append(parts, fmt.Sprintf("available=%d", ev.Available))
	}
	if ev.Removed > 0 {
		parts = append(parts, fmt.Sprintf("removed=%d", ev.Removed))
	}
	if ev.BatchID != "" {
		parts = append(parts, "batch="+ev.BatchID)
	}
	return strings.Join(parts, " | ") + "\n"
}
