package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AuditLogName is the file, inside the audit directory, that receives one
// line per consumed appointment event.
const AuditLogName = "appointments.log"

// AuditConsumer binds a durable queue to every appointment routing key and
// appends each event to <Dir>/appointments.log.
type AuditConsumer struct {
	URL      string
	Exchange string
	Queue    string
	Dir      string
	Log      *zap.Logger

	mu sync.Mutex
}

// Run connects to the broker and consumes until ctx is cancelled.  Broker
// outages are survived with an exponential reconnect backoff capped at 30s;
// a message that cannot be handled is rejected without requeue so the
// consumer never spins on it.
func (c *AuditConsumer) Run(ctx context.Context) error {
	lg := c.Log
	if lg == nil {
		lg = zap.NewNop()
	}
	backoff := minRedialBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			lg.Warn("audit-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxRedialBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = minRedialBackoff

		err = c.consumeLoop(ctx, conn, lg)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lg.Warn("audit-consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection, lg *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		lg.Warn("audit-consumer: set QoS failed", zap.Error(err))
	}
	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, key := range []string{EventCreated, EventUpdated, EventCancelled} {
		if err := ch.QueueBind(q.Name, key, c.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			lg.Warn("audit-consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends its audit line.
func (c *AuditConsumer) Handle(body []byte) error {
	var ev AppointmentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.AppointmentID == 0 {
		return errors.New("event without type or appointment id")
	}
	dir := c.Dir
	if dir == "" {
		dir = "logs"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, AuditLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders ev as a single human-friendly line.
func FormatAuditLine(ev AppointmentEvent) string {
	return fmt.Sprintf("[%s] %s | event_id=%s | appointment_id=%d | user_id=%d | field_id=%d | field=%q | start=%s | end=%s | total=%s | actor_id=%d\n",
		ev.OccurredAt, ev.Type, ev.EventID, ev.AppointmentID, ev.UserID, ev.FieldID, ev.FieldName,
		ev.StartTime, ev.EndTime, ev.TotalCost, ev.ActorID)
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
