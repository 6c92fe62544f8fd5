package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Reconnect backoff shared by Publisher and AuditConsumer.
const (
	minRedialBackoff = time.Second
	maxRedialBackoff = 30 * time.Second
)

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// dialFunc opens a connection and a channel with the exchange declared.
type dialFunc func(url, exchange string) (publishChannel, io.Closer, error)

func dialAMQP(url, exchange string) (publishChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return ch, conn, nil
}

// Publisher sends appointment events to a durable topic exchange using the
// event type as routing key.  A single channel is shared and guarded by a
// mutex because amqp channels are not safe for concurrent publishing.
//
// When the broker drops the connection or closes the channel, the next
// Publish redials.  Failed redials are spaced by a backoff that doubles up
// to 30s; events published while the broker is unreachable fail fast.
type Publisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	dial     dialFunc
	log      *zap.Logger
	now      func() time.Time

	ch      publishChannel
	conn    io.Closer
	backoff time.Duration
	retryAt time.Time
	closed  bool
}

// NewPublisher dials url and declares exchange.  The first dial must
// succeed; later outages are recovered from inside Publish.
func NewPublisher(url, exchange string, log *zap.Logger) (*Publisher, error) {
	return newPublisher(url, exchange, log, dialAMQP)
}

func newPublisher(url, exchange string, log *zap.Logger, dial dialFunc) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Publisher{url: url, exchange: exchange, dial: dial, log: log, now: time.Now, backoff: minRedialBackoff}
	ch, conn, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}
	p.ch, p.conn = ch, conn
	return p, nil
}

// errBrokerDown is returned while a redial is being backed off.
var errBrokerDown = errors.New("rabbitmq unavailable")

// ensureChannel returns a live channel, redialing when the current one is
// closed.  p.mu must be held.
func (p *Publisher) ensureChannel() (publishChannel, error) {
	if p.closed {
		return nil, errors.New("publisher closed")
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.drop()
	if now := p.now(); now.Before(p.retryAt) {
		return nil, fmt.Errorf("%w: next redial in %s", errBrokerDown, p.retryAt.Sub(now).Round(time.Millisecond))
	}
	ch, conn, err := p.dial(p.url, p.exchange)
	if err != nil {
		p.retryAt = p.now().Add(p.backoff)
		p.log.Warn("rabbitmq: redial failed", zap.Error(err), zap.Duration("retry_in", p.backoff))
		if p.backoff < maxRedialBackoff {
			p.backoff *= 2
			if p.backoff > maxRedialBackoff {
				p.backoff = maxRedialBackoff
			}
		}
		return nil, err
	}
	p.log.Info("rabbitmq: publisher reconnected")
	p.ch, p.conn = ch, conn
	p.backoff, p.retryAt = minRedialBackoff, time.Time{}
	return ch, nil
}

// drop releases the current channel and connection.  p.mu must be held.
func (p *Publisher) drop() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish marshals ev and sends it as a persistent message.  A publish
// that fails because the channel went away is retried once on a fresh
// channel.  Errors are logged and returned so the caller can decide to
// ignore them.
func (p *Publisher) Publish(ctx context.Context, ev AppointmentEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for attempt := 0; ; attempt++ {
		ch, err := p.ensureChannel()
		if err == nil {
			err = ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, pub)
			if err != nil && ch.IsClosed() && attempt == 0 {
				continue
			}
		}
		if err != nil {
			p.log.Warn("rabbitmq: publish failed",
				zap.String("event_type", ev.Type),
				zap.Uint64("appointment_id", ev.AppointmentID),
				zap.Error(err))
			return fmt.Errorf("publish %s: %w", ev.Type, err)
		}
		return nil
	}
}

// Close releases the channel and connection.  Publish fails afterwards.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.drop()
	return nil
}

// NopPublisher drops every event.  It is used when no broker is configured.
type NopPublisher struct{}

// Publish implements scheduling.EventPublisher.
func (NopPublisher) Publish(context.Context, AppointmentEvent) error { return nil }
