package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// AMQPConfig holds broker connection parameters for the event publisher.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQPPublisher implements domain.EventSink by publishing committed events to
// a durable topic exchange. The routing key is "<symbol>.<market_id>", so
// consumers can bind per event kind ("pos_updated.*"), per market
// ("*.mkt-42"), or to everything ("#").
type AMQPPublisher struct {
	cfg AMQPConfig

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	p := &AMQPPublisher{cfg: cfg}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials the broker, opens a channel, and declares the topic exchange.
// Callers must hold p.mu or be in the constructor.
func (p *AMQPPublisher) connect() error {
	conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("amqp: dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp: open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		p.cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp: declare exchange %s: %w", p.cfg.Exchange, err)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

// Deliver implements domain.EventSink. A failed publish triggers one
// reconnect attempt before giving up; the dispatcher logs the error and the
// journal remains authoritative.
func (p *AMQPPublisher) Deliver(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("amqp: marshal event %s: %w", ev.UID, err)
	}

	routingKey := ev.Kind.Symbol() + "." + ev.MarketID

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.publish(routingKey, ev, body); err != nil {
		if rerr := p.reconnect(); rerr != nil {
			return fmt.Errorf("amqp: publish %s: %w (reconnect: %v)", ev.UID, err, rerr)
		}
		if err := p.publish(routingKey, ev, body); err != nil {
			return fmt.Errorf("amqp: publish %s after reconnect: %w", ev.UID, err)
		}
	}
	return nil
}

func (p *AMQPPublisher) publish(routingKey string, ev domain.Event, body []byte) error {
	return p.channel.Publish(
		p.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.UID,
			Timestamp:    ev.EmittedAt,
			Type:         string(ev.Kind),
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) reconnect() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	return p.connect()
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventSink = (*AMQPPublisher)(nil)
