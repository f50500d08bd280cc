package event_bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Publisher sends serialized events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

type envelope struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Forward subscribes to the given event types and relays each event to the publisher as JSON,
// using the event type as routing key. It returns a function removing all subscriptions.
func Forward(eb *EventBus, publisher Publisher, eventTypes ...EventType) (unsubscribe func()) {
	var unsubscribers []func()
	for _, eventType := range eventTypes {
		unsubscribers = append(unsubscribers, eb.Subscribe(eventType, func(e Event) error {
			payload, err := json.Marshal(envelope{Type: e.Type, Timestamp: e.Timestamp, Data: e.Data})
			if err != nil {
				return fmt.Errorf("failed to serialize event %s: %w", e.Type, err)
			}
			return publisher.Publish(e.Context(), string(e.Type), payload)
		}))
	}
	return func() {
		for _, u := range unsubscribers {
			u()
		}
	}
}

type RabbitMQPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher connects to url and declares a durable topic exchange.
func NewRabbitMQPublisher(url string, exchange string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	log.Infof("RabbitMQ publisher connected, exchange %s", exchange)

	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		log.Errorf("failed to publish %s to RabbitMQ: %v", routingKey, err)
		return err
	}
	log.Debugf("published %s to RabbitMQ (%d bytes)", routingKey, len(payload))
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		log.Warnf("error closing RabbitMQ channel: %v", err)
	}
	return p.conn.Close()
}

// NoopPublisher drops everything. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	log.Tracef("noop publish of %s", routingKey)
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
