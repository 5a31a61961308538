// Package notify consumes CRM change notifications from RabbitMQ and drops
// the affected client caches.
package notify

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"crmcal/internal/config"
	appLog "crmcal/internal/log"
)

type (
	ResourceType string
	Action       string
)

const (
	ResourceAll         ResourceType = "_all_"
	ResourceAppointment ResourceType = "appointment"
)

const (
	ActionStore      Action = "store"
	ActionInvalidate Action = "invalidate"
)

// RoutingKey is a parsed "<source>.<receiver>.<resource>.<action>" key.
type RoutingKey struct {
	Source       string
	Receiver     string
	ResourceType ResourceType
	Action       Action
}

// ParseRoutingKey parses keys such as crm.crmcal-svc.appointment.invalidate.
func ParseRoutingKey(key string) (RoutingKey, error) {
	parts := strings.Split(key, ".")
	if len(parts) < 4 {
		return RoutingKey{}, fmt.Errorf("invalid routing key: %s", key)
	}
	return RoutingKey{
		Source:       parts[0],
		Receiver:     parts[1],
		ResourceType: ResourceType(parts[2]),
		Action:       Action(parts[len(parts)-1]),
	}, nil
}

// Invalidator is the cache surface of the CRM client.
type Invalidator interface {
	InvalidateAppointments()
	InvalidateAll()
}

// Handle applies one routing key to cache. It reports whether anything was
// invalidated.
func Handle(key RoutingKey, cache Invalidator) bool {
	if key.Action != ActionInvalidate {
		return false
	}
	switch key.ResourceType {
	case ResourceAll:
		cache.InvalidateAll()
		return true
	case ResourceAppointment:
		cache.InvalidateAppointments()
		return true
	default:
		return false
	}
}

// Listener consumes the configured queue.
type Listener struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.BrokerConfig
	cache   Invalidator
	log     appLog.Logger
}

// NewListener connects to the broker. It returns nil, nil when the broker is
// disabled.
func NewListener(cfg config.BrokerConfig, cache Invalidator) (*Listener, error) {
	log := appLog.With("module", "notify")
	if !cfg.Enabled {
		log.Info("broker disabled, listener not started")
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		log.Error("broker connect failed", err)
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		log.Error("broker channel failed", err)
		return nil, err
	}

	return &Listener{
		conn:    conn,
		channel: channel,
		cfg:     cfg,
		cache:   cache,
		log:     log,
	}, nil
}

// Start declares and binds the queue and consumes it until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	queue, err := l.channel.QueueDeclare(
		l.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	if l.cfg.Exchange != "" {
		if err := l.channel.QueueBind(queue.Name, l.cfg.Binding, l.cfg.Exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := l.channel.Consume(
		queue.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					l.log.Warn("broker delivery channel closed")
					return
				}
				l.process(msg)
			}
		}
	}()

	l.log.Info("broker queue started", "queue", queue.Name, "binding", l.cfg.Binding)
	return nil
}

// process never requeues: a malformed key would only loop forever.
func (l *Listener) process(msg amqp.Delivery) {
	key, err := ParseRoutingKey(msg.RoutingKey)
	if err != nil {
		l.log.Warn("broker message ignored", "routing_key", msg.RoutingKey, "reason", err)
		_ = msg.Ack(false)
		return
	}
	if Handle(key, l.cache) {
		l.log.Info("cache invalidated", "resource", key.ResourceType, "source", key.Source)
	}
	_ = msg.Ack(false)
}

func (l *Listener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}
	if err := l.channel.Close(); err != nil {
		return err
	}
	return l.conn.Close()
}
