package messaging

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker defaults shared with the rest of the platform.
const (
	DefaultExchange           = "scholarai.exchange"
	DefaultQueue              = "scholarai.websearch.queue"
	DefaultRoutingKey         = "scholarai.websearch"
	DefaultResponseRoutingKey = "scholarai.websearch.completed"
	DefaultMessageTTL         = 5 * time.Minute
	DefaultMaxLength          = 1000
	DefaultPrefetch           = 1
)

// Topology names the exchange, queue and routing keys the consumer owns.
type Topology struct {
	Exchange           string
	Queue              string
	RoutingKey         string
	ResponseRoutingKey string
	// MessageTTL and MaxLength bound the queue; the broker sheds the excess.
	MessageTTL time.Duration
	MaxLength  int
	Prefetch   int
}

// DefaultTopology returns the standard websearch topology.
func DefaultTopology() Topology {
	return Topology{
		Exchange:           DefaultExchange,
		Queue:              DefaultQueue,
		RoutingKey:         DefaultRoutingKey,
		ResponseRoutingKey: DefaultResponseRoutingKey,
		MessageTTL:         DefaultMessageTTL,
		MaxLength:          DefaultMaxLength,
		Prefetch:           DefaultPrefetch,
	}
}

func (t *Topology) applyDefaults() {
	d := DefaultTopology()
	if t.Exchange == "" {
		t.Exchange = d.Exchange
	}
	if t.Queue == "" {
		t.Queue = d.Queue
	}
	if t.RoutingKey == "" {
		t.RoutingKey = d.RoutingKey
	}
	if t.ResponseRoutingKey == "" {
		t.ResponseRoutingKey = d.ResponseRoutingKey
	}
	if t.MessageTTL <= 0 {
		t.MessageTTL = d.MessageTTL
	}
	if t.MaxLength <= 0 {
		t.MaxLength = d.MaxLength
	}
	if t.Prefetch <= 0 {
		t.Prefetch = d.Prefetch
	}
}

// QueueArgs are the x-arguments the queue is declared with.
func (t Topology) QueueArgs() amqp.Table {
	return amqp.Table{
		"x-message-ttl": t.MessageTTL.Milliseconds(),
		"x-max-length":  int64(t.MaxLength),
	}
}

// Declare creates the durable exchange and queue and binds them.
func (t Topology) Declare(ch Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.QueueArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", t.Queue, t.Exchange, err)
	}
	if err := ch.Qos(t.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	return nil
}
