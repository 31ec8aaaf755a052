// Package messaging consumes search requests from RabbitMQ and publishes
// their results.
//
// A Consumer owns one connection and one channel. It declares a durable topic
// exchange and a bounded durable queue, consumes with a small prefetch, and
// hands each delivery to the Handler registered for its message type. The
// delivery is acked only after the handler returns nil.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

// State is the consumer lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateTopologyReady
	StateConsuming
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateTopologyReady:
		return "TOPOLOGY_READY"
	case StateConsuming:
		return "CONSUMING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrConnectionLost is returned by Run when the broker closes the delivery
// stream while the consumer was not stopping.
var ErrConnectionLost = errors.New("messaging: delivery stream closed by broker")

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	URL      string
	Topology Topology
	// ConsumerTag identifies this consumer on the channel.
	ConsumerTag string
}

// Consumer drives the connect, declare, consume, stop lifecycle.
type Consumer struct {
	cfg       ConsumerConfig
	dial      Dialer
	registry  *Registry
	publisher *Publisher
	logger    zerolog.Logger
	metrics   *observability.Metrics

	mu    sync.Mutex
	state State
	conn  Connection
	ch    Channel
	stop  chan struct{}
	done  chan struct{}
	lost  bool
}

// NewConsumer creates a Consumer. dial defaults to DialAMQP; metrics may be nil.
func NewConsumer(cfg ConsumerConfig, dial Dialer, registry *Registry, logger zerolog.Logger, metrics *observability.Metrics) *Consumer {
	cfg.Topology.applyDefaults()
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "paper-search-" + time.Now().UTC().Format("20060102T150405")
	}
	if dial == nil {
		dial = DialAMQP
	}
	return &Consumer{
		cfg:       cfg,
		dial:      dial,
		registry:  registry,
		publisher: NewPublisher(cfg.Topology.Exchange),
		logger:    logger.With().Str("component", "amqp_consumer").Logger(),
		metrics:   metrics,
	}
}

// Publisher returns the publisher sharing this consumer's channel.
func (c *Consumer) Publisher() *Publisher {
	return c.publisher
}

// Topology returns the effective topology.
func (c *Consumer) Topology() Topology {
	return c.cfg.Topology
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start connects, declares topology and begins consuming in the background.
// Any failure is returned and leaves the consumer disconnected.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisconnected {
		return fmt.Errorf("messaging: cannot start from state %s", c.state)
	}

	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.ch = conn, ch
	c.state = StateConnected
	c.logger.Info().Msg("connected to broker")

	t := c.cfg.Topology
	if err := t.Declare(ch); err != nil {
		c.closeLocked()
		return err
	}
	c.state = StateTopologyReady
	c.publisher.bind(ch)
	c.logger.Info().
		Str("exchange", t.Exchange).
		Str("queue", t.Queue).
		Str("routing_key", t.RoutingKey).
		Int64("message_ttl_ms", t.MessageTTL.Milliseconds()).
		Int("max_length", t.MaxLength).
		Msg("topology declared")

	deliveries, err := ch.Consume(t.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("consume %s: %w", t.Queue, err)
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.lost = false
	c.state = StateConsuming
	go c.loop(ctx, deliveries, c.stop, c.done)

	c.logger.Info().Str("consumer_tag", c.cfg.ConsumerTag).Msg("consuming")
	return nil
}

// Stop cancels consumption, waits for the in-flight delivery to settle and
// closes the connection. It is safe to call more than once.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if c.state == StateDisconnected || c.state == StateStopping {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	ch, stop, done := c.ch, c.stop, c.done
	c.mu.Unlock()

	c.logger.Info().Msg("stopping consumer")

	if stop != nil {
		close(stop)
		if err := ch.Cancel(c.cfg.ConsumerTag, false); err != nil {
			c.logger.Debug().Err(err).Msg("cancel consumer")
		}
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.logger.Info().Msg("consumer stopped")
	return nil
}

// Run starts the consumer and blocks until ctx is done or the broker drops
// the delivery stream, stopping cleanly either way.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return c.Stop()
	case <-done:
	}

	c.mu.Lock()
	lost := c.lost
	c.mu.Unlock()
	_ = c.Stop()
	if lost {
		return ErrConnectionLost
	}
	return nil
}

// Supervise runs the consumer until ctx is done. A failure of the first
// Start is returned; later connection losses are retried after delay.
func (c *Consumer) Supervise(ctx context.Context, delay time.Duration) error {
	if err := c.Run(ctx); err != nil && !errors.Is(err, ErrConnectionLost) {
		return err
	}
	for ctx.Err() == nil {
		c.logger.Warn().Dur("delay", delay).Msg("broker connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if err := c.Run(ctx); err != nil && !errors.Is(err, ErrConnectionLost) {
			c.logger.Error().Err(err).Msg("reconnect failed")
		}
	}
	return nil
}

func (c *Consumer) closeLocked() {
	c.publisher.bind(nil)
	if c.ch != nil {
		if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Debug().Err(err).Msg("close channel")
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Debug().Err(err).Msg("close connection")
		}
	}
	c.ch, c.conn = nil, nil
	c.stop, c.done = nil, nil
	c.state = StateDisconnected
}

// loop dispatches deliveries one at a time. Stop is only observed between
// deliveries; a handler in progress always finishes.
func (c *Consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	handlerCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				select {
				case <-stop:
				default:
					c.mu.Lock()
					c.lost = true
					c.mu.Unlock()
					c.logger.Error().Msg("delivery channel closed by broker")
				}
				return
			}
			c.process(handlerCtx, toMessage(d), d)
		}
	}
}

func toMessage(d amqp.Delivery) Message {
	return Message{
		Type:          MessageType(d.RoutingKey),
		RoutingKey:    d.RoutingKey,
		Body:          d.Body,
		CorrelationID: d.CorrelationId,
		MessageID:     d.MessageId,
		Redelivered:   d.Redelivered,
	}
}

// process runs the handler for msg and settles d.
func (c *Consumer) process(ctx context.Context, msg Message, d Delivery) {
	logger := observability.WithDeliveryContext(c.logger, msg.RoutingKey, msg.Type).With().
		Str("message_id", msg.MessageID).
		Bool("redelivered", msg.Redelivered).
		Logger()

	h := c.registry.Lookup(msg.Type)
	if h == nil {
		logger.Warn().Msg("no handler for message type")
		c.settle(logger, d, fmt.Errorf("%w: no handler for %q", domain.ErrPermanent, msg.Type))
		return
	}

	c.settle(logger, d, invoke(ctx, h, msg))
}

// invoke calls h, converting a panic into a permanent error.
func invoke(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", domain.ErrPermanent, r)
		}
	}()
	return h.Handle(ctx, msg)
}

// Requeue reports whether a delivery that failed with err should be retried.
func Requeue(err error) bool {
	return !errors.Is(err, domain.ErrPermanent) && !errors.Is(err, domain.ErrInvalidInput)
}

func (c *Consumer) settle(logger zerolog.Logger, d Delivery, err error) {
	if err == nil {
		if aerr := d.Ack(false); aerr != nil {
			logger.Error().Err(aerr).Msg("failed to ack delivery")
			return
		}
		c.metrics.RecordMessage(observability.MessageAcked)
		return
	}

	requeue := Requeue(err)
	if rerr := d.Reject(requeue); rerr != nil {
		logger.Error().Err(rerr).Msg("failed to reject delivery")
		return
	}
	if requeue {
		c.metrics.RecordMessage(observability.MessageRequeued)
		logger.Warn().Err(err).Msg("delivery requeued")
	} else {
		c.metrics.RecordMessage(observability.MessageDiscarded)
		logger.Error().Err(err).Msg("delivery discarded")
	}
}
