package messaging

import (
	"bytes"
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type declaredExchange struct {
	name, kind string
	durable    bool
}

type declaredQueue struct {
	name    string
	durable bool
	args    amqp.Table
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

// fakeChannel is an in-memory Channel.
type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []declaredExchange
	queues     []declaredQueue
	bindings   [][3]string
	prefetch   int
	published  []published
	publishErr error
	declareErr error
	consumeErr error
	cancelled  bool
	closed     bool

	deliveries chan amqp.Delivery
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.declareErr != nil {
		return f.declareErr
	}
	f.exchanges = append(f.exchanges, declaredExchange{name: name, kind: kind, durable: durable})
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues = append(f.queues, declaredQueue{name: name, durable: durable, args: args})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, [3]string{name, key, exchange})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.deliveries, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Cancel(string, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) publishedMessages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeConnection struct {
	ch     *fakeChannel
	closed bool
}

func (c *fakeConnection) Channel() (Channel, error) { return c.ch, nil }
func (c *fakeConnection) Close() error             { c.closed = true; return nil }

func dialerFor(conn *fakeConnection) Dialer {
	return func(string) (Connection, error) { return conn, nil }
}

func failingDialer(string) (Connection, error) {
	return nil, errors.New("connection refused")
}

// settlement is how a delivery was settled.
type settlement struct {
	acked   bool
	requeue bool
}

// fakeAcknowledger reports settlements on a channel.
type fakeAcknowledger struct {
	settled chan settlement
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{settled: make(chan settlement, 8)}
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.settled <- settlement{acked: true}
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.settled <- settlement{requeue: requeue}
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	a.settled <- settlement{requeue: requeue}
	return nil
}

func delivery(ack amqp.Acknowledger, tag uint64, routingKey, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		RoutingKey:   routingKey,
		Body:         []byte(body),
		MessageId:    "m-1",
	}
}

// lockedBuffer lets the consumer goroutine log while the test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
