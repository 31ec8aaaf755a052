package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

func waitSettled(t *testing.T, ack *fakeAcknowledger) settlement {
	t.Helper()
	select {
	case s := <-ack.settled:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not settled")
		return settlement{}
	}
}

func startConsumer(t *testing.T, registry *Registry, metrics *observability.Metrics) (*Consumer, *fakeChannel, *fakeConnection) {
	t.Helper()
	ch := newFakeChannel()
	conn := &fakeConnection{ch: ch}
	c := NewConsumer(ConsumerConfig{URL: "amqp://test"}, dialerFor(conn), registry, zerolog.Nop(), metrics)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })
	return c, ch, conn
}

func TestTopology_Declare(t *testing.T) {
	ch := newFakeChannel()
	topo := DefaultTopology()

	require.NoError(t, topo.Declare(ch))

	require.Len(t, ch.exchanges, 1)
	assert.Equal(t, declaredExchange{name: "scholarai.exchange", kind: "topic", durable: true}, ch.exchanges[0])

	require.Len(t, ch.queues, 1)
	assert.Equal(t, "scholarai.websearch.queue", ch.queues[0].name)
	assert.True(t, ch.queues[0].durable)
	assert.Equal(t, int64(300000), ch.queues[0].args["x-message-ttl"])
	assert.Equal(t, int64(1000), ch.queues[0].args["x-max-length"])

	assert.Equal(t, [][3]string{{"scholarai.websearch.queue", "scholarai.websearch", "scholarai.exchange"}}, ch.bindings)
	assert.Equal(t, 1, ch.prefetch)
}

func TestConsumer_StartFailures(t *testing.T) {
	t.Run("dial failure is returned", func(t *testing.T) {
		c := NewConsumer(ConsumerConfig{}, failingDialer, NewRegistry(), zerolog.Nop(), nil)

		err := c.Start(context.Background())
		assert.ErrorContains(t, err, "connect to broker")
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("declare failure closes the connection", func(t *testing.T) {
		ch := newFakeChannel()
		ch.declareErr = errors.New("access refused")
		conn := &fakeConnection{ch: ch}
		c := NewConsumer(ConsumerConfig{}, dialerFor(conn), NewRegistry(), zerolog.Nop(), nil)

		err := c.Start(context.Background())
		assert.ErrorContains(t, err, "access refused")
		assert.True(t, conn.closed)
		assert.True(t, ch.closed)
		assert.Equal(t, StateDisconnected, c.State())
		assert.False(t, c.Publisher().Ready())
	})

	t.Run("consume failure", func(t *testing.T) {
		ch := newFakeChannel()
		ch.consumeErr = errors.New("queue locked")
		c := NewConsumer(ConsumerConfig{}, dialerFor(&fakeConnection{ch: ch}), NewRegistry(), zerolog.Nop(), nil)

		assert.Error(t, c.Start(context.Background()))
		assert.Equal(t, StateDisconnected, c.State())
	})
}

func TestConsumer_Lifecycle(t *testing.T) {
	c, ch, conn := startConsumer(t, NewRegistry(), nil)

	assert.Equal(t, StateConsuming, c.State())
	assert.True(t, c.Publisher().Ready())
	assert.Error(t, c.Start(context.Background()), "second start must fail")

	require.NoError(t, c.Stop())
	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, ch.cancelled)
	assert.True(t, ch.closed)
	assert.True(t, conn.closed)
	assert.False(t, c.Publisher().Ready())

	require.NoError(t, c.Stop())
}

func TestConsumer_Settlement(t *testing.T) {
	metrics := observability.NewMetrics("messaging_settlement_test")

	registry := NewRegistry()
	registry.Register("ok", HandlerFunc(func(context.Context, Message) error { return nil }))
	registry.Register("transient", HandlerFunc(func(context.Context, Message) error {
		return errors.New("upstream timeout")
	}))
	registry.Register("permanent", HandlerFunc(func(context.Context, Message) error {
		return fmt.Errorf("%w: missing collaborator", domain.ErrPermanent)
	}))
	registry.Register("invalid", HandlerFunc(func(context.Context, Message) error {
		return domain.NewValidationError("queryTerms", "must be a non-empty list")
	}))
	registry.Register("panics", HandlerFunc(func(context.Context, Message) error {
		panic("nil map")
	}))

	_, ch, _ := startConsumer(t, registry, metrics)

	tests := []struct {
		key  string
		want settlement
	}{
		{"ok.request", settlement{acked: true}},
		{"transient.request", settlement{requeue: true}},
		{"permanent.request", settlement{requeue: false}},
		{"invalid.request", settlement{requeue: false}},
		{"panics.request", settlement{requeue: false}},
		{"unknown.request", settlement{requeue: false}},
	}
	for i, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			ack := newFakeAcknowledger()
			ch.deliveries <- delivery(ack, uint64(i+1), tt.key, `{}`)
			assert.Equal(t, tt.want, waitSettled(t, ack))
		})
	}

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.MessagesProcessed.WithLabelValues(observability.MessageDiscarded)) == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesProcessed.WithLabelValues(observability.MessageAcked)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesProcessed.WithLabelValues(observability.MessageRequeued)))
}

func TestConsumer_DefaultHandler(t *testing.T) {
	got := make(chan Message, 1)
	registry := NewRegistry()
	registry.SetDefault(HandlerFunc(func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	}))

	_, ch, _ := startConsumer(t, registry, nil)

	ack := newFakeAcknowledger()
	ch.deliveries <- delivery(ack, 1, "scholarai.websearch", `{"projectId":"p"}`)

	assert.Equal(t, settlement{acked: true}, waitSettled(t, ack))
	msg := <-got
	assert.Equal(t, "scholarai", msg.Type)
	assert.Equal(t, `{"projectId":"p"}`, string(msg.Body))
}

func TestConsumer_LogsDeliveryFields(t *testing.T) {
	var buf lockedBuffer
	ch := newFakeChannel()
	c := NewConsumer(ConsumerConfig{URL: "amqp://test"}, dialerFor(&fakeConnection{ch: ch}), NewRegistry(), zerolog.New(&buf), nil)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })

	ack := newFakeAcknowledger()
	ch.deliveries <- delivery(ack, 1, "unknown.request", `{}`)
	assert.Equal(t, settlement{requeue: false}, waitSettled(t, ack))

	assert.Eventually(t, func() bool {
		out := buf.String()
		return strings.Contains(out, `"routing_key":"unknown.request"`) &&
			strings.Contains(out, `"message_type":"unknown"`)
	}, time.Second, 10*time.Millisecond)
}

func TestConsumer_StopWaitsForInFlightDelivery(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	registry := NewRegistry()
	registry.SetDefault(HandlerFunc(func(ctx context.Context, _ Message) error {
		close(entered)
		<-release
		return ctx.Err()
	}))

	c, ch, _ := startConsumer(t, registry, nil)

	ack := newFakeAcknowledger()
	ch.deliveries <- delivery(ack, 1, "scholarai.websearch", `{}`)
	<-entered

	stopped := make(chan struct{})
	go func() {
		_ = c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned before the in-flight delivery finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, settlement{acked: true}, waitSettled(t, ack))
	<-stopped
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConsumer_RunReportsLostConnection(t *testing.T) {
	ch := newFakeChannel()
	c := NewConsumer(ConsumerConfig{}, dialerFor(&fakeConnection{ch: ch}), NewRegistry(), zerolog.Nop(), nil)

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool { return c.State() == StateConsuming }, time.Second, 5*time.Millisecond)
	close(ch.deliveries)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	ch := newFakeChannel()
	c := NewConsumer(ConsumerConfig{}, dialerFor(&fakeConnection{ch: ch}), NewRegistry(), zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.State() == StateConsuming }, time.Second, 5*time.Millisecond)
	cancel()

	assert.NoError(t, <-errc)
	assert.True(t, ch.closed)
}

func TestSupervise_FirstStartFailureIsFatal(t *testing.T) {
	c := NewConsumer(ConsumerConfig{}, failingDialer, NewRegistry(), zerolog.Nop(), nil)
	err := c.Supervise(context.Background(), time.Millisecond)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRequeue(t *testing.T) {
	assert.True(t, Requeue(errors.New("timeout")))
	assert.True(t, Requeue(ErrNotConnected))
	assert.False(t, Requeue(domain.ErrPermanent))
	assert.False(t, Requeue(fmt.Errorf("wrap: %w", domain.ErrInvalidInput)))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "TOPOLOGY_READY", StateTopologyReady.String())
	assert.Equal(t, "State(42)", State(42).String())
}

var _ amqp.Acknowledger = (*fakeAcknowledger)(nil)
