package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when publishing without an open channel.
var ErrNotConnected = errors.New("messaging: not connected")

// Publisher publishes persistent JSON messages on the consumer's exchange.
type Publisher struct {
	exchange string
	timeout  time.Duration

	mu sync.RWMutex
	ch Channel
}

// NewPublisher creates a Publisher for exchange. It is bound to a channel by
// the Consumer once topology is declared.
func NewPublisher(exchange string) *Publisher {
	return &Publisher{exchange: exchange, timeout: 10 * time.Second}
}

func (p *Publisher) bind(ch Channel) {
	p.mu.Lock()
	p.ch = ch
	p.mu.Unlock()
}

// Ready reports whether a channel is bound.
func (p *Publisher) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ch != nil
}

// PublishJSON marshals v and publishes it with routingKey.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey, correlationID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		MessageId:     uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}
