package messaging

import (
	"context"
	"strings"
	"sync"
)

// DefaultMessageType is used for deliveries without a routing key.
const DefaultMessageType = "websearch"

// Message is one delivery as seen by a Handler.
type Message struct {
	Type          string
	RoutingKey    string
	Body          []byte
	CorrelationID string
	MessageID     string
	Redelivered   bool
}

// Handler processes one message. A nil error acks the delivery. Errors
// wrapping domain.ErrPermanent or domain.ErrInvalidInput are rejected without
// requeue; every other error is requeued.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// MessageType is the first dot-delimited segment of routingKey.
func MessageType(routingKey string) string {
	if routingKey == "" {
		return DefaultMessageType
	}
	head, _, _ := strings.Cut(routingKey, ".")
	if head == "" {
		return DefaultMessageType
	}
	return head
}

// Registry maps message types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to messageType, replacing any previous binding.
func (r *Registry) Register(messageType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = h
}

// SetDefault sets the handler used when no type matches.
func (r *Registry) SetDefault(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Lookup returns the handler for messageType, falling back to the default.
// It returns nil when neither exists.
func (r *Registry) Lookup(messageType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[messageType]; ok {
		return h
	}
	return r.fallback
}

// Types lists the registered message types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
