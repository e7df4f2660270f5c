package protocol

import (
	"context"
	"sync"

	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

// Protocol error codes
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeMarshalError       = "MARSHAL_ERROR"
)

// Handler defines the interface for handling protocol messages
type Handler interface {
	// Handle processes a message and returns a response
	Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error)
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, msg *domain.Message) (*domain.Message, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	return f(ctx, msg)
}

// HandlerRegistry manages message handlers
type HandlerRegistry interface {
	// Register registers a handler for a message type
	Register(messageType domain.MessageType, handler Handler)

	// Get retrieves a handler for a message type
	Get(messageType domain.MessageType) (Handler, bool)

	// Handle routes a message to the appropriate handler
	Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error)
}

// DefaultHandlerRegistry is the default implementation of HandlerRegistry
type DefaultHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[domain.MessageType]Handler
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *DefaultHandlerRegistry {
	return &DefaultHandlerRegistry{
		handlers: make(map[domain.MessageType]Handler),
	}
}

// Register implements HandlerRegistry
func (r *DefaultHandlerRegistry) Register(messageType domain.MessageType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = handler
}

// Get implements HandlerRegistry
func (r *DefaultHandlerRegistry) Get(messageType domain.MessageType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[messageType]
	return handler, ok
}

// Types returns the registered message types
func (r *DefaultHandlerRegistry) Types() []domain.MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.MessageType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Handle implements HandlerRegistry
func (r *DefaultHandlerRegistry) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	handler, ok := r.Get(msg.Type)
	if !ok {
		return nil, errors.New(errors.ErrorTypeProtocol, CodeUnknownMessageType, "no handler found for message type").WithDetails(string(msg.Type))
	}

	return handler.Handle(ctx, msg)
}
