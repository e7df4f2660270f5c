package broker

import (
	"context"
	stderrors "errors"

	"github.com/HMasataka/streamhub/pkg/domain"
)

// Sink delivers one message to one subscriber. Implementations are the
// push transports (websocket hub, WebRTC data channels).
type Sink interface {
	Deliver(ctx context.Context, clientID domain.ClientID, data domain.StreamData) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, clientID domain.ClientID, data domain.StreamData) error

// Deliver implements Sink
func (f SinkFunc) Deliver(ctx context.Context, clientID domain.ClientID, data domain.StreamData) error {
	return f(ctx, clientID, data)
}

// DiscardSink accepts every message and drops it
var DiscardSink Sink = SinkFunc(func(context.Context, domain.ClientID, domain.StreamData) error {
	return nil
})

// Chain tries each sink in order and stops at the first one that knows the
// client. A sink signals it does not know the client with
// domain.ErrClientNotFound; any other error ends the chain.
func Chain(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, clientID domain.ClientID, data domain.StreamData) error {
		for _, s := range sinks {
			err := s.Deliver(ctx, clientID, data)
			if err == nil {
				return nil
			}
			if !stderrors.Is(err, domain.ErrClientNotFound) {
				return err
			}
		}
		return domain.ErrClientNotFound
	})
}

// Observer is notified of delivery outcomes. Calls must not block.
type Observer interface {
	Delivered(streamID domain.StreamID, clientID domain.ClientID)
	DeliveryFailed(streamID domain.StreamID, clientID domain.ClientID, err error)
}

type nopObserver struct{}

func (nopObserver) Delivered(domain.StreamID, domain.ClientID) {}
func (nopObserver) DeliveryFailed(domain.StreamID, domain.ClientID, error) {}
