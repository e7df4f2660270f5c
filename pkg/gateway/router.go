package gateway

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

// StreamService is the streaming facade the gateway drives
type StreamService interface {
	EstablishStream(ctx context.Context, dataType domain.DataType, clientID domain.ClientID) (domain.DataStream, error)
	PublishData(ctx context.Context, data domain.StreamData, streamID domain.StreamID) (domain.PublishResult, error)
	SubscribeToStream(ctx context.Context, streamID domain.StreamID, clientID domain.ClientID) (domain.StreamSubscription, error)
	UnsubscribeFromStream(ctx context.Context, streamID domain.StreamID, clientID domain.ClientID) error
	GetStreamStatistics(ctx context.Context, streamID domain.StreamID) (domain.StreamStatistics, error)
	StopStream(ctx context.Context, streamID domain.StreamID) error
	PauseStream(ctx context.Context, streamID domain.StreamID) error
	ResumeStream(ctx context.Context, streamID domain.StreamID) error
	GetActiveStreams(ctx context.Context, clientID domain.ClientID) []domain.DataStream
	GetStream(ctx context.Context, streamID domain.StreamID) (domain.DataStream, error)
}

// PeerNegotiator answers data-channel offers
type PeerNegotiator interface {
	HandleOffer(ctx context.Context, clientID domain.ClientID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	Remove(clientID domain.ClientID) error
}

// Router maps gateway command types to handlers
type Router struct {
	registry *protocol.DefaultHandlerRegistry
	peers    PeerNegotiator
	logger   *logging.Logger
}

// NewRouter creates a gateway router. peers may be nil when data-channel
// delivery is disabled.
func NewRouter(service StreamService, peers PeerNegotiator, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithFields(map[string]any{"component": "gateway"})

	registry := protocol.NewHandlerRegistry()

	streams := &streamHandlers{service: service, logger: logger}
	registry.Register(domain.MessageTypeEstablishStream, protocol.HandlerFunc(streams.establish))
	registry.Register(domain.MessageTypePublish, protocol.HandlerFunc(streams.publish))
	registry.Register(domain.MessageTypeSubscribe, protocol.HandlerFunc(streams.subscribe))
	registry.Register(domain.MessageTypeUnsubscribe, protocol.HandlerFunc(streams.unsubscribe))
	registry.Register(domain.MessageTypeStatistics, protocol.HandlerFunc(streams.statistics))
	registry.Register(domain.MessageTypeStopStream, streams.lifecycle(service.StopStream))
	registry.Register(domain.MessageTypePauseStream, streams.lifecycle(service.PauseStream))
	registry.Register(domain.MessageTypeResumeStream, streams.lifecycle(service.ResumeStream))
	registry.Register(domain.MessageTypeListStreams, protocol.HandlerFunc(streams.list))

	if peers != nil {
		offers := &offerHandler{peers: peers, logger: logger}
		registry.Register(domain.MessageTypeWebRTCOffer, offers)
	}

	return &Router{
		registry: registry,
		peers:    peers,
		logger:   logger,
	}
}

// Handle implements websocket.MessageRouter
func (r *Router) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	result, err := r.registry.Handle(ctx, msg)
	if err != nil {
		r.logger.WithContext(ctx).Debug("command failed", "type", msg.Type, "error", err)
	}
	return result, err
}

// ClientDisconnected releases the per-connection resources of a client.
// Subscriptions outlive the connection so a reconnecting client keeps them.
func (r *Router) ClientDisconnected(clientID domain.ClientID) {
	if r.peers == nil {
		return
	}
	if err := r.peers.Remove(clientID); err == nil {
		r.logger.Debug("released peer connection", "client_id", clientID)
	}
}
