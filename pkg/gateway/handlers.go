package gateway

import (
	"context"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

type streamHandlers struct {
	service StreamService
	logger  *logging.Logger
}

// clientID returns the id the transport attached to ctx
func clientID(ctx context.Context) (domain.ClientID, error) {
	id, ok := logging.ClientIDFromContext(ctx)
	if !ok {
		return "", errors.InvalidClient("")
	}
	return domain.ClientID(id), nil
}

func decodeStream(msg *domain.Message) (domain.StreamID, error) {
	var req domain.StreamRequest
	if err := protocol.Decode(msg, &req); err != nil {
		return "", err
	}
	if req.StreamID == "" {
		return "", errors.InvalidRequest("stream_id is required")
	}
	return req.StreamID, nil
}

func (h *streamHandlers) establish(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	owner, err := clientID(ctx)
	if err != nil {
		return nil, err
	}

	var req domain.EstablishStreamRequest
	if err := protocol.Decode(msg, &req); err != nil {
		return nil, err
	}

	stream, err := h.service.EstablishStream(ctx, req.DataType, owner)
	if err != nil {
		return nil, err
	}
	return protocol.Reply(msg, msg.Type, stream)
}

func (h *streamHandlers) publish(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	source, err := clientID(ctx)
	if err != nil {
		return nil, err
	}

	var req domain.PublishRequest
	if err := protocol.Decode(msg, &req); err != nil {
		return nil, err
	}
	if req.StreamID == "" {
		return nil, errors.InvalidRequest("stream_id is required")
	}
	if req.Metadata.Source == "" {
		req.Metadata.Source = string(source)
	}

	result, err := h.service.PublishData(ctx, domain.StreamData{
		Payload:        req.Payload,
		SequenceNumber: req.SequenceNumber,
		Metadata:       req.Metadata,
	}, req.StreamID)
	if err != nil {
		return nil, err
	}
	return protocol.Reply(msg, msg.Type, result)
}

func (h *streamHandlers) subscribe(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	subscriber, err := clientID(ctx)
	if err != nil {
		return nil, err
	}
	streamID, err := decodeStream(msg)
	if err != nil {
		return nil, err
	}

	sub, err := h.service.SubscribeToStream(ctx, streamID, subscriber)
	if err != nil {
		return nil, err
	}
	return protocol.Reply(msg, msg.Type, sub)
}

func (h *streamHandlers) unsubscribe(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	subscriber, err := clientID(ctx)
	if err != nil {
		return nil, err
	}
	streamID, err := decodeStream(msg)
	if err != nil {
		return nil, err
	}

	if err := h.service.UnsubscribeFromStream(ctx, streamID, subscriber); err != nil {
		return nil, err
	}
	return protocol.Reply(msg, msg.Type, domain.StreamRequest{StreamID: streamID})
}

func (h *streamHandlers) statistics(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	streamID, err := decodeStream(msg)
	if err != nil {
		return nil, err
	}

	stats, err := h.service.GetStreamStatistics(ctx, streamID)
	if err != nil {
		return nil, err
	}
	return protocol.Reply(msg, msg.Type, stats)
}

// lifecycle builds the handler of a status transition; it replies with the
// stream after the change.
func (h *streamHandlers) lifecycle(transition func(context.Context, domain.StreamID) error) protocol.HandlerFunc {
	return func(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
		streamID, err := decodeStream(msg)
		if err != nil {
			return nil, err
		}
		ctx = logging.WithStreamID(ctx, string(streamID))
		if err := transition(ctx, streamID); err != nil {
			return nil, err
		}

		stream, err := h.service.GetStream(ctx, streamID)
		if err != nil {
			return nil, err
		}
		h.logger.WithContext(ctx).Debug("stream transitioned", "status", stream.Status)
		return protocol.Reply(msg, msg.Type, stream)
	}
}

func (h *streamHandlers) list(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	owner, err := clientID(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.Reply(msg, msg.Type, h.service.GetActiveStreams(ctx, owner))
}

type offerHandler struct {
	peers  PeerNegotiator
	logger *logging.Logger
}

// Handle implements protocol.Handler
func (h *offerHandler) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	peer, err := clientID(ctx)
	if err != nil {
		return nil, err
	}

	var req domain.WebRTCOfferRequest
	if err := protocol.Decode(msg, &req); err != nil {
		return nil, err
	}

	answer, err := h.peers.HandleOffer(ctx, peer, req.Offer)
	if err != nil {
		return nil, err
	}

	h.logger.WithContext(ctx).Debug("answered data channel offer")
	return protocol.Reply(msg, domain.MessageTypeWebRTCAnswer, domain.WebRTCAnswerResponse{Answer: answer})
}
