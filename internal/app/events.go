package app

import (
	"encoding/json"
	"errors"

	"github.com/HMasataka/streamhub/internal/eventbus"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

// frameSender is the part of the hub the event consumer writes through
type frameSender interface {
	SendTo(clientID string, message []byte) error
}

// eventConsumer logs every lifecycle event and tells the subscribers of a
// stopped stream that it is gone.
type eventConsumer struct {
	sender frameSender
	logger *logging.Logger
}

func subscribeEvents(bus eventbus.Bus, sender frameSender, logger *logging.Logger) *eventConsumer {
	c := &eventConsumer{
		sender: sender,
		logger: logger.WithFields(map[string]any{"component": "events"}),
	}
	bus.SubscribeAll(c.record)
	bus.Subscribe(eventbus.EventStreamStopped, c.streamStopped)
	return c
}

func (c *eventConsumer) record(event *eventbus.Event) {
	attrs := make([]any, 0, 4+len(event.Metadata)*2)
	attrs = append(attrs, "event", event.Type, "source", event.Source)
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}
	c.logger.Debug("lifecycle event", attrs...)
}

func (c *eventConsumer) streamStopped(event *eventbus.Event) {
	stream, ok := event.Data.(domain.DataStream)
	if !ok || len(stream.Subscribers) == 0 {
		return
	}

	recipients := stream.Subscribers
	stream.Subscribers = nil

	msg, err := protocol.NewMessage(domain.MessageTypeStreamStopped, stream)
	if err != nil {
		c.logger.Error("failed to build stream stopped notice", "stream_id", stream.ID, "error", err)
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode stream stopped notice", "stream_id", stream.ID, "error", err)
		return
	}

	for _, clientID := range recipients {
		err := c.sender.SendTo(string(clientID), frame)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrClientNotFound), errors.Is(err, domain.ErrHubStopped):
			// not connected over websocket
		default:
			c.logger.Warn("stream stopped notice failed",
				"stream_id", stream.ID,
				"client_id", clientID,
				"error", err,
			)
		}
	}
}
