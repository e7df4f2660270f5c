package client

import (
	"context"

	"github.com/HMasataka/streamhub/pkg/domain"
)

// EstablishStream creates a stream owned by this client
func (c *Client) EstablishStream(ctx context.Context, dataType domain.DataType) (domain.DataStream, error) {
	var stream domain.DataStream
	err := c.Request(ctx, domain.MessageTypeEstablishStream, domain.EstablishStreamRequest{DataType: dataType}, &stream)
	return stream, err
}

// Publish sends data to a stream
func (c *Client) Publish(ctx context.Context, streamID domain.StreamID, payload map[string]any, sequence uint64, metadata domain.StreamMetadata) (domain.PublishResult, error) {
	var result domain.PublishResult
	err := c.Request(ctx, domain.MessageTypePublish, domain.PublishRequest{
		StreamID:       streamID,
		Payload:        payload,
		SequenceNumber: sequence,
		Metadata:       metadata,
	}, &result)
	return result, err
}

// Subscribe subscribes this client to a stream
func (c *Client) Subscribe(ctx context.Context, streamID domain.StreamID) (domain.StreamSubscription, error) {
	var sub domain.StreamSubscription
	err := c.Request(ctx, domain.MessageTypeSubscribe, domain.StreamRequest{StreamID: streamID}, &sub)
	return sub, err
}

// Unsubscribe ends this client's subscription to a stream
func (c *Client) Unsubscribe(ctx context.Context, streamID domain.StreamID) error {
	return c.Request(ctx, domain.MessageTypeUnsubscribe, domain.StreamRequest{StreamID: streamID}, nil)
}

// Statistics fetches the statistics of a stream
func (c *Client) Statistics(ctx context.Context, streamID domain.StreamID) (domain.StreamStatistics, error) {
	var stats domain.StreamStatistics
	err := c.Request(ctx, domain.MessageTypeStatistics, domain.StreamRequest{StreamID: streamID}, &stats)
	return stats, err
}

// StopStream stops a stream
func (c *Client) StopStream(ctx context.Context, streamID domain.StreamID) (domain.DataStream, error) {
	return c.lifecycle(ctx, domain.MessageTypeStopStream, streamID)
}

// PauseStream pauses a stream
func (c *Client) PauseStream(ctx context.Context, streamID domain.StreamID) (domain.DataStream, error) {
	return c.lifecycle(ctx, domain.MessageTypePauseStream, streamID)
}

// ResumeStream resumes a paused stream
func (c *Client) ResumeStream(ctx context.Context, streamID domain.StreamID) (domain.DataStream, error) {
	return c.lifecycle(ctx, domain.MessageTypeResumeStream, streamID)
}

func (c *Client) lifecycle(ctx context.Context, messageType domain.MessageType, streamID domain.StreamID) (domain.DataStream, error) {
	var stream domain.DataStream
	err := c.Request(ctx, messageType, domain.StreamRequest{StreamID: streamID}, &stream)
	return stream, err
}

// ListStreams returns the streams this client owns that are not stopped
func (c *Client) ListStreams(ctx context.Context) ([]domain.DataStream, error) {
	var streams []domain.DataStream
	err := c.Request(ctx, domain.MessageTypeListStreams, struct{}{}, &streams)
	return streams, err
}
