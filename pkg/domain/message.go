package domain

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
)

// MessageType represents the type of gateway message
type MessageType string

const (
	MessageTypeEstablishStream MessageType = "establish_stream"
	MessageTypePublish         MessageType = "publish"
	MessageTypeSubscribe       MessageType = "subscribe"
	MessageTypeUnsubscribe     MessageType = "unsubscribe"
	MessageTypeStatistics      MessageType = "statistics"
	MessageTypeStopStream      MessageType = "stop_stream"
	MessageTypePauseStream     MessageType = "pause_stream"
	MessageTypeResumeStream    MessageType = "resume_stream"
	MessageTypeListStreams     MessageType = "list_streams"
	MessageTypeWebRTCOffer     MessageType = "webrtc_offer"
	MessageTypeWebRTCAnswer    MessageType = "webrtc_answer"
	MessageTypeStreamData      MessageType = "stream_data"
	MessageTypeStreamStopped   MessageType = "stream_stopped"
	MessageTypeError           MessageType = "error"
)

// Message represents a generic gateway message
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EstablishStreamRequest asks for a new stream owned by the sender
type EstablishStreamRequest struct {
	DataType DataType `json:"data_type"`
}

// StreamRequest addresses an existing stream
type StreamRequest struct {
	StreamID StreamID `json:"stream_id"`
}

// PublishRequest carries one message for a stream
type PublishRequest struct {
	StreamID       StreamID       `json:"stream_id"`
	Payload        map[string]any `json:"payload"`
	SequenceNumber uint64         `json:"sequence_number"`
	Metadata       StreamMetadata `json:"metadata"`
}

// WebRTCOfferRequest carries an SDP offer for a data-channel delivery path
type WebRTCOfferRequest struct {
	Offer webrtc.SessionDescription `json:"offer"`
}

// WebRTCAnswerResponse carries the SDP answer
type WebRTCAnswerResponse struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

// ErrorResponse is sent back when a command fails
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
