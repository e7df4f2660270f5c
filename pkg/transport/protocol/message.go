package protocol

import (
	"encoding/json"
	"time"

	"github.com/rs/xid"

	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

// Codec defines the interface for message encoding/decoding
type Codec interface {
	// Encode encodes a domain message to bytes
	Encode(msg domain.Message) ([]byte, error)

	// Decode decodes bytes to a domain message
	Decode(data []byte) (*domain.Message, error)
}

// JSONCodec implements Codec using JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode implements the Codec interface
func (c *JSONCodec) Encode(msg domain.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode implements the Codec interface
func (c *JSONCodec) Decode(data []byte) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, CodeInvalidMessage, "failed to unmarshal message")
	}
	if msg.Type == "" {
		return nil, errors.New(errors.ErrorTypeProtocol, CodeInvalidMessage, "message type is required")
	}
	return &msg, nil
}

// NewMessage wraps payload in a message envelope
func NewMessage(messageType domain.MessageType, payload any) (*domain.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, CodeMarshalError, "failed to marshal payload")
	}

	return &domain.Message{
		ID:        xid.New().String(),
		Type:      messageType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// Reply is NewMessage carrying the request id, so clients can correlate
// responses with commands.
func Reply(req *domain.Message, messageType domain.MessageType, payload any) (*domain.Message, error) {
	msg, err := NewMessage(messageType, payload)
	if err != nil {
		return nil, err
	}
	if req != nil && req.ID != "" {
		msg.ID = req.ID
	}
	return msg, nil
}

// ErrorMessage converts err into an error message replying to req
func ErrorMessage(req *domain.Message, err error) *domain.Message {
	resp := domain.ErrorResponse{Code: "INTERNAL", Message: err.Error()}
	if e, ok := errors.As(err); ok {
		resp = domain.ErrorResponse{Code: e.Code, Message: e.Message, Details: e.Details}
	}

	data, _ := json.Marshal(resp)
	msg := &domain.Message{
		ID:        xid.New().String(),
		Type:      domain.MessageTypeError,
		Timestamp: time.Now(),
		Data:      data,
	}
	if req != nil && req.ID != "" {
		msg.ID = req.ID
	}
	return msg
}

// EncodeStreamData builds the stream_data frame pushed to subscribers
func EncodeStreamData(data domain.StreamData) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, CodeMarshalError, "failed to marshal stream data")
	}

	return json.Marshal(domain.Message{
		ID:        data.ID,
		Type:      domain.MessageTypeStreamData,
		Timestamp: data.Timestamp,
		Data:      payload,
	})
}

// Decode unmarshals the message payload into v
func Decode(msg *domain.Message, v any) error {
	if len(msg.Data) == 0 {
		return errors.InvalidRequest("missing data for " + string(msg.Type))
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.CodeInvalidRequest, "invalid request").WithDetails(string(msg.Type))
	}
	return nil
}
