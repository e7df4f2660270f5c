package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

func TestJSONCodecDecode(t *testing.T) {
	codec := NewJSONCodec()

	msg, err := codec.Decode([]byte(`{"id":"1","type":"subscribe","data":{"stream_id":"s1"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeSubscribe, msg.Type)

	var req domain.StreamRequest
	require.NoError(t, Decode(msg, &req))
	assert.Equal(t, domain.StreamID("s1"), req.StreamID)

	_, err = codec.Decode([]byte(`{"id":"1"}`))
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidMessage, e.Code)

	_, err = codec.Decode([]byte(`not json`))
	e, ok = errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeProtocol, e.Type)
}

func TestDecodeRejectsBadPayload(t *testing.T) {
	var req domain.StreamRequest

	err := Decode(&domain.Message{Type: domain.MessageTypeSubscribe}, &req)
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidRequest, e.Code)

	err = Decode(&domain.Message{Type: domain.MessageTypeSubscribe, Data: json.RawMessage(`[1]`)}, &req)
	e, ok = errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeValidation, e.Type)
}

func TestReplyKeepsRequestID(t *testing.T) {
	req := &domain.Message{ID: "req-1", Type: domain.MessageTypeSubscribe}

	resp, err := Reply(req, domain.MessageTypeSubscribe, map[string]string{"ok": "yes"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.ID)
	assert.JSONEq(t, `{"ok":"yes"}`, string(resp.Data))

	resp, err = Reply(nil, domain.MessageTypeSubscribe, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
}

func TestErrorMessage(t *testing.T) {
	req := &domain.Message{ID: "req-1"}

	msg := ErrorMessage(req, errors.StreamNotFound("s1"))
	assert.Equal(t, domain.MessageTypeError, msg.Type)
	assert.Equal(t, "req-1", msg.ID)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, domain.ErrorResponse{Code: errors.CodeStreamNotFound, Message: "stream not found", Details: "s1"}, resp)

	msg = ErrorMessage(nil, stderrors.New("boom"))
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, "INTERNAL", resp.Code)
	assert.Equal(t, "boom", resp.Message)
}

func TestEncodeStreamData(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	frame, err := EncodeStreamData(domain.StreamData{
		ID:        "m1",
		StreamID:  "s1",
		DataType:  domain.DataTypeHealthData,
		Payload:   map[string]any{"bpm": 60},
		Timestamp: ts,
	})
	require.NoError(t, err)

	msg, err := NewJSONCodec().Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeStreamData, msg.Type)
	assert.Equal(t, "m1", msg.ID)
	assert.True(t, ts.Equal(msg.Timestamp))

	var data domain.StreamData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, domain.StreamID("s1"), data.StreamID)
	assert.Equal(t, float64(60), data.Payload["bpm"])
}

func TestRegistry(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(domain.MessageTypeSubscribe, HandlerFunc(func(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
		return Reply(msg, domain.MessageTypeSubscribe, "ok")
	}))

	resp, err := registry.Handle(context.Background(), &domain.Message{ID: "1", Type: domain.MessageTypeSubscribe})
	require.NoError(t, err)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, []domain.MessageType{domain.MessageTypeSubscribe}, registry.Types())

	_, err = registry.Handle(context.Background(), &domain.Message{Type: "teleport"})
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, CodeUnknownMessageType, e.Code)
	assert.Equal(t, "teleport", e.Details)
}
