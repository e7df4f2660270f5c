package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
	"github.com/HMasataka/streamhub/pkg/streaming"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

type fakePeers struct {
	offers  []domain.ClientID
	removed []domain.ClientID
}

func (p *fakePeers) HandleOffer(_ context.Context, clientID domain.ClientID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.offers = append(p.offers, clientID)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + offer.SDP}, nil
}

func (p *fakePeers) Remove(clientID domain.ClientID) error {
	p.removed = append(p.removed, clientID)
	return nil
}

type harness struct {
	router *Router
	peers  *fakePeers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := streaming.New()
	t.Cleanup(svc.Close)

	peers := &fakePeers{}
	return &harness{router: NewRouter(svc, peers, nil), peers: peers}
}

func (h *harness) send(t *testing.T, clientID string, msgType domain.MessageType, payload any) (*domain.Message, error) {
	t.Helper()
	msg, err := protocol.NewMessage(msgType, payload)
	require.NoError(t, err)

	ctx := context.Background()
	if clientID != "" {
		ctx = logging.WithClientID(ctx, clientID)
	}
	return h.router.Handle(ctx, msg)
}

func decode[T any](t *testing.T, msg *domain.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func TestStreamCommands(t *testing.T) {
	h := newHarness(t)

	resp, err := h.send(t, "owner", domain.MessageTypeEstablishStream, domain.EstablishStreamRequest{DataType: domain.DataTypeHealthData})
	require.NoError(t, err)
	stream := decode[domain.DataStream](t, resp)
	assert.Equal(t, domain.ClientID("owner"), stream.ClientID)
	assert.Equal(t, 100, stream.Configuration.MaxSubscribers)

	resp, err = h.send(t, "viewer", domain.MessageTypeSubscribe, domain.StreamRequest{StreamID: stream.ID})
	require.NoError(t, err)
	sub := decode[domain.StreamSubscription](t, resp)
	assert.Equal(t, domain.ClientID("viewer"), sub.ClientID)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)

	resp, err = h.send(t, "owner", domain.MessageTypePublish, domain.PublishRequest{
		StreamID:       stream.ID,
		Payload:        map[string]any{"bpm": 70},
		SequenceNumber: 1,
	})
	require.NoError(t, err)
	result := decode[domain.PublishResult](t, resp)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SubscriberCount)

	resp, err = h.send(t, "owner", domain.MessageTypeStatistics, domain.StreamRequest{StreamID: stream.ID})
	require.NoError(t, err)
	stats := decode[domain.StreamStatistics](t, resp)
	assert.Equal(t, uint64(1), stats.TotalMessages)

	resp, err = h.send(t, "viewer", domain.MessageTypeUnsubscribe, domain.StreamRequest{StreamID: stream.ID})
	require.NoError(t, err)
	assert.Equal(t, stream.ID, decode[domain.StreamRequest](t, resp).StreamID)

	resp, err = h.send(t, "owner", domain.MessageTypeListStreams, nil)
	require.NoError(t, err)
	assert.Len(t, decode[[]domain.DataStream](t, resp), 1)
}

func TestLifecycleCommands(t *testing.T) {
	h := newHarness(t)

	resp, err := h.send(t, "owner", domain.MessageTypeEstablishStream, domain.EstablishStreamRequest{DataType: domain.DataTypeAlerts})
	require.NoError(t, err)
	stream := decode[domain.DataStream](t, resp)

	tests := []struct {
		msgType domain.MessageType
		status  domain.StreamStatus
	}{
		{domain.MessageTypePauseStream, domain.StreamStatusPaused},
		{domain.MessageTypeResumeStream, domain.StreamStatusActive},
		{domain.MessageTypeStopStream, domain.StreamStatusStopped},
	}
	for _, tt := range tests {
		t.Run(string(tt.msgType), func(t *testing.T) {
			resp, err := h.send(t, "owner", tt.msgType, domain.StreamRequest{StreamID: stream.ID})
			require.NoError(t, err)
			assert.Equal(t, tt.status, decode[domain.DataStream](t, resp).Status)
		})
	}

	_, err = h.send(t, "owner", domain.MessageTypePublish, domain.PublishRequest{StreamID: stream.ID})
	assert.ErrorIs(t, err, errors.ErrStreamNotFound)
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.send(t, "", domain.MessageTypeEstablishStream, domain.EstablishStreamRequest{DataType: domain.DataTypeCustom})
	assert.ErrorIs(t, err, errors.ErrInvalidClient)

	_, err = h.send(t, "c1", domain.MessageTypeSubscribe, domain.StreamRequest{})
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidRequest, e.Code)

	_, err = h.send(t, "c1", domain.MessageTypeStatistics, domain.StreamRequest{StreamID: "missing"})
	assert.ErrorIs(t, err, errors.ErrStreamNotFound)

	_, err = h.send(t, "c1", "teleport", nil)
	e, ok = errors.As(err)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeUnknownMessageType, e.Code)
}

func TestWebRTCOffer(t *testing.T) {
	h := newHarness(t)

	resp, err := h.send(t, "c1", domain.MessageTypeWebRTCOffer, domain.WebRTCOfferRequest{
		Offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "sdp"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeWebRTCAnswer, resp.Type)
	assert.Equal(t, "answer-to-sdp", decode[domain.WebRTCAnswerResponse](t, resp).Answer.SDP)
	assert.Equal(t, []domain.ClientID{"c1"}, h.peers.offers)

	h.router.ClientDisconnected("c1")
	assert.Equal(t, []domain.ClientID{"c1"}, h.peers.removed)
}

func TestWebRTCDisabled(t *testing.T) {
	svc := streaming.New()
	defer svc.Close()
	router := NewRouter(svc, nil, nil)

	msg, err := protocol.NewMessage(domain.MessageTypeWebRTCOffer, domain.WebRTCOfferRequest{})
	require.NoError(t, err)

	_, err = router.Handle(logging.WithClientID(context.Background(), "c1"), msg)
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeUnknownMessageType, e.Code)

	router.ClientDisconnected("c1")
}

func TestCommandLogsCarryStreamAndClient(t *testing.T) {
	var buf bytes.Buffer
	svc := streaming.New()
	t.Cleanup(svc.Close)
	h := &harness{
		router: NewRouter(svc, nil, logging.NewWithWriter(logging.Config{Level: "debug", Format: "json"}, &buf)),
	}

	resp, err := h.send(t, "owner", domain.MessageTypeEstablishStream, domain.EstablishStreamRequest{DataType: domain.DataTypeCustom})
	require.NoError(t, err)
	stream := decode[domain.DataStream](t, resp)

	_, err = h.send(t, "owner", domain.MessageTypePauseStream, domain.StreamRequest{StreamID: stream.ID})
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "stream transitioned", record["msg"])
	assert.Equal(t, string(stream.ID), record["stream_id"])
	assert.Equal(t, "owner", record["client_id"])
	assert.Equal(t, "gateway", record["component"])
}
