package app

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/streamhub/internal/config"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.WebRTC.Enabled = false
	cfg.RateLimit.Limit = 0
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) (*App, *httptest.Server) {
	t.Helper()
	a, err := New(cfg, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		assert.NoError(t, a.Stop(stopCtx))
		cancel()
	})
	return a, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPublishReachesWebSocketSubscriber(t *testing.T) {
	_, srv := startApp(t, testConfig())

	resp := postJSON(t, srv.URL+"/streams", map[string]string{"data_type": "notifications", "client_id": "owner"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var stream domain.DataStream
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stream))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client_id=viewer"
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	subscribe, err := protocol.NewMessage(domain.MessageTypeSubscribe, domain.StreamRequest{StreamID: stream.ID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(subscribe))

	var reply domain.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, domain.MessageTypeSubscribe, reply.Type)
	assert.Equal(t, subscribe.ID, reply.ID)

	resp = postJSON(t, srv.URL+"/streams/"+string(stream.ID)+"/publish", map[string]any{
		"payload":         map[string]any{"title": "hello"},
		"sequence_number": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pushed domain.Message
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, domain.MessageTypeStreamData, pushed.Type)

	var data domain.StreamData
	require.NoError(t, json.Unmarshal(pushed.Data, &data))
	assert.Equal(t, stream.ID, data.StreamID)
	assert.Equal(t, "hello", data.Payload["title"])
}

func TestHealthAndMetrics(t *testing.T) {
	_, srv := startApp(t, testConfig())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPipelineFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Streaming.Compression = config.CompressionZstd
	cfg.Streaming.Encryption = config.EncryptionXChaCha20Poly1305
	cfg.Streaming.EncryptionKey = hex.EncodeToString(bytes.Repeat([]byte{7}, 32))

	a, srv := startApp(t, cfg)
	assert.NotNil(t, a.zstd)

	resp := postJSON(t, srv.URL+"/streams", map[string]string{"data_type": "health_data", "client_id": "owner"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var stream domain.DataStream
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stream))

	result, err := a.Service().PublishData(context.Background(), domain.StreamData{Payload: map[string]any{"bpm": 61}}, stream.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestInvalidEncryptionKey(t *testing.T) {
	cfg := testConfig()
	cfg.Streaming.Encryption = config.EncryptionXChaCha20Poly1305
	cfg.Streaming.EncryptionKey = "not-hex"

	_, err := New(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestStopNotifiesWebSocketSubscriber(t *testing.T) {
	_, srv := startApp(t, testConfig())

	resp := postJSON(t, srv.URL+"/streams", map[string]string{"data_type": "alerts", "client_id": "owner"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var stream domain.DataStream
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stream))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client_id=viewer"
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	subscribe, err := protocol.NewMessage(domain.MessageTypeSubscribe, domain.StreamRequest{StreamID: stream.ID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(subscribe))

	var reply domain.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, domain.MessageTypeSubscribe, reply.Type)

	resp = postJSON(t, srv.URL+"/streams/"+string(stream.ID)+"/stop", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var notice domain.Message
	require.NoError(t, conn.ReadJSON(&notice))
	assert.Equal(t, domain.MessageTypeStreamStopped, notice.Type)

	var stopped domain.DataStream
	require.NoError(t, json.Unmarshal(notice.Data, &stopped))
	assert.Equal(t, stream.ID, stopped.ID)
	assert.Equal(t, domain.StreamStatusStopped, stopped.Status)
	assert.Empty(t, stopped.Subscribers)
}
