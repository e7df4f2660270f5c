package hub

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/streamhub/internal/eventbus"
	"github.com/HMasataka/streamhub/pkg/broker"
	"github.com/HMasataka/streamhub/pkg/domain"
)

type fakeClient struct {
	id      string
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func newFakeClient(id string) *fakeClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeClient{id: id, ctx: ctx, cancel: cancel}
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(_ context.Context, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeClient) Receive(domain.MessageHandler) error { return nil }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancel()
	return nil
}

func (c *fakeClient) Context() context.Context { return c.ctx }

func (c *fakeClient) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T, bus eventbus.Bus) *Hub {
	t.Helper()
	h := NewHub(nil, bus)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { h.Stop() })
	return h
}

func TestRegisterAndUnregister(t *testing.T) {
	bus := eventbus.NewInMemoryBus(16)
	var (
		mu     sync.Mutex
		events []eventbus.EventType
	)
	bus.SubscribeAll(func(e *eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	})
	bus.Start(context.Background())
	defer bus.Stop()

	h := startHub(t, bus)
	client := newFakeClient("c1")

	require.NoError(t, h.Register(client))
	assert.ErrorIs(t, h.Register(newFakeClient("c1")), domain.ErrClientAlreadyExists)

	got, ok := h.GetClient("c1")
	require.True(t, ok)
	assert.Same(t, client, got)
	assert.Len(t, h.GetClients(), 1)
	assert.Equal(t, 1, h.GetStats().ConnectedClients)

	require.NoError(t, h.Unregister("c1"))
	require.NoError(t, h.Unregister("c1"))
	assert.True(t, client.isClosed())

	_, ok = h.GetClient("c1")
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []eventbus.EventType{eventbus.EventClientConnected, eventbus.EventClientDisconnected}, events)
}

func TestSendTo(t *testing.T) {
	h := startHub(t, nil)
	ok := newFakeClient("ok")
	broken := newFakeClient("broken")
	broken.sendErr = domain.ErrConnectionClosed

	require.NoError(t, h.Register(ok))
	require.NoError(t, h.Register(broken))

	require.NoError(t, h.SendTo("ok", []byte("hi")))
	assert.ErrorIs(t, h.SendTo("broken", []byte("hi")), domain.ErrConnectionClosed)
	assert.ErrorIs(t, h.SendTo("missing", []byte("hi")), domain.ErrClientNotFound)

	stats := h.GetStats()
	assert.Equal(t, int64(1), stats.MessagesSent)
	assert.Equal(t, int64(1), stats.SendFailures)
}

func TestDeliverAsBrokerSink(t *testing.T) {
	h := startHub(t, nil)
	client := newFakeClient("s1")
	require.NoError(t, h.Register(client))

	b := broker.New(h)
	defer b.Close()

	b.Subscribe("s1", "stream-1")
	b.Subscribe("offline", "stream-1")
	res := b.Publish(domain.StreamData{ID: "m1", StreamID: "stream-1", Timestamp: time.Now(), Payload: map[string]any{"v": 1}}, "stream-1", domain.StreamConfiguration{MessageRetention: time.Hour})
	assert.Equal(t, 2, res.SubscriberCount)

	require.Eventually(t, func() bool { return len(client.messages()) == 1 }, time.Second, 5*time.Millisecond)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(client.messages()[0], &msg))
	assert.Equal(t, domain.MessageTypeStreamData, msg.Type)
	assert.Equal(t, "m1", msg.ID)

	require.Eventually(t, func() bool {
		stats, ok := b.DeliveryStats("stream-1", "offline")
		return ok && stats.Failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopClosesClients(t *testing.T) {
	h := NewHub(nil, nil)
	require.NoError(t, h.Start(context.Background()))

	client := newFakeClient("c1")
	require.NoError(t, h.Register(client))

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
	assert.True(t, client.isClosed())

	assert.ErrorIs(t, h.Register(newFakeClient("c2")), domain.ErrHubStopped)
	assert.ErrorIs(t, h.SendTo("c1", nil), domain.ErrHubStopped)

	err := h.Deliver(context.Background(), "c1", domain.StreamData{})
	assert.True(t, stderrors.Is(err, domain.ErrClientNotFound))
}

func TestParentContextStopsHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil, nil)
	require.NoError(t, h.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		return stderrors.Is(h.Register(newFakeClient("late")), domain.ErrHubStopped)
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Stop())
}
