package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/streamhub/internal/eventbus"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

const eventSource = "hub"

// Hub implements the domain.Hub interface. Registration goes through the run
// loop; lookups read the client map directly so deliveries never queue
// behind registrations.
type Hub struct {
	clients    sync.Map // map[string]domain.Client
	register   chan registration
	unregister chan registration
	logger     *logging.Logger
	eventBus   eventbus.Bus
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once

	sendTimeout time.Duration

	// Statistics
	messagesSent int64
	sendFailures int64
	startTime    time.Time
}

type registration struct {
	client   domain.Client
	clientID string
	done     chan error
}

// Option configures a Hub
type Option func(*Hub)

// WithSendTimeout bounds how long a single send may wait on a client
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.sendTimeout = d
	}
}

// NewHub creates a new hub
func NewHub(logger *logging.Logger, eventBus eventbus.Bus, opts ...Option) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:    make(chan registration, 100),
		unregister:  make(chan registration, 100),
		logger:      logger.WithFields(map[string]any{"component": "hub"}),
		eventBus:    eventBus,
		ctx:         ctx,
		cancel:      cancel,
		sendTimeout: 5 * time.Second,
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start implements domain.Hub
func (h *Hub) Start(ctx context.Context) error {
	h.wg.Add(1)
	go h.run(ctx)
	h.logger.Info("hub started")
	return nil
}

// Stop implements domain.Hub
func (h *Hub) Stop() error {
	h.stopOnce.Do(func() {
		h.logger.Info("stopping hub")
		h.cancel()
		h.wg.Wait()

		// Close all client connections
		h.clients.Range(func(key, value any) bool {
			if client, ok := value.(domain.Client); ok {
				client.Close()
			}
			h.clients.Delete(key)
			return true
		})

		h.logger.Info("hub stopped")
	})
	return nil
}

// Register implements domain.Hub
func (h *Hub) Register(client domain.Client) error {
	return h.submit(h.register, registration{client: client, clientID: client.ID()})
}

// Unregister implements domain.Hub
func (h *Hub) Unregister(clientID string) error {
	return h.submit(h.unregister, registration{clientID: clientID})
}

func (h *Hub) submit(queue chan registration, req registration) error {
	req.done = make(chan error, 1)

	select {
	case queue <- req:
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	}

	select {
	case err := <-req.done:
		return err
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	}
}

// SendTo implements domain.Hub
func (h *Hub) SendTo(clientID string, message []byte) error {
	if h.ctx.Err() != nil {
		return domain.ErrHubStopped
	}

	client, ok := h.GetClient(clientID)
	if !ok {
		return domain.ErrClientNotFound
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.sendTimeout)
	defer cancel()

	if err := client.Send(ctx, message); err != nil {
		atomic.AddInt64(&h.sendFailures, 1)
		return err
	}
	atomic.AddInt64(&h.messagesSent, 1)
	return nil
}

// Deliver pushes a stream_data frame to a connected client, so the hub can
// serve as the broker's sink.
func (h *Hub) Deliver(ctx context.Context, clientID domain.ClientID, data domain.StreamData) error {
	if _, ok := h.GetClient(string(clientID)); !ok {
		return domain.ErrClientNotFound
	}

	frame, err := protocol.EncodeStreamData(data)
	if err != nil {
		return err
	}
	return h.SendTo(string(clientID), frame)
}

// GetClient implements domain.Hub
func (h *Hub) GetClient(clientID string) (domain.Client, bool) {
	if value, ok := h.clients.Load(clientID); ok {
		return value.(domain.Client), true
	}
	return nil, false
}

// GetClients implements domain.Hub
func (h *Hub) GetClients() []domain.Client {
	var clients []domain.Client
	h.clients.Range(func(key, value any) bool {
		if client, ok := value.(domain.Client); ok {
			clients = append(clients, client)
		}
		return true
	})
	return clients
}

// run is the main hub loop
func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			h.cancel()
			return

		case <-h.ctx.Done():
			return

		case req := <-h.register:
			req.done <- h.handleRegister(req.client)

		case req := <-h.unregister:
			h.handleUnregister(req.clientID)
			req.done <- nil
		}
	}
}

// handleRegister handles client registration
func (h *Hub) handleRegister(client domain.Client) error {
	clientID := client.ID()

	// Check if client already exists
	if _, exists := h.clients.Load(clientID); exists {
		h.logger.Warn("client already registered", "client_id", clientID)
		return domain.ErrClientAlreadyExists
	}

	// Store client
	h.clients.Store(clientID, client)

	h.logger.Info("client registered",
		"client_id", clientID,
		"total_clients", h.getClientCount(),
	)
	h.publish(eventbus.EventClientConnected, clientID)

	return nil
}

// handleUnregister handles client unregistration
func (h *Hub) handleUnregister(clientID string) {
	if client, ok := h.clients.LoadAndDelete(clientID); ok {
		// Close client connection
		if c, ok := client.(domain.Client); ok {
			c.Close()
		}

		h.logger.Info("client unregistered",
			"client_id", clientID,
			"total_clients", h.getClientCount(),
		)
		h.publish(eventbus.EventClientDisconnected, clientID)
	}
}

func (h *Hub) publish(eventType eventbus.EventType, clientID string) {
	if h.eventBus == nil {
		return
	}
	h.eventBus.PublishAsync(eventbus.NewEvent(eventType, eventSource, nil).WithMetadata("client_id", clientID))
}

// getClientCount returns the number of connected clients
func (h *Hub) getClientCount() int {
	count := 0
	h.clients.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// GetStats returns hub statistics
func (h *Hub) GetStats() domain.HubStats {
	return domain.HubStats{
		ConnectedClients: h.getClientCount(),
		MessagesSent:     atomic.LoadInt64(&h.messagesSent),
		SendFailures:     atomic.LoadInt64(&h.sendFailures),
		Uptime:           time.Since(h.startTime).Seconds(),
	}
}
