package webrtc

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/HMasataka/streamhub/internal/eventbus"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

const eventSource = "webrtc"

// Options represents manager options
type Options struct {
	ICEServers []webrtc.ICEServer
	// MaxPeers caps concurrent peer connections; 0 means unbounded.
	MaxPeers int
	// GatherTimeout bounds ICE candidate gathering while answering an offer.
	GatherTimeout time.Duration
	Logger        *logging.Logger
	EventBus      eventbus.Bus
}

// DefaultOptions returns default manager options
func DefaultOptions() Options {
	return Options{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		GatherTimeout: 10 * time.Second,
	}
}

type peer struct {
	pc      *webrtc.PeerConnection
	channel *DataChannel
}

// Manager negotiates one peer connection per client and delivers stream data
// over the data channel the client opens on it.
type Manager struct {
	peers    map[domain.ClientID]*peer
	mu       sync.RWMutex
	api      *webrtc.API
	logger   *logging.Logger
	eventBus eventbus.Bus
	options  Options
}

// NewManager creates a new WebRTC manager
func NewManager(options Options) *Manager {
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.GatherTimeout <= 0 {
		options.GatherTimeout = DefaultOptions().GatherTimeout
	}

	return &Manager{
		peers:    make(map[domain.ClientID]*peer),
		api:      webrtc.NewAPI(),
		logger:   options.Logger.WithFields(map[string]any{"component": "webrtc"}),
		eventBus: options.EventBus,
		options:  options,
	}
}

// HandleOffer answers an SDP offer from clientID. A previous peer connection
// of the same client is replaced.
func (m *Manager) HandleOffer(ctx context.Context, clientID domain.ClientID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	m.mu.RLock()
	_, replacing := m.peers[clientID]
	count := len(m.peers)
	m.mu.RUnlock()

	if !replacing && m.options.MaxPeers > 0 && count >= m.options.MaxPeers {
		return webrtc.SessionDescription{}, ErrPeerLimitReached
	}

	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.options.ICEServers})
	if err != nil {
		return webrtc.SessionDescription{}, negotiationFailed("create peer connection", err)
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			m.attach(clientID, pc, dc)
		})
		dc.OnClose(func() {
			m.detach(clientID, pc)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Debug("connection state changed", "client_id", clientID, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			m.removeIf(clientID, pc)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, negotiationFailed("set remote description", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, negotiationFailed("create answer", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, negotiationFailed("set local description", err)
	}

	timer := time.NewTimer(m.options.GatherTimeout)
	defer timer.Stop()

	select {
	case <-gathered:
	case <-timer.C:
		m.logger.Warn("ICE gathering timed out", "client_id", clientID)
	case <-ctx.Done():
		pc.Close()
		return webrtc.SessionDescription{}, ctx.Err()
	}

	m.mu.Lock()
	old := m.peers[clientID]
	m.peers[clientID] = &peer{pc: pc}
	m.mu.Unlock()

	if old != nil {
		m.closePeer(clientID, old)
	}

	m.logger.Info("answered offer", "client_id", clientID)

	return *pc.LocalDescription(), nil
}

// Attach registers an open channel for clientID outside of offer
// negotiation.
func (m *Manager) Attach(clientID domain.ClientID, ch Channel) {
	m.attach(clientID, nil, ch)
}

func (m *Manager) attach(clientID domain.ClientID, pc *webrtc.PeerConnection, ch Channel) {
	m.mu.Lock()
	p, ok := m.peers[clientID]
	switch {
	case !ok:
		p = &peer{pc: pc}
		m.peers[clientID] = p
	case p.pc != pc:
		// channel of a replaced connection
		m.mu.Unlock()
		ch.Close()
		return
	}
	p.channel = NewDataChannel(ch)
	m.mu.Unlock()

	m.logger.Info("data channel open", "client_id", clientID, "label", ch.Label())
	m.publish(eventbus.EventDataChannelOpen, clientID)
}

func (m *Manager) detach(clientID domain.ClientID, pc *webrtc.PeerConnection) {
	m.mu.Lock()
	p, ok := m.peers[clientID]
	if !ok || p.pc != pc || p.channel == nil {
		m.mu.Unlock()
		return
	}
	p.channel = nil
	m.mu.Unlock()

	m.logger.Info("data channel closed", "client_id", clientID)
	m.publish(eventbus.EventDataChannelClose, clientID)
}

// Deliver sends a stream_data frame over the client's data channel. Clients
// without an open channel get domain.ErrClientNotFound so a chained sink can
// fall back to another transport.
func (m *Manager) Deliver(ctx context.Context, clientID domain.ClientID, data domain.StreamData) error {
	m.mu.RLock()
	p, ok := m.peers[clientID]
	var channel *DataChannel
	if ok {
		channel = p.channel
	}
	m.mu.RUnlock()

	if channel == nil || !channel.Open() {
		return domain.ErrClientNotFound
	}

	frame, err := protocol.EncodeStreamData(data)
	if err != nil {
		return err
	}
	return channel.Send(frame)
}

// Remove closes and forgets the client's peer connection
func (m *Manager) Remove(clientID domain.ClientID) error {
	m.mu.Lock()
	p, ok := m.peers[clientID]
	delete(m.peers, clientID)
	m.mu.Unlock()

	if !ok {
		return ErrPeerNotFound
	}
	m.closePeer(clientID, p)
	return nil
}

func (m *Manager) removeIf(clientID domain.ClientID, pc *webrtc.PeerConnection) {
	m.mu.Lock()
	p, ok := m.peers[clientID]
	if !ok || p.pc != pc {
		m.mu.Unlock()
		return
	}
	delete(m.peers, clientID)
	m.mu.Unlock()

	m.closePeer(clientID, p)
}

// CloseAll closes all peer connections
func (m *Manager) CloseAll() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[domain.ClientID]*peer)
	m.mu.Unlock()

	for clientID, p := range peers {
		m.closePeer(clientID, p)
	}

	m.logger.Info("closed all peer connections")
}

// PeerCount returns the number of peer connections
func (m *Manager) PeerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// ChannelOpen reports whether clientID has an open data channel
func (m *Manager) ChannelOpen(clientID domain.ClientID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[clientID]
	return ok && p.channel != nil && p.channel.Open()
}

func (m *Manager) closePeer(clientID domain.ClientID, p *peer) {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.pc != nil {
		if err := p.pc.Close(); err != nil {
			m.logger.Debug("failed to close peer connection", "client_id", clientID, "error", err)
		}
	}
	m.logger.Info("removed peer connection", "client_id", clientID)
}

func (m *Manager) publish(eventType eventbus.EventType, clientID domain.ClientID) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.PublishAsync(eventbus.NewEvent(eventType, eventSource, nil).WithMetadata("client_id", string(clientID)))
}
