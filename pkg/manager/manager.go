package manager

import (
	"sync"
	"time"

	"github.com/HMasataka/streamhub/pkg/domain"
)

// Manager owns per-stream runtime statistics. Callers only ever receive
// copies.
type Manager struct {
	mu    sync.RWMutex
	stats map[domain.StreamID]*streamStats
	clock func() time.Time
}

type streamStats struct {
	createdAt         time.Time
	totalMessages     uint64
	activeSubscribers int
	lastActivity      time.Time

	latencyTotal   time.Duration
	latencySamples uint64

	// windowed rate maintained by Sample
	sampledAt       time.Time
	sampledMessages uint64
	rate            float64
	sampled         bool
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the time source
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// New creates a statistics manager
func New(opts ...Option) *Manager {
	m := &Manager{
		stats: make(map[domain.StreamID]*streamStats),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitializeStream creates a zeroed statistics record for stream
func (m *Manager) InitializeStream(stream domain.DataStream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	createdAt := stream.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.clock()
	}
	m.stats[stream.ID] = &streamStats{
		createdAt: createdAt,
		sampledAt: createdAt,
	}
}

// UpdateStreamStatistics counts a published message when messagePublished
// is true and refreshes the last activity timestamp either way.
func (m *Manager) UpdateStreamStatistics(streamID domain.StreamID, messagePublished bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[streamID]
	if !ok {
		return
	}
	if messagePublished {
		s.totalMessages++
	}
	s.lastActivity = m.clock()
}

// RecordLatency adds one publish pipeline latency sample
func (m *Manager) RecordLatency(streamID domain.StreamID, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stats[streamID]; ok {
		s.latencyTotal += latency
		s.latencySamples++
	}
}

// SetActiveSubscribers records the current subscriber count
func (m *Manager) SetActiveSubscribers(streamID domain.StreamID, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stats[streamID]; ok {
		s.activeSubscribers = count
	}
}

// Sample recomputes the messages-per-second rate of every stream over the
// window since the previous sample.
func (m *Manager) Sample() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	for _, s := range m.stats {
		elapsed := now.Sub(s.sampledAt).Seconds()
		if elapsed <= 0 {
			continue
		}
		s.rate = float64(s.totalMessages-s.sampledMessages) / elapsed
		s.sampledMessages = s.totalMessages
		s.sampledAt = now
		s.sampled = true
	}
}

// GetStreamStatistics returns the statistics of a stream, or a zeroed record
// carrying only the id when the stream was never initialized.
func (m *Manager) GetStreamStatistics(streamID domain.StreamID) domain.StreamStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stats[streamID]
	if !ok {
		return domain.StreamStatistics{StreamID: streamID}
	}

	now := m.clock()
	uptime := now.Sub(s.createdAt)

	rate := s.rate
	if !s.sampled && uptime > 0 {
		rate = float64(s.totalMessages) / uptime.Seconds()
	}

	var avg time.Duration
	if s.latencySamples > 0 {
		avg = s.latencyTotal / time.Duration(s.latencySamples)
	}

	return domain.StreamStatistics{
		StreamID:          streamID,
		TotalMessages:     s.totalMessages,
		ActiveSubscribers: s.activeSubscribers,
		MessagesPerSecond: rate,
		AverageLatency:    avg,
		Uptime:            uptime,
		LastActivity:      s.lastActivity,
	}
}

// StreamCount returns the number of tracked streams
func (m *Manager) StreamCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stats)
}
