package domain

import (
	"time"
)

// StreamID identifies a stream
type StreamID string

// ClientID identifies a publisher or subscriber
type ClientID string

// DataType is the category of data carried by a stream
type DataType string

const (
	DataTypeHealthData    DataType = "health_data"
	DataTypeAnalytics     DataType = "analytics"
	DataTypeNotifications DataType = "notifications"
	DataTypeAlerts        DataType = "alerts"
	DataTypeSystemEvents  DataType = "system_events"
	DataTypeCustom        DataType = "custom"
)

// DataTypes lists every known data type
func DataTypes() []DataType {
	return []DataType{
		DataTypeHealthData,
		DataTypeAnalytics,
		DataTypeNotifications,
		DataTypeAlerts,
		DataTypeSystemEvents,
		DataTypeCustom,
	}
}

// Valid reports whether t is a known data type
func (t DataType) Valid() bool {
	_, ok := policies[t]
	return ok
}

// StreamStatus represents the lifecycle state of a stream
type StreamStatus string

const (
	StreamStatusActive  StreamStatus = "active"
	StreamStatusPaused  StreamStatus = "paused"
	StreamStatusStopped StreamStatus = "stopped"
	StreamStatusError   StreamStatus = "error"
)

// QualityOfService is a delivery priority hint
type QualityOfService string

const (
	QoSBestEffort QualityOfService = "best_effort"
	QoSNormal     QualityOfService = "normal"
	QoSGuaranteed QualityOfService = "guaranteed"
	QoSRealTime   QualityOfService = "real_time"
)

// Priority of a single message
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// StreamConfiguration is fixed when a stream is established
type StreamConfiguration struct {
	MaxSubscribers     int              `json:"max_subscribers"`
	MessageRetention   time.Duration    `json:"message_retention"`
	CompressionEnabled bool             `json:"compression_enabled"`
	EncryptionEnabled  bool             `json:"encryption_enabled"`
	QualityOfService   QualityOfService `json:"quality_of_service"`
	HeartbeatInterval  time.Duration    `json:"heartbeat_interval"`
}

// DataStream is a configured channel for one data type
type DataStream struct {
	ID            StreamID            `json:"id"`
	DataType      DataType            `json:"data_type"`
	ClientID      ClientID            `json:"client_id"`
	Status        StreamStatus        `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	Configuration StreamConfiguration `json:"configuration"`
	Subscribers   []ClientID          `json:"subscribers"`
}

// Clone returns a copy that shares no mutable state with s
func (s DataStream) Clone() DataStream {
	if s.Subscribers != nil {
		s.Subscribers = append([]ClientID(nil), s.Subscribers...)
	}
	return s
}

// StreamMetadata describes how a message was produced and transformed
type StreamMetadata struct {
	Source     string   `json:"source"`
	Version    string   `json:"version"`
	Compressed bool     `json:"compressed"`
	Encrypted  bool     `json:"encrypted"`
	Priority   Priority `json:"priority"`
}

// StreamData is one message unit. SequenceNumber is assigned by the caller
// and is not validated.
type StreamData struct {
	ID             string         `json:"id"`
	StreamID       StreamID       `json:"stream_id"`
	DataType       DataType       `json:"data_type"`
	Payload        map[string]any `json:"payload"`
	Timestamp      time.Time      `json:"timestamp"`
	SequenceNumber uint64         `json:"sequence_number"`
	Metadata       StreamMetadata `json:"metadata"`
}

// SubscriptionStatus represents the state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive       SubscriptionStatus = "active"
	SubscriptionStatusPaused       SubscriptionStatus = "paused"
	SubscriptionStatusUnsubscribed SubscriptionStatus = "unsubscribed"
	SubscriptionStatusError        SubscriptionStatus = "error"
)

// StreamSubscription links a client to a stream
type StreamSubscription struct {
	ID                string             `json:"id"`
	StreamID          StreamID           `json:"stream_id"`
	ClientID          ClientID           `json:"client_id"`
	Status            SubscriptionStatus `json:"status"`
	SubscribedAt      time.Time          `json:"subscribed_at"`
	MessagesDelivered uint64             `json:"messages_delivered"`
	DeliveryFailures  uint64             `json:"delivery_failures"`
	LastDeliveredAt   time.Time          `json:"last_delivered_at,omitzero"`
}

// StreamStatistics are aggregate counters for one stream
type StreamStatistics struct {
	StreamID          StreamID      `json:"stream_id"`
	TotalMessages     uint64        `json:"total_messages"`
	ActiveSubscribers int           `json:"active_subscribers"`
	MessagesPerSecond float64       `json:"messages_per_second"`
	AverageLatency    time.Duration `json:"average_latency"`
	Uptime            time.Duration `json:"uptime"`
	LastActivity      time.Time     `json:"last_activity"`
}

// PublishResult is returned for every accepted publish
type PublishResult struct {
	Success         bool      `json:"success"`
	SubscriberCount int       `json:"subscriber_count"`
	MessageID       string    `json:"message_id"`
	Timestamp       time.Time `json:"timestamp"`
}
