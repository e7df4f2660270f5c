package streaming

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/HMasataka/streamhub/internal/eventbus"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/broker"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
	"github.com/HMasataka/streamhub/pkg/manager"
	"github.com/HMasataka/streamhub/pkg/permission"
	"github.com/HMasataka/streamhub/pkg/pipeline"
)

const eventSource = "streaming"

// Recorder receives facade level measurements
type Recorder interface {
	Published(dataType domain.DataType, duration time.Duration)
	PublishRejected(code string)
	StreamsChanged(byStatus map[domain.StreamStatus]int, subscribers int)
}

type nopRecorder struct{}

func (nopRecorder) Published(domain.DataType, time.Duration) {}
func (nopRecorder) PublishRejected(string) {}
func (nopRecorder) StreamsChanged(map[domain.StreamStatus]int, int) {}

// Service is the single owner of stream and subscription state. Every
// operation runs under one mutex, so at most one caller mutates the tables
// at a time.
type Service struct {
	mu            sync.Mutex
	streams       map[domain.StreamID]*domain.DataStream
	subscriptions map[domain.StreamID][]*domain.StreamSubscription

	broker   *broker.Broker
	manager  *manager.Manager
	pipeline *pipeline.Pipeline
	checker  permission.Checker
	eventBus eventbus.Bus
	recorder Recorder
	logger   *logging.Logger
	clock    func() time.Time
}

// New creates a streaming service
func New(opts ...Option) *Service {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	options.setDefaults()

	return &Service{
		streams:       make(map[domain.StreamID]*domain.DataStream),
		subscriptions: make(map[domain.StreamID][]*domain.StreamSubscription),
		broker:        options.Broker,
		manager:       options.Manager,
		pipeline:      options.Pipeline,
		checker:       options.Checker,
		eventBus:      options.EventBus,
		recorder:      options.Recorder,
		logger:        options.Logger.WithFields(map[string]any{"component": "streaming"}),
		clock:         options.Clock,
	}
}

// EstablishStream creates a stream of dataType owned by clientID. The
// configuration comes from the data type policy table.
func (s *Service) EstablishStream(ctx context.Context, dataType domain.DataType, clientID domain.ClientID) (domain.DataStream, error) {
	if !dataType.Valid() {
		return domain.DataStream{}, errors.InvalidRequest("unknown data type: " + string(dataType))
	}
	if clientID == "" {
		return domain.DataStream{}, errors.InvalidClient("")
	}
	if err := s.validateClient(ctx, clientID, dataType); err != nil {
		return domain.DataStream{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := &domain.DataStream{
		ID:            domain.StreamID(uuid.NewString()),
		DataType:      dataType,
		ClientID:      clientID,
		Status:        domain.StreamStatusActive,
		CreatedAt:     s.clock(),
		Configuration: domain.ConfigurationFor(dataType),
		Subscribers:   []domain.ClientID{},
	}

	s.broker.InitializeStream(stream.ID)
	s.manager.InitializeStream(*stream)
	s.streams[stream.ID] = stream
	s.subscriptions[stream.ID] = nil

	s.logFor(ctx, stream.ID, clientID).Info("stream established",
		"data_type", dataType,
		"qos", stream.Configuration.QualityOfService,
	)
	s.emit(eventbus.EventStreamEstablished, stream, "")
	s.reportStreams()

	return stream.Clone(), nil
}

// PublishData runs data through the pipeline and fans it out. Only active
// streams accept publishes.
func (s *Service) PublishData(ctx context.Context, data domain.StreamData, streamID domain.StreamID) (domain.PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PublishResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return s.rejectPublish(errors.StreamNotFound(string(streamID)))
	}
	if stream.Status != domain.StreamStatusActive {
		return s.rejectPublish(errors.StreamNotActive(string(streamID)))
	}

	start := time.Now()

	if data.ID == "" {
		data.ID = xid.New().String()
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = s.clock()
	}
	if data.Metadata.Priority == "" {
		data.Metadata.Priority = domain.PriorityNormal
	}
	data.StreamID = streamID
	data.DataType = stream.DataType

	processed, err := s.pipeline.Run(data, stream.Configuration)
	if err != nil {
		return s.rejectPublish(err)
	}

	result := s.broker.Publish(processed, streamID, stream.Configuration)

	elapsed := time.Since(start)
	s.manager.UpdateStreamStatistics(streamID, true)
	s.manager.SetActiveSubscribers(streamID, result.SubscriberCount)
	s.manager.RecordLatency(streamID, elapsed)
	s.recorder.Published(stream.DataType, elapsed)

	s.logFor(ctx, streamID, "").Debug("message published",
		"message_id", processed.ID,
		"sequence_number", processed.SequenceNumber,
		"subscribers", result.SubscriberCount,
	)

	return result, nil
}

// SubscribeToStream subscribes clientID to a stream. Subscribing a client
// that already holds an active subscription returns that subscription.
func (s *Service) SubscribeToStream(ctx context.Context, streamID domain.StreamID, clientID domain.ClientID) (domain.StreamSubscription, error) {
	if clientID == "" {
		return domain.StreamSubscription{}, errors.InvalidClient("")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return domain.StreamSubscription{}, errors.StreamNotFound(string(streamID))
	}
	if stream.Status == domain.StreamStatusStopped {
		return domain.StreamSubscription{}, errors.StreamNotActive(string(streamID))
	}

	if existing := s.activeSubscription(streamID, clientID); existing != nil {
		return s.snapshot(existing), nil
	}

	if s.activeCount(streamID) >= stream.Configuration.MaxSubscribers {
		s.logFor(ctx, streamID, clientID).Warn("subscription limit reached",
			"max_subscribers", stream.Configuration.MaxSubscribers,
		)
		return domain.StreamSubscription{}, errors.SubscriptionLimitExceeded(string(streamID))
	}

	sub := &domain.StreamSubscription{
		ID:           xid.New().String(),
		StreamID:     streamID,
		ClientID:     clientID,
		Status:       domain.SubscriptionStatusActive,
		SubscribedAt: s.clock(),
	}
	s.subscriptions[streamID] = append(s.subscriptions[streamID], sub)
	stream.Subscribers = append(stream.Subscribers, clientID)

	s.broker.Subscribe(clientID, streamID)
	s.manager.SetActiveSubscribers(streamID, s.activeCount(streamID))

	s.logFor(ctx, streamID, clientID).Info("client subscribed")
	s.emit(eventbus.EventSubscriptionCreated, stream, clientID)
	s.reportStreams()

	return s.snapshot(sub), nil
}

// UnsubscribeFromStream ends the client's subscription. It is a no-op when
// the client is not subscribed.
func (s *Service) UnsubscribeFromStream(ctx context.Context, streamID domain.StreamID, clientID domain.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return errors.StreamNotFound(string(streamID))
	}

	sub := s.activeSubscription(streamID, clientID)
	if sub == nil {
		return nil
	}

	sub.Status = domain.SubscriptionStatusUnsubscribed
	stream.Subscribers = removeClient(stream.Subscribers, clientID)
	s.broker.Unsubscribe(clientID, streamID)
	s.manager.SetActiveSubscribers(streamID, s.activeCount(streamID))

	s.logFor(ctx, streamID, clientID).Info("client unsubscribed")
	s.emit(eventbus.EventSubscriptionRemoved, stream, clientID)
	s.reportStreams()

	return nil
}

// GetStreamStatistics returns the statistics of a known stream
func (s *Service) GetStreamStatistics(ctx context.Context, streamID domain.StreamID) (domain.StreamStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[streamID]; !ok {
		return domain.StreamStatistics{}, errors.StreamNotFound(string(streamID))
	}
	return s.manager.GetStreamStatistics(streamID), nil
}

// StopStream stops a stream and clears its subscriptions. Stopped streams
// stay known but accept no further publishes or subscriptions.
func (s *Service) StopStream(ctx context.Context, streamID domain.StreamID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return errors.StreamNotFound(string(streamID))
	}
	if stream.Status == domain.StreamStatusStopped {
		return nil
	}

	stream.Status = domain.StreamStatusStopped
	// the event carries the subscribers the stop drops
	s.emit(eventbus.EventStreamStopped, stream, "")

	for _, sub := range s.subscriptions[streamID] {
		if sub.Status == domain.SubscriptionStatusActive || sub.Status == domain.SubscriptionStatusPaused {
			sub.Status = domain.SubscriptionStatusUnsubscribed
		}
	}
	s.subscriptions[streamID] = nil
	stream.Subscribers = []domain.ClientID{}

	s.broker.RemoveStream(streamID)
	s.manager.SetActiveSubscribers(streamID, 0)
	s.manager.UpdateStreamStatistics(streamID, false)

	s.logFor(ctx, streamID, "").Info("stream stopped")
	s.reportStreams()

	return nil
}

// PauseStream stops accepting publishes until ResumeStream
func (s *Service) PauseStream(ctx context.Context, streamID domain.StreamID) error {
	return s.transition(ctx, streamID, domain.StreamStatusActive, domain.StreamStatusPaused, eventbus.EventStreamPaused)
}

// ResumeStream makes a paused stream accept publishes again
func (s *Service) ResumeStream(ctx context.Context, streamID domain.StreamID) error {
	return s.transition(ctx, streamID, domain.StreamStatusPaused, domain.StreamStatusActive, eventbus.EventStreamResumed)
}

// GetActiveStreams returns the streams owned by clientID that are not
// stopped, oldest first.
func (s *Service) GetActiveStreams(ctx context.Context, clientID domain.ClientID) []domain.DataStream {
	s.mu.Lock()
	defer s.mu.Unlock()

	streams := make([]domain.DataStream, 0)
	for _, stream := range s.streams {
		if stream.ClientID == clientID && stream.Status != domain.StreamStatusStopped {
			streams = append(streams, stream.Clone())
		}
	}
	sort.Slice(streams, func(i, j int) bool {
		if streams[i].CreatedAt.Equal(streams[j].CreatedAt) {
			return streams[i].ID < streams[j].ID
		}
		return streams[i].CreatedAt.Before(streams[j].CreatedAt)
	})
	return streams
}

// GetStream returns one stream
func (s *Service) GetStream(ctx context.Context, streamID domain.StreamID) (domain.DataStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return domain.DataStream{}, errors.StreamNotFound(string(streamID))
	}
	return stream.Clone(), nil
}

// GetSubscriptions returns the subscription records of a stream, including
// ended ones, with current delivery counters.
func (s *Service) GetSubscriptions(ctx context.Context, streamID domain.StreamID) ([]domain.StreamSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[streamID]; !ok {
		return nil, errors.StreamNotFound(string(streamID))
	}

	subs := make([]domain.StreamSubscription, 0, len(s.subscriptions[streamID]))
	for _, sub := range s.subscriptions[streamID] {
		subs = append(subs, s.snapshot(sub))
	}
	return subs, nil
}

// Close stops the broker's delivery loops
func (s *Service) Close() {
	s.broker.Close()
}

func (s *Service) transition(ctx context.Context, streamID domain.StreamID, from, to domain.StreamStatus, event eventbus.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[streamID]
	if !ok {
		return errors.StreamNotFound(string(streamID))
	}
	switch stream.Status {
	case to:
		return nil
	case from:
	default:
		return errors.StreamNotActive(string(streamID)).WithDetails(string(streamID) + " is " + string(stream.Status))
	}

	stream.Status = to
	s.manager.UpdateStreamStatistics(streamID, false)

	s.logFor(ctx, streamID, "").Info("stream status changed", "from", from, "to", to)
	s.emit(event, stream, "")
	s.reportStreams()

	return nil
}

func (s *Service) validateClient(ctx context.Context, clientID domain.ClientID, dataType domain.DataType) error {
	err := s.checker.ValidateClient(ctx, clientID, dataType)
	if err == nil {
		return nil
	}
	if e, ok := errors.As(err); ok && e.Type == errors.ErrorTypeUnauthorized {
		return e
	}
	return errors.Wrap(err, errors.ErrorTypeUnauthorized, errors.CodeInvalidClient, "invalid client").WithDetails(string(clientID))
}

// logFor scopes the logger to a stream and, when set, a client. The client
// id already carried by ctx is kept otherwise.
func (s *Service) logFor(ctx context.Context, streamID domain.StreamID, clientID domain.ClientID) *logging.Logger {
	ctx = logging.WithStreamID(ctx, string(streamID))
	if clientID != "" {
		ctx = logging.WithClientID(ctx, string(clientID))
	}
	return s.logger.WithContext(ctx)
}

func (s *Service) rejectPublish(err error) (domain.PublishResult, error) {
	code := "UNKNOWN"
	if e, ok := errors.As(err); ok {
		code = e.Code
	}
	s.recorder.PublishRejected(code)
	return domain.PublishResult{}, err
}

// activeSubscription must be called with s.mu held
func (s *Service) activeSubscription(streamID domain.StreamID, clientID domain.ClientID) *domain.StreamSubscription {
	for _, sub := range s.subscriptions[streamID] {
		if sub.ClientID == clientID && sub.Status == domain.SubscriptionStatusActive {
			return sub
		}
	}
	return nil
}

// activeCount must be called with s.mu held
func (s *Service) activeCount(streamID domain.StreamID) int {
	n := 0
	for _, sub := range s.subscriptions[streamID] {
		if sub.Status == domain.SubscriptionStatusActive {
			n++
		}
	}
	return n
}

func (s *Service) snapshot(sub *domain.StreamSubscription) domain.StreamSubscription {
	out := *sub
	if sub.Status != domain.SubscriptionStatusActive {
		return out
	}
	if stats, ok := s.broker.DeliveryStats(sub.StreamID, sub.ClientID); ok {
		out.MessagesDelivered = stats.Delivered
		out.DeliveryFailures = stats.Failed
		out.LastDeliveredAt = stats.LastDeliveredAt
	}
	return out
}

func (s *Service) emit(eventType eventbus.EventType, stream *domain.DataStream, clientID domain.ClientID) {
	if s.eventBus == nil {
		return
	}
	event := eventbus.NewEvent(eventType, eventSource, stream.Clone()).
		WithMetadata("stream_id", string(stream.ID)).
		WithMetadata("data_type", string(stream.DataType))
	if clientID != "" {
		event.WithMetadata("client_id", string(clientID))
	}
	s.eventBus.PublishAsync(event)
}

// reportStreams must be called with s.mu held
func (s *Service) reportStreams() {
	byStatus := make(map[domain.StreamStatus]int)
	subscribers := 0
	for id, stream := range s.streams {
		byStatus[stream.Status]++
		subscribers += s.activeCount(id)
	}
	s.recorder.StreamsChanged(byStatus, subscribers)
}

func removeClient(clients []domain.ClientID, clientID domain.ClientID) []domain.ClientID {
	out := clients[:0]
	for _, c := range clients {
		if c != clientID {
			out = append(out, c)
		}
	}
	return out
}
