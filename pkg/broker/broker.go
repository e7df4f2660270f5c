package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

// Options represents broker options
type Options struct {
	// DeliveryBuffer is the number of messages a subscriber may have
	// outstanding before further messages are dropped.
	DeliveryBuffer int
	// MaxQueueLength caps the retained queue per stream; 0 means unbounded.
	MaxQueueLength int
	Clock          func() time.Time
	Logger         *logging.Logger
	Observer       Observer
}

// Option configures Options
type Option func(*Options)

// WithDeliveryBuffer sets the per-subscriber mailbox size
func WithDeliveryBuffer(n int) Option {
	return func(o *Options) {
		o.DeliveryBuffer = n
	}
}

// WithMaxQueueLength caps retained messages per stream
func WithMaxQueueLength(n int) Option {
	return func(o *Options) {
		o.MaxQueueLength = n
	}
}

// WithClock overrides the time source used for retention
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithObserver sets the delivery observer
func WithObserver(observer Observer) Option {
	return func(o *Options) {
		o.Observer = observer
	}
}

// DefaultOptions returns default broker options
func DefaultOptions() Options {
	return Options{
		DeliveryBuffer: 256,
		MaxQueueLength: 0,
		Clock:          time.Now,
		Logger:         logging.Discard(),
		Observer:       nopObserver{},
	}
}

// DeliveryStats are the per-subscriber delivery counters
type DeliveryStats struct {
	Delivered       uint64
	Failed          uint64
	LastDeliveredAt time.Time
}

// Broker keeps the retained message queue and subscriber list of every
// stream and fans published messages out to subscribers. All operations are
// serialized by a single mutex; deliveries happen outside of it.
type Broker struct {
	mu          sync.Mutex
	queues      map[domain.StreamID][]domain.StreamData
	subscribers map[domain.StreamID]*subscriberList
	closed      bool

	sink    Sink
	options Options
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type subscriberList struct {
	order []domain.ClientID
	byID  map[domain.ClientID]*mailbox
}

// mailbox serializes deliveries to one subscriber so that a subscriber sees
// messages in publish order and a slow subscriber only delays itself.
type mailbox struct {
	streamID domain.StreamID
	clientID domain.ClientID
	queue    chan domain.StreamData
	done     chan struct{}

	delivered     atomic.Uint64
	failed        atomic.Uint64
	lastDelivered atomic.Int64
}

// New creates a broker delivering through sink
func New(sink Sink, opts ...Option) *Broker {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.DeliveryBuffer <= 0 {
		options.DeliveryBuffer = 1
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.Observer == nil {
		options.Observer = nopObserver{}
	}
	if sink == nil {
		sink = DiscardSink
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Broker{
		queues:      make(map[domain.StreamID][]domain.StreamData),
		subscribers: make(map[domain.StreamID]*subscriberList),
		sink:        sink,
		options:     options,
		logger:      options.Logger.WithFields(map[string]any{"component": "broker"}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// InitializeStream prepares empty queue and subscriber state for a stream
func (b *Broker) InitializeStream(streamID domain.StreamID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.queues[streamID]; !ok {
		b.queues[streamID] = nil
	}
	b.listFor(streamID)
}

// Publish appends data to the stream queue, prunes expired messages and
// hands the message to every current subscriber. Delivery is best effort:
// the call never waits for, nor reports, individual deliveries.
func (b *Broker) Publish(data domain.StreamData, streamID domain.StreamID, cfg domain.StreamConfiguration) domain.PublishResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.options.Clock()

	queue := append(b.queues[streamID], data)
	queue = prune(queue, now.Add(-cfg.MessageRetention))
	if limit := b.options.MaxQueueLength; limit > 0 && len(queue) > limit {
		queue = append([]domain.StreamData(nil), queue[len(queue)-limit:]...)
	}
	b.queues[streamID] = queue

	var count int
	if list, ok := b.subscribers[streamID]; ok && !b.closed {
		count = len(list.order)
		for _, clientID := range list.order {
			b.enqueue(list.byID[clientID], data)
		}
	}

	return domain.PublishResult{
		Success:         true,
		SubscriberCount: count,
		MessageID:       data.ID,
		Timestamp:       now,
	}
}

// Subscribe adds clientID to the stream's fan-out list. Subscribing twice is
// a no-op.
func (b *Broker) Subscribe(clientID domain.ClientID, streamID domain.StreamID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	list := b.listFor(streamID)
	if _, ok := list.byID[clientID]; ok {
		return
	}

	mb := &mailbox{
		streamID: streamID,
		clientID: clientID,
		queue:    make(chan domain.StreamData, b.options.DeliveryBuffer),
		done:     make(chan struct{}),
	}
	list.byID[clientID] = mb
	list.order = append(list.order, clientID)

	b.wg.Add(1)
	go b.deliverLoop(mb)
}

// Unsubscribe removes clientID from the stream's fan-out list. Messages not
// yet handed to the sink are dropped.
func (b *Broker) Unsubscribe(clientID domain.ClientID, streamID domain.StreamID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.subscribers[streamID]
	if !ok {
		return
	}
	mb, ok := list.byID[clientID]
	if !ok {
		return
	}

	delete(list.byID, clientID)
	for i, id := range list.order {
		if id == clientID {
			list.order = append(list.order[:i], list.order[i+1:]...)
			break
		}
	}
	close(mb.done)
}

// RemoveStream drops the queue and every subscriber of a stream
func (b *Broker) RemoveStream(streamID domain.StreamID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if list, ok := b.subscribers[streamID]; ok {
		for _, mb := range list.byID {
			close(mb.done)
		}
	}
	delete(b.subscribers, streamID)
	delete(b.queues, streamID)
}

// SubscriberCount returns the number of subscribers of a stream
func (b *Broker) SubscriberCount(streamID domain.StreamID) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if list, ok := b.subscribers[streamID]; ok {
		return len(list.order)
	}
	return 0
}

// Subscribers returns the subscribers of a stream in subscription order
func (b *Broker) Subscribers(streamID domain.StreamID) []domain.ClientID {
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.subscribers[streamID]
	if !ok {
		return nil
	}
	return append([]domain.ClientID(nil), list.order...)
}

// Messages returns a copy of the retained queue of a stream
func (b *Broker) Messages(streamID domain.StreamID) []domain.StreamData {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]domain.StreamData(nil), b.queues[streamID]...)
}

// DeliveryStats returns the delivery counters of one subscriber
func (b *Broker) DeliveryStats(streamID domain.StreamID, clientID domain.ClientID) (DeliveryStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.subscribers[streamID]
	if !ok {
		return DeliveryStats{}, false
	}
	mb, ok := list.byID[clientID]
	if !ok {
		return DeliveryStats{}, false
	}

	stats := DeliveryStats{
		Delivered: mb.delivered.Load(),
		Failed:    mb.failed.Load(),
	}
	if ns := mb.lastDelivered.Load(); ns > 0 {
		stats.LastDeliveredAt = time.Unix(0, ns)
	}
	return stats, true
}

// Close stops every delivery loop and waits for in-flight deliveries
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, list := range b.subscribers {
		for _, mb := range list.byID {
			close(mb.done)
		}
	}
	b.subscribers = make(map[domain.StreamID]*subscriberList)
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

func (b *Broker) listFor(streamID domain.StreamID) *subscriberList {
	list, ok := b.subscribers[streamID]
	if !ok {
		list = &subscriberList{byID: make(map[domain.ClientID]*mailbox)}
		b.subscribers[streamID] = list
	}
	return list
}

// enqueue must be called with b.mu held
func (b *Broker) enqueue(mb *mailbox, data domain.StreamData) {
	select {
	case mb.queue <- data:
	default:
		mb.failed.Add(1)
		err := errors.New(errors.ErrorTypeDelivery, errors.CodeDeliveryFailed, "subscriber mailbox full").WithDetails(string(mb.clientID))
		b.options.Observer.DeliveryFailed(mb.streamID, mb.clientID, err)
		b.logger.Warn("dropping message for slow subscriber",
			"stream_id", mb.streamID,
			"client_id", mb.clientID,
			"message_id", data.ID,
		)
	}
}

func (b *Broker) deliverLoop(mb *mailbox) {
	defer b.wg.Done()

	for {
		select {
		case <-mb.done:
			return
		case <-b.ctx.Done():
			return
		case data := <-mb.queue:
			// unsubscribed while the message was queued
			select {
			case <-mb.done:
				return
			default:
			}
			b.deliver(mb, data)
		}
	}
}

func (b *Broker) deliver(mb *mailbox, data domain.StreamData) {
	if err := b.sink.Deliver(b.ctx, mb.clientID, data); err != nil {
		mb.failed.Add(1)
		b.options.Observer.DeliveryFailed(mb.streamID, mb.clientID, errors.DeliveryFailed(string(mb.clientID), err))
		b.logger.Debug("delivery failed",
			"stream_id", mb.streamID,
			"client_id", mb.clientID,
			"message_id", data.ID,
			"error", err,
		)
		return
	}

	mb.delivered.Add(1)
	mb.lastDelivered.Store(b.options.Clock().UnixNano())
	b.options.Observer.Delivered(mb.streamID, mb.clientID)
}

// prune keeps messages stamped at or after cutoff, preserving order
func prune(queue []domain.StreamData, cutoff time.Time) []domain.StreamData {
	kept := queue[:0]
	for _, m := range queue {
		if !m.Timestamp.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	return kept
}
