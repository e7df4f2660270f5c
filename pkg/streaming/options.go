package streaming

import (
	"time"

	"github.com/HMasataka/streamhub/internal/eventbus"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/broker"
	"github.com/HMasataka/streamhub/pkg/manager"
	"github.com/HMasataka/streamhub/pkg/permission"
	"github.com/HMasataka/streamhub/pkg/pipeline"
)

// Options represents service options
type Options struct {
	Broker   *broker.Broker
	Manager  *manager.Manager
	Pipeline *pipeline.Pipeline
	Checker  permission.Checker
	EventBus eventbus.Bus
	Recorder Recorder
	Logger   *logging.Logger
	Clock    func() time.Time
}

// Option configures Options
type Option func(*Options)

// WithBroker sets the message broker. The service closes it on Close.
func WithBroker(b *broker.Broker) Option {
	return func(o *Options) {
		o.Broker = b
	}
}

// WithManager sets the statistics manager
func WithManager(m *manager.Manager) Option {
	return func(o *Options) {
		o.Manager = m
	}
}

// WithPipeline sets the publish pipeline
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(o *Options) {
		o.Pipeline = p
	}
}

// WithPermissionChecker sets the client permission authority
func WithPermissionChecker(c permission.Checker) Option {
	return func(o *Options) {
		o.Checker = c
	}
}

// WithEventBus sets the bus lifecycle events are published on
func WithEventBus(bus eventbus.Bus) Option {
	return func(o *Options) {
		o.EventBus = bus
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *Options) {
		o.Recorder = r
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Broker == nil {
		o.Broker = broker.New(nil, broker.WithClock(o.Clock), broker.WithLogger(o.Logger))
	}
	if o.Manager == nil {
		o.Manager = manager.New(manager.WithClock(o.Clock))
	}
	if o.Pipeline == nil {
		o.Pipeline = pipeline.New(nil, nil)
	}
	if o.Checker == nil {
		o.Checker = permission.AllowAll{}
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
}
