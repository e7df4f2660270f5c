// Package app wires the streaming engine, its transports and its background
// jobs into one runnable server.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/HMasataka/streamhub/internal/config"
	"github.com/HMasataka/streamhub/internal/eventbus"
	"github.com/HMasataka/streamhub/internal/httpapi"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/internal/metrics"
	"github.com/HMasataka/streamhub/internal/scheduler"
	"github.com/HMasataka/streamhub/pkg/broker"
	"github.com/HMasataka/streamhub/pkg/gateway"
	"github.com/HMasataka/streamhub/pkg/hub"
	"github.com/HMasataka/streamhub/pkg/manager"
	"github.com/HMasataka/streamhub/pkg/permission"
	"github.com/HMasataka/streamhub/pkg/pipeline"
	"github.com/HMasataka/streamhub/pkg/streaming"
	"github.com/HMasataka/streamhub/pkg/transport/websocket"
	rtc "github.com/HMasataka/streamhub/pkg/webrtc"
)

const eventBufferSize = 1024

// App owns every long-lived component of the server
type App struct {
	cfg     *config.Config
	logger  *logging.Logger
	bus     *eventbus.InMemoryBus
	checker *permission.CachedChecker
	limiter *httpapi.RateLimiter
	zstd    *pipeline.ZstdCompressor
	hub     *hub.Hub
	peers   *rtc.Manager
	service *streaming.Service
	cron    *scheduler.Scheduler
	handler http.Handler
}

// New builds the component graph from cfg. Nothing runs until Start.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(cfg.Logging)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		bus:    eventbus.NewInMemoryBus(eventBufferSize),
	}

	stages, err := a.buildPipeline()
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	a.checker = permission.NewCachedChecker(permission.AllowAll{}, cfg.Streaming.PermissionCacheTTL)
	a.hub = hub.NewHub(logger, a.bus)
	subscribeEvents(a.bus, a.hub, logger)

	var sink broker.Sink = a.hub
	var peers gateway.PeerNegotiator
	if cfg.WebRTC.Enabled {
		options := rtc.DefaultOptions()
		options.ICEServers = iceServers(cfg.WebRTC.ICEServers)
		options.Logger = logger
		options.EventBus = a.bus
		a.peers = rtc.NewManager(options)
		sink = broker.Chain(a.peers, a.hub)
		peers = a.peers
	}

	mgr := manager.New()
	b := broker.New(sink,
		broker.WithDeliveryBuffer(cfg.Streaming.DeliveryBuffer),
		broker.WithMaxQueueLength(cfg.Streaming.MaxQueueLength),
		broker.WithLogger(logger),
		broker.WithObserver(collector),
	)

	a.service = streaming.New(
		streaming.WithBroker(b),
		streaming.WithManager(mgr),
		streaming.WithPipeline(stages),
		streaming.WithPermissionChecker(a.checker),
		streaming.WithEventBus(a.bus),
		streaming.WithRecorder(collector),
		streaming.WithLogger(logger),
	)

	a.cron = scheduler.New(logger)
	a.cron.ScheduleSampling(cfg.Streaming.StatsInterval, mgr)

	router := gateway.NewRouter(a.service, peers, logger)
	ws := websocket.NewServer(a.hub,
		websocket.WithLogger(logger),
		websocket.WithRouter(router),
		websocket.WithDisconnectHandler(router.ClientDisconnected),
	)

	apiOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithHealth(a.hub),
		httpapi.WithMetrics(collector.Handler()),
		httpapi.WithWebSocket(ws),
	}
	if cfg.RateLimit.Limit > 0 {
		a.limiter = httpapi.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Burst, logger)
		apiOpts = append(apiOpts, httpapi.WithRateLimiter(a.limiter))
	}
	a.handler = httpapi.NewServer(a.service, apiOpts...)

	return a, nil
}

func (a *App) buildPipeline() (*pipeline.Pipeline, error) {
	var compressor, encryptor pipeline.Stage

	if a.cfg.Streaming.Compression == config.CompressionZstd {
		zstd, err := pipeline.NewZstdCompressor()
		if err != nil {
			return nil, fmt.Errorf("create compressor: %w", err)
		}
		a.zstd = zstd
		compressor = zstd
	}

	if a.cfg.Streaming.Encryption == config.EncryptionXChaCha20Poly1305 {
		aead, err := pipeline.NewAEADEncryptorFromHex(a.cfg.Streaming.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("create encryptor: %w", err)
		}
		encryptor = aead
	}

	return pipeline.New(compressor, encryptor), nil
}

func iceServers(servers []config.ICEServer) []webrtc.ICEServer {
	result := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		result = append(result, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return result
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.handler
}

// Service returns the streaming facade
func (a *App) Service() *streaming.Service {
	return a.service
}

// Start starts the background components
func (a *App) Start(ctx context.Context) error {
	a.bus.Start(ctx)
	a.checker.Start()
	if a.limiter != nil {
		a.limiter.Start()
	}
	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}
	a.cron.Start()
	return nil
}

// Stop stops everything Start started and releases the delivery paths
func (a *App) Stop(ctx context.Context) error {
	err := a.cron.Stop(ctx)

	a.service.Close()
	if a.peers != nil {
		a.peers.CloseAll()
	}
	a.hub.Stop()
	if a.limiter != nil {
		a.limiter.Stop()
	}
	a.checker.Stop()
	a.bus.Stop()
	if a.zstd != nil {
		a.zstd.Close()
	}
	return err
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}
	if err := a.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler shutdown failed", "error", err)
	}
	return serveErr
}
