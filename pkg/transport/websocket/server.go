package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

// ClientIDParam is the query parameter a client identifies itself with
const ClientIDParam = "client_id"

// MessageRouter is an interface for routing messages
type MessageRouter interface {
	Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error)
}

// Server represents a WebSocket server
type Server struct {
	upgrader websocket.Upgrader
	hub      domain.Hub
	logger   *logging.Logger
	codec    protocol.Codec
	options  ServerOptions
}

// NewServer creates a new WebSocket server
func NewServer(hub domain.Hub, opts ...ServerOption) *Server {
	options := ServerOptions{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ClientOptions:  DefaultClientOptions(),
		RequestTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.Codec == nil {
		options.Codec = protocol.NewJSONCodec()
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  options.ReadBufferSize,
			WriteBufferSize: options.WriteBufferSize,
			CheckOrigin:     options.CheckOrigin,
		},
		hub:     hub,
		logger:  options.Logger.WithFields(map[string]any{"component": "websocket"}),
		codec:   options.Codec,
		options: options,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get(ClientIDParam)
	if clientID == "" {
		clientID = xid.New().String()
	}

	if _, exists := s.hub.GetClient(clientID); exists {
		http.Error(w, "client already connected", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		return
	}

	client := NewClient(clientID, conn, s.logger, s.options.ClientOptions)

	client.Receive(func(message []byte) error {
		return s.handleMessage(client, message)
	})

	if err := s.hub.Register(client); err != nil {
		s.logger.Warn("failed to register client",
			"error", err,
			"client_id", clientID,
		)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		client.Close()
		return
	}

	client.Start()

	s.logger.Info("client connected",
		"client_id", clientID,
		"remote_addr", r.RemoteAddr,
	)

	// Wait for client to disconnect
	<-client.Context().Done()

	if err := s.hub.Unregister(clientID); err != nil {
		s.logger.Debug("failed to unregister client",
			"error", err,
			"client_id", clientID,
		)
	}

	if s.options.OnDisconnect != nil {
		s.options.OnDisconnect(domain.ClientID(clientID))
	}

	s.logger.Info("client disconnected", "client_id", clientID)
}

// handleMessage decodes one command, routes it and sends back the response
// or an error message.
func (s *Server) handleMessage(client domain.Client, message []byte) error {
	msg, err := s.codec.Decode(message)
	if err != nil {
		return s.reply(client, protocol.ErrorMessage(nil, err))
	}

	if s.options.Router == nil {
		s.logger.Warn("no router configured")
		return nil
	}

	ctx, cancel := context.WithTimeout(client.Context(), s.options.RequestTimeout)
	defer cancel()
	ctx = logging.WithClientID(ctx, client.ID())

	s.logger.Debug("routing message",
		"client_id", client.ID(),
		"message_type", msg.Type,
	)

	response, err := s.options.Router.Handle(ctx, msg)
	if err != nil {
		s.logger.Debug("handler error",
			"client_id", client.ID(),
			"message_type", msg.Type,
			"error", err,
		)
		return s.reply(client, protocol.ErrorMessage(msg, err))
	}

	if response == nil {
		return nil
	}
	return s.reply(client, response)
}

func (s *Server) reply(client domain.Client, msg *domain.Message) error {
	data, err := s.codec.Encode(*msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(client.Context(), s.options.ClientOptions.WriteTimeout)
	defer cancel()

	return client.Send(ctx, data)
}
