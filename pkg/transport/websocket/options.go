package websocket

import (
	"net/http"
	"time"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
)

// ServerOptions represents websocket server options
type ServerOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	Logger          *logging.Logger
	Router          MessageRouter
	Codec           protocol.Codec
	ClientOptions   ClientOptions
	RequestTimeout  time.Duration
	OnDisconnect    func(clientID domain.ClientID)
}

// ServerOption is a function that configures ServerOptions
type ServerOption func(*ServerOptions)

// WithLogger sets the logger for the server
func WithLogger(logger *logging.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

// WithRouter sets the message router for the server
func WithRouter(router MessageRouter) ServerOption {
	return func(o *ServerOptions) {
		o.Router = router
	}
}

// WithCheckOrigin sets the check origin function
func WithCheckOrigin(checkOrigin func(r *http.Request) bool) ServerOption {
	return func(o *ServerOptions) {
		o.CheckOrigin = checkOrigin
	}
}

// WithClientOptions sets the options of every accepted client
func WithClientOptions(options ClientOptions) ServerOption {
	return func(o *ServerOptions) {
		o.ClientOptions = options
	}
}

// WithRequestTimeout bounds the time a routed command may take
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(o *ServerOptions) {
		o.RequestTimeout = d
	}
}

// WithDisconnectHandler is called after a client disconnected and was
// unregistered from the hub
func WithDisconnectHandler(fn func(clientID domain.ClientID)) ServerOption {
	return func(o *ServerOptions) {
		o.OnDisconnect = fn
	}
}
