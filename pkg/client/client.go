// Package client is a Go client for the streamhub websocket gateway.
package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
	"github.com/HMasataka/streamhub/pkg/transport/protocol"
	"github.com/HMasataka/streamhub/pkg/transport/websocket"
)

// Options represents client options
type Options struct {
	Logger *logging.Logger
	// RequestTimeout bounds a command that has no deadline of its own.
	RequestTimeout time.Duration
	Connection     websocket.ClientOptions
}

// DefaultOptions returns default client options
func DefaultOptions() Options {
	return Options{
		RequestTimeout: 10 * time.Second,
		Connection:     websocket.DefaultClientOptions(),
	}
}

// DataHandler receives pushed stream data
type DataHandler func(data domain.StreamData)

// Client sends gateway commands over one websocket connection and receives
// the stream data pushed to it.
type Client struct {
	url     url.URL
	id      domain.ClientID
	options Options
	logger  *logging.Logger
	codec   protocol.Codec

	conn *websocket.Client

	pending   map[string]chan *domain.Message
	pendingMu sync.Mutex

	onData   DataHandler
	handlers map[domain.MessageType]func(*domain.Message)
	mu       sync.RWMutex
}

// New creates a client for the gateway at serverURL, identified as clientID
func New(serverURL url.URL, clientID domain.ClientID, options Options) *Client {
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = DefaultOptions().RequestTimeout
	}

	return &Client{
		url:      serverURL,
		id:       clientID,
		options:  options,
		logger:   options.Logger.WithFields(map[string]any{"component": "client", "client_id": clientID}),
		codec:    protocol.NewJSONCodec(),
		pending:  make(map[string]chan *domain.Message),
		handlers: make(map[domain.MessageType]func(*domain.Message)),
	}
}

// ID returns the client id
func (c *Client) ID() domain.ClientID {
	return c.id
}

// Connect dials the gateway
func (c *Client) Connect(ctx context.Context) error {
	target := c.url
	query := target.Query()
	query.Set(websocket.ClientIDParam, string(c.id))
	target.RawQuery = query.Encode()

	c.logger.Debug("connecting", "url", target.String())

	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransport, "DIAL_ERROR", "failed to connect to server")
	}

	wsClient := websocket.NewClient(string(c.id), conn, c.logger, c.options.Connection)
	wsClient.Receive(c.handleMessage)
	wsClient.Start()

	c.mu.Lock()
	c.conn = wsClient
	c.mu.Unlock()

	c.logger.Info("connected", "url", c.url.String())
	return nil
}

// Close closes the connection; pending requests fail
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.conn.Context().Done()
}

// OnStreamData sets the handler of pushed stream data
func (c *Client) OnStreamData(handler DataHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onData = handler
}

// OnMessage registers a handler for unsolicited messages of a type
func (c *Client) OnMessage(messageType domain.MessageType, handler func(*domain.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[messageType] = handler
}

// Request sends a command and waits for the reply carrying the same id.
// Error replies are returned as *errors.Error.
func (c *Client) Request(ctx context.Context, messageType domain.MessageType, payload, result any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New(errors.ErrorTypeTransport, "NOT_CONNECTED", "not connected to server")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.RequestTimeout)
		defer cancel()
	}

	msg, err := protocol.NewMessage(messageType, payload)
	if err != nil {
		return err
	}
	data, err := c.codec.Encode(*msg)
	if err != nil {
		return err
	}

	reply := make(chan *domain.Message, 1)
	c.pendingMu.Lock()
	c.pending[msg.ID] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
	}()

	if err := conn.Send(ctx, data); err != nil {
		return err
	}

	select {
	case resp := <-reply:
		if resp.Type == domain.MessageTypeError {
			return remoteError(resp)
		}
		if result == nil {
			return nil
		}
		return protocol.Decode(resp, result)
	case <-conn.Context().Done():
		return errors.New(errors.ErrorTypeTransport, "CONNECTION_CLOSED", "connection closed before reply")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) handleMessage(data []byte) error {
	msg, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("dropping undecodable message", "error", err)
		return err
	}

	c.pendingMu.Lock()
	reply, ok := c.pending[msg.ID]
	c.pendingMu.Unlock()
	if ok {
		reply <- msg
		return nil
	}

	c.mu.RLock()
	onData := c.onData
	handler := c.handlers[msg.Type]
	c.mu.RUnlock()

	switch {
	case msg.Type == domain.MessageTypeStreamData && onData != nil:
		var streamData domain.StreamData
		if err := json.Unmarshal(msg.Data, &streamData); err != nil {
			return err
		}
		onData(streamData)
	case handler != nil:
		handler(msg)
	default:
		c.logger.Debug("no handler for message type", "type", msg.Type)
	}
	return nil
}

var codeTypes = map[string]errors.ErrorType{
	errors.CodeStreamNotFound:            errors.ErrorTypeNotFound,
	errors.CodeSubscriptionLimitExceeded: errors.ErrorTypeLimitExceeded,
	errors.CodeInvalidClient:             errors.ErrorTypeUnauthorized,
	errors.CodeEncryptionFailed:          errors.ErrorTypeEncryption,
	errors.CodeCompressionFailed:         errors.ErrorTypeCompression,
	errors.CodeDeliveryFailed:            errors.ErrorTypeDelivery,
	errors.CodeInvalidRequest:            errors.ErrorTypeValidation,
	protocol.CodeInvalidMessage:          errors.ErrorTypeProtocol,
	protocol.CodeUnknownMessageType:      errors.ErrorTypeProtocol,
}

// remoteError rebuilds the structured error of an error reply so callers
// can match it with errors.Is.
func remoteError(msg *domain.Message) error {
	var resp domain.ErrorResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, protocol.CodeInvalidMessage, "malformed error reply")
	}

	errorType, ok := codeTypes[resp.Code]
	if !ok {
		errorType = errors.ErrorTypeInternal
	}
	return errors.New(errorType, resp.Code, resp.Message).WithDetails(resp.Details)
}
