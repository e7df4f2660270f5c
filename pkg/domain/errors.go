package domain

import (
	"errors"
)

// Transport errors
var (
	// ErrClientNotFound is returned when a client is not connected
	ErrClientNotFound = errors.New("client not found")

	// ErrClientAlreadyExists is returned when trying to register a client that already exists
	ErrClientAlreadyExists = errors.New("client already exists")

	// ErrHubStopped is returned when trying to use a hub that has been stopped
	ErrHubStopped = errors.New("hub stopped")

	// ErrConnectionClosed is returned when trying to use a closed connection
	ErrConnectionClosed = errors.New("connection closed")

	// ErrChannelNotOpen is returned when a data channel is not open
	ErrChannelNotOpen = errors.New("data channel is not open")
)
