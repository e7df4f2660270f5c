package webrtc

import (
	"github.com/HMasataka/streamhub/pkg/errors"
)

const (
	CodePeerNotFound     = "PEER_NOT_FOUND"
	CodeNegotiation      = "NEGOTIATION_FAILED"
	CodeChannelNotOpen   = "DATA_CHANNEL_NOT_OPEN"
	CodePeerLimitReached = "PEER_LIMIT_REACHED"
)

// Common WebRTC errors
var (
	// ErrPeerNotFound is returned when a client has no peer connection
	ErrPeerNotFound = errors.New(errors.ErrorTypeNotFound, CodePeerNotFound, "peer connection not found")

	// ErrDataChannelNotOpen is returned when trying to send on a data channel that is not open
	ErrDataChannelNotOpen = errors.New(errors.ErrorTypeTransport, CodeChannelNotOpen, "data channel is not open")

	// ErrPeerLimitReached is returned when the manager holds its maximum number of peers
	ErrPeerLimitReached = errors.New(errors.ErrorTypeLimitExceeded, CodePeerLimitReached, "peer connection limit reached")
)

func negotiationFailed(step string, cause error) *errors.Error {
	return errors.Wrap(cause, errors.ErrorTypeTransport, CodeNegotiation, "failed to "+step)
}
