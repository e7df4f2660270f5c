package webrtc

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Channel is the part of a pion data channel used for delivery.
// *webrtc.DataChannel satisfies it.
type Channel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	SendText(text string) error
	Close() error
}

// DataChannel wraps a data channel with delivery counters
type DataChannel struct {
	ch Channel

	messagesSent int64
	bytesSent    int64
}

// NewDataChannel creates a new data channel wrapper
func NewDataChannel(ch Channel) *DataChannel {
	return &DataChannel{ch: ch}
}

// Label returns the data channel label
func (d *DataChannel) Label() string {
	return d.ch.Label()
}

// Open reports whether the channel can send
func (d *DataChannel) Open() bool {
	return d.ch.ReadyState() == webrtc.DataChannelStateOpen
}

// Send sends one text frame over the data channel
func (d *DataChannel) Send(data []byte) error {
	if !d.Open() {
		return ErrDataChannelNotOpen
	}

	if err := d.ch.SendText(string(data)); err != nil {
		return err
	}

	atomic.AddInt64(&d.messagesSent, 1)
	atomic.AddInt64(&d.bytesSent, int64(len(data)))

	return nil
}

// Stats returns the number of messages and bytes sent
func (d *DataChannel) Stats() (messages, bytes int64) {
	return atomic.LoadInt64(&d.messagesSent), atomic.LoadInt64(&d.bytesSent)
}

// Close closes the data channel
func (d *DataChannel) Close() error {
	return d.ch.Close()
}
