package errors

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{StreamNotFound("s1"), ErrStreamNotFound},
		{StreamNotActive("s1"), ErrStreamNotFound},
		{SubscriptionLimitExceeded("s1"), ErrSubscriptionLimitExceeded},
		{InvalidClient("c1"), ErrInvalidClient},
		{EncryptionFailed(stderrors.New("bad key")), ErrEncryptionFailed},
		{CompressionFailed(stderrors.New("short write")), ErrCompressionFailed},
		{DeliveryFailed("c1", stderrors.New("closed")), ErrDeliveryFailed},
	}

	for _, tt := range tests {
		assert.ErrorIs(t, tt.err, tt.sentinel, tt.err.Error())
	}

	assert.NotErrorIs(t, StreamNotFound("s1"), ErrSubscriptionLimitExceeded)
}

func TestWrappedChain(t *testing.T) {
	cause := stderrors.New("cipher: message authentication failed")
	err := fmt.Errorf("publish: %w", EncryptionFailed(cause))

	assert.ErrorIs(t, err, ErrEncryptionFailed)
	assert.ErrorIs(t, err, cause)

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeEncryptionFailed, e.Code)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "[STREAM_NOT_FOUND] stream not found: abc", StreamNotFound("abc").Error())
	assert.Equal(t, "[X] plain", New(ErrorTypeInternal, "X", "plain").Error())
}

func TestHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewDefaultHandler(logger)

	h.Handle(context.Background(), StreamNotFound("s1"))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "error_type=not_found")

	buf.Reset()
	h.Handle(context.Background(), stderrors.New("boom"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "unhandled error")

	buf.Reset()
	h.Handle(context.Background(), nil)
	assert.Empty(t, buf.String())
}
