package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

const encodingZstd = "zstd"

// ZstdCompressor replaces the payload with its zstd-compressed JSON encoding
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor creates a compressor. Encoder and decoder are safe for
// concurrent EncodeAll/DecodeAll calls.
func NewZstdCompressor() (*ZstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

// Apply implements Stage
func (c *ZstdCompressor) Apply(data domain.StreamData) (domain.StreamData, error) {
	raw, err := json.Marshal(data.Payload)
	if err != nil {
		return data, errors.CompressionFailed(err)
	}

	data.Payload = map[string]any{
		KeyEncoding: encodingZstd,
		KeyData:     c.encoder.EncodeAll(raw, nil),
	}
	data.Metadata.Compressed = true
	return data, nil
}

// Decompress reverses Apply
func (c *ZstdCompressor) Decompress(data domain.StreamData) (domain.StreamData, error) {
	if !data.Metadata.Compressed {
		return data, nil
	}
	if enc, _ := data.Payload[KeyEncoding].(string); enc != encodingZstd {
		return data, errors.CompressionFailed(fmt.Errorf("unexpected encoding %q", enc))
	}

	compressed, err := bytesField(data.Payload, KeyData)
	if err != nil {
		return data, errors.CompressionFailed(err)
	}
	raw, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return data, errors.CompressionFailed(err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return data, errors.CompressionFailed(err)
	}
	data.Payload = payload
	data.Metadata.Compressed = false
	return data, nil
}

// Close releases encoder and decoder resources
func (c *ZstdCompressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
