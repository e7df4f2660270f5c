package pipeline

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

func sample() domain.StreamData {
	return domain.StreamData{
		ID:       "m1",
		StreamID: "s1",
		DataType: domain.DataTypeHealthData,
		Payload: map[string]any{
			"heart_rate": float64(72),
			"note":       strings.Repeat("resting ", 32),
		},
		Metadata: domain.StreamMetadata{Source: "watch", Priority: domain.PriorityNormal},
	}
}

func recorder(name string, calls *[]string) Stage {
	return StageFunc(func(data domain.StreamData) (domain.StreamData, error) {
		*calls = append(*calls, name)
		return data, nil
	})
}

func TestPipelineOrderAndGating(t *testing.T) {
	tests := []struct {
		name        string
		compression bool
		encryption  bool
		want        []string
	}{
		{"both", true, true, []string{"compress", "encrypt"}},
		{"compression only", true, false, []string{"compress"}},
		{"encryption only", false, true, []string{"encrypt"}},
		{"neither", false, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			p := New(recorder("compress", &calls), recorder("encrypt", &calls))

			_, err := p.Run(sample(), domain.StreamConfiguration{
				CompressionEnabled: tt.compression,
				EncryptionEnabled:  tt.encryption,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, calls)
		})
	}
}

func TestPassThroughIsIdentity(t *testing.T) {
	p := New(nil, nil)
	in := sample()

	out, err := p.Run(in, domain.StreamConfiguration{CompressionEnabled: true, EncryptionEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPipelineStopsOnFailure(t *testing.T) {
	var calls []string
	failing := StageFunc(func(data domain.StreamData) (domain.StreamData, error) {
		return data, errors.CompressionFailed(stderrors.New("boom"))
	})
	p := New(failing, recorder("encrypt", &calls))

	_, err := p.Run(sample(), domain.StreamConfiguration{CompressionEnabled: true, EncryptionEnabled: true})
	assert.ErrorIs(t, err, errors.ErrCompressionFailed)
	assert.Empty(t, calls)
}

func TestPipelineClassifiesRawStageErrors(t *testing.T) {
	raw := StageFunc(func(data domain.StreamData) (domain.StreamData, error) {
		return data, stderrors.New("raw stage failure")
	})

	tests := []struct {
		name string
		p    *Pipeline
		cfg  domain.StreamConfiguration
		want error
	}{
		{"compressor", New(raw, nil), domain.StreamConfiguration{CompressionEnabled: true}, errors.ErrCompressionFailed},
		{"encryptor", New(nil, raw), domain.StreamConfiguration{EncryptionEnabled: true}, errors.ErrEncryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Run(sample(), tt.cfg)
			require.ErrorIs(t, err, tt.want)
			assert.EqualError(t, stderrors.Unwrap(err), "raw stage failure")
		})
	}
}

func TestZstdRoundTrip(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	in := sample()
	compressed, err := c.Apply(in)
	require.NoError(t, err)
	assert.True(t, compressed.Metadata.Compressed)
	assert.Equal(t, "zstd", compressed.Payload[KeyEncoding])
	assert.Equal(t, in.ID, compressed.ID)

	out, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.False(t, out.Metadata.Compressed)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestZstdSurvivesJSONTransport(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	compressed, err := c.Apply(sample())
	require.NoError(t, err)

	wire, err := json.Marshal(compressed)
	require.NoError(t, err)
	var received domain.StreamData
	require.NoError(t, json.Unmarshal(wire, &received))

	out, err := c.Decompress(received)
	require.NoError(t, err)
	assert.Equal(t, sample().Payload, out.Payload)
}

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	e, err := NewAEADEncryptor(key)
	require.NoError(t, err)

	in := sample()
	sealed, err := e.Apply(in)
	require.NoError(t, err)
	assert.True(t, sealed.Metadata.Encrypted)
	assert.NotContains(t, sealed.Payload, "heart_rate")

	out, err := e.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, in.Payload, out.Payload)

	// sealed payloads are bound to their message id
	sealed.ID = "m2"
	_, err = e.Decrypt(sealed)
	assert.ErrorIs(t, err, errors.ErrEncryptionFailed)
}

func TestCompressThenEncrypt(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()
	e, err := NewAEADEncryptorFromHex("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	p := New(c, e)
	out, err := p.Run(sample(), domain.StreamConfiguration{CompressionEnabled: true, EncryptionEnabled: true})
	require.NoError(t, err)
	assert.True(t, out.Metadata.Compressed)
	assert.True(t, out.Metadata.Encrypted)

	opened, err := e.Decrypt(out)
	require.NoError(t, err)
	restored, err := c.Decompress(opened)
	require.NoError(t, err)
	assert.Equal(t, sample().Payload, restored.Payload)
}

func TestAEADRejectsBadKeys(t *testing.T) {
	_, err := NewAEADEncryptor([]byte("short"))
	assert.ErrorIs(t, err, errors.ErrEncryptionFailed)

	_, err = NewAEADEncryptorFromHex("not-hex")
	assert.ErrorIs(t, err, errors.ErrEncryptionFailed)
}
