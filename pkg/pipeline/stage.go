package pipeline

import (
	"encoding/base64"
	"fmt"

	"github.com/HMasataka/streamhub/pkg/domain"
)

// Stage transforms a message on its way to the broker. Stages keep the
// message shape: only Payload and Metadata flags may change.
type Stage interface {
	Apply(data domain.StreamData) (domain.StreamData, error)
}

// StageFunc adapts a function to Stage
type StageFunc func(data domain.StreamData) (domain.StreamData, error)

// Apply implements Stage
func (f StageFunc) Apply(data domain.StreamData) (domain.StreamData, error) {
	return f(data)
}

// PassThrough returns messages unchanged. It is the default for both the
// compression and the encryption slot.
type PassThrough struct{}

// Apply implements Stage
func (PassThrough) Apply(data domain.StreamData) (domain.StreamData, error) {
	return data, nil
}

// Payload keys written by the transforming stages
const (
	KeyEncoding = "encoding"
	KeyCipher   = "cipher"
	KeyNonce    = "nonce"
	KeyData     = "data"
)

// bytesField reads a binary payload field. After a JSON round trip the value
// is a base64 string rather than a byte slice.
func bytesField(payload map[string]any, key string) ([]byte, error) {
	switch v := payload[key].(type) {
	case []byte:
		return v, nil
	case string:
		return base64.StdEncoding.DecodeString(v)
	default:
		return nil, fmt.Errorf("payload field %q is %T, want bytes", key, v)
	}
}
