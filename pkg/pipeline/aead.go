package pipeline

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

const cipherXChaCha20Poly1305 = "xchacha20poly1305"

// AEADEncryptor seals the payload with XChaCha20-Poly1305. The stream id and
// message id are bound as additional data so a sealed payload cannot be
// replayed under another message.
type AEADEncryptor struct {
	aead cipher.AEAD
}

// NewAEADEncryptor creates an encryptor from a 32 byte key
func NewAEADEncryptor(key []byte) (*AEADEncryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.EncryptionFailed(err)
	}
	return &AEADEncryptor{aead: aead}, nil
}

// NewAEADEncryptorFromHex creates an encryptor from a hex encoded key
func NewAEADEncryptorFromHex(key string) (*AEADEncryptor, error) {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, errors.EncryptionFailed(fmt.Errorf("decode key: %w", err))
	}
	return NewAEADEncryptor(raw)
}

// Apply implements Stage
func (e *AEADEncryptor) Apply(data domain.StreamData) (domain.StreamData, error) {
	plaintext, err := json.Marshal(data.Payload)
	if err != nil {
		return data, errors.EncryptionFailed(err)
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return data, errors.EncryptionFailed(err)
	}

	data.Payload = map[string]any{
		KeyCipher: cipherXChaCha20Poly1305,
		KeyNonce:  nonce,
		KeyData:   e.aead.Seal(nil, nonce, plaintext, additionalData(data)),
	}
	data.Metadata.Encrypted = true
	return data, nil
}

// Decrypt reverses Apply
func (e *AEADEncryptor) Decrypt(data domain.StreamData) (domain.StreamData, error) {
	if !data.Metadata.Encrypted {
		return data, nil
	}
	if c, _ := data.Payload[KeyCipher].(string); c != cipherXChaCha20Poly1305 {
		return data, errors.EncryptionFailed(fmt.Errorf("unexpected cipher %q", c))
	}

	nonce, err := bytesField(data.Payload, KeyNonce)
	if err != nil {
		return data, errors.EncryptionFailed(err)
	}
	sealed, err := bytesField(data.Payload, KeyData)
	if err != nil {
		return data, errors.EncryptionFailed(err)
	}
	if len(nonce) != e.aead.NonceSize() {
		return data, errors.EncryptionFailed(fmt.Errorf("nonce has %d bytes", len(nonce)))
	}

	plaintext, err := e.aead.Open(nil, nonce, sealed, additionalData(data))
	if err != nil {
		return data, errors.EncryptionFailed(err)
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return data, errors.EncryptionFailed(err)
	}
	data.Payload = payload
	data.Metadata.Encrypted = false
	return data, nil
}

func additionalData(data domain.StreamData) []byte {
	return []byte(string(data.StreamID) + "/" + data.ID)
}
