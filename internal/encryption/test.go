package encryption

import (
	"encoding/base64"
	"fmt"
	"strings"

	"creator-bridge/internal/bridge"
)

// testPrefix marks tokens sealed by TestEncryptor.
const testPrefix = "test-sealed:"

// TestEncryptor is a simple, deterministic encryptor for testing.
// Sealed values are the base64 of the plaintext behind a fixed prefix, so they
// differ from the plaintext while needing no keys or crypto.
type TestEncryptor struct {
	setupCalled bool
}

var _ bridge.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Seal(plaintext string) (string, error) {
	return testPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (e *TestEncryptor) Unlock(passphrase string) (bridge.DecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext reverses TestEncryptor.Seal.
type TestDecryptionContext struct{}

var _ bridge.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Open(sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, testPrefix)
	if !ok {
		return "", fmt.Errorf("invalid test sealing prefix")
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding test token: %w", err)
	}
	return string(b), nil
}
