package testutil

import (
	"creator-bridge/internal/bridge"
	"creator-bridge/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() bridge.Encryptor {
	return encryption.NewTestEncryptor()
}

// NewTestKeys returns a decryption context that opens tokens sealed by NewTestEncryptor.
func NewTestKeys() bridge.DecryptionContext {
	return &encryption.TestDecryptionContext{}
}
