package bridge

// Encryptor seals platform tokens before they are stored.
// Sealing needs only the public key; opening needs the passphrase-protected
// private key, unlocked once per process into a DecryptionContext.
type Encryptor interface {
	// Setup performs one-time key generation during `bridge config init`.
	Setup(passphrase string) error

	// Seal encrypts a token and returns an ASCII-armored ciphertext.
	Seal(plaintext string) (string, error)

	// Unlock decrypts the private key. Returns an error for a wrong passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext opens sealed tokens with an unlocked private key held in memory.
type DecryptionContext interface {
	Open(sealed string) (string, error)
}
