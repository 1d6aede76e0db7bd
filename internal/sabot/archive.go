package sabot

import "io"

// Archive stores versioned snapshots of local state off the machine.
type Archive interface {
	// Put stores a snapshot under name with the given version.
	Put(name string, r io.Reader, size int64, version int64) error

	// Latest returns the newest stored version of name, or 0 if none.
	Latest(name string) (int64, error)

	// Get writes the snapshot of name at version to w.
	Get(name string, version int64, w io.Writer) error

	// ValidateSetup checks that the backend is reachable and usable.
	ValidateSetup() error
}

// Encryptor encrypts archive snapshots with a public key and decrypts them
// with a passphrase-protected private key.
type Encryptor interface {
	// Setup generates the key pair, protecting the private key with
	// passphrase.
	Setup(passphrase string) error

	// Encrypt needs only the public key.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock fails when the passphrase is wrong.
	Unlock(passphrase string) (DecryptionContext, error)

	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
