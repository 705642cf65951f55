package testutil

import (
	"treebak/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing. Unlock accepts
// the empty passphrase until Setup is called.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}
