package treebak

import "io"

// Vault is an off-site object store for pushed backups.
// Keys are slash-separated and relative to the vault root.
type Vault interface {
	// Name returns the configured vault name.
	Name() string

	// PutObject stores size bytes read from r under key, replacing any
	// previous object with that key.
	PutObject(key string, r io.Reader, size int64) error

	// GetObject writes the object stored under key to w.
	GetObject(key string, w io.Writer) error

	// ListObjects returns all keys starting with prefix, sorted.
	ListObjects(prefix string) ([]string, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup() error
}
