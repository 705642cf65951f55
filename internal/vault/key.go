package vault

import (
	"fmt"
	"path"
	"strings"
)

// validateKey rejects keys that are empty, absolute, or that would resolve
// outside the vault root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid object key: %q", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("object key is not clean: %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("invalid object key: %q", key)
		}
	}
	return nil
}
