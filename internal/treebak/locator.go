package treebak

import (
	"fmt"
	"path/filepath"
)

// FindRepoRoot walks upward from start and returns the first directory,
// start included, that contains a marker subdirectory. It stops with
// ErrRootNotFound once the parent of the cursor is the cursor itself.
func FindRepoRoot(fsmgr FilesystemManager, start, marker string) (string, error) {
	cursor := filepath.Clean(start)
	for {
		found, err := fsmgr.IsDir(filepath.Join(cursor, marker))
		if err != nil {
			return "", fmt.Errorf("checking %s for %s: %w", cursor, marker, err)
		}
		if found {
			return cursor, nil
		}

		parent := filepath.Dir(cursor)
		if parent == cursor {
			return "", fmt.Errorf("%w: no %s directory in %s or any parent", ErrRootNotFound, marker, start)
		}
		cursor = parent
	}
}
