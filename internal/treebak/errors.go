package treebak

import "errors"

// Sentinel errors for the failure kinds a backup run can report.
// Callers test for them with errors.Is; the wrapped message carries the path.
var (
	// ErrRootNotFound means the upward walk reached the filesystem root
	// without finding the marker directory.
	ErrRootNotFound = errors.New("repository root not found")

	// ErrSourceNotFound means the directory to back up does not exist
	// under the repository root.
	ErrSourceNotFound = errors.New("source directory not found")

	// ErrDestinationExists means the target directory name is already taken,
	// typically by a backup made within the same second.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrUnsupportedFile means the source tree holds something other than
	// regular files, directories and symlinks to them.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrBackupNotFound means a named backup is absent locally or in the vault.
	ErrBackupNotFound = errors.New("backup not found")
)
