package treebak

import (
	"io"
	"io/fs"
)

// CopyStats summarises a completed (or partially completed) tree copy.
// Dirs counts subdirectories only, not the destination root itself.
type CopyStats struct {
	Files int
	Dirs  int
	Bytes int64
}

// FileEntry is a regular file found under a directory, addressed by its
// slash-separated path relative to that directory.
type FileEntry struct {
	RelativePath string
	Size         int64
}

// FilesystemManager abstracts the filesystem so the service can be tested
// against an in-memory tree.
type FilesystemManager interface {
	// IsDir reports whether path exists and is a directory.
	// A missing path is not an error.
	IsDir(path string) (bool, error)

	// ReadDir lists the entries of a directory sorted by name.
	ReadDir(path string) ([]fs.FileInfo, error)

	// CopyTree recursively copies src into dst. dst must not exist; it is
	// created with a single non-recursive mkdir so concurrent callers cannot
	// both succeed. Returns ErrDestinationExists if it is already present.
	CopyTree(src, dst string) (*CopyStats, error)

	// ListFiles returns every regular file below root, sorted by path.
	ListFiles(root string) ([]FileEntry, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Mkdir creates a single directory, returning ErrDestinationExists if
	// the path is already taken.
	Mkdir(path string) error

	// WriteFile creates a new file at path from r, creating missing parent
	// directories. Existing files are never overwritten.
	WriteFile(path string, r io.Reader) error
}
