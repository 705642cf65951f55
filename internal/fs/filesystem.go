package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/afero"

	"treebak/internal/treebak"
)

const (
	// dirPerm is used while a directory is being filled; the source mode is
	// applied once its children are written.
	dirPerm = 0o755
	// filePerm is used for files written from a vault.
	filePerm = 0o644
	// maxDepth bounds recursion so that symlink cycles terminate.
	maxDepth = 255
)

// Manager implements treebak.FilesystemManager on top of an afero.Fs.
type Manager struct {
	fs     afero.Fs
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a manager that operates on the real filesystem.
// ignore holds exclusion patterns applied by CopyTree.
func NewOSFilesystemManager(ignore []string) *Manager {
	return NewManager(afero.NewOsFs(), ignore)
}

// NewManager creates a manager over the given filesystem.
func NewManager(afs afero.Fs, ignore []string) *Manager {
	return &Manager{
		fs:     afs,
		ignore: NewIgnoreMatcher(ignore),
	}
}

// IsDir reports whether path exists and is a directory.
func (m *Manager) IsDir(path string) (bool, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir(), nil
}

// ReadDir lists the entries of a directory sorted by name.
func (m *Manager) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(m.fs, path)
}

// Open opens a file for reading.
func (m *Manager) Open(path string) (io.ReadCloser, error) {
	return m.fs.Open(path)
}

// Mkdir creates a single directory. It does not create parents, and it
// fails with treebak.ErrDestinationExists when the path is taken.
func (m *Manager) Mkdir(path string) error {
	if err := m.fs.Mkdir(path, dirPerm); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", treebak.ErrDestinationExists, path)
		}
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

// CopyTree copies the directory src to dst, which must not exist yet.
// Regular files keep their permission bits and modification time;
// directories get the source mode after their contents are written.
// Symlinks are followed. Entries matching the ignore patterns are skipped.
// On failure the partially written destination is left in place.
func (m *Manager) CopyTree(src, dst string) (*treebak.CopyStats, error) {
	info, err := m.fs.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", src)
	}

	if err := m.Mkdir(dst); err != nil {
		return nil, err
	}

	stats := &treebak.CopyStats{}
	if err := m.copyDir(src, dst, "", 0, stats); err != nil {
		return stats, err
	}
	if err := m.applyMeta(dst, info); err != nil {
		return stats, err
	}
	return stats, nil
}

func (m *Manager) copyDir(src, dst, rel string, depth int, stats *treebak.CopyStats) error {
	if depth > maxDepth {
		return fmt.Errorf("too many levels of nested directories at %s", src)
	}

	entries, err := afero.ReadDir(m.fs, src)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	for _, entry := range entries {
		relPath := filepath.Join(rel, entry.Name())
		if m.ignore.Match(relPath) {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info := entry
		if info.Mode()&os.ModeSymlink != 0 {
			info, err = m.fs.Stat(srcPath)
			if err != nil {
				return fmt.Errorf("following symlink %s: %w", srcPath, err)
			}
		}

		switch {
		case info.IsDir():
			if err := m.fs.Mkdir(dstPath, dirPerm); err != nil {
				return fmt.Errorf("creating directory %s: %w", dstPath, err)
			}
			stats.Dirs++
			if err := m.copyDir(srcPath, dstPath, relPath, depth+1, stats); err != nil {
				return err
			}
			if err := m.applyMeta(dstPath, info); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			n, err := m.copyFile(srcPath, dstPath, info)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += n
		default:
			return fmt.Errorf("%w: %s", treebak.ErrUnsupportedFile, srcPath)
		}
	}
	return nil
}

func (m *Manager) copyFile(src, dst string, info os.FileInfo) (int64, error) {
	in, err := m.fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := m.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("closing %s: %w", dst, err)
	}

	return n, m.applyMeta(dst, info)
}

// applyMeta copies permission bits and modification time from info onto path.
// Chmod runs explicitly because creation modes are filtered by the umask.
func (m *Manager) applyMeta(path string, info os.FileInfo) error {
	if err := m.fs.Chmod(path, info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := m.fs.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("setting times on %s: %w", path, err)
	}
	return nil
}

// ListFiles returns every regular file below root with its slash-separated
// relative path, sorted. Symlinks to regular files are included.
func (m *Manager) ListFiles(root string) ([]treebak.FileEntry, error) {
	var files []treebak.FileEntry
	err := afero.Walk(m.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			info, err = m.fs.Stat(p)
			if err != nil {
				return fmt.Errorf("following symlink %s: %w", p, err)
			}
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("calculating relative path: %w", err)
		}
		files = append(files, treebak.FileEntry{
			RelativePath: filepath.ToSlash(rel),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

// WriteFile creates path from r, creating missing parent directories.
// An existing file is never overwritten.
func (m *Manager) WriteFile(path string, r io.Reader) error {
	if err := m.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", treebak.ErrDestinationExists, path)
		}
		return fmt.Errorf("creating file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	return f.Close()
}

// isNotExist treats "a path component is a regular file" the same as a
// missing path.
func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// Compile-time check that Manager implements treebak.FilesystemManager
var _ treebak.FilesystemManager = (*Manager)(nil)
