package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"treebak/internal/fs"
)

// MemFS is an in-memory filesystem paired with a manager operating on it.
type MemFS struct {
	Fs      afero.Fs
	Manager *fs.Manager
}

// NewMemFS creates an empty in-memory filesystem. exclude is passed to the
// manager as its ignore patterns.
func NewMemFS(exclude ...string) *MemFS {
	afs := afero.NewMemMapFs()
	return &MemFS{
		Fs:      afs,
		Manager: fs.NewManager(afs, exclude),
	}
}

// AddFile writes a file, creating parent directories.
func (m *MemFS) AddFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := m.Fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := afero.WriteFile(m.Fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// AddFiles writes every path -> content pair under root.
func (m *MemFS) AddFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		m.AddFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
}

// AddDirectory creates a directory and its parents.
func (m *MemFS) AddDirectory(t *testing.T, path string) {
	t.Helper()
	if err := m.Fs.MkdirAll(path, 0755); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
}

// SetModTime sets the modification time of path.
func (m *MemFS) SetModTime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := m.Fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting times on %s: %v", path, err)
	}
}

// ReadFile returns the content of path, failing the test if it is missing.
func (m *MemFS) ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(m.Fs, path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

// Exists reports whether path exists.
func (m *MemFS) Exists(path string) bool {
	ok, _ := afero.Exists(m.Fs, path)
	return ok
}
