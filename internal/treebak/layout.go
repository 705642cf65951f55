package treebak

import (
	"path/filepath"
	"strings"
	"time"
)

// Default layout values: the tree that gets backed up and how backups are named.
const (
	DefaultMarker          = ".git"
	DefaultSource          = "OpenAPIHandlerGen/Tests/MigrationsGeneratorTests"
	DefaultPrefix          = "MigrationsGeneratorTestsBackup_"
	DefaultTimestampLayout = "20060102_150405"
	DefaultLabel           = "Migrations Generator Tests"
)

// Layout names the marker that identifies a repository root, the source
// tree relative to that root, and the naming scheme of backup directories.
type Layout struct {
	Marker          string
	Source          string // slash-separated, relative to the root
	Prefix          string
	TimestampLayout string // Go reference-time layout
	Label           string // human name used in status messages
}

// DefaultLayout returns the layout for backing up the migrations generator tests.
func DefaultLayout() Layout {
	return Layout{
		Marker:          DefaultMarker,
		Source:          DefaultSource,
		Prefix:          DefaultPrefix,
		TimestampLayout: DefaultTimestampLayout,
		Label:           DefaultLabel,
	}
}

// SourcePath returns the absolute source directory under root.
func (l Layout) SourcePath(root string) string {
	return filepath.Join(root, filepath.FromSlash(l.Source))
}

// DestinationName returns the backup directory name for time t.
func (l Layout) DestinationName(t time.Time) string {
	return l.Prefix + t.Format(l.TimestampLayout)
}

// DestinationPath returns the absolute backup directory under root for time t.
func (l Layout) DestinationPath(root string, t time.Time) string {
	return filepath.Join(root, l.DestinationName(t))
}

// ParseName reports whether name is a backup directory name under this
// layout and, if so, the local time encoded in it.
func (l Layout) ParseName(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, l.Prefix)
	if !ok || stamp == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(l.TimestampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
