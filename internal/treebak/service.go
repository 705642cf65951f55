package treebak

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Service coordinates the filesystem, history and vault to perform the
// operations the CLI exposes.
type Service struct {
	layout    Layout
	hostID    string
	fsmgr     FilesystemManager
	history   History
	vault     Vault     // nil when no vault is configured
	encryptor Encryptor // nil when pushes are stored in plaintext
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a Service with the provided dependencies.
// vault and encryptor may be nil; push and pull then fail or store plaintext.
func NewService(layout Layout, hostID string, fsmgr FilesystemManager, history History, vault Vault, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		layout:    layout,
		hostID:    hostID,
		fsmgr:     fsmgr,
		history:   history,
		vault:     vault,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Layout returns the layout the service was built with.
func (s *Service) Layout() Layout {
	return s.layout
}

// LocateRoot finds the repository root at or above start.
func (s *Service) LocateRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}
	root, err := FindRepoRoot(s.fsmgr, abs, s.layout.Marker)
	if err != nil {
		return "", err
	}
	s.logger.Debug("repository root located", "start", abs, "root", root)
	return root, nil
}

// Backup copies the layout's source tree under root into a new timestamped
// directory next to it and records the run in history.
//
// The returned Record is non-nil whenever the run was recorded, including
// failed runs, so callers can report the attempted destination.
func (s *Service) Backup(root string) (*Record, error) {
	now := s.clock.Now()
	rec := &Record{
		ID:          s.idgen.New(),
		Root:        root,
		Source:      s.layout.SourcePath(root),
		Destination: s.layout.DestinationPath(root, now),
		StartedAt:   now,
		Status:      StatusRunning,
	}
	if err := s.history.CreateRecord(rec); err != nil {
		return nil, fmt.Errorf("recording backup start: %w", err)
	}

	s.logger.Info("backup started", "source", rec.Source, "destination", rec.Destination)
	stats, err := s.copySource(rec)
	return rec, s.finish(rec, stats, err)
}

func (s *Service) copySource(rec *Record) (*CopyStats, error) {
	ok, err := s.fsmgr.IsDir(rec.Source)
	if err != nil {
		return nil, fmt.Errorf("checking source directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: '%s' does not exist", ErrSourceNotFound, rec.Source)
	}
	return s.fsmgr.CopyTree(rec.Source, rec.Destination)
}

// finish stamps the outcome of a run onto rec and persists it.
// The copy error wins over a history error.
func (s *Service) finish(rec *Record, stats *CopyStats, runErr error) error {
	rec.FinishedAt = s.clock.Now()
	if stats != nil {
		rec.Files, rec.Dirs, rec.Bytes = stats.Files, stats.Dirs, stats.Bytes
	}
	if runErr != nil {
		rec.Status = StatusError
		rec.Error = runErr.Error()
		s.logger.Info("backup failed", "destination", rec.Destination, "error", runErr)
	} else {
		rec.Status = StatusSuccess
		s.logger.Info("backup complete", "destination", rec.Destination, "files", rec.Files, "dirs", rec.Dirs, "bytes", rec.Bytes)
	}

	if err := s.history.FinishRecord(rec); err != nil {
		if runErr != nil {
			s.logger.Warn("recording backup outcome failed", "error", err)
			return runErr
		}
		return fmt.Errorf("recording backup outcome: %w", err)
	}
	return runErr
}

// BackupEntry is an existing backup directory found at the repository root.
type BackupEntry struct {
	Name string
	Path string
	Time time.Time
}

// ListBackups returns the backup directories under root, oldest first.
func (s *Service) ListBackups(root string) ([]*BackupEntry, error) {
	infos, err := s.fsmgr.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading repository root: %w", err)
	}

	var entries []*BackupEntry
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		t, ok := s.layout.ParseName(info.Name())
		if !ok {
			continue
		}
		entries = append(entries, &BackupEntry{
			Name: info.Name(),
			Path: filepath.Join(root, info.Name()),
			Time: t,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Time.Equal(entries[j].Time) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}
