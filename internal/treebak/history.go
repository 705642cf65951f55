package treebak

import (
	"fmt"
	"time"
)

// Backup run statuses as stored in history.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record describes one backup run: where it copied from, where to, when,
// and how it ended.
type Record struct {
	ID          string
	Root        string
	Source      string
	Destination string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Status      string
	Error       string
	Files       int
	Dirs        int
	Bytes       int64
}

// Duration returns how long the run took, or zero if it has not finished.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PushRecord describes one upload of a local backup into a vault.
type PushRecord struct {
	ID         string
	BackupName string
	VaultName  string
	Objects    int
	Bytes      int64
	Encrypted  bool
	PushedAt   time.Time
}

// History persists backup and push records.
type History interface {
	// CreateRecord inserts a new run record.
	CreateRecord(rec *Record) error

	// FinishRecord updates status, error, statistics and finish time of an
	// existing run record.
	FinishRecord(rec *Record) error

	// ListRecords returns the most recent runs, newest first.
	ListRecords(limit int) ([]*Record, error)

	// CreatePush inserts a push record.
	CreatePush(p *PushRecord) error

	// ListPushes returns the pushes of a backup, newest first.
	ListPushes(backupName string) ([]*PushRecord, error)

	Close() error
}

// GetHistory returns the most recent backup runs, ordered newest first.
func (s *Service) GetHistory(limit int) ([]*Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	recs, err := s.history.ListRecords(limit)
	if err != nil {
		return nil, fmt.Errorf("listing backup records: %w", err)
	}
	return recs, nil
}

// ListPushes returns the pushes of a backup, newest first.
func (s *Service) ListPushes(name string) ([]*PushRecord, error) {
	pushes, err := s.history.ListPushes(name)
	if err != nil {
		return nil, fmt.Errorf("listing pushes of %s: %w", name, err)
	}
	return pushes, nil
}
