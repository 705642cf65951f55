package database

import (
	"database/sql"
	"fmt"
	"time"

	"treebak/internal/database/migrations"
	"treebak/internal/treebak"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements treebak.History using SQLite.
type SQLiteDatabase struct {
	db *sql.DB
}

// NewSQLiteDatabase opens a SQLite database and brings its schema up to date.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	return &SQLiteDatabase{db: db}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// from splitting into one database per pooled connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Backup records

func (s *SQLiteDatabase) CreateRecord(rec *treebak.Record) error {
	_, err := s.db.Exec(`
		INSERT INTO backups (id, repo_root, source_path, destination_path, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Root, rec.Source, rec.Destination, rec.StartedAt.UTC(), rec.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting backup record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FinishRecord(rec *treebak.Record) error {
	res, err := s.db.Exec(`
		UPDATE backups
		SET finished_at = ?, status = ?, error = ?, file_count = ?, dir_count = ?, byte_count = ?
		WHERE id = ?`,
		nullTime(rec.FinishedAt), rec.Status, rec.Error, rec.Files, rec.Dirs, rec.Bytes, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating backup record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("backup record not found: %s", rec.ID)
	}
	return nil
}

func (s *SQLiteDatabase) ListRecords(limit int) ([]*treebak.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, repo_root, source_path, destination_path, started_at, finished_at,
		       status, error, file_count, dir_count, byte_count
		FROM backups
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing backup records: %w", err)
	}
	defer rows.Close()

	recs := []*treebak.Record{}
	for rows.Next() {
		var rec treebak.Record
		var finished sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.Root, &rec.Source, &rec.Destination, &rec.StartedAt, &finished,
			&rec.Status, &rec.Error, &rec.Files, &rec.Dirs, &rec.Bytes,
		); err != nil {
			return nil, fmt.Errorf("scanning backup record: %w", err)
		}
		if finished.Valid {
			rec.FinishedAt = finished.Time
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading backup records: %w", err)
	}
	return recs, nil
}

// Push records

func (s *SQLiteDatabase) CreatePush(p *treebak.PushRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO pushes (id, backup_name, vault_name, object_count, byte_count, encrypted, pushed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BackupName, p.VaultName, p.Objects, p.Bytes, p.Encrypted, p.PushedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting push record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListPushes(backupName string) ([]*treebak.PushRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, backup_name, vault_name, object_count, byte_count, encrypted, pushed_at
		FROM pushes
		WHERE backup_name = ?
		ORDER BY pushed_at DESC, rowid DESC`, backupName)
	if err != nil {
		return nil, fmt.Errorf("listing push records: %w", err)
	}
	defer rows.Close()

	pushes := []*treebak.PushRecord{}
	for rows.Next() {
		var p treebak.PushRecord
		if err := rows.Scan(&p.ID, &p.BackupName, &p.VaultName, &p.Objects, &p.Bytes, &p.Encrypted, &p.PushedAt); err != nil {
			return nil, fmt.Errorf("scanning push record: %w", err)
		}
		pushes = append(pushes, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading push records: %w", err)
	}
	return pushes, nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Compile-time check that SQLiteDatabase implements treebak.History
var _ treebak.History = (*SQLiteDatabase)(nil)
