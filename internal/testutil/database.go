package testutil

import (
	"testing"

	"treebak/internal/database"
	"treebak/internal/treebak"
)

// NewTestDatabase creates a new in-memory SQLite history with migrations applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// FailingHistory wraps a History and fails the selected calls with Err.
type FailingHistory struct {
	treebak.History
	Err          error
	FailCreate   bool
	FailFinish   bool
	FailPush     bool
	FinishCalled int
}

func (h *FailingHistory) CreateRecord(rec *treebak.Record) error {
	if h.FailCreate {
		return h.Err
	}
	return h.History.CreateRecord(rec)
}

func (h *FailingHistory) FinishRecord(rec *treebak.Record) error {
	h.FinishCalled++
	if h.FailFinish {
		return h.Err
	}
	return h.History.FinishRecord(rec)
}

func (h *FailingHistory) CreatePush(p *treebak.PushRecord) error {
	if h.FailPush {
		return h.Err
	}
	return h.History.CreatePush(p)
}
