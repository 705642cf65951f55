package app

import (
	"time"
)

// Operation names the CLI command an App was built for. Its ID tags every
// log line written during the command.
type Operation struct {
	Name      string
	ID        string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewOperation creates an operation that starts out successful.
func NewOperation(name, id string, startedAt time.Time) *Operation {
	return &Operation{
		Name:      name,
		ID:        id,
		StartedAt: startedAt,
		Status:    "success",
	}
}

// LogID returns the identifier written in the operation column of the log.
func (op *Operation) LogID() string {
	id := op.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return op.Name + ":" + id
}

// Fail marks the operation as failed when err is non-nil and returns err.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}
