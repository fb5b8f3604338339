package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		body     sql.NullString
		category sql.NullString
	)

	err := row.Scan(
		&e.TaskID,
		&e.ID,
		&e.AgentID,
		&e.Title,
		&body,
		&e.Status,
		&category,
		&e.Timestamp,
		&e.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Body = body.String
	e.Category = category.String
	e.Timestamp = e.Timestamp.UTC()
	e.ReceivedAt = e.ReceivedAt.UTC()
	return &e, nil
}
