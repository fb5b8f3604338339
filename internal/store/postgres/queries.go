package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `task_id, id, agent_id, title, body, status, category, timestamp, received_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queryUpsertEvent writes every field of e under its task_id. received_at
// never moves backwards for a task.
func queryUpsertEvent(ctx context.Context, db executor, e *model.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (
			task_id, id, agent_id, title, body, status, category, timestamp, received_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (task_id) DO UPDATE SET
			id          = EXCLUDED.id,
			agent_id    = EXCLUDED.agent_id,
			title       = EXCLUDED.title,
			body        = EXCLUDED.body,
			status      = EXCLUDED.status,
			category    = EXCLUDED.category,
			timestamp   = EXCLUDED.timestamp,
			received_at = GREATEST(events.received_at, EXCLUDED.received_at)`,
		e.TaskID,
		e.ID,
		e.AgentID,
		e.Title,
		e.Body,
		string(e.Status),
		e.Category,
		e.Timestamp,
		e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.TaskID, err)
	}
	return nil
}

func queryListEvents(ctx context.Context, db executor) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY received_at DESC, task_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
