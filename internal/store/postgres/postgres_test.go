package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// eventRowColumns is the column list for scanEvent results.
var eventRowColumns = []string{
	"task_id", "id", "agent_id", "title", "body", "status", "category", "timestamp", "received_at",
}

func TestQueryUpsertEvent(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)
	recv := time.Date(2024, 1, 1, 10, 5, 1, 0, time.UTC)

	e := &model.Event{
		ID: "a2", AgentID: "bot1", TaskID: "t1", Title: "Build",
		Status: model.StatusSuccess, Timestamp: ts, ReceivedAt: recv,
	}

	mock.ExpectExec(`INSERT INTO events .+ ON CONFLICT \(task_id\) DO UPDATE SET .+GREATEST\(events.received_at, EXCLUDED.received_at\)`).
		WithArgs("t1", "a2", "bot1", "Build", "", "success", "", ts, recv).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryUpsertEvent(context.Background(), db, e); err != nil {
		t.Fatalf("queryUpsertEvent: %v", err)
	}
}

func TestQueryUpsertEvent_Error(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO events`).WillReturnError(boom)

	err := queryUpsertEvent(context.Background(), db, &model.Event{TaskID: "t1", Status: model.StatusInfo})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped %v, got %v", boom, err)
	}
}

func TestQueryListEvents(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(eventRowColumns).
		AddRow("t2", "b1", "ci", "Tests", "all green", "success", "ci", now, now.Add(2*time.Second)).
		AddRow("t1", "a1", "bot1", "Build", nil, "in_progress", nil, now, now.Add(time.Second))
	mock.ExpectQuery(`SELECT .+ FROM events ORDER BY received_at DESC, task_id ASC`).WillReturnRows(rows)

	events, err := queryListEvents(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].TaskID != "t2" || events[0].Body != "all green" || events[0].Category != "ci" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Body != "" || events[1].Category != "" {
		t.Errorf("NULL columns should scan as empty strings: %+v", events[1])
	}
	if events[1].Status != model.StatusInProgress {
		t.Errorf("status = %q, want %q", events[1].Status, model.StatusInProgress)
	}
}

func TestQueryListEvents_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT .+ FROM events`).WillReturnRows(sqlmock.NewRows(eventRowColumns))

	events, err := queryListEvents(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestQueryListEvents_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT .+ FROM events`).WillReturnError(sql.ErrConnDone)

	if _, err := queryListEvents(context.Background(), db); !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected sql.ErrConnDone, got %v", err)
	}
}

func TestPostgresStore_Delegates(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectExec(`INSERT INTO events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM events`).WillReturnRows(sqlmock.NewRows(eventRowColumns))
	mock.ExpectClose()

	ctx := context.Background()
	if err := s.UpsertEvent(ctx, &model.Event{TaskID: "t1", Status: model.StatusInfo}); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}
	if _, err := s.ListEvents(ctx); err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPing_RetriesUntilReady(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	if err := ping(context.Background(), db, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPing_StopsOnCancel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := ping(ctx, db, nil); err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("ping kept retrying for %v after cancel", elapsed)
	}
}
