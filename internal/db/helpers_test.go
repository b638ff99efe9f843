package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/chepyr/charity-tasks/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB opens an in-memory sqlite database with the full schema.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbx, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbx.SetMaxOpenConns(1)
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	return dbx
}

func newPendingTask(charityID uuid.UUID, title string, createdAt time.Time) *models.Task {
	return &models.Task{
		ID:          uuid.New(),
		CharityID:   charityID,
		State:       models.TaskStatePending,
		Title:       title,
		Description: "desc",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func collect(t *testing.T, seq func(func(*models.Task, error) bool)) []*models.Task {
	t.Helper()
	var out []*models.Task
	for task, err := range seq {
		if err != nil {
			t.Fatalf("iterate tasks: %v", err)
		}
		out = append(out, task)
	}
	return out
}

func nullID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
