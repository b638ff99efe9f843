package db

import (
	"context"
	"database/sql"
	"fmt"
)

func Connect(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// schema works on both postgres and sqlite: ids are stored as text and
// placeholders use the $N form.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS charities (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
  name TEXT NOT NULL,
  reg_number TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS benefactors (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
  experience INTEGER NOT NULL DEFAULT 0,
  free_time_per_week INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  charity_id TEXT NOT NULL REFERENCES charities(id),
  assigned_benefactor_id TEXT REFERENCES benefactors(id),
  state TEXT NOT NULL CHECK (state IN ('Pending', 'Waiting', 'Assigned', 'Done')),
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  task_date TIMESTAMP,
  age_limit_from INTEGER,
  age_limit_to INTEGER,
  gender_limit TEXT CHECK (gender_limit IN ('M', 'F')),
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_charity_id ON tasks(charity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_benefactor_id ON tasks(assigned_benefactor_id)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
