package database

import (
	"context"
	"fmt"
)

// schema holds the platform tables. Statements are idempotent so Migrate can
// run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'LEARNER',
		avatar TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		level INT NOT NULL DEFAULT 1 CHECK (level BETWEEN 1 AND 5),
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS completed_lessons (
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, lesson_id)
	)`,
	`CREATE TABLE IF NOT EXISTS activity_log (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		score INT,
		passed BOOLEAN,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS activity_log_user_idx
		ON activity_log (user_id, created_at DESC)`,
}

// Migrate creates the platform tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
