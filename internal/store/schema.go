package store

import (
	"context"
	"fmt"
	"strings"
)

// schema is applied statement by statement; {{id}} and {{ref}} are replaced
// with the dialect's key column types.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		email    TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role     TEXT NOT NULL CHECK (role IN ('admin', 'teacher', 'student')),
		name     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id         {{id}},
		name       TEXT NOT NULL,
		department TEXT NOT NULL,
		class_code TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS class_schedule (
		id         {{id}},
		class_id   {{ref}} NOT NULL REFERENCES classes(id),
		day        TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS student_profiles (
		email    TEXT PRIMARY KEY REFERENCES users(email),
		class_id {{ref}} NOT NULL REFERENCES classes(id)
	)`,
	`CREATE TABLE IF NOT EXISTS teacher_profiles (
		email      TEXT PRIMARY KEY REFERENCES users(email),
		department TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teacher_classes (
		email    TEXT NOT NULL REFERENCES users(email),
		class_id {{ref}} NOT NULL REFERENCES classes(id),
		PRIMARY KEY (email, class_id)
	)`,
	`CREATE TABLE IF NOT EXISTS otp (
		id           {{id}},
		code         TEXT NOT NULL,
		class_id     {{ref}} NOT NULL REFERENCES classes(id),
		created_time BIGINT NOT NULL,
		created_by   TEXT NOT NULL REFERENCES users(email)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id        {{id}},
		email     TEXT NOT NULL REFERENCES users(email),
		class_id  {{ref}} NOT NULL REFERENCES classes(id),
		timestamp BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedule_class ON class_schedule(class_id)`,
	`CREATE INDEX IF NOT EXISTS idx_otp_class_time ON otp(class_id, created_time)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_email ON attendance(email, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_time ON attendance(timestamp)`,
}

// Migrate creates every table and index that does not exist yet. It is safe
// to run on every startup.
func (d *DB) Migrate(ctx context.Context) error {
	r := strings.NewReplacer("{{id}}", d.Dialect.IDColumn, "{{ref}}", d.Dialect.IntRef)
	for i, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
