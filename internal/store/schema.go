package store

import (
	"context"
	"fmt"
	"strings"
)

// Both drivers accept the same DDL once the timestamp type is substituted.
const schema = `
CREATE TABLE IF NOT EXISTS students (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	surname       TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	course        TEXT NOT NULL,
	faculty       TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	face_ref      TEXT,
	created_at    {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS lecturers (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	surname       TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	faculty       TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS modules (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	code        TEXT NOT NULL UNIQUE,
	faculty     TEXT NOT NULL,
	lecturer_id TEXT NOT NULL REFERENCES lecturers(id),
	created_at  {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL REFERENCES students(id),
	module_id   TEXT NOT NULL REFERENCES modules(id),
	final_mark  DOUBLE PRECISION NOT NULL DEFAULT 0,
	enrolled_at {{ts}} NOT NULL,
	UNIQUE (student_id, module_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	module_id    TEXT NOT NULL REFERENCES modules(id),
	session_date TEXT NOT NULL,
	start_time   TEXT NOT NULL,
	end_time     TEXT NOT NULL,
	created_at   {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance (
	id              TEXT PRIMARY KEY,
	student_id      TEXT NOT NULL REFERENCES students(id),
	module_id       TEXT NOT NULL REFERENCES modules(id),
	session_id      TEXT NOT NULL REFERENCES sessions(id),
	status          TEXT NOT NULL,
	attendance_time {{ts}} NOT NULL,
	created_at      {{ts}} NOT NULL,
	UNIQUE (student_id, session_id)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	token      TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	expires_at {{ts}} NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_sessions_module ON sessions(module_id);
CREATE INDEX IF NOT EXISTS idx_attendance_module ON attendance(module_id, student_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_module ON enrollments(module_id);
`

// Migrate applies the schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if d.Driver == DriverSQLite {
		ts = "DATETIME"
	}
	ddl := strings.ReplaceAll(schema, "{{ts}}", ts)
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
