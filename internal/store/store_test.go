package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNewDBSQLiteMigratesTwice(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "attend.db")
	db, err := NewDB(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !db.Healthy(ctx) {
		t.Fatalf("expected healthy db")
	}
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	if _, err := NewDB(context.Background(), "oracle", "x"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, DriverSQLite, filepath.Join(t.TempDir(), "u.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()
	insert := `INSERT INTO lecturers (id, name, surname, email, faculty, password_hash, created_at)
		VALUES ($1, 'a', 'b', $2, 'f', 'h', $3)`
	if _, err := db.Client.ExecContext(ctx, insert, "l1", "x@dut.ac.za", time.Now()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err = db.Client.ExecContext(ctx, insert, "l2", "x@dut.ac.za", time.Now())
	if !IsUniqueViolation(err) {
		t.Fatalf("IsUniqueViolation(%v) = false, want true", err)
	}
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(wrapped) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) || IsUniqueViolation(nil) {
		t.Fatalf("plain errors are not unique violations")
	}
}
