package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"faceattend/internal/campus"
	"faceattend/internal/store"
)

// ErrAlreadyMarked is returned when a (student, session) pair already has a record.
var ErrAlreadyMarked = errors.New("attendance already marked for this session")

// Record is one persisted attendance mark.
type Record struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	ModuleID       string    `json:"module_id"`
	SessionID      string    `json:"session_id"`
	Status         string    `json:"status"`
	AttendanceTime time.Time `json:"attendance_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository persists attendance records.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Exists reports whether the pair already has a record.
func (r *Repository) Exists(ctx context.Context, studentID, sessionID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance WHERE student_id = $1 AND session_id = $2
	`, studentID, sessionID).Scan(&n)
	return n > 0, err
}

// Insert writes rec. The UNIQUE(student_id, session_id) constraint turns a
// concurrent duplicate into ErrAlreadyMarked.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = campus.StatusPresent
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.AttendanceTime
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, module_id, session_id, status, attendance_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.StudentID, rec.ModuleID, rec.SessionID, rec.Status, rec.AttendanceTime, rec.CreatedAt)
	if store.IsUniqueViolation(err) {
		return ErrAlreadyMarked
	}
	return err
}

// BySession lists the records of one session, earliest first.
func (r *Repository) BySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, module_id, session_id, status, attendance_time, created_at
		FROM attendance WHERE session_id = $1
		ORDER BY attendance_time
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ModuleID, &rec.SessionID, &rec.Status, &rec.AttendanceTime, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
