package campus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"faceattend/internal/store"
)

// Repository persists campus entities. Queries use $n placeholders, which
// both pgx and go-sqlite3 accept when numbered in order of first use.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, name, surname, email, course, faculty, password_hash, COALESCE(face_ref, ''), created_at`

func scanStudent(row interface{ Scan(...any) error }) (*Student, error) {
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Surname, &s.Email, &s.Course, &s.Faculty, &s.PasswordHash, &s.FaceRef, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateStudent inserts a student. A duplicate email yields ErrEmailTaken.
func (r *Repository) CreateStudent(ctx context.Context, s *Student) error {
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, surname, email, course, faculty, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.Name, s.Surname, s.Email, s.Course, s.Faculty, s.PasswordHash, s.CreatedAt)
	if store.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// StudentByID returns nil, nil when no student matches.
func (r *Repository) StudentByID(ctx context.Context, id string) (*Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// StudentByEmail returns nil, nil when no student matches.
func (r *Repository) StudentByEmail(ctx context.Context, email string) (*Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// FaceReference returns the recorded reference-face key. It is empty when
// none is recorded or the student does not exist.
func (r *Repository) FaceReference(ctx context.Context, studentID string) (string, error) {
	var ref sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT face_ref FROM students WHERE id = $1`, studentID).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ref.String, nil
}

// SwapFaceReference records key as the student's reference face if the
// recorded key is still prev ("" for none). It reports false when another
// writer got there first.
func (r *Repository) SwapFaceReference(ctx context.Context, studentID, prev, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET face_ref = $1 WHERE id = $2 AND COALESCE(face_ref, '') = $3`,
		key, studentID, prev)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	s, err := r.StudentByID(ctx, studentID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, ErrStudentNotFound
	}
	return false, nil
}

// CreateLecturer inserts a lecturer. A duplicate email yields ErrEmailTaken.
func (r *Repository) CreateLecturer(ctx context.Context, l *Lecturer) error {
	l.ID = uuid.NewString()
	l.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lecturers (id, name, surname, email, faculty, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, l.ID, l.Name, l.Surname, l.Email, l.Faculty, l.PasswordHash, l.CreatedAt)
	if store.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// LecturerByEmail returns nil, nil when no lecturer matches.
func (r *Repository) LecturerByEmail(ctx context.Context, email string) (*Lecturer, error) {
	var l Lecturer
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, surname, email, faculty, password_hash, created_at
		FROM lecturers WHERE email = $1
	`, email).Scan(&l.ID, &l.Name, &l.Surname, &l.Email, &l.Faculty, &l.PasswordHash, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateModule inserts a module. A duplicate code yields ErrModuleCodeTaken.
func (r *Repository) CreateModule(ctx context.Context, m *Module) error {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO modules (id, name, code, faculty, lecturer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.Name, m.Code, m.Faculty, m.LecturerID, m.CreatedAt)
	if store.IsUniqueViolation(err) {
		return ErrModuleCodeTaken
	}
	return err
}

// ModuleByID returns nil, nil when no module matches.
func (r *Repository) ModuleByID(ctx context.Context, id string) (*Module, error) {
	var m Module
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, code, faculty, lecturer_id, created_at FROM modules WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Code, &m.Faculty, &m.LecturerID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ModulesByLecturer lists the lecturer's modules by code.
func (r *Repository) ModulesByLecturer(ctx context.Context, lecturerID string) ([]Module, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, code, faculty, lecturer_id, created_at
		FROM modules WHERE lecturer_id = $1 ORDER BY code
	`, lecturerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Code, &m.Faculty, &m.LecturerID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Enroll joins a student to a module. A duplicate yields ErrAlreadyEnrolled.
func (r *Repository) Enroll(ctx context.Context, studentID, moduleID string) (*Enrollment, error) {
	e := &Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		ModuleID:   moduleID,
		EnrolledAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, student_id, module_id, final_mark, enrolled_at)
		VALUES ($1, $2, $3, 0, $4)
	`, e.ID, e.StudentID, e.ModuleID, e.EnrolledAt)
	if store.IsUniqueViolation(err) {
		return nil, ErrAlreadyEnrolled
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// IsEnrolled reports whether the student is enrolled in the module.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, moduleID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND module_id = $2
	`, studentID, moduleID).Scan(&n)
	return n > 0, err
}

// Enrollment returns nil, nil when the student is not enrolled.
func (r *Repository) Enrollment(ctx context.Context, studentID, moduleID string) (*Enrollment, error) {
	var e Enrollment
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, module_id, final_mark, enrolled_at
		FROM enrollments WHERE student_id = $1 AND module_id = $2
	`, studentID, moduleID).Scan(&e.ID, &e.StudentID, &e.ModuleID, &e.FinalMark, &e.EnrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateFinalMark sets the mark on an existing enrollment.
func (r *Repository) UpdateFinalMark(ctx context.Context, studentID, moduleID string, mark float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET final_mark = $1 WHERE student_id = $2 AND module_id = $3
	`, mark, studentID, moduleID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotEnrolled
	}
	return nil
}

// CreateSession inserts a session.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, module_id, session_date, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.ModuleID, s.Date, s.Start, s.End, s.CreatedAt)
	return err
}

// SessionByID returns nil, nil when no session matches.
func (r *Repository) SessionByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, module_id, session_date, start_time, end_time, created_at FROM sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.ModuleID, &s.Date, &s.Start, &s.End, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionsByModule lists sessions newest first.
func (r *Repository) SessionsByModule(ctx context.Context, moduleID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, module_id, session_date, start_time, end_time, created_at
		FROM sessions WHERE module_id = $1
		ORDER BY session_date DESC, start_time DESC
	`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.ModuleID, &s.Date, &s.Start, &s.End, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Roster lists enrolled students with marks and attendance counts.
func (r *Repository) Roster(ctx context.Context, moduleID string) ([]RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.surname, s.email, s.course, s.faculty, s.created_at, e.final_mark,
			(SELECT COUNT(*) FROM sessions se WHERE se.module_id = $1),
			(SELECT COUNT(*) FROM attendance a
				WHERE a.student_id = s.id AND a.module_id = $1 AND a.status = $2)
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.module_id = $1
		ORDER BY s.surname, s.name
	`, moduleID, StatusPresent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Surname, &e.Email, &e.Course, &e.Faculty, &e.CreatedAt,
			&e.FinalMark, &e.TotalSessions, &e.AttendedSessions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// StudentModules lists the student's modules with attendance counts.
func (r *Repository) StudentModules(ctx context.Context, studentID string) ([]ModuleSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.name, m.code, m.faculty, m.lecturer_id, m.created_at,
			(SELECT COUNT(*) FROM sessions se WHERE se.module_id = m.id),
			(SELECT COUNT(*) FROM attendance a
				WHERE a.module_id = m.id AND a.student_id = $1 AND a.status = $2)
		FROM modules m
		JOIN enrollments e ON e.module_id = m.id
		WHERE e.student_id = $1
		ORDER BY m.code
	`, studentID, StatusPresent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModuleSummary
	for rows.Next() {
		var m ModuleSummary
		if err := rows.Scan(&m.ID, &m.Name, &m.Code, &m.Faculty, &m.LecturerID, &m.CreatedAt,
			&m.TotalSessions, &m.AttendedSessions); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SessionAttendance lists the module's sessions with the student's status, newest first.
func (r *Repository) SessionAttendance(ctx context.Context, studentID, moduleID string) ([]SessionAttendance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT se.id, se.module_id, se.session_date, se.start_time, se.end_time, se.created_at,
			a.status, a.attendance_time
		FROM sessions se
		LEFT JOIN attendance a ON a.session_id = se.id AND a.student_id = $1
		WHERE se.module_id = $2
		ORDER BY se.session_date DESC, se.start_time DESC
	`, studentID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("campus: session attendance: %w", err)
	}
	defer rows.Close()
	var out []SessionAttendance
	for rows.Next() {
		var (
			sa     SessionAttendance
			status sql.NullString
			at     sql.NullTime
		)
		if err := rows.Scan(&sa.ID, &sa.ModuleID, &sa.Date, &sa.Start, &sa.End, &sa.CreatedAt, &status, &at); err != nil {
			return nil, err
		}
		sa.Status = StatusAbsent
		if status.Valid {
			sa.Status = status.String
		}
		if at.Valid {
			t := at.Time
			sa.AttendanceTime = &t
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}
