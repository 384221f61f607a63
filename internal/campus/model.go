package campus

import (
	"errors"
	"time"
)

// Declined operations. Handlers report these to the caller; none are fatal.
var (
	ErrInvalidEmail       = errors.New("invalid institutional email")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrModuleCodeTaken    = errors.New("module code already exists")
	ErrModuleNotFound     = errors.New("module not found")
	ErrStudentNotFound    = errors.New("student with this email does not exist")
	ErrAlreadyEnrolled    = errors.New("student is already enrolled in this module")
	ErrNotEnrolled        = errors.New("student is not enrolled in this module")
	ErrForbidden          = errors.New("module belongs to another lecturer")
	ErrInvalidWindow      = errors.New("session end time is before its start time")
	ErrMarkOutOfRange     = errors.New("final mark must be between 0 and 100")
	ErrMissingField       = errors.New("required field missing")
)

// Student is a registered learner. FaceRef is the blob key of the reference
// face image, empty when none has been uploaded.
type Student struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Surname      string    `json:"surname"`
	Email        string    `json:"email"`
	Course       string    `json:"course"`
	Faculty      string    `json:"faculty"`
	PasswordHash string    `json:"-"`
	FaceRef      string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Lecturer owns modules.
type Lecturer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Surname      string    `json:"surname"`
	Email        string    `json:"email"`
	Faculty      string    `json:"faculty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Module is a course offering with a unique code.
type Module struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Faculty    string    `json:"faculty"`
	LecturerID string    `json:"lecturer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Enrollment joins a student to a module and carries the final mark.
type Enrollment struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	ModuleID   string    `json:"module_id"`
	FinalMark  float64   `json:"final_mark"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Session is one timetabled meeting of a module.
type Session struct {
	ID        string    `json:"id"`
	ModuleID  string    `json:"module_id"`
	Date      Date      `json:"session_date"`
	Start     TimeOfDay `json:"start_time"`
	End       TimeOfDay `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// StudentRegistration is the sign-up form for students.
type StudentRegistration struct {
	Name            string
	Surname         string
	Email           string
	Course          string
	Faculty         string
	Password        string
	ConfirmPassword string
}

// LecturerRegistration is the sign-up form for lecturers.
type LecturerRegistration struct {
	Name            string
	Surname         string
	Email           string
	Faculty         string
	Password        string
	ConfirmPassword string
}

// CreateModuleRequest describes a new module.
type CreateModuleRequest struct {
	Name    string
	Code    string
	Faculty string
}

// CreateSessionRequest describes a new session of a module.
type CreateSessionRequest struct {
	ModuleID string
	Date     Date
	Start    TimeOfDay
	End      TimeOfDay
}

// ModuleSummary is a module with session and attendance counts.
type ModuleSummary struct {
	Module
	TotalSessions    int `json:"total_sessions"`
	AttendedSessions int `json:"attended_sessions"`
}

// RosterEntry is an enrolled student as seen by the module's lecturer.
type RosterEntry struct {
	Student
	FinalMark        float64 `json:"final_mark"`
	TotalSessions    int     `json:"total_sessions"`
	AttendedSessions int     `json:"attended_sessions"`
}

// ModuleDetail is the lecturer's view of one module.
type ModuleDetail struct {
	Module   Module        `json:"module"`
	Students []RosterEntry `json:"students"`
	Sessions []Session     `json:"sessions"`
}

// SessionAttendance is one session with the student's status. Status is
// "Absent" when no attendance row exists.
type SessionAttendance struct {
	Session
	Status         string     `json:"status"`
	AttendanceTime *time.Time `json:"attendance_time,omitempty"`
}

// StudentModuleView is the student's view of one enrolled module.
type StudentModuleView struct {
	Module           Module              `json:"module"`
	Sessions         []SessionAttendance `json:"attendance"`
	TotalSessions    int                 `json:"total_sessions"`
	AttendedSessions int                 `json:"attended_sessions"`
}

// Attendance statuses.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)
