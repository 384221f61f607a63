package campus

import (
	"context"
	"fmt"
	"strings"

	"faceattend/internal/auth"
)

// Service implements the lecturer and student operations around the
// attendance core: registration, login, modules, enrollment, sessions, marks.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Repository exposes the underlying repository to the attendance core.
func (s *Service) Repository() *Repository { return s.repo }

// RegisterStudent validates and stores a new student.
func (s *Service) RegisterStudent(ctx context.Context, req StudentRegistration) (*Student, error) {
	email := strings.TrimSpace(req.Email)
	if !ValidStudentEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := checkPasswords(req.Password, req.ConfirmPassword); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Surname) == "" ||
		strings.TrimSpace(req.Course) == "" || strings.TrimSpace(req.Faculty) == "" {
		return nil, ErrMissingField
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("campus: hash password: %w", err)
	}
	st := &Student{
		Name:         strings.TrimSpace(req.Name),
		Surname:      strings.TrimSpace(req.Surname),
		Email:        email,
		Course:       strings.TrimSpace(req.Course),
		Faculty:      strings.TrimSpace(req.Faculty),
		PasswordHash: hash,
	}
	if err := s.repo.CreateStudent(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// RegisterLecturer validates and stores a new lecturer.
func (s *Service) RegisterLecturer(ctx context.Context, req LecturerRegistration) (*Lecturer, error) {
	email := strings.TrimSpace(req.Email)
	if !ValidLecturerEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := checkPasswords(req.Password, req.ConfirmPassword); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Surname) == "" || strings.TrimSpace(req.Faculty) == "" {
		return nil, ErrMissingField
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("campus: hash password: %w", err)
	}
	l := &Lecturer{
		Name:         strings.TrimSpace(req.Name),
		Surname:      strings.TrimSpace(req.Surname),
		Email:        email,
		Faculty:      strings.TrimSpace(req.Faculty),
		PasswordHash: hash,
	}
	if err := s.repo.CreateLecturer(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func checkPasswords(password, confirm string) error {
	if password == "" {
		return ErrMissingField
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// Authenticate checks credentials for the given role and returns the caller's identity.
func (s *Service) Authenticate(ctx context.Context, role auth.Role, email, password string) (auth.Identity, error) {
	email = strings.TrimSpace(email)
	switch role {
	case auth.RoleStudent:
		if !ValidStudentEmail(email) {
			return auth.Identity{}, ErrInvalidEmail
		}
		st, err := s.repo.StudentByEmail(ctx, email)
		if err != nil {
			return auth.Identity{}, err
		}
		if st == nil || !auth.CheckPassword(st.PasswordHash, password) {
			return auth.Identity{}, ErrInvalidCredentials
		}
		return auth.Identity{UserID: st.ID, Role: auth.RoleStudent}, nil
	case auth.RoleLecturer:
		if !ValidLecturerEmail(email) {
			return auth.Identity{}, ErrInvalidEmail
		}
		l, err := s.repo.LecturerByEmail(ctx, email)
		if err != nil {
			return auth.Identity{}, err
		}
		if l == nil || !auth.CheckPassword(l.PasswordHash, password) {
			return auth.Identity{}, ErrInvalidCredentials
		}
		return auth.Identity{UserID: l.ID, Role: auth.RoleLecturer}, nil
	default:
		return auth.Identity{}, ErrInvalidCredentials
	}
}

// CreateModule adds a module owned by lecturerID.
func (s *Service) CreateModule(ctx context.Context, lecturerID string, req CreateModuleRequest) (*Module, error) {
	m := &Module{
		Name:       strings.TrimSpace(req.Name),
		Code:       strings.TrimSpace(req.Code),
		Faculty:    strings.TrimSpace(req.Faculty),
		LecturerID: lecturerID,
	}
	if m.Name == "" || m.Code == "" || m.Faculty == "" {
		return nil, ErrMissingField
	}
	if err := s.repo.CreateModule(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// LecturerModules lists the lecturer's modules.
func (s *Service) LecturerModules(ctx context.Context, lecturerID string) ([]Module, error) {
	return s.repo.ModulesByLecturer(ctx, lecturerID)
}

func (s *Service) ownedModule(ctx context.Context, lecturerID, moduleID string) (*Module, error) {
	m, err := s.repo.ModuleByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrModuleNotFound
	}
	if m.LecturerID != lecturerID {
		return nil, ErrForbidden
	}
	return m, nil
}

// EnrollStudent adds the student with studentEmail to one of the lecturer's modules.
func (s *Service) EnrollStudent(ctx context.Context, lecturerID, moduleID, studentEmail string) (*Enrollment, error) {
	if _, err := s.ownedModule(ctx, lecturerID, moduleID); err != nil {
		return nil, err
	}
	studentEmail = strings.TrimSpace(studentEmail)
	if !ValidStudentEmail(studentEmail) {
		return nil, ErrInvalidEmail
	}
	st, err := s.repo.StudentByEmail(ctx, studentEmail)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrStudentNotFound
	}
	enrolled, err := s.repo.IsEnrolled(ctx, st.ID, moduleID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}
	return s.repo.Enroll(ctx, st.ID, moduleID)
}

// CreateSession timetables a session. Sessions whose end precedes their start
// are rejected; overlapping sessions of one module are allowed.
func (s *Service) CreateSession(ctx context.Context, lecturerID string, req CreateSessionRequest) (*Session, error) {
	if _, err := s.ownedModule(ctx, lecturerID, req.ModuleID); err != nil {
		return nil, err
	}
	if req.Date.IsZero() || req.Start.IsZero() || req.End.IsZero() {
		return nil, ErrMissingField
	}
	if req.End.Before(req.Start) {
		return nil, ErrInvalidWindow
	}
	sess := &Session{ModuleID: req.ModuleID, Date: req.Date, Start: req.Start, End: req.End}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateFinalMark sets an enrolled student's final mark. Out-of-range marks
// are declined and leave the stored mark unchanged.
func (s *Service) UpdateFinalMark(ctx context.Context, lecturerID, moduleID, studentID string, mark float64) error {
	if _, err := s.ownedModule(ctx, lecturerID, moduleID); err != nil {
		return err
	}
	if !ValidMark(mark) {
		return ErrMarkOutOfRange
	}
	return s.repo.UpdateFinalMark(ctx, studentID, moduleID, mark)
}

// ModuleDetail returns the lecturer's view of a module.
func (s *Service) ModuleDetail(ctx context.Context, lecturerID, moduleID string) (*ModuleDetail, error) {
	m, err := s.ownedModule(ctx, lecturerID, moduleID)
	if err != nil {
		return nil, err
	}
	roster, err := s.repo.Roster(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.SessionsByModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	return &ModuleDetail{Module: *m, Students: roster, Sessions: sessions}, nil
}

// StudentDashboard lists the student's modules with attendance counts.
func (s *Service) StudentDashboard(ctx context.Context, studentID string) ([]ModuleSummary, error) {
	return s.repo.StudentModules(ctx, studentID)
}

// StudentModule returns the student's per-session attendance for one module.
func (s *Service) StudentModule(ctx context.Context, studentID, moduleID string) (*StudentModuleView, error) {
	enrolled, err := s.repo.IsEnrolled(ctx, studentID, moduleID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}
	m, err := s.repo.ModuleByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrModuleNotFound
	}
	sessions, err := s.repo.SessionAttendance(ctx, studentID, moduleID)
	if err != nil {
		return nil, err
	}
	view := &StudentModuleView{Module: *m, Sessions: sessions, TotalSessions: len(sessions)}
	for _, sa := range sessions {
		if sa.Status == StatusPresent {
			view.AttendedSessions++
		}
	}
	return view, nil
}
